// Package unified is the single search entry point: it parses inline
// and natural-language filters out of the query, picks a strategy via
// the analyzer, executes the chosen primitive, and applies the
// extracted filters to the result list.
package unified

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/llmkit"
	"github.com/localkb/engine/internal/search"
	"github.com/localkb/engine/internal/store"
	"github.com/localkb/engine/internal/telemetry"
	"github.com/localkb/engine/internal/workflow"
)

// Engine bundles the unified-search collaborators.
type Engine struct {
	DB       *store.DB
	Embedder embed.Embedder
	Parser   llmkit.QueryParser
	Analyzer llmkit.StrategyAnalyzer
	Expander search.QueryExpander
	Reranker search.Reranker
	Planner  workflow.Planner
	Logger   *slog.Logger

	// Keyword is the chunk keyword backend used by workflow chunk
	// searches; nil uses the SQLite FTS5 default.
	Keyword store.BM25Index

	// Metrics, when set, receives one record per search.
	Metrics *telemetry.QueryMetrics

	// Now pins the clock for temporal filtering in tests.
	Now func() time.Time
}

// New wires an engine with the heuristic parser and analyzer; the
// LLM-backed collaborators can be swapped in afterwards.
func New(db *store.DB, embedder embed.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		DB:       db,
		Embedder: embedder,
		Parser:   llmkit.NewHeuristicQueryParser(),
		Analyzer: &llmkit.HeuristicStrategyAnalyzer{EmbeddingsAvailable: db.HasVectorIndex},
		Logger:   logger,
	}
}

// Search is the unified entry point: parse filters, pick a strategy,
// run the primitive, then narrow by the extracted filters.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) ([]*search.Result, error) {
	started := time.Now()
	strategy := "bm25"
	var finalCount int
	defer func() {
		if e.Metrics != nil {
			e.Metrics.Record(telemetry.QueryRecord{
				Strategy:    strategy,
				Duration:    time.Since(started),
				ResultCount: finalCount,
				At:          started,
			})
		}
	}()

	residual, inlineHints := llmkit.ParseInlineMetadataFilters(query)

	parsed := e.Parser.Parse(residual)
	hints := append(inlineHints, parsed.MetadataFilters...)
	terms := parsed.SearchTerms
	if terms == "" {
		terms = residual
	}

	if !e.DB.HasVectorIndex() {
		results, err := search.FTS(e.DB, terms, opts)
		if err != nil {
			return nil, err
		}
		results = e.applyParsedFilters(results, parsed.TemporalFilter, hints)
		finalCount = len(results)
		return results, nil
	}

	analysis, err := e.Analyzer.Analyze(ctx, terms)
	if err != nil {
		analysis = llmkit.StrategyAnalysis{Strategy: llmkit.StrategyHybrid}
	}
	strategy = string(analysis.Strategy)

	// Filters narrow after the search, so the primitive over-fetches.
	searchOpts := opts
	if len(hints) > 0 || parsed.TemporalFilter != nil {
		limit := opts.Limit
		if limit < 0 {
			limit = search.DefaultLimit
		}
		searchOpts.Limit = limit * 3
	}

	var results []*search.Result
	switch analysis.Strategy {
	case llmkit.StrategyBM25:
		results, err = search.FTS(e.DB, terms, searchOpts)
	case llmkit.StrategyVector:
		results, err = search.Vector(ctx, e.DB, e.Embedder, terms, searchOpts)
	default:
		results, err = search.Hybrid(ctx, e.DB, e.Embedder, terms, search.HybridOptions{
			Options:      searchOpts,
			Expander:     e.Expander,
			UseExpansion: e.Expander != nil,
			Reranker:     e.Reranker,
		})
	}
	if err != nil {
		return nil, err
	}

	final := limitResults(e.applyParsedFilters(results, parsed.TemporalFilter, hints), opts)
	finalCount = len(final)
	return final, nil
}

// SmartSearch plans a workflow for the query and executes it,
// degrading to the heuristic plan when no planner is configured.
func (e *Engine) SmartSearch(ctx context.Context, query string, opts search.Options) ([]*search.Result, []workflow.TraceStep, error) {
	planner := e.Planner
	if planner == nil {
		planner = &workflow.HeuristicPlanner{EmbeddingsAvailable: e.DB.HasVectorIndex}
	}
	wf, err := planner.Plan(ctx, query)
	if err != nil {
		wf = workflow.HeuristicWorkflow(query, e.DB.HasVectorIndex())
	}

	executor := workflow.NewExecutor(e.DB, e.Embedder, e.Logger)
	executor.Expander = e.Expander
	executor.Reranker = e.Reranker
	executor.Keyword = e.Keyword
	executor.Now = e.Now
	return executor.Execute(ctx, wf, query, opts)
}

// applyParsedFilters narrows results by the parser's temporal window
// and metadata hints.
func (e *Engine) applyParsedFilters(results []*search.Result, temporal *llmkit.TemporalFilter, hints []llmkit.MetadataHint) []*search.Result {
	if temporal != nil {
		results = filterTemporal(results, temporal)
	}
	for _, hint := range hints {
		results = filterByHint(results, hint)
	}
	return results
}

func filterTemporal(results []*search.Result, temporal *llmkit.TemporalFilter) []*search.Result {
	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if temporal.Start != "" && r.ModifiedAt < temporal.Start {
			continue
		}
		if temporal.End != "" && r.ModifiedAt > temporal.End {
			continue
		}
		out = append(out, r)
	}
	return out
}

func filterByHint(results []*search.Result, hint llmkit.MetadataHint) []*search.Result {
	match := func(r *search.Result) bool {
		switch hint.Field {
		case "category":
			return strings.EqualFold(r.Category, hint.Value)
		case "difficulty":
			return strings.EqualFold(r.Difficulty, hint.Value)
		case "tag":
			for _, t := range r.Tags {
				if strings.EqualFold(t, hint.Value) {
					return true
				}
			}
			return false
		default:
			// Unknown hint fields (e.g. author) cannot be evaluated on
			// the projection; keep the result rather than over-filter.
			return true
		}
	}
	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func limitResults(results []*search.Result, opts search.Options) []*search.Result {
	limit := opts.Limit
	if limit < 0 {
		limit = search.DefaultLimit
	}
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
