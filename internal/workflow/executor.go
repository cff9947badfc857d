package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/search"
	"github.com/localkb/engine/internal/store"
)

// TraceStep records one executed step for diagnostics.
type TraceStep struct {
	Name        string
	ResultCount int
}

// Executor runs workflow steps sequentially over a mutable result
// set. Search steps replace the set, filter steps narrow it, Merge
// combines it with the buffer left by the previous search.
type Executor struct {
	DB       *store.DB
	Embedder embed.Embedder
	Expander search.QueryExpander
	Reranker search.Reranker
	Logger   *slog.Logger

	// Keyword is the chunk keyword backend; nil uses the SQLite FTS5
	// default.
	Keyword store.BM25Index

	// Now pins the clock for temporal filters in tests.
	Now func() time.Time
}

// NewExecutor wires an executor; logger may be nil.
func NewExecutor(db *store.DB, embedder embed.Embedder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{DB: db, Embedder: embedder, Logger: logger}
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Executor) keywordIndex() store.BM25Index {
	if e.Keyword != nil {
		return e.Keyword
	}
	return store.NewSQLiteBM25Index(e.DB)
}

// execContext is the mutable state threaded through the steps.
type execContext struct {
	results []*search.Result
	// previous holds the result set that the most recent search step
	// displaced, the buffer a Merge step combines with.
	previous []*search.Result
	query    string
	trace    []TraceStep
}

// Execute runs the workflow for query. A failing step aborts the
// workflow and returns the best partial result alongside the error.
func (e *Executor) Execute(ctx context.Context, wf Workflow, query string, opts search.Options) ([]*search.Result, []TraceStep, error) {
	ec := &execContext{query: query}

	for _, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			return ec.results, ec.trace, err
		}
		if err := e.runStep(ctx, ec, step, opts); err != nil {
			return ec.results, ec.trace, err
		}
		ec.trace = append(ec.trace, TraceStep{Name: string(step.Type), ResultCount: len(ec.results)})
	}
	return ec.results, ec.trace, nil
}

func (e *Executor) runStep(ctx context.Context, ec *execContext, step Step, opts search.Options) error {
	searchOpts := opts
	if step.Limit > 0 {
		searchOpts.Limit = step.Limit
	} else if searchOpts.Limit <= 0 {
		searchOpts.Limit = search.DefaultLimit
	}
	query := step.Query
	if query == "" {
		query = ec.query
	}

	replace := func(results []*search.Result) {
		if len(ec.results) > 0 {
			ec.previous = ec.results
		}
		ec.results = results
	}

	switch step.Type {
	case StepBM25Search:
		results, err := search.FTS(e.DB, query, searchOpts)
		if err != nil {
			return err
		}
		replace(results)

	case StepVectorSearch:
		results, err := search.Vector(ctx, e.DB, e.Embedder, query, searchOpts)
		if err != nil {
			return err
		}
		replace(results)

	case StepHybridSearch:
		results, err := search.Hybrid(ctx, e.DB, e.Embedder, query, search.HybridOptions{
			Options:      searchOpts,
			Expander:     e.Expander,
			UseExpansion: step.UseExpansion,
			Reranker:     e.Reranker,
			UseReranking: step.UseReranking,
		})
		if err != nil {
			return err
		}
		replace(results)

	case StepBM25ChunkSearch:
		results, err := search.ChunksKeyword(ctx, e.DB, e.keywordIndex(), query, searchOpts)
		if err != nil {
			return err
		}
		replace(results)

	case StepVectorChunkSearch:
		results, err := search.ChunksVector(ctx, e.DB, e.Embedder, query, searchOpts)
		if err != nil {
			return err
		}
		replace(results)

	case StepGlossarySearch:
		results, err := search.Glossary(e.DB, query, searchOpts.Limit, step.MinConfidence)
		if err != nil {
			return err
		}
		replace(results)

	case StepFilterMetadata:
		ec.results = filterMetadata(ec.results, step)

	case StepFilterTemporal:
		ec.results = e.filterTemporal(ec.results, step)

	case StepFilterCollection:
		ec.results = filterCollection(ec.results, step.Collections)

	case StepExpandQuery:
		original := step.OriginalQuery
		if original == "" {
			original = ec.query
		}
		if e.Expander != nil {
			if variants, err := e.Expander.Expand(ctx, original); err == nil && len(variants) > 0 {
				ec.query = original + " " + strings.Join(variants, " ")
			}
		}

	case StepRerank:
		limit := step.Limit
		if limit <= 0 {
			limit = len(ec.results)
		}
		reranker := e.Reranker
		if reranker == nil {
			reranker = search.TruncateReranker{}
		}
		reranked, err := reranker.Rerank(ctx, query, ec.results, limit)
		if err != nil {
			return err
		}
		ec.results = reranked

	case StepDeduplicate:
		ec.results = search.Deduplicate(ec.results)

	case StepMerge:
		ec.results = mergeResults(step.Strategy, ec.results, ec.previous)

	case StepLimit:
		if step.Count >= 0 && len(ec.results) > step.Count {
			ec.results = ec.results[:step.Count]
		}

	default:
		e.Logger.Warn("skipping unknown workflow step", slog.String("type", string(step.Type)))
	}
	return nil
}

func mergeResults(strategy MergeStrategy, current, previous []*search.Result) []*search.Result {
	switch strategy {
	case MergeInterleave:
		return search.Interleave(current, previous)
	case MergeAppend:
		return search.Append(current, previous)
	default:
		return search.FuseRRF(0, current, previous)
	}
}

func filterMetadata(results []*search.Result, step Step) []*search.Result {
	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if step.Category != "" && !strings.EqualFold(r.Category, step.Category) {
			continue
		}
		if step.Difficulty != "" && !strings.EqualFold(r.Difficulty, step.Difficulty) {
			continue
		}
		if step.ExcludeCategory != "" && strings.EqualFold(r.Category, step.ExcludeCategory) {
			continue
		}
		if step.ExcludeDifficulty != "" && strings.EqualFold(r.Difficulty, step.ExcludeDifficulty) {
			continue
		}
		if len(step.Tags) > 0 && !hasAnyTag(r.Tags, step.Tags) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func (e *Executor) filterTemporal(results []*search.Result, step Step) []*search.Result {
	now := e.now()
	var after, before time.Time
	var hasAfter, hasBefore bool
	if step.After != "" {
		after, hasAfter = ParseTimeExpression(step.After, now)
	}
	if step.Before != "" {
		before, hasBefore = ParseTimeExpression(step.Before, now)
	}
	if !hasAfter && !hasBefore {
		return results
	}

	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		modified, ok := parseResultTime(r.ModifiedAt)
		if !ok {
			continue
		}
		if hasAfter && modified.Before(after) {
			continue
		}
		if hasBefore && modified.After(before) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func parseResultTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func filterCollection(results []*search.Result, collections []string) []*search.Result {
	if len(collections) == 0 {
		return results
	}
	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		for _, c := range collections {
			if r.Collection == c {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
