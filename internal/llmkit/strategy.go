package llmkit

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Strategy is the search primitive the strategy analyzer recommends.
type Strategy string

const (
	StrategyBM25   Strategy = "bm25"
	StrategyVector Strategy = "vector"
	StrategyHybrid Strategy = "hybrid"
)

// StrategyAnalysis is the result of StrategyAnalyzer.Analyze.
type StrategyAnalysis struct {
	Strategy        Strategy
	Confidence      float64
	Reasoning       string
	IsMultilingual  bool
}

// StrategyAnalyzer is the collaborator interface.
type StrategyAnalyzer interface {
	Analyze(ctx context.Context, query string) (StrategyAnalysis, error)
}

// HeuristicStrategyAnalyzer implements the fallback ladder: Vector
// for natural-language questions without technical
// markers, BM25 when embeddings are unavailable or the query looks
// like an identifier, Hybrid otherwise.
type HeuristicStrategyAnalyzer struct {
	// EmbeddingsAvailable reports whether a vector index exists; when
	// false the analyzer always recommends BM25.
	EmbeddingsAvailable func() bool
}

var _ StrategyAnalyzer = (*HeuristicStrategyAnalyzer)(nil)

var identifierMarkerRe = regexp.MustCompile(`::|_|[A-Z].*[A-Z]`)

// Analyze implements StrategyAnalyzer without any LLM call.
func (h *HeuristicStrategyAnalyzer) Analyze(_ context.Context, query string) (StrategyAnalysis, error) {
	if h.EmbeddingsAvailable != nil && !h.EmbeddingsAvailable() {
		return StrategyAnalysis{Strategy: StrategyBM25, Confidence: 1.0, Reasoning: "no vector index available"}, nil
	}

	if identifierMarkerRe.MatchString(query) {
		return StrategyAnalysis{Strategy: StrategyBM25, Confidence: 0.8, Reasoning: "query looks like an identifier"}, nil
	}

	lower := strings.ToLower(query)
	for _, marker := range naturalLanguageMarkers {
		if strings.Contains(lower, marker) {
			return StrategyAnalysis{Strategy: StrategyVector, Confidence: 0.7, Reasoning: "natural-language question"}, nil
		}
	}

	return StrategyAnalysis{Strategy: StrategyHybrid, Confidence: 0.5, Reasoning: "no strong signal either way"}, nil
}

// LLMStrategyAnalyzer asks an LLMClient to classify the query,
// falling back to HeuristicStrategyAnalyzer on any transport or parse
// failure.
type LLMStrategyAnalyzer struct {
	client   LLMClient
	fallback *HeuristicStrategyAnalyzer
}

var _ StrategyAnalyzer = (*LLMStrategyAnalyzer)(nil)

// NewLLMStrategyAnalyzer builds an LLM-backed analyzer with the given
// heuristic fallback.
func NewLLMStrategyAnalyzer(client LLMClient, fallback *HeuristicStrategyAnalyzer) *LLMStrategyAnalyzer {
	return &LLMStrategyAnalyzer{client: client, fallback: fallback}
}

const strategySystemPrompt = `Classify the search query below into exactly one JSON object: ` +
	`{"strategy": "bm25"|"vector"|"hybrid", "confidence": 0.0-1.0, "reasoning": "...", ` +
	`"is_multilingual": true|false}. Use bm25 for exact identifiers or error codes, vector ` +
	`for natural-language questions, hybrid otherwise. Respond with JSON only.`

// Analyze asks the LLM to classify the query's strategy.
func (a *LLMStrategyAnalyzer) Analyze(ctx context.Context, query string) (StrategyAnalysis, error) {
	raw, err := a.client.ChatCompletion(ctx, []Message{
		{Role: RoleSystem, Content: strategySystemPrompt},
		{Role: RoleUser, Content: query},
	})
	if err != nil {
		return a.fallback.Analyze(ctx, query)
	}

	candidate := jsonObjectPattern.FindString(raw)
	if candidate == "" {
		return a.fallback.Analyze(ctx, query)
	}

	var parsed struct {
		Strategy       string  `json:"strategy"`
		Confidence     float64 `json:"confidence"`
		Reasoning      string  `json:"reasoning"`
		IsMultilingual bool    `json:"is_multilingual"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return a.fallback.Analyze(ctx, query)
	}

	strategy := Strategy(strings.ToLower(parsed.Strategy))
	switch strategy {
	case StrategyBM25, StrategyVector, StrategyHybrid:
	default:
		return a.fallback.Analyze(ctx, query)
	}

	return StrategyAnalysis{
		Strategy:       strategy,
		Confidence:     parsed.Confidence,
		Reasoning:      parsed.Reasoning,
		IsMultilingual: parsed.IsMultilingual,
	}, nil
}
