package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localkb/engine/internal/llmkit"
)

// Reranker reorders a candidate list by query relevance.
// Implementations must tolerate candidate lists shorter than
// limit and never add or drop entries other than truncation.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []*Result, limit int) ([]*Result, error)
}

// TruncateReranker is the degenerate reranker used when no model is
// configured: it keeps the existing order and truncates.
type TruncateReranker struct{}

// Rerank implements Reranker by truncation.
func (TruncateReranker) Rerank(_ context.Context, _ string, results []*Result, limit int) ([]*Result, error) {
	if limit > 0 && len(results) > limit {
		return results[:limit], nil
	}
	return results, nil
}

// LLMReranker asks a chat model to order candidates by relevance. On
// transport or parse failure it falls back to truncation, never
// failing the search.
type LLMReranker struct {
	client llmkit.LLMClient
}

// NewLLMReranker builds a reranker over client.
func NewLLMReranker(client llmkit.LLMClient) *LLMReranker {
	return &LLMReranker{client: client}
}

const rerankSystemPrompt = `You rank search results. Given a query and a numbered list of ` +
	`candidates, respond with a JSON array of candidate numbers, most relevant first. ` +
	`Respond with JSON only.`

// Rerank implements Reranker.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []*Result, limit int) ([]*Result, error) {
	if len(results) <= 1 {
		return TruncateReranker{}.Rerank(ctx, query, results, limit)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, res := range results {
		line := res.Title
		if res.Breadcrumb != "" {
			line += " — " + res.Breadcrumb
		}
		if res.Snippet != "" {
			snippet := res.Snippet
			if len(snippet) > 160 {
				snippet = snippet[:160]
			}
			line += ": " + snippet
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	raw, err := r.client.ChatCompletion(ctx, []llmkit.Message{
		{Role: llmkit.RoleSystem, Content: rerankSystemPrompt},
		{Role: llmkit.RoleUser, Content: b.String()},
	})
	if err != nil {
		return TruncateReranker{}.Rerank(ctx, query, results, limit)
	}
	candidate := jsonArrayPattern.FindString(raw)
	if candidate == "" {
		return TruncateReranker{}.Rerank(ctx, query, results, limit)
	}
	var ranking []int
	if err := json.Unmarshal([]byte(candidate), &ranking); err != nil {
		return TruncateReranker{}.Rerank(ctx, query, results, limit)
	}

	seen := make(map[int]bool)
	reordered := make([]*Result, 0, len(results))
	for _, n := range ranking {
		idx := n - 1
		if idx < 0 || idx >= len(results) || seen[idx] {
			continue
		}
		seen[idx] = true
		reordered = append(reordered, results[idx])
	}
	// Preserve anything the model forgot to mention, in original order.
	for i, res := range results {
		if !seen[i] {
			reordered = append(reordered, res)
		}
	}
	return TruncateReranker{}.Rerank(ctx, query, reordered, limit)
}
