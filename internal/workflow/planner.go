package workflow

import (
	"context"
	"regexp"
	"strings"

	"github.com/localkb/engine/internal/llmkit"
)

// Planner produces a Workflow for a query.
type Planner interface {
	Plan(ctx context.Context, query string) (Workflow, error)
}

// LLMPlanner asks a chat model for a step list; any transport or
// parse failure falls back to the heuristic plan rather than erroring.
type LLMPlanner struct {
	client              llmkit.LLMClient
	embeddingsAvailable func() bool
}

var _ Planner = (*LLMPlanner)(nil)

// NewLLMPlanner builds a planner over client. embeddingsAvailable
// gates vector steps in the fallback plan; nil means always
// available.
func NewLLMPlanner(client llmkit.LLMClient, embeddingsAvailable func() bool) *LLMPlanner {
	return &LLMPlanner{client: client, embeddingsAvailable: embeddingsAvailable}
}

const plannerSystemPrompt = `You plan retrieval workflows for a local knowledge base. Respond with one JSON object:
{"steps": [...], "reasoning": "...", "expected_results": "...", "complexity": "simple|moderate|complex"}

Available steps (each is an object with a "type" field):
- {"type":"bm25_search","query":"...","limit":N} - keyword search over documents
- {"type":"vector_search","query":"...","limit":N} - semantic search
- {"type":"hybrid_search","query":"...","limit":N,"use_expansion":bool,"use_reranking":bool}
- {"type":"bm25_chunk_search","query":"...","limit":N} - keyword search over chunks
- {"type":"vector_chunk_search","query":"...","limit":N}
- {"type":"glossary_search","query":"...","limit":N,"min_confidence":0.0-1.0}
- {"type":"filter_metadata","category":"...","difficulty":"...","tags":[...],"exclude_category":"...","exclude_difficulty":"..."}
- {"type":"filter_temporal","after":"ISO date or '3 months ago'","before":"..."}
- {"type":"filter_collection","collections":[...]}
- {"type":"expand_query","original_query":"..."}
- {"type":"rerank","query":"...","limit":N}
- {"type":"deduplicate"}
- {"type":"merge","strategy":"rrf|interleave|append"}
- {"type":"limit","count":N}

Guidelines: use bm25_search for acronyms and specific identifiers; vector_search or
hybrid_search for natural language; glossary_search sparingly, for abstract concept
queries. Keep plans short - most queries need one search step plus at most a filter
and a limit.

Examples:
Query: "HTTP timeout config"
{"steps":[{"type":"bm25_search","query":"HTTP timeout config","limit":10}],"reasoning":"identifier-like terms","complexity":"simple"}

Query: "how does session expiry work"
{"steps":[{"type":"hybrid_search","query":"how does session expiry work","limit":10,"use_expansion":true}],"reasoning":"natural-language question","complexity":"simple"}

Query: "recent beginner guides about indexing"
{"steps":[{"type":"vector_search","query":"guides about indexing","limit":20},{"type":"filter_metadata","difficulty":"beginner"},{"type":"filter_temporal","after":"1 month ago"},{"type":"limit","count":10}],"reasoning":"semantic search then metadata and recency filters","complexity":"moderate"}

Respond with JSON only.`

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, query string) (Workflow, error) {
	raw, err := p.client.ChatCompletion(ctx, []llmkit.Message{
		{Role: llmkit.RoleSystem, Content: plannerSystemPrompt},
		{Role: llmkit.RoleUser, Content: "Query: " + query},
	})
	if err == nil {
		if wf, ok := ParseWorkflowJSON(raw); ok {
			return wf, nil
		}
	}
	return HeuristicWorkflow(query, p.available()), nil
}

func (p *LLMPlanner) available() bool {
	if p.embeddingsAvailable == nil {
		return true
	}
	return p.embeddingsAvailable()
}

var (
	identifierRe      = regexp.MustCompile(`::|_|[A-Z][a-z0-9]*[A-Z]`)
	naturalLanguageRe = regexp.MustCompile(`(?i)\b(how|what|why|when|where|explain|describe|difference)\b`)
)

// HeuristicWorkflow is the no-LLM fallback ladder: BM25 without
// embeddings, vector for plain natural-language questions, hybrid
// otherwise.
func HeuristicWorkflow(query string, embeddingsAvailable bool) Workflow {
	const defaultLimit = 10

	if !embeddingsAvailable {
		return Workflow{
			Steps:     []Step{{Type: StepBM25Search, Query: query, Limit: defaultLimit}},
			Reasoning: "no vector index available",
		}
	}
	if naturalLanguageRe.MatchString(query) && !identifierRe.MatchString(query) {
		return Workflow{
			Steps:     []Step{{Type: StepVectorSearch, Query: query, Limit: defaultLimit}},
			Reasoning: "natural-language question without technical markers",
		}
	}
	return Workflow{
		Steps:     []Step{{Type: StepHybridSearch, Query: query, Limit: defaultLimit}},
		Reasoning: "mixed signals, fusing keyword and semantic search",
	}
}

// HeuristicPlanner always plans without an LLM.
type HeuristicPlanner struct {
	EmbeddingsAvailable func() bool
}

var _ Planner = (*HeuristicPlanner)(nil)

// Plan implements Planner.
func (p *HeuristicPlanner) Plan(_ context.Context, query string) (Workflow, error) {
	available := true
	if p.EmbeddingsAvailable != nil {
		available = p.EmbeddingsAvailable()
	}
	return HeuristicWorkflow(strings.TrimSpace(query), available), nil
}
