// Package workflow plans and executes multi-step retrieval
// workflows: an LLM (or a heuristic fallback) emits a step list,
// which the executor applies sequentially over a mutable result set.
package workflow

import (
	"encoding/json"
	"strings"
)

// StepType enumerates the executable step vocabulary.
type StepType string

const (
	StepBM25Search        StepType = "bm25_search"
	StepVectorSearch      StepType = "vector_search"
	StepHybridSearch      StepType = "hybrid_search"
	StepBM25ChunkSearch   StepType = "bm25_chunk_search"
	StepVectorChunkSearch StepType = "vector_chunk_search"
	StepGlossarySearch    StepType = "glossary_search"
	StepFilterMetadata    StepType = "filter_metadata"
	StepFilterTemporal    StepType = "filter_temporal"
	StepFilterCollection  StepType = "filter_collection"
	StepExpandQuery       StepType = "expand_query"
	StepRerank            StepType = "rerank"
	StepDeduplicate       StepType = "deduplicate"
	StepMerge             StepType = "merge"
	StepLimit             StepType = "limit"
)

// MergeStrategy names how a Merge step combines result buffers.
type MergeStrategy string

const (
	MergeRRF        MergeStrategy = "rrf"
	MergeInterleave MergeStrategy = "interleave"
	MergeAppend     MergeStrategy = "append"
)

// Step is one workflow operation. Fields beyond Type are meaningful
// only for the step kinds that read them; the planner's JSON carries
// the same flat shape.
type Step struct {
	Type StepType `json:"type"`

	// Search steps
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`

	// HybridSearch
	UseExpansion bool `json:"use_expansion,omitempty"`
	UseReranking bool `json:"use_reranking,omitempty"`

	// GlossarySearch
	MinConfidence float64 `json:"min_confidence,omitempty"`

	// FilterMetadata
	Category          string   `json:"category,omitempty"`
	Difficulty        string   `json:"difficulty,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	ExcludeCategory   string   `json:"exclude_category,omitempty"`
	ExcludeDifficulty string   `json:"exclude_difficulty,omitempty"`

	// FilterTemporal: ISO dates or relative expressions
	// ("3 months ago", "2 weeks ago").
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`

	// FilterCollection
	Collections []string `json:"collections,omitempty"`

	// ExpandQuery
	OriginalQuery string `json:"original_query,omitempty"`

	// Merge
	Strategy MergeStrategy `json:"strategy,omitempty"`

	// Limit
	Count int `json:"count,omitempty"`
}

// Workflow is a planned step sequence plus the planner's rationale.
type Workflow struct {
	Steps           []Step `json:"steps"`
	Reasoning       string `json:"reasoning,omitempty"`
	ExpectedResults string `json:"expected_results,omitempty"`
	Complexity      string `json:"complexity,omitempty"`
}

// ParseWorkflowJSON extracts and decodes a Workflow from raw LLM
// output, tolerating code fences and surrounding chatter by reading
// the outermost JSON object.
func ParseWorkflowJSON(raw string) (Workflow, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return Workflow{}, false
	}
	var wf Workflow
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wf); err != nil {
		return Workflow{}, false
	}
	if len(wf.Steps) == 0 {
		return Workflow{}, false
	}
	for _, s := range wf.Steps {
		if !knownStepType(s.Type) {
			// Unknown steps are tolerated at execution (logged and
			// skipped), but a plan of only unknowns is a parse failure.
			continue
		}
		return wf, true
	}
	return Workflow{}, false
}

func knownStepType(t StepType) bool {
	switch t {
	case StepBM25Search, StepVectorSearch, StepHybridSearch,
		StepBM25ChunkSearch, StepVectorChunkSearch, StepGlossarySearch,
		StepFilterMetadata, StepFilterTemporal, StepFilterCollection,
		StepExpandQuery, StepRerank, StepDeduplicate, StepMerge, StepLimit:
		return true
	}
	return false
}
