package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/engine/internal/llmkit"
)

type cannedLLM struct {
	response string
	err      error
}

func (c *cannedLLM) ChatCompletion(context.Context, []llmkit.Message) (string, error) {
	return c.response, c.err
}
func (c *cannedLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("unused")
}
func (c *cannedLLM) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unused")
}
func (c *cannedLLM) EmbeddingDimensions() int { return 0 }
func (c *cannedLLM) ModelName() string        { return "canned" }

func TestParseWorkflowJSONPlain(t *testing.T) {
	wf, ok := ParseWorkflowJSON(`{"steps":[{"type":"bm25_search","query":"db","limit":5}],"reasoning":"r"}`)
	require.True(t, ok)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepBM25Search, wf.Steps[0].Type)
	assert.Equal(t, 5, wf.Steps[0].Limit)
}

func TestParseWorkflowJSONCodeFenced(t *testing.T) {
	raw := "Sure! Here's the plan:\n```json\n" +
		`{"steps":[{"type":"hybrid_search","query":"q","limit":10,"use_expansion":true}]}` +
		"\n```\nHope that helps."
	wf, ok := ParseWorkflowJSON(raw)
	require.True(t, ok)
	assert.Equal(t, StepHybridSearch, wf.Steps[0].Type)
	assert.True(t, wf.Steps[0].UseExpansion)
}

func TestParseWorkflowJSONInvalid(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"steps":[]}`, `{"steps":[{"type":"quantum_search"}]}`} {
		_, ok := ParseWorkflowJSON(raw)
		assert.False(t, ok, raw)
	}
}

func TestHeuristicWorkflowLadder(t *testing.T) {
	// No embeddings: BM25 regardless of phrasing.
	wf := HeuristicWorkflow("how does indexing work", false)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepBM25Search, wf.Steps[0].Type)

	// Natural-language question without technical markers: vector.
	wf = HeuristicWorkflow("how does indexing work", true)
	assert.Equal(t, StepVectorSearch, wf.Steps[0].Type)

	// Identifier-looking queries: not vector.
	wf = HeuristicWorkflow("how does ChunkIndex::insert work", true)
	assert.Equal(t, StepHybridSearch, wf.Steps[0].Type)

	// No strong signal: hybrid.
	wf = HeuristicWorkflow("database retention policy", true)
	assert.Equal(t, StepHybridSearch, wf.Steps[0].Type)
}

func TestLLMPlannerUsesResponse(t *testing.T) {
	planner := NewLLMPlanner(&cannedLLM{
		response: `{"steps":[{"type":"glossary_search","query":"abstractions","limit":5,"min_confidence":0.3}],"complexity":"simple"}`,
	}, nil)

	wf, err := planner.Plan(context.Background(), "abstractions")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepGlossarySearch, wf.Steps[0].Type)
	assert.InDelta(t, 0.3, wf.Steps[0].MinConfidence, 1e-9)
}

func TestLLMPlannerFallsBackOnErrorAndGarbage(t *testing.T) {
	planner := NewLLMPlanner(&cannedLLM{err: errors.New("down")}, func() bool { return false })
	wf, err := planner.Plan(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepBM25Search, wf.Steps[0].Type)

	planner = NewLLMPlanner(&cannedLLM{response: "no json here"}, nil)
	wf, err = planner.Plan(context.Background(), "what is chunking")
	require.NoError(t, err)
	assert.Equal(t, StepVectorSearch, wf.Steps[0].Type)
}
