package llmkit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	response string
	err      error
}

func (s *scriptedLLM) ChatCompletion(context.Context, []Message) (string, error) {
	return s.response, s.err
}
func (s *scriptedLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("unused")
}
func (s *scriptedLLM) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unused")
}
func (s *scriptedLLM) EmbeddingDimensions() int { return 0 }
func (s *scriptedLLM) ModelName() string        { return "scripted" }

func TestHeuristicStrategyLadder(t *testing.T) {
	h := &HeuristicStrategyAnalyzer{}
	ctx := context.Background()

	got, err := h.Analyze(ctx, "SessionStore::cleanup_expired")
	require.NoError(t, err)
	assert.Equal(t, StrategyBM25, got.Strategy)

	got, err = h.Analyze(ctx, "how does caching improve reindex speed")
	require.NoError(t, err)
	assert.Equal(t, StrategyVector, got.Strategy)

	got, err = h.Analyze(ctx, "sqlite pragmas")
	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, got.Strategy)
}

func TestHeuristicStrategyNoEmbeddings(t *testing.T) {
	h := &HeuristicStrategyAnalyzer{EmbeddingsAvailable: func() bool { return false }}
	got, err := h.Analyze(context.Background(), "how does anything work")
	require.NoError(t, err)
	assert.Equal(t, StrategyBM25, got.Strategy)
}

func TestLLMStrategyAnalyzerParsesResponse(t *testing.T) {
	a := NewLLMStrategyAnalyzer(&scriptedLLM{
		response: `{"strategy":"vector","confidence":0.9,"reasoning":"conceptual","is_multilingual":false}`,
	}, &HeuristicStrategyAnalyzer{})

	got, err := a.Analyze(context.Background(), "meaning of chunking")
	require.NoError(t, err)
	assert.Equal(t, StrategyVector, got.Strategy)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestLLMStrategyAnalyzerFallsBack(t *testing.T) {
	fallback := &HeuristicStrategyAnalyzer{}

	for _, client := range []*scriptedLLM{
		{err: errors.New("transport down")},
		{response: "no json at all"},
		{response: `{"strategy":"quantum"}`},
	} {
		a := NewLLMStrategyAnalyzer(client, fallback)
		got, err := a.Analyze(context.Background(), "sqlite pragmas")
		require.NoError(t, err)
		assert.Equal(t, StrategyHybrid, got.Strategy)
	}
}
