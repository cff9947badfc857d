package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/engine/internal/llmkit"
)

// fakeLLM is a canned-response LLMClient for collaborator tests.
type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) ChatCompletion(context.Context, []llmkit.Message) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("no embeddings in fake")
}

func (f *fakeLLM) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("no embeddings in fake")
}

func (f *fakeLLM) EmbeddingDimensions() int { return 0 }
func (f *fakeLLM) ModelName() string        { return "fake-model" }

func TestSynonymExpander(t *testing.T) {
	e := NewSynonymExpander()
	variants, err := e.Expand(context.Background(), "delete function")
	require.NoError(t, err)
	require.NotEmpty(t, variants)
	assert.LessOrEqual(t, len(variants), maxSynonymVariants)
	assert.Contains(t, variants[0], "function")

	none, err := e.Expand(context.Background(), "zzz qqq")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLLMQueryExpanderParsesArray(t *testing.T) {
	client := &fakeLLM{response: `Here you go: ["find the function", "locate the method"]`}
	e := NewLLMQueryExpander(client)

	variants, err := e.Expand(context.Background(), "search function")
	require.NoError(t, err)
	assert.Equal(t, []string{"find the function", "locate the method"}, variants)
}

func TestLLMQueryExpanderFallsBackOnGarbage(t *testing.T) {
	client := &fakeLLM{response: "sorry, I can't help"}
	e := NewLLMQueryExpander(client)

	variants, err := e.Expand(context.Background(), "delete stuff")
	require.NoError(t, err)
	// Falls back to the synonym dictionary rather than failing.
	assert.NotEmpty(t, variants)
}

func TestLLMQueryExpanderFallsBackOnTransportError(t *testing.T) {
	client := &fakeLLM{err: errors.New("connection refused")}
	e := NewLLMQueryExpander(client)

	_, err := e.Expand(context.Background(), "anything at all")
	require.NoError(t, err)
}

func TestTruncateReranker(t *testing.T) {
	results := []*Result{mkResult("aaaaaa", 3, SourceBM25), mkResult("bbbbbb", 2, SourceBM25)}
	out, err := TruncateReranker{}.Rerank(context.Background(), "q", results, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestLLMRerankerReorders(t *testing.T) {
	client := &fakeLLM{response: `[2, 1]`}
	r := NewLLMReranker(client)
	results := []*Result{mkResult("aaaaaa", 3, SourceBM25), mkResult("bbbbbb", 2, SourceBM25)}

	out, err := r.Rerank(context.Background(), "q", results, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "bbbbbb", out[0].DocumentHash)
	assert.Equal(t, "aaaaaa", out[1].DocumentHash)
}

func TestLLMRerankerPreservesForgottenEntries(t *testing.T) {
	client := &fakeLLM{response: `[3]`}
	r := NewLLMReranker(client)
	results := []*Result{
		mkResult("aaaaaa", 3, SourceBM25),
		mkResult("bbbbbb", 2, SourceBM25),
		mkResult("cccccc", 1, SourceBM25),
	}

	out, err := r.Rerank(context.Background(), "q", results, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "cccccc", out[0].DocumentHash)
	assert.Equal(t, "aaaaaa", out[1].DocumentHash)
}

func TestLLMRerankerFallsBackOnError(t *testing.T) {
	client := &fakeLLM{err: errors.New("timeout")}
	r := NewLLMReranker(client)
	results := []*Result{mkResult("aaaaaa", 3, SourceBM25), mkResult("bbbbbb", 2, SourceBM25)}

	out, err := r.Rerank(context.Background(), "q", results, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "aaaaaa", out[0].DocumentHash)
}
