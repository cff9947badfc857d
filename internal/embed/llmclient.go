package embed

import (
	"context"

	"github.com/localkb/engine/internal/llmkit"
)

// LLMClientEmbedder adapts the generic chat/embedding client to the
// Embedder contract, for deployments that serve embeddings from the
// same endpoint as chat completions.
type LLMClientEmbedder struct {
	client llmkit.LLMClient
}

var _ Embedder = (*LLMClientEmbedder)(nil)

// NewLLMClientEmbedder wraps client.
func NewLLMClientEmbedder(client llmkit.LLMClient) *LLMClientEmbedder {
	return &LLMClientEmbedder{client: client}
}

// Embed implements Embedder.
func (e *LLMClientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, text)
}

// EmbedBatch implements Embedder.
func (e *LLMClientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, texts)
}

// Dimensions implements Embedder.
func (e *LLMClientEmbedder) Dimensions() int { return e.client.EmbeddingDimensions() }

// ModelName implements Embedder.
func (e *LLMClientEmbedder) ModelName() string { return e.client.ModelName() }

// Available implements Embedder; the HTTP client reports readiness by
// serving a request, so this is optimistic.
func (e *LLMClientEmbedder) Available(context.Context) bool { return true }

// Close implements Embedder.
func (e *LLMClientEmbedder) Close() error { return nil }
