// Package embed provides the embedding collaborators: the Embedder
// contract the engine depends on, an Ollama-backed HTTP transport, an
// adapter over the generic LLM client, a deterministic offline
// embedder, and caching/retry decorators.
package embed

import (
	"context"
	"time"
)

const (
	// DefaultBatchSize is a suggested batch size for callers; the
	// embedders in this package do not read it (they split at MaxBatchSize).
	DefaultBatchSize = 32

	// MaxBatchSize caps batch requests to bound memory.
	MaxBatchSize = 256

	// DefaultTimeout bounds one embedding HTTP round trip.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the transport-level retry budget.
	DefaultMaxRetries = 3
)

// Embedder is the embedding contract: the engine treats
// Dimensions as canonical and handles mismatches by invalidating
// cached vectors.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
