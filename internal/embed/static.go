package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// StaticDimensions is the output width of the deterministic embedder.
const StaticDimensions = 256

// StaticModelName identifies static vectors in the model registry.
const StaticModelName = "static-hash-v1"

// StaticEmbedder produces deterministic embeddings from token hashes:
// no network, no model, stable across runs. It exists so indexing and
// search work offline and so tests can assert on vector behavior, not
// as a quality retrieval model.
type StaticEmbedder struct {
	dimensions int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns the deterministic embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{dimensions: StaticDimensions}
}

// Embed implements Embedder: each whitespace token contributes a
// hash-seeded pseudo-random direction; the sum is L2-normalised.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		for i := 0; i < e.dimensions; i++ {
			// Stretch the 32 hash bytes over the vector by cycling
			// through the digest's four 8-byte lanes.
			lane := sum[(i*8)%len(sum):]
			if len(lane) < 8 {
				lane = sum[:8]
			}
			bits := binary.LittleEndian.Uint64(lane)
			// Map to [-1, 1) deterministically.
			vec[i] += float64(int64(bits>>11))/float64(1<<52) - 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return e.dimensions }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return StaticModelName }

// Available implements Embedder; the static embedder always is.
func (e *StaticEmbedder) Available(context.Context) bool { return true }

// Close implements Embedder.
func (e *StaticEmbedder) Close() error { return nil }
