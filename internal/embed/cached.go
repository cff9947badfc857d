package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the in-process query-embedding cache.
const DefaultQueryCacheSize = 512

// CachedEmbedder decorates an Embedder with an LRU cache keyed by
// input text. Query embedding repeats heavily across a session;
// caching saves a network round trip per repeat.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner; size <= 0 uses the default.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed implements Embedder with the cache fast path.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, vec)
	return vec, nil
}

// EmbedBatch implements Embedder; only cache misses reach the inner
// embedder, and responses are re-stitched in input order.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if vec, ok := e.cache.Get(t); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) > 0 {
		vectors, err := e.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			if j >= len(missIdx) {
				break
			}
			out[missIdx[j]] = vec
			e.cache.Add(missTexts[j], vec)
		}
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// ModelName implements Embedder.
func (e *CachedEmbedder) ModelName() string { return e.inner.ModelName() }

// Available implements Embedder.
func (e *CachedEmbedder) Available(ctx context.Context) bool { return e.inner.Available(ctx) }

// Close implements Embedder.
func (e *CachedEmbedder) Close() error { return e.inner.Close() }
