package embed

import (
	"context"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// RetryEmbedder decorates an Embedder with bounded exponential
// backoff for transient transport failures. Non-retryable errors
// propagate immediately.
type RetryEmbedder struct {
	inner      Embedder
	maxRetries int
	baseDelay  time.Duration
}

var _ Embedder = (*RetryEmbedder)(nil)

// NewRetryEmbedder wraps inner; maxRetries <= 0 uses the default.
func NewRetryEmbedder(inner Embedder, maxRetries int) *RetryEmbedder {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryEmbedder{inner: inner, maxRetries: maxRetries, baseDelay: 500 * time.Millisecond}
}

func (e *RetryEmbedder) retry(ctx context.Context, op func() error) error {
	var err error
	delay := e.baseDelay
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = op()
		if err == nil {
			return nil
		}
		if !kberrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// Embed implements Embedder.
func (e *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.retry(ctx, func() error {
		var opErr error
		vec, opErr = e.inner.Embed(ctx, text)
		return opErr
	})
	return vec, err
}

// EmbedBatch implements Embedder.
func (e *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.retry(ctx, func() error {
		var opErr error
		vectors, opErr = e.inner.EmbedBatch(ctx, texts)
		return opErr
	})
	return vectors, err
}

// Dimensions implements Embedder.
func (e *RetryEmbedder) Dimensions() int { return e.inner.Dimensions() }

// ModelName implements Embedder.
func (e *RetryEmbedder) ModelName() string { return e.inner.ModelName() }

// Available implements Embedder.
func (e *RetryEmbedder) Available(ctx context.Context) bool { return e.inner.Available(ctx) }

// Close implements Embedder.
func (e *RetryEmbedder) Close() error { return e.inner.Close() }
