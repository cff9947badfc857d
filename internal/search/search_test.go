package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localkb/engine/internal/store"
)

// fixtureDoc describes one document for test corpora.
type fixtureDoc struct {
	collection string
	path       string
	title      string
	body       string
	category   string
	difficulty string
	importance float64
}

func buildCorpus(t *testing.T, docs []fixtureDoc) *store.DB {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC().Format(time.RFC3339)
	for i, d := range docs {
		hash := store.DigestHex(d.body)
		require.NoError(t, db.InsertContent(hash, d.body))
		id, err := db.InsertDocument(d.collection, d.path, d.title, hash, "filesystem", "", now, now)
		require.NoError(t, err)
		if d.category != "" || d.difficulty != "" {
			require.NoError(t, db.UpdateDocumentLLMFields(id, store.LLMFields{
				Category:   d.category,
				Difficulty: d.difficulty,
			}))
		}
		if d.importance > 0 {
			require.NoError(t, db.SetImportanceScore(id, d.importance))
		}
		require.NoError(t, db.InsertChunk(store.Chunk{
			Hash:         store.DigestHex(fmt.Sprintf("chunk-%d-%s", i, d.path)),
			DocumentHash: hash,
			Seq:          0,
			Content:      d.body,
			ChunkType:    "text",
			StartLine:    1,
			EndLine:      1,
		}))
	}
	return db
}

// constEmbedder returns fixed vectors keyed by substring so tests can
// steer cosine similarity deterministically.
type constEmbedder struct {
	vectors map[string][]float32 // substring -> vector
	fallback []float32
	calls   int
}

func (e *constEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	for sub, vec := range e.vectors {
		if contains(text, sub) {
			return vec, nil
		}
	}
	return e.fallback, nil
}

func (e *constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *constEmbedder) Dimensions() int                  { return len(e.fallback) }
func (e *constEmbedder) ModelName() string                { return "const-test" }
func (e *constEmbedder) Available(context.Context) bool   { return true }
func (e *constEmbedder) Close() error                     { return nil }

func contains(s, sub string) bool {
	return len(sub) > 0 && len(s) >= len(sub) && indexOfString(s, sub) >= 0
}

func indexOfString(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
