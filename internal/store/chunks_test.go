package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTestChunks(t *testing.T, db *DB, docHash string, n int) []Chunk {
	t.Helper()
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		c := Chunk{
			Hash:         DigestHex(fmt.Sprintf("chunk-%s-%d", docHash, i)),
			DocumentHash: docHash,
			Seq:          i,
			Pos:          i * 100,
			Content:      fmt.Sprintf("content of chunk %d", i),
			ChunkType:    "text",
			StartLine:    i*10 + 1,
			EndLine:      i*10 + 9,
		}
		require.NoError(t, db.InsertChunk(c))
		chunks = append(chunks, c)
	}
	return chunks
}

func TestChunksSeqOrderAndContiguity(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	insertTestChunks(t, db, hash, 5)

	chunks, err := db.GetChunksForDocument(hash)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
	}
}

func TestInsertChunkUpsertPreservesLLMFields(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	require.NoError(t, db.UpdateChunkLLMFields(chunks[0].Hash, ChunkLLMFields{
		Summary: "summarized",
		Purpose: "testing",
		Labels:  map[string]string{"kind": "fixture"},
	}))

	// Re-inserting the same chunk hash must not wipe generated fields.
	require.NoError(t, db.InsertChunk(chunks[0]))

	got, err := db.GetChunk(chunks[0].Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "summarized", got.LLM.Summary)
	assert.Equal(t, map[string]string{"kind": "fixture"}, got.LLM.Labels)
}

func TestLabelRowsRebuiltOnUpdate(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	require.NoError(t, db.UpdateChunkLLMFields(chunks[0].Hash, ChunkLLMFields{
		Labels: map[string]string{"kind": "fixture", "tier": "one"},
	}))
	require.NoError(t, db.UpdateChunkLLMFields(chunks[0].Hash, ChunkLLMFields{
		Labels: map[string]string{"kind": "updated"},
	}))

	got, err := db.GetChunk(chunks[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kind": "updated"}, got.LLM.Labels)

	matches, err := db.SearchChunksByLabel("kind", "updated", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	gone, err := db.SearchChunksByLabel("tier", "one", 10)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestGetSurroundingChunks(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	insertTestChunks(t, db, hash, 3)

	surrounding, err := db.GetSurroundingChunks(hash, 1, 1)
	require.NoError(t, err)
	require.Len(t, surrounding, 3)
	assert.Equal(t, 0, surrounding[0].Seq)
	assert.Equal(t, 1, surrounding[1].Seq)
	assert.Equal(t, 2, surrounding[2].Seq)

	// At the first chunk there is no predecessor.
	edge, err := db.GetSurroundingChunks(hash, 0, 1)
	require.NoError(t, err)
	require.Len(t, edge, 2)
}

func TestDeleteChunksForDocumentCascades(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 2)

	require.NoError(t, db.UpdateChunkLLMFields(chunks[0].Hash, ChunkLLMFields{
		Labels: map[string]string{"kind": "fixture"},
	}))
	conceptID, err := db.UpsertConcept("Test Concept")
	require.NoError(t, err)
	require.NoError(t, db.LinkConceptToChunk(conceptID, chunks[0].Hash, hash, "snippet"))
	require.NoError(t, db.InsertChunkEmbedding(chunks[0].Hash, "m1", []float32{1, 2, 3}))

	require.NoError(t, db.DeleteChunksForDocument(hash))

	remaining, err := db.GetChunksForDocument(hash)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	labels, err := db.SearchChunksByLabel("kind", "fixture", 10)
	require.NoError(t, err)
	assert.Empty(t, labels)
	linked, err := db.GetChunksForConcept(conceptID, 10)
	require.NoError(t, err)
	assert.Empty(t, linked)
}
