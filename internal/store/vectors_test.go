package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingBytesRoundTrip(t *testing.T) {
	vecs := [][]float32{
		{},
		{0},
		{1.5, -2.25, 3.125},
		{float32(math.Pi), float32(math.SmallestNonzeroFloat32), float32(math.MaxFloat32)},
	}
	for _, v := range vecs {
		got := BytesToEmbedding(EmbeddingToBytes(v))
		require.Len(t, got, len(v))
		for i := range v {
			assert.Equal(t, v[i], got[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// A zero-norm vector, including an empty one, yields 0.
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}

func TestModelCompatibility(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RegisterModel("m1", 3))
	require.NoError(t, db.CheckModelCompatibility("m1", 3))
	require.Error(t, db.CheckModelCompatibility("m1", 4))
	// Unknown models are always compatible.
	require.NoError(t, db.CheckModelCompatibility("brand-new", 99))
}

func TestInsertChunkVectorPairsRows(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	require.NoError(t, db.InsertChunkVector(hash, 0, 0, chunks[0].Hash, "m1", []float32{1, 2, 3}))

	// The embeddings row pairs with a content_vectors row.
	records, err := db.GetAllEmbeddings("m1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, hash, records[0].Hash)
	assert.Equal(t, []float32{1, 2, 3}, records[0].Vector)

	// And the chunk cache has the entry too.
	vec, status, err := db.GetCachedChunkEmbedding(chunks[0].Hash, "m1", 3)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, status)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestCachedChunkEmbeddingStatuses(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	_, status, err := db.GetCachedChunkEmbedding(chunks[0].Hash, "m1", 3)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, status)

	require.NoError(t, db.InsertChunkVector(hash, 0, 0, chunks[0].Hash, "m1", []float32{1, 2, 3}))

	// Asking with a different expected dimension signals a model
	// mismatch rather than returning the stale vector.
	_, status, err = db.GetCachedChunkEmbedding(chunks[0].Hash, "m1", 4)
	require.NoError(t, err)
	assert.Equal(t, CacheModelMismatch, status)
}

func TestInvalidateModelEmbeddings(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)
	require.NoError(t, db.InsertChunkVector(hash, 0, 0, chunks[0].Hash, "m1", []float32{1, 2, 3}))

	require.NoError(t, db.InvalidateModelEmbeddings("m1"))

	records, err := db.GetAllEmbeddings("m1")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, status, err := db.GetCachedChunkEmbedding(chunks[0].Hash, "m1", 3)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, status)
	// The model registration is dropped, so a new dimension registers
	// cleanly.
	require.NoError(t, db.CheckModelCompatibility("m1", 4))
}

func TestDeleteEmbeddings(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 2)
	require.NoError(t, db.InsertChunkVector(hash, 0, 0, chunks[0].Hash, "m1", []float32{1, 0}))
	require.NoError(t, db.InsertChunkVector(hash, 1, 100, chunks[1].Hash, "m1", []float32{0, 1}))

	require.NoError(t, db.DeleteEmbeddings(hash))
	records, err := db.GetAllEmbeddings("m1")
	require.NoError(t, err)
	assert.Empty(t, records)

	// Chunk cache survives a document-level delete for reuse on
	// reindex; only explicit cleanup removes orphans.
	_, status, err := db.GetCachedChunkEmbedding(chunks[0].Hash, "m1", 2)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, status)
}

func TestCleanupOrphanedChunkEmbeddings(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)
	require.NoError(t, db.InsertChunkEmbedding(chunks[0].Hash, "m1", []float32{1}))
	require.NoError(t, db.InsertChunkEmbedding("deadbeef", "m1", []float32{1}))

	n, err := db.CleanupOrphanedChunkEmbeddings()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDocumentHashesNeedingEmbedding(t *testing.T) {
	db := openTestDB(t)
	h1 := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	h2 := mustInsertDocument(t, db, "docs", "b.md", "B", "beta")
	c := insertTestChunks(t, db, h1, 1)
	require.NoError(t, db.InsertChunkVector(h1, 0, 0, c[0].Hash, "m1", []float32{1}))

	hashes, err := db.DocumentHashesNeedingEmbedding("m1")
	require.NoError(t, err)
	assert.Equal(t, []string{h2}, hashes)
}
