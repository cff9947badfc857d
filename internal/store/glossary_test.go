package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "machine_learning", NormalizeTerm("Machine Learning"))
	assert.Equal(t, "machine_learning", NormalizeTerm("  machine   LEARNING "))
	assert.Equal(t, "rrf", NormalizeTerm("RRF"))
	assert.Equal(t, "", NormalizeTerm("   "))
}

func TestUpsertConceptDedupByNormalization(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.UpsertConcept("Machine Learning")
	require.NoError(t, err)
	id2, err := db.UpsertConcept("machine learning")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := db.UpsertConcept("Deep Learning")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestLinkConceptToChunkIdempotent(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	id, err := db.UpsertConcept("Indexing")
	require.NoError(t, err)
	require.NoError(t, db.LinkConceptToChunk(id, chunks[0].Hash, hash, "snippet one"))
	require.NoError(t, db.LinkConceptToChunk(id, chunks[0].Hash, hash, "snippet two"))

	linked, err := db.GetChunksForConcept(id, 10)
	require.NoError(t, err)
	assert.Len(t, linked, 1)

	concepts, err := db.SearchConcepts("indexing", 10)
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, 1, concepts[0].ChunkCount)
}

func TestGetConceptsForDocument(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 2)

	idA, err := db.UpsertConcept("Alpha Topic")
	require.NoError(t, err)
	idB, err := db.UpsertConcept("Beta Topic")
	require.NoError(t, err)
	require.NoError(t, db.LinkConceptToChunk(idA, chunks[0].Hash, hash, "s"))
	require.NoError(t, db.LinkConceptToChunk(idB, chunks[1].Hash, hash, "s"))

	concepts, err := db.GetConceptsForDocument(hash)
	require.NoError(t, err)
	assert.Len(t, concepts, 2)
}

func TestDeleteConceptsForDocumentCleansOrphans(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha")
	chunks := insertTestChunks(t, db, hash, 1)

	id, err := db.UpsertConcept("Orphan Candidate")
	require.NoError(t, err)
	require.NoError(t, db.LinkConceptToChunk(id, chunks[0].Hash, hash, "s"))

	require.NoError(t, db.DeleteConceptsForDocument(hash))
	concepts, err := db.GetConceptsForDocument(hash)
	require.NoError(t, err)
	assert.Empty(t, concepts)
}
