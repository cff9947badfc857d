package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBM25IndexSearch(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "src", "a.go", "a.go", "package a")
	require.NoError(t, db.InsertChunk(Chunk{
		Hash: "ch1", DocumentHash: hash, Seq: 0,
		Content: "func ParseConfig() error", ChunkType: "function",
		StartLine: 1, EndLine: 3,
	}))
	require.NoError(t, db.InsertChunk(Chunk{
		Hash: "ch2", DocumentHash: hash, Seq: 1,
		Content: "func RenderOutput() string", ChunkType: "function",
		StartLine: 5, EndLine: 9,
	}))

	idx := NewSQLiteBM25Index(db)
	results, err := idx.Search(context.Background(), "ParseConfig", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ch1", results[0].DocID)
	assert.Positive(t, results[0].Score)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, idx.Stats().DocumentCount)
}

func TestExactVectorStoreSearchOrdering(t *testing.T) {
	db := openTestDB(t)
	vs := NewExactVectorStore(db, "m1")

	require.NoError(t, vs.Add(context.Background(),
		[]string{"c1", "c2", "c3"},
		[][]float32{{1, 0}, {0.9, 0.1}, {0, 1}},
	))

	results, err := vs.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, "c2", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.True(t, vs.Contains("c1"))
	assert.Equal(t, 3, vs.Count())
}

func TestExactVectorStoreCollectionScope(t *testing.T) {
	db := openTestDB(t)
	h1 := mustInsertDocument(t, db, "alpha", "a.md", "A", "alpha body")
	h2 := mustInsertDocument(t, db, "beta", "b.md", "B", "beta body")
	require.NoError(t, db.InsertChunk(Chunk{Hash: "ca", DocumentHash: h1, Seq: 0, Content: "a", ChunkType: "text", StartLine: 1, EndLine: 1}))
	require.NoError(t, db.InsertChunk(Chunk{Hash: "cb", DocumentHash: h2, Seq: 0, Content: "b", ChunkType: "text", StartLine: 1, EndLine: 1}))
	require.NoError(t, db.InsertChunkEmbedding("ca", "m1", []float32{1, 0}))
	require.NoError(t, db.InsertChunkEmbedding("cb", "m1", []float32{1, 0}))

	scoped := NewExactVectorStoreForCollection(db, "m1", "alpha")
	results, err := scoped.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ca", results[0].ID)
}

func TestBleveBM25Index(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*IndexDoc{
		{ID: "c1", Content: "parse the configuration file"},
		{ID: "c2", Content: "render output to the terminal"},
	}))

	results, err := idx.Search(ctx, "configuration", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].DocID)

	require.NoError(t, idx.Delete(ctx, []string{"c1"}))
	results, err = idx.Search(ctx, "configuration", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewBM25IndexFactory(t *testing.T) {
	db := openTestDB(t)

	sqlite, err := NewBM25Index(BM25BackendSQLite, db, "")
	require.NoError(t, err)
	_, ok := sqlite.(*SQLiteBM25Index)
	assert.True(t, ok)

	bleve, err := NewBM25Index(BM25BackendBleve, db, "")
	require.NoError(t, err)
	defer bleve.Close()
	_, ok = bleve.(*BleveBM25Index)
	assert.True(t, ok)

	_, err = NewBM25Index("unknown", db, "")
	require.Error(t, err)
}
