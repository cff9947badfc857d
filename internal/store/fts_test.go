package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ownership", `"ownership"`},
		{"rust ownership model", `"rust" OR "ownership" OR "model"`},
		{`"quoted" AND (hostile)`, `"quoted" OR "AND" OR "hostile"`},
		{"-- ; DROP TABLE", `"DROP" OR "TABLE"`},
		{"   ", ""},
		{"!!!", ""},
		{"snake_case_name", `"snake_case_name"`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFTSQuery(tc.in), "input %q", tc.in)
	}
}

// FTS round-trip: insert a document, find it by a body word, and see
// the rank-bearing hit with sane metadata.
func TestDocumentsFTSRoundTrip(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "rust.md", "Rust Notes", "Rust ownership model")

	hits, err := db.SearchDocumentsFTS("ownership", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, hash[:6], hits[0].Document.Docid())
	assert.Equal(t, "Rust Notes", hits[0].Document.Title)
	assert.Negative(t, hits[0].Rank) // FTS5 bm25() is negative for matches
}

func TestFTSEmptyQueryReturnsNothing(t *testing.T) {
	db := openTestDB(t)
	mustInsertDocument(t, db, "docs", "a.md", "A", "alpha body")

	hits, err := db.SearchDocumentsFTS("!!!", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = db.SearchDocumentsFTS("alpha", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSRowsFollowActiveFlag(t *testing.T) {
	db := openTestDB(t)
	mustInsertDocument(t, db, "docs", "a.md", "A", "unique searchterm body")

	hits, err := db.SearchDocumentsFTS("searchterm", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = db.DeactivateDocument("docs", "a.md")
	require.NoError(t, err)

	hits, err = db.SearchDocumentsFTS("searchterm", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChunksFTSMatchesBreadcrumb(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "src", "config.go", "config.go", "package config")
	require.NoError(t, db.InsertChunk(Chunk{
		Hash:         DigestHex("chunk validate"),
		DocumentHash: hash,
		Seq:          0,
		Content:      "func (c *Config) Validate() error { return nil }",
		ChunkType:    "method",
		Breadcrumb:   "Config::Validate",
		StartLine:    10,
		EndLine:      12,
	}))

	hits, err := db.SearchChunksFTS("validate", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Config::Validate", hits[0].Chunk.Breadcrumb)
}
