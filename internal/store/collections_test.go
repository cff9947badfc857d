package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	col := Collection{
		Name:           "docs",
		Path:           "/srv/docs",
		Pattern:        "**/*.md",
		ProviderType:   "filesystem",
		ProviderConfig: `{"exclude":"drafts/**"}`,
	}
	require.NoError(t, db.UpsertCollection(col))

	got, err := db.GetCollection("docs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "**/*.md", got.Pattern)
	assert.Equal(t, map[string]string{"exclude": "drafts/**"}, got.ProviderOptions())

	// Upsert replaces fields.
	col.Pattern = "**/*.markdown"
	require.NoError(t, db.UpsertCollection(col))
	got, err = db.GetCollection("docs")
	require.NoError(t, err)
	assert.Equal(t, "**/*.markdown", got.Pattern)

	all, err := db.ListCollections()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeleteCollection("docs"))
	gone, err := db.GetCollection("docs")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestContextAnnotations(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertContext("src/search", "ranking lives here"))
	require.NoError(t, db.UpsertContext("src/search", "ranking and fusion live here"))

	ctx, ok, err := db.GetContext("src/search")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ranking and fusion live here", ctx)

	_, ok, err = db.GetContext("src/unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLLMCache(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetCachedMetadata("key1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetCachedMetadata("key1", `{"summary":"s"}`))
	raw, ok, err := db.GetCachedMetadata("key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"summary":"s"}`, raw)

	require.NoError(t, db.DeleteCachedMetadata("key1"))
	_, ok, err = db.GetCachedMetadata("key1")
	require.NoError(t, err)
	assert.False(t, ok)
}
