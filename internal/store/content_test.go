package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertContentIdempotent(t *testing.T) {
	db := openTestDB(t)
	hash := DigestHex("hello world")

	require.NoError(t, db.InsertContent(hash, "hello world"))
	require.NoError(t, db.InsertContent(hash, "hello world"))

	body, ok, err := db.GetContent(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello world", body)
}

func TestGetContentMissing(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.GetContent(DigestHex("nothing here"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestMatchesStoredHash(t *testing.T) {
	db := openTestDB(t)
	hash := mustInsertDocument(t, db, "docs", "a.md", "A", "alpha body")

	body, ok, err := db.GetContent(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, DigestHex(body))
}

func TestDocid(t *testing.T) {
	hash := DigestHex("some body")
	assert.Equal(t, hash[:6], Docid(hash))
	assert.Len(t, Docid(hash), 6)
}
