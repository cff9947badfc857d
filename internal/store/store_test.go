package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// openTestDB returns a private in-memory database.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mustInsertDocument stores content + document and returns the
// content hash.
func mustInsertDocument(t *testing.T, db *DB, collection, path, title, body string) string {
	t.Helper()
	hash := DigestHex(body)
	require.NoError(t, db.InsertContent(hash, body))
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.InsertDocument(collection, path, title, hash, "filesystem", "", now, now)
	require.NoError(t, err)
	return hash
}

func TestOpenAppliesSchema(t *testing.T) {
	db := openTestDB(t)

	// A fresh database records the current schema version.
	var version int
	err := db.conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/kb.db"

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.conn.Exec(`UPDATE schema_version SET version = ?`, CurrentSchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
}

func TestFileLockPreventsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/kb.db"

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(path)
	require.Error(t, err)
}
