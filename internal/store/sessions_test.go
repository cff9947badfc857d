package store

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionIDRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestCreateSessionIDShape(t *testing.T) {
	db := openTestDB(t)
	s, err := db.CreateSession(60)
	require.NoError(t, err)
	assert.Regexp(t, sessionIDRe, s.ID)
}

func TestSessionTTLEnforcedOnRead(t *testing.T) {
	db := openTestDB(t)
	s, err := db.CreateSession(3600)
	require.NoError(t, err)

	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Force the session into the past beyond its TTL.
	past := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	_, err = db.conn.Exec(`UPDATE sessions SET last_active_at = ? WHERE id = ?`, past, s.ID)
	require.NoError(t, err)

	expired, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestSessionContextRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s, err := db.CreateSession(3600)
	require.NoError(t, err)

	require.NoError(t, db.SetSessionContext(s.ID, "topic", "retrieval"))
	require.NoError(t, db.SetSessionContext(s.ID, "depth", "deep"))

	ctx, err := db.GetSessionContext(s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topic": "retrieval", "depth": "deep"}, ctx)
}

func TestSessionQueryLogAppendOnly(t *testing.T) {
	db := openTestDB(t)
	s, err := db.CreateSession(3600)
	require.NoError(t, err)

	require.NoError(t, db.LogSessionQuery(s.ID, "first", 3, []string{"h1", "h2"}))
	require.NoError(t, db.LogSessionQuery(s.ID, "second", 0, nil))

	queries, err := db.GetSessionQueries(s.ID)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "first", queries[0].Query)
	assert.Equal(t, []string{"h1", "h2"}, queries[0].TopResults)
	assert.Equal(t, "second", queries[1].Query)
}

func TestMarkSeenAndGetSeenHashes(t *testing.T) {
	db := openTestDB(t)
	s, err := db.CreateSession(3600)
	require.NoError(t, err)

	require.NoError(t, db.MarkSeen(s.ID, "dochash1", "chunkhash1", "L1"))
	require.NoError(t, db.MarkSeen(s.ID, "dochash1", "chunkhash1", "L1")) // idempotent
	require.NoError(t, db.MarkSeen(s.ID, "dochash2", "", ""))

	seen, err := db.GetSeenHashes(s.ID)
	require.NoError(t, err)
	assert.True(t, seen["dochash1"])
	assert.True(t, seen["dochash2"])
	assert.False(t, seen["dochash3"])
}

func TestCleanupExpiredSessions(t *testing.T) {
	db := openTestDB(t)
	live, err := db.CreateSession(3600)
	require.NoError(t, err)
	dead, err := db.CreateSession(60)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	_, err = db.conn.Exec(`UPDATE sessions SET last_active_at = ? WHERE id = ?`, past, dead.ID)
	require.NoError(t, err)

	n, err := db.CleanupExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetSession(live.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
