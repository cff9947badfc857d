package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Session is the TTL-bounded conversational scope:
// a context bag, a running query log, and a "seen" set used to avoid
// re-surfacing results the caller already has.
type Session struct {
	ID           string
	CreatedAt    string
	LastActiveAt string
	TTLSeconds   int
	Context      map[string]string
}

// SessionQuery records one query issued within a session, with the
// document hashes of its top results.
type SessionQuery struct {
	ID          int64
	SessionID   string
	Query       string
	ResultCount int
	TopResults  []string
	CreatedAt   string
}

// generateSessionID returns a UUID-v4-shaped random identifier.
func generateSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", kberrors.ExternalError("generate session id", err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

// CreateSession starts a new session with the given TTL.
func (d *DB) CreateSession(ttlSeconds int) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	now := nowISO()
	s := &Session{ID: id, CreatedAt: now, LastActiveAt: now, TTLSeconds: ttlSeconds, Context: map[string]string{}}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.conn.Exec(
		`INSERT INTO sessions(id, created_at, last_active_at, ttl_seconds, context) VALUES (?, ?, ?, ?, '{}')`,
		s.ID, s.CreatedAt, s.LastActiveAt, s.TTLSeconds,
	)
	if err != nil {
		return nil, kberrors.StorageError("create session", err)
	}
	return s, nil
}

// GetSession returns a session by id, or (nil, nil) if it has expired
// or never existed.
func (d *DB) GetSession(id string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s Session
	var contextJSON string
	err := d.conn.QueryRow(
		`SELECT id, created_at, last_active_at, ttl_seconds, context FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.CreatedAt, &s.LastActiveAt, &s.TTLSeconds, &contextJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get session", err)
	}

	lastActive, perr := time.Parse(time.RFC3339, s.LastActiveAt)
	if perr == nil && time.Since(lastActive) > time.Duration(s.TTLSeconds)*time.Second {
		return nil, nil
	}

	if err := json.Unmarshal([]byte(contextJSON), &s.Context); err != nil {
		s.Context = map[string]string{}
	}
	return &s, nil
}

// TouchSession refreshes last_active_at, extending the session's TTL
// window.
func (d *DB) TouchSession(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`UPDATE sessions SET last_active_at = ? WHERE id = ?`, nowISO(), id)
	if err != nil {
		return kberrors.StorageError("touch session", err)
	}
	return nil
}

// SetSessionContext merges key/value into a session's context bag.
func (d *DB) SetSessionContext(id, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var contextJSON string
	err := d.conn.QueryRow(`SELECT context FROM sessions WHERE id = ?`, id).Scan(&contextJSON)
	if err == sql.ErrNoRows {
		return kberrors.New(kberrors.CodeInvalidInput, "session not found", nil)
	}
	if err != nil {
		return kberrors.StorageError("get session context", err)
	}

	context := map[string]string{}
	_ = json.Unmarshal([]byte(contextJSON), &context)
	context[key] = value

	encoded, err := json.Marshal(context)
	if err != nil {
		return kberrors.ParseError("marshal session context", err)
	}
	if _, err := d.conn.Exec(`UPDATE sessions SET context = ? WHERE id = ?`, string(encoded), id); err != nil {
		return kberrors.StorageError("set session context", err)
	}
	return nil
}

// GetSessionContext returns the full context bag for a session.
func (d *DB) GetSessionContext(id string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var contextJSON string
	err := d.conn.QueryRow(`SELECT context FROM sessions WHERE id = ?`, id).Scan(&contextJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get session context", err)
	}
	context := map[string]string{}
	_ = json.Unmarshal([]byte(contextJSON), &context)
	return context, nil
}

// LogSessionQuery appends a query entry to a session's running log.
func (d *DB) LogSessionQuery(sessionID, query string, resultCount int, topResults []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	encoded, err := json.Marshal(topResults)
	if err != nil {
		return kberrors.ParseError("marshal top results", err)
	}
	_, err = d.conn.Exec(
		`INSERT INTO session_queries(session_id, query, result_count, top_results, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, query, resultCount, string(encoded), nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("log session query", err)
	}
	return nil
}

// GetSessionQueries returns a session's query log in chronological order.
func (d *DB) GetSessionQueries(sessionID string) ([]SessionQuery, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT id, session_id, query, result_count, top_results, created_at
		 FROM session_queries WHERE session_id = ? ORDER BY id ASC`, sessionID,
	)
	if err != nil {
		return nil, kberrors.StorageError("get session queries", err)
	}
	defer rows.Close()

	var out []SessionQuery
	for rows.Next() {
		var q SessionQuery
		var topResultsJSON string
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Query, &q.ResultCount, &topResultsJSON, &q.CreatedAt); err != nil {
			return nil, kberrors.StorageError("scan session query", err)
		}
		_ = json.Unmarshal([]byte(topResultsJSON), &q.TopResults)
		out = append(out, q)
	}
	return out, nil
}

// MarkSeen records that a session has already been shown a document
// or chunk at a given detail level, so later results can be filtered
// or ranked to prefer unseen material.
func (d *DB) MarkSeen(sessionID, documentHash, chunkHash, detailLevel string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO session_seen(session_id, document_hash, chunk_hash, detail_level)
		 VALUES (?, ?, ?, ?) ON CONFLICT(session_id, document_hash, chunk_hash) DO UPDATE SET
			detail_level = excluded.detail_level`,
		sessionID, documentHash, chunkHash, detailLevel,
	)
	if err != nil {
		return kberrors.StorageError("mark seen", err)
	}
	return nil
}

// GetSeenHashes returns every document hash a session has seen.
func (d *DB) GetSeenHashes(sessionID string) (map[string]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT DISTINCT document_hash FROM session_seen WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, kberrors.StorageError("get seen hashes", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, kberrors.StorageError("scan seen hash", err)
		}
		seen[h] = true
	}
	return seen, nil
}

// CleanupExpiredSessions deletes sessions (and their queries/seen
// rows) whose TTL has elapsed, returning the number removed.
func (d *DB) CleanupExpiredSessions() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(`SELECT id, last_active_at, ttl_seconds FROM sessions`)
	if err != nil {
		return 0, kberrors.StorageError("list sessions", err)
	}
	var expired []string
	for rows.Next() {
		var id, lastActiveAt string
		var ttl int
		if err := rows.Scan(&id, &lastActiveAt, &ttl); err != nil {
			rows.Close()
			return 0, kberrors.StorageError("scan session", err)
		}
		t, perr := time.Parse(time.RFC3339, lastActiveAt)
		if perr == nil && time.Since(t) > time.Duration(ttl)*time.Second {
			expired = append(expired, id)
		}
	}
	rows.Close()

	for _, id := range expired {
		if err := d.deleteSessionLocked(id); err != nil {
			return 0, err
		}
	}
	return int64(len(expired)), nil
}

// DeleteSession removes a session and its associated rows.
func (d *DB) DeleteSession(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteSessionLocked(id)
}

func (d *DB) deleteSessionLocked(id string) error {
	if _, err := d.conn.Exec(`DELETE FROM session_seen WHERE session_id = ?`, id); err != nil {
		return kberrors.StorageError("delete session seen", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM session_queries WHERE session_id = ?`, id); err != nil {
		return kberrors.StorageError("delete session queries", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return kberrors.StorageError("delete session", err)
	}
	return nil
}
