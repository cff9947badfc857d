// Package session manages multi-turn conversational scopes over the
// store: session lifecycle with TTL enforcement, the per-session
// context bag, the query log, and the seen-set used to avoid
// re-surfacing results a caller already received.
package session

import (
	"log/slog"

	"github.com/localkb/engine/internal/search"
	"github.com/localkb/engine/internal/store"
)

// DefaultTTLSeconds is the session lifetime when the caller does not
// choose one (one hour).
const DefaultTTLSeconds = 3600

// cleanupEvery batches opportunistic expired-session cleanup: one
// sweep per this many manager operations.
const cleanupEvery = 50

// Manager fronts the store's session tables.
type Manager struct {
	db     *store.DB
	logger *slog.Logger
	ops    int
}

// NewManager builds a manager; logger may be nil.
func NewManager(db *store.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, logger: logger}
}

// Create starts a session; ttlSeconds <= 0 uses the default.
func (m *Manager) Create(ttlSeconds int) (*store.Session, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	m.maybeCleanup()
	return m.db.CreateSession(ttlSeconds)
}

// Get returns a live session or (nil, nil) when expired or unknown.
func (m *Manager) Get(id string) (*store.Session, error) {
	m.maybeCleanup()
	return m.db.GetSession(id)
}

// Touch bumps the session's last-active time, extending its TTL
// window.
func (m *Manager) Touch(id string) error {
	return m.db.TouchSession(id)
}

// SetContext stores one key in the session's context bag.
func (m *Manager) SetContext(id, key, value string) error {
	return m.db.SetSessionContext(id, key, value)
}

// Context returns the session's context bag.
func (m *Manager) Context(id string) (map[string]string, error) {
	return m.db.GetSessionContext(id)
}

// RecordQuery appends a query to the session log, storing up to five
// top result hashes, and marks those results as seen.
func (m *Manager) RecordQuery(id, query string, results []*search.Result) error {
	top := make([]string, 0, 5)
	for _, r := range results {
		if len(top) == 5 {
			break
		}
		top = append(top, r.DocumentHash)
	}
	if err := m.db.LogSessionQuery(id, query, len(results), top); err != nil {
		return err
	}
	for _, r := range results {
		if err := m.db.MarkSeen(id, r.DocumentHash, r.ChunkHash, ""); err != nil {
			return err
		}
	}
	return m.db.TouchSession(id)
}

// History returns the session's query log in insertion order.
func (m *Manager) History(id string) ([]store.SessionQuery, error) {
	return m.db.GetSessionQueries(id)
}

// FilterUnseen drops results whose document was already returned in
// this session.
func (m *Manager) FilterUnseen(id string, results []*search.Result) ([]*search.Result, error) {
	seen, err := m.db.GetSeenHashes(id)
	if err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return results, nil
	}
	out := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if seen[r.DocumentHash] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Delete removes a session and its dependent rows.
func (m *Manager) Delete(id string) error {
	return m.db.DeleteSession(id)
}

// maybeCleanup sweeps expired sessions once per cleanupEvery calls.
func (m *Manager) maybeCleanup() {
	m.ops++
	if m.ops%cleanupEvery != 1 {
		return
	}
	if n, err := m.db.CleanupExpiredSessions(); err != nil {
		m.logger.Warn("expired session cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		m.logger.Debug("cleaned up expired sessions", slog.Int64("count", n))
	}
}
