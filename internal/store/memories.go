package store

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Memory is a durable fact recorded across sessions,
// deduplicated by content hash and tracked for access frequency so
// callers can prioritize well-corroborated memories.
type Memory struct {
	ID             string
	SessionID      string
	Category       string
	Content        string
	ContentHash    string
	Confidence     float64
	SourceQuery    string
	CreatedAt      string
	UpdatedAt      string
	AccessCount    int
	LastAccessedAt string
}

func generateMemoryID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", kberrors.ExternalError("generate memory id", err)
	}
	return "mem_" + hex.EncodeToString(b[:]), nil
}

func memoryContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// StoreMemory inserts a new memory, or, if identical content already
// exists, raises its confidence to the max of the two, bumps the
// access counter, and returns the existing id.
func (d *DB) StoreMemory(sessionID, category, content, sourceQuery string, confidence float64) (string, error) {
	contentHash := memoryContentHash(content)

	d.mu.Lock()
	defer d.mu.Unlock()

	var existingID string
	var existingConfidence float64
	err := d.conn.QueryRow(
		`SELECT id, confidence FROM memories WHERE content_hash = ?`, contentHash,
	).Scan(&existingID, &existingConfidence)
	if err == nil {
		newConfidence := existingConfidence
		if confidence > newConfidence {
			newConfidence = confidence
		}
		if _, err := d.conn.Exec(
			`UPDATE memories SET confidence = ?, access_count = access_count + 1, updated_at = ?
			 WHERE id = ?`,
			newConfidence, nowISO(), existingID,
		); err != nil {
			return "", kberrors.StorageError("update memory confidence", err)
		}
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", kberrors.StorageError("lookup memory", err)
	}

	id, err := generateMemoryID()
	if err != nil {
		return "", err
	}
	now := nowISO()
	_, err = d.conn.Exec(
		`INSERT INTO memories(id, session_id, category, content, content_hash, confidence,
			source_query, created_at, updated_at, access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		id, sessionID, category, content, contentHash, confidence, sourceQuery, now, now,
	)
	if err != nil {
		return "", kberrors.StorageError("insert memory", err)
	}
	return id, nil
}

// GetMemory returns a memory by id and records an access.
func (d *DB) GetMemory(id string) (*Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := scanMemoryByQuery(d.conn.QueryRow(
		`SELECT id, COALESCE(session_id,''), category, content, content_hash, confidence,
			COALESCE(source_query,''), created_at, updated_at, access_count, COALESCE(last_accessed_at,'')
		 FROM memories WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get memory", err)
	}

	if _, err := d.conn.Exec(
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		nowISO(), id,
	); err != nil {
		return nil, kberrors.StorageError("update memory access", err)
	}
	return m, nil
}

// SearchMemories matches memories whose content or category contains
// query via memories_fts, ordered by confidence descending.
func (d *DB) SearchMemories(query string, limit int) ([]*Memory, error) {
	match := SanitizeFTSQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	query = match
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT m.id, COALESCE(m.session_id,''), m.category, m.content, m.content_hash, m.confidence,
			COALESCE(m.source_query,''), m.created_at, m.updated_at, m.access_count, COALESCE(m.last_accessed_at,'')
		 FROM memories_fts f JOIN memories m ON m.rowid = f.rowid
		 WHERE memories_fts MATCH ? ORDER BY m.confidence DESC LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("search memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemories returns memories, optionally filtered by category,
// ordered by confidence descending.
func (d *DB) ListMemories(category string, limit int) ([]*Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `SELECT id, COALESCE(session_id,''), category, content, content_hash, confidence,
		COALESCE(source_query,''), created_at, updated_at, access_count, COALESCE(last_accessed_at,'')
		FROM memories`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY confidence DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, kberrors.StorageError("list memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteMemory removes a memory by id.
func (d *DB) DeleteMemory(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
		return kberrors.StorageError("delete memory", err)
	}
	return nil
}

// MemoryStats summarizes the memory store, used by diagnostics.
type MemoryStats struct {
	Total         int
	ByCategory    map[string]int
	AverageConfidence float64
}

// GetMemoryStats aggregates counts and average confidence across all
// memories.
func (d *DB) GetMemoryStats() (*MemoryStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := &MemoryStats{ByCategory: make(map[string]int)}
	rows, err := d.conn.Query(`SELECT category, confidence FROM memories`)
	if err != nil {
		return nil, kberrors.StorageError("get memory stats", err)
	}
	defer rows.Close()

	var confidenceSum float64
	for rows.Next() {
		var category string
		var confidence float64
		if err := rows.Scan(&category, &confidence); err != nil {
			return nil, kberrors.StorageError("scan memory stat row", err)
		}
		stats.Total++
		stats.ByCategory[category]++
		confidenceSum += confidence
	}
	if stats.Total > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.Total)
	}
	return stats, nil
}

func scanMemoryByQuery(row *sql.Row) (*Memory, error) {
	var m Memory
	err := row.Scan(
		&m.ID, &m.SessionID, &m.Category, &m.Content, &m.ContentHash, &m.Confidence,
		&m.SourceQuery, &m.CreatedAt, &m.UpdatedAt, &m.AccessCount, &m.LastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Category, &m.Content, &m.ContentHash, &m.Confidence,
			&m.SourceQuery, &m.CreatedAt, &m.UpdatedAt, &m.AccessCount, &m.LastAccessedAt,
		); err != nil {
			return nil, kberrors.StorageError("scan memory", err)
		}
		out = append(out, &m)
	}
	return out, nil
}
