package store

import (
	"database/sql"
	"strings"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Concept is a glossary term linked to the chunks that mention it.
type Concept struct {
	ID         int64
	Term       string
	Normalized string
	ChunkCount int
	CreatedAt  string
}

// NormalizeTerm canonicalizes a concept term for dedup: lowercase,
// whitespace collapsed to underscores.
func NormalizeTerm(term string) string {
	t := strings.ToLower(strings.TrimSpace(term))
	fields := strings.Fields(t)
	return strings.Join(fields, "_")
}

// UpsertConcept inserts a concept if its normalized form is new,
// otherwise returns the existing row's id.
func (d *DB) UpsertConcept(term string) (int64, error) {
	normalized := NormalizeTerm(term)
	if normalized == "" {
		return 0, kberrors.InvalidInput("empty concept term", nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var id int64
	err := d.conn.QueryRow(`SELECT id FROM concepts WHERE normalized = ?`, normalized).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, kberrors.StorageError("lookup concept", err)
	}

	res, err := d.conn.Exec(
		`INSERT INTO concepts(term, normalized, chunk_count, created_at) VALUES (?, ?, 0, ?)`,
		term, normalized, nowISO(),
	)
	if err != nil {
		return 0, kberrors.StorageError("insert concept", err)
	}
	return res.LastInsertId()
}

// LinkConceptToChunk associates a concept with a chunk, idempotently,
// recording the snippet the concept was extracted from and keeping
// the concept's chunk_count in sync.
func (d *DB) LinkConceptToChunk(conceptID int64, chunkHash, documentHash, snippet string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.conn.Exec(
		`INSERT INTO concept_chunks(concept_id, chunk_hash, document_hash, snippet, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(concept_id, chunk_hash) DO NOTHING`,
		conceptID, chunkHash, documentHash, snippet, nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("link concept to chunk", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}
	if _, err := d.conn.Exec(
		`UPDATE concepts SET chunk_count = chunk_count + 1 WHERE id = ?`, conceptID,
	); err != nil {
		return kberrors.StorageError("update concept chunk_count", err)
	}
	return nil
}

// SearchConcepts returns concepts whose term matches an FTS5 query
// against concepts_fts.
func (d *DB) SearchConcepts(query string, limit int) ([]Concept, error) {
	match := SanitizeFTSQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	query = match
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT c.id, c.term, c.normalized, c.chunk_count, c.created_at
		 FROM concepts_fts f JOIN concepts c ON c.id = f.rowid
		 WHERE concepts_fts MATCH ? ORDER BY rank LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("search concepts", err)
	}
	defer rows.Close()
	return scanConcepts(rows)
}

// GetChunksForConcept returns the chunks linked to a concept;
// limit <= 0 returns all of them.
func (d *DB) GetChunksForConcept(conceptID int64, limit int) ([]*Chunk, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+chunkColumns+` FROM chunks c
		 JOIN concept_chunks cc ON cc.chunk_hash = c.hash
		 WHERE cc.concept_id = ? ORDER BY cc.created_at LIMIT ?`,
		conceptID, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("get chunks for concept", err)
	}
	defer rows.Close()
	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	return d.attachLabelsLocked(chunks)
}

// GetConceptsForDocument returns the distinct concepts linked to any
// chunk of documentHash.
func (d *DB) GetConceptsForDocument(documentHash string) ([]Concept, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT DISTINCT c.id, c.term, c.normalized, c.chunk_count, c.created_at
		 FROM concepts c JOIN concept_chunks cc ON cc.concept_id = c.id
		 WHERE cc.document_hash = ?`,
		documentHash,
	)
	if err != nil {
		return nil, kberrors.StorageError("get concepts for document", err)
	}
	defer rows.Close()
	return scanConcepts(rows)
}

// DeleteConceptsForDocument removes concept links owned by a
// document's chunks, then cleans up any concept left with zero links.
func (d *DB) DeleteConceptsForDocument(documentHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(`SELECT DISTINCT concept_id FROM concept_chunks WHERE document_hash = ?`, documentHash)
	if err != nil {
		return kberrors.StorageError("list concepts for document", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return kberrors.StorageError("scan concept id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := d.conn.Exec(`DELETE FROM concept_chunks WHERE document_hash = ?`, documentHash); err != nil {
		return kberrors.StorageError("delete concept links", err)
	}

	for _, id := range ids {
		var count int
		if err := d.conn.QueryRow(`SELECT COUNT(*) FROM concept_chunks WHERE concept_id = ?`, id).Scan(&count); err != nil {
			return kberrors.StorageError("count concept links", err)
		}
		if _, err := d.conn.Exec(`UPDATE concepts SET chunk_count = ? WHERE id = ?`, count, id); err != nil {
			return kberrors.StorageError("update concept chunk_count", err)
		}
		if count == 0 {
			if _, err := d.conn.Exec(`DELETE FROM concepts WHERE id = ?`, id); err != nil {
				return kberrors.StorageError("delete orphaned concept", err)
			}
		}
	}
	return nil
}

func scanConcepts(rows *sql.Rows) ([]Concept, error) {
	var out []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Term, &c.Normalized, &c.ChunkCount, &c.CreatedAt); err != nil {
			return nil, kberrors.StorageError("scan concept", err)
		}
		out = append(out, c)
	}
	return out, nil
}
