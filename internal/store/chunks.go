package store

import (
	"database/sql"

	kberrors "github.com/localkb/engine/internal/errors"
)

// ChunkLLMFields are the chunk-level fields produced by metadata
// generation.
type ChunkLLMFields struct {
	Summary     string
	Purpose     string
	Concepts    []string
	Labels      map[string]string
	RelatedTo   []string
	Model       string
	GeneratedAt string
}

// Chunk is the sub-document unit produced by internal/chunk and
// indexed for search.
type Chunk struct {
	Hash         string
	DocumentHash string
	Seq          int
	Pos          int
	Content      string
	ChunkType    string
	Breadcrumb   string
	StartLine    int
	EndLine      int
	Language     string
	LLM          ChunkLLMFields
	CreatedAt    string
}

// InsertChunk upserts a chunk by hash. Re-insertion preserves any LLM
// fields already generated for an identical chunk body.
func (d *DB) InsertChunk(c Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO chunks(hash, document_hash, seq, pos, content, chunk_type, breadcrumb,
			start_line, end_line, language, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			document_hash = excluded.document_hash, seq = excluded.seq, pos = excluded.pos,
			breadcrumb = excluded.breadcrumb, start_line = excluded.start_line,
			end_line = excluded.end_line, language = excluded.language`,
		c.Hash, c.DocumentHash, c.Seq, c.Pos, c.Content, c.ChunkType, c.Breadcrumb,
		c.StartLine, c.EndLine, c.Language, nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("insert chunk", err)
	}
	return nil
}

// UpdateChunkLLMFields persists generated metadata for a chunk.
func (d *DB) UpdateChunkLLMFields(hash string, fields ChunkLLMFields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`UPDATE chunks SET llm_summary=?, llm_purpose=?, llm_concepts=?, llm_related_to=?,
			llm_model=?, llm_generated_at=? WHERE hash=?`,
		fields.Summary, fields.Purpose, joinCSV(fields.Concepts), joinCSV(fields.RelatedTo),
		fields.Model, fields.GeneratedAt, hash,
	)
	if err != nil {
		return kberrors.StorageError("update chunk llm fields", err)
	}
	return d.syncChunkLabelsLocked(hash, fields.Labels)
}

func (d *DB) syncChunkLabelsLocked(hash string, labels map[string]string) error {
	if _, err := d.conn.Exec(`DELETE FROM chunk_labels WHERE chunk_hash = ?`, hash); err != nil {
		return kberrors.StorageError("clear chunk labels", err)
	}
	for k, v := range labels {
		if _, err := d.conn.Exec(
			`INSERT INTO chunk_labels(chunk_hash, key, value) VALUES (?, ?, ?)`, hash, k, v,
		); err != nil {
			return kberrors.StorageError("insert chunk label", err)
		}
	}
	return nil
}

const chunkColumns = `hash, document_hash, seq, pos, content, chunk_type, COALESCE(breadcrumb,''),
	start_line, end_line, COALESCE(language,''),
	COALESCE(llm_summary,''), COALESCE(llm_purpose,''), COALESCE(llm_concepts,''),
	COALESCE(llm_related_to,''), COALESCE(llm_model,''), COALESCE(llm_generated_at,''), created_at`

func scanChunk(row interface{ Scan(dest ...any) error }) (*Chunk, error) {
	var c Chunk
	var concepts, related string
	err := row.Scan(
		&c.Hash, &c.DocumentHash, &c.Seq, &c.Pos, &c.Content, &c.ChunkType, &c.Breadcrumb,
		&c.StartLine, &c.EndLine, &c.Language,
		&c.LLM.Summary, &c.LLM.Purpose, &concepts, &related, &c.LLM.Model, &c.LLM.GeneratedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LLM.Concepts = splitCSV(concepts)
	c.LLM.RelatedTo = splitCSV(related)
	return &c, nil
}

// GetChunksForDocument returns every chunk of a document in sequence
// order.
func (d *DB) GetChunksForDocument(documentHash string) ([]*Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+chunkColumns+` FROM chunks WHERE document_hash = ? ORDER BY seq ASC`,
		documentHash,
	)
	if err != nil {
		return nil, kberrors.StorageError("get chunks for document", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	return d.attachLabelsLocked(chunks)
}

// GetChunk returns a single chunk by hash.
func (d *DB) GetChunk(hash string) (*Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.conn.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE hash = ?`, hash)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get chunk", err)
	}
	chunks, err := d.attachLabelsLocked([]*Chunk{c})
	if err != nil {
		return nil, err
	}
	return chunks[0], nil
}

// GetSurroundingChunks returns the chunks immediately before and after
// seq (inclusive of seq itself) within a document, for detail-level
// expansion.
func (d *DB) GetSurroundingChunks(documentHash string, seq, radius int) ([]*Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+chunkColumns+` FROM chunks WHERE document_hash = ? AND seq BETWEEN ? AND ? ORDER BY seq ASC`,
		documentHash, seq-radius, seq+radius,
	)
	if err != nil {
		return nil, kberrors.StorageError("get surrounding chunks", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	return d.attachLabelsLocked(chunks)
}

// SearchChunksByLabel returns chunks carrying a matching (key, value)
// label.
func (d *DB) SearchChunksByLabel(key, value string, limit int) ([]*Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+chunkColumns+` FROM chunks c
		 JOIN chunk_labels l ON l.chunk_hash = c.hash
		 WHERE l.key = ? AND l.value = ?
		 ORDER BY c.document_hash, c.seq LIMIT ?`,
		key, value, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("search chunks by label", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	return d.attachLabelsLocked(chunks)
}

// DeleteChunksForDocument removes every chunk (and its labels and
// concept links) belonging to a document, used when a document is
// reindexed or deactivated.
func (d *DB) DeleteChunksForDocument(documentHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash FROM chunks WHERE document_hash = ?`, documentHash)
	if err != nil {
		return kberrors.StorageError("list chunks to delete", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return kberrors.StorageError("scan chunk hash", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()

	for _, h := range hashes {
		if _, err := d.conn.Exec(`DELETE FROM chunk_labels WHERE chunk_hash = ?`, h); err != nil {
			return kberrors.StorageError("delete chunk labels", err)
		}
		if _, err := d.conn.Exec(`DELETE FROM concept_chunks WHERE chunk_hash = ?`, h); err != nil {
			return kberrors.StorageError("delete concept links", err)
		}
		if _, err := d.conn.Exec(`DELETE FROM chunk_embeddings WHERE chunk_hash = ?`, h); err != nil {
			return kberrors.StorageError("delete chunk embeddings", err)
		}
	}
	if _, err := d.conn.Exec(`DELETE FROM chunks WHERE document_hash = ?`, documentHash); err != nil {
		return kberrors.StorageError("delete chunks", err)
	}
	return nil
}

func collectChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan chunk", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// attachLabelsLocked fills Labels for each chunk; caller already holds d.mu.
func (d *DB) attachLabelsLocked(chunks []*Chunk) ([]*Chunk, error) {
	for _, c := range chunks {
		rows, err := d.conn.Query(`SELECT key, value FROM chunk_labels WHERE chunk_hash = ?`, c.Hash)
		if err != nil {
			return nil, kberrors.StorageError("get chunk labels", err)
		}
		labels := make(map[string]string)
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				rows.Close()
				return nil, kberrors.StorageError("scan chunk label", err)
			}
			labels[k] = v
		}
		rows.Close()
		c.LLM.Labels = labels
	}
	return chunks, nil
}
