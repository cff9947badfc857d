package store

import (
	"database/sql"
	"encoding/binary"
	"math"

	kberrors "github.com/localkb/engine/internal/errors"
)

// EmbeddingToBytes encodes a float32 vector as a little-endian BLOB,
// the on-disk representation for embeddings and chunk_embeddings.
func EmbeddingToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToEmbedding decodes a BLOB produced by EmbeddingToBytes.
func BytesToEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 if either is a zero vector.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RegisterModel records (or confirms) an embedding model's vector
// dimensionality, used to detect a model switch that invalidates
// existing vectors.
func (d *DB) RegisterModel(model string, dimensions int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO model_metadata(model, dimensions, created_at, last_used_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(model) DO UPDATE SET last_used_at = excluded.last_used_at`,
		model, dimensions, nowISO(), nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("register model", err)
	}
	return nil
}

// CheckModelCompatibility returns an error if model's registered
// dimensionality differs from dimensions. A model seen for the first time is always compatible.
func (d *DB) CheckModelCompatibility(model string, dimensions int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var existing int
	err := d.conn.QueryRow(`SELECT dimensions FROM model_metadata WHERE model = ?`, model).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return kberrors.StorageError("check model compatibility", err)
	}
	if existing != dimensions {
		return kberrors.DimensionMismatch(existing, dimensions)
	}
	return nil
}

// InsertEmbedding stores a document-level embedding for (hash, seq)
// under model, after confirming dimensional compatibility.
func (d *DB) InsertEmbedding(hash string, seq int, model string, vec []float32) error {
	if err := d.CheckModelCompatibility(model, len(vec)); err != nil {
		return err
	}
	if err := d.RegisterModel(model, len(vec)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO embeddings(hash, seq, vector) VALUES (?, ?, ?)
		 ON CONFLICT(hash, seq) DO UPDATE SET vector = excluded.vector`,
		hash, seq, EmbeddingToBytes(vec),
	)
	if err != nil {
		return kberrors.StorageError("insert embedding", err)
	}
	_, err = d.conn.Exec(
		`INSERT INTO content_vectors(hash, seq, pos, model, chunk_hash, created_at)
		 VALUES (?, ?, 0, ?, NULL, ?)
		 ON CONFLICT(hash, seq) DO UPDATE SET model = excluded.model`,
		hash, seq, model, nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("insert content vector record", err)
	}
	return nil
}

// InsertChunkEmbedding stores a chunk-level embedding.
func (d *DB) InsertChunkEmbedding(chunkHash, model string, vec []float32) error {
	if err := d.CheckModelCompatibility(model, len(vec)); err != nil {
		return err
	}
	if err := d.RegisterModel(model, len(vec)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO chunk_embeddings(chunk_hash, model, vector, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chunk_hash, model) DO UPDATE SET vector = excluded.vector`,
		chunkHash, model, EmbeddingToBytes(vec), nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("insert chunk embedding", err)
	}
	return nil
}

// EmbeddingRecord pairs a content hash/seq with its decoded vector.
type EmbeddingRecord struct {
	Hash   string
	Seq    int
	Vector []float32
}

// GetAllEmbeddings returns every document-level embedding for model.
func (d *DB) GetAllEmbeddings(model string) ([]EmbeddingRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT e.hash, e.seq, e.vector FROM embeddings e
		 JOIN content_vectors cv ON cv.hash = e.hash AND cv.seq = e.seq
		 WHERE cv.model = ?`, model,
	)
	if err != nil {
		return nil, kberrors.StorageError("get all embeddings", err)
	}
	defer rows.Close()
	return scanEmbeddingRows(rows)
}

// GetEmbeddingsForCollection returns document-level embeddings for
// model restricted to documents within collection.
func (d *DB) GetEmbeddingsForCollection(model, collection string) ([]EmbeddingRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT e.hash, e.seq, e.vector FROM embeddings e
		 JOIN content_vectors cv ON cv.hash = e.hash AND cv.seq = e.seq
		 JOIN documents doc ON doc.hash = e.hash AND doc.active = 1
		 WHERE cv.model = ? AND doc.collection = ?`, model, collection,
	)
	if err != nil {
		return nil, kberrors.StorageError("get embeddings for collection", err)
	}
	defer rows.Close()
	return scanEmbeddingRows(rows)
}

// GetChunkEmbeddingsForCollection returns chunk-level embeddings for
// model restricted to chunks of documents within collection.
func (d *DB) GetChunkEmbeddingsForCollection(model, collection string) ([]EmbeddingRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT ce.chunk_hash, 0, ce.vector FROM chunk_embeddings ce
		 JOIN chunks c ON c.hash = ce.chunk_hash
		 JOIN documents doc ON doc.hash = c.document_hash AND doc.active = 1
		 WHERE ce.model = ? AND doc.collection = ?`, model, collection,
	)
	if err != nil {
		return nil, kberrors.StorageError("get chunk embeddings for collection", err)
	}
	defer rows.Close()
	return scanEmbeddingRows(rows)
}

// GetAllChunkEmbeddings returns every chunk-level embedding for model.
func (d *DB) GetAllChunkEmbeddings(model string) ([]EmbeddingRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT chunk_hash, 0, vector FROM chunk_embeddings WHERE model = ?`, model,
	)
	if err != nil {
		return nil, kberrors.StorageError("get all chunk embeddings", err)
	}
	defer rows.Close()
	return scanEmbeddingRows(rows)
}

func scanEmbeddingRows(rows *sql.Rows) ([]EmbeddingRecord, error) {
	var out []EmbeddingRecord
	for rows.Next() {
		var r EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&r.Hash, &r.Seq, &blob); err != nil {
			return nil, kberrors.StorageError("scan embedding", err)
		}
		r.Vector = BytesToEmbedding(blob)
		out = append(out, r)
	}
	return out, nil
}

// GetCachedEmbedding returns a previously stored document-level
// embedding for (hash, seq, model), if present. Used to skip
// re-embedding unchanged content unless the caller forces
// regeneration.
func (d *DB) GetCachedEmbedding(hash string, seq int, model string) ([]float32, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var blob []byte
	err := d.conn.QueryRow(
		`SELECT e.vector FROM embeddings e
		 JOIN content_vectors cv ON cv.hash = e.hash AND cv.seq = e.seq
		 WHERE e.hash = ? AND e.seq = ? AND cv.model = ?`,
		hash, seq, model,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kberrors.StorageError("get cached embedding", err)
	}
	return BytesToEmbedding(blob), true, nil
}

// DeleteEmbeddings removes every embedding (document- and
// chunk-level) associated with a document hash, used on reindex.
func (d *DB) DeleteEmbeddings(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM embeddings WHERE hash = ?`, hash); err != nil {
		return kberrors.StorageError("delete embeddings", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM content_vectors WHERE hash = ?`, hash); err != nil {
		return kberrors.StorageError("delete content vectors", err)
	}
	return nil
}

// CleanupOrphanedChunkEmbeddings removes chunk_embeddings rows whose
// chunk no longer exists, run periodically after bulk deletes.
func (d *DB) CleanupOrphanedChunkEmbeddings() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.conn.Exec(
		`DELETE FROM chunk_embeddings WHERE chunk_hash NOT IN (SELECT hash FROM chunks)`,
	)
	if err != nil {
		return 0, kberrors.StorageError("cleanup orphaned chunk embeddings", err)
	}
	return res.RowsAffected()
}

// CacheStatus reports the outcome of a chunk-embedding cache lookup.
type CacheStatus int

const (
	CacheMiss CacheStatus = iota
	CacheHit
	CacheModelMismatch
)

// GetCachedChunkEmbedding looks up the chunk-embedding cache for
// (chunkHash, model). A hit is revalidated against the model
// registry: a registered dimension differing from expectedDim yields
// CacheModelMismatch, telling the caller to discard and recompute.
func (d *DB) GetCachedChunkEmbedding(chunkHash, model string, expectedDim int) ([]float32, CacheStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var registered int
	err := d.conn.QueryRow(`SELECT dimensions FROM model_metadata WHERE model = ?`, model).Scan(&registered)
	if err != nil && err != sql.ErrNoRows {
		return nil, CacheMiss, kberrors.StorageError("read model registry", err)
	}
	if err == nil && registered != expectedDim {
		return nil, CacheModelMismatch, nil
	}

	var blob []byte
	err = d.conn.QueryRow(
		`SELECT vector FROM chunk_embeddings WHERE chunk_hash = ? AND model = ?`,
		chunkHash, model,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, CacheMiss, nil
	}
	if err != nil {
		return nil, CacheMiss, kberrors.StorageError("get cached chunk embedding", err)
	}
	vec := BytesToEmbedding(blob)
	if len(vec) != expectedDim {
		return nil, CacheModelMismatch, nil
	}
	return vec, CacheHit, nil
}

// InsertChunkVector writes the embeddings row, its content_vectors
// pairing, and the chunk-embedding cache entry for one chunk in a
// single transaction.
func (d *DB) InsertChunkVector(docHash string, seq, pos int, chunkHash, model string, vec []float32) error {
	if err := d.CheckModelCompatibility(model, len(vec)); err != nil {
		return err
	}
	if err := d.RegisterModel(model, len(vec)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.conn.Begin()
	if err != nil {
		return kberrors.DatabaseError("begin chunk vector transaction", err)
	}
	blob := EmbeddingToBytes(vec)
	now := nowISO()
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO embeddings(hash, seq, vector) VALUES (?, ?, ?)
		  ON CONFLICT(hash, seq) DO UPDATE SET vector = excluded.vector`,
			[]any{docHash, seq, blob}},
		{`INSERT INTO content_vectors(hash, seq, pos, model, chunk_hash, created_at)
		  VALUES (?, ?, ?, ?, ?, ?)
		  ON CONFLICT(hash, seq) DO UPDATE SET pos = excluded.pos, model = excluded.model,
			chunk_hash = excluded.chunk_hash`,
			[]any{docHash, seq, pos, model, chunkHash, now}},
		{`INSERT INTO chunk_embeddings(chunk_hash, model, vector, created_at) VALUES (?, ?, ?, ?)
		  ON CONFLICT(chunk_hash, model) DO UPDATE SET vector = excluded.vector`,
			[]any{chunkHash, model, blob, now}},
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s.sql, s.args...); err != nil {
			_ = tx.Rollback()
			return kberrors.StorageError("insert chunk vector", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.DatabaseError("commit chunk vector transaction", err)
	}
	return nil
}

// HasVectorIndex reports whether any embedding rows exist at all,
// used by unified search to short-circuit to BM25.
func (d *DB) HasVectorIndex() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	_ = d.conn.QueryRow(`SELECT COUNT(*) FROM content_vectors LIMIT 1`).Scan(&n)
	return n > 0
}

// DocumentHashesNeedingEmbedding returns active document hashes with
// no content_vectors row for model, the "needs embedding" set of the
// embedding pipeline.
func (d *DB) DocumentHashesNeedingEmbedding(model string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT DISTINCT hash FROM documents WHERE active = 1
		 AND hash NOT IN (SELECT hash FROM content_vectors WHERE model = ?)`, model,
	)
	if err != nil {
		return nil, kberrors.StorageError("list documents needing embedding", err)
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, kberrors.StorageError("scan document hash", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// InvalidateModelEmbeddings drops every embedding derived from model,
// used when the model is observed at a new dimensionality and all of
// its cached vectors become unusable.
func (d *DB) InvalidateModelEmbeddings(model string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(
		`DELETE FROM embeddings WHERE (hash, seq) IN
			(SELECT hash, seq FROM content_vectors WHERE model = ?)`, model,
	); err != nil {
		return kberrors.StorageError("invalidate embeddings", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM content_vectors WHERE model = ?`, model); err != nil {
		return kberrors.StorageError("invalidate content vectors", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM chunk_embeddings WHERE model = ?`, model); err != nil {
		return kberrors.StorageError("invalidate chunk embeddings", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM model_metadata WHERE model = ?`, model); err != nil {
		return kberrors.StorageError("drop model registration", err)
	}
	return nil
}
