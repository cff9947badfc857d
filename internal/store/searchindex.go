package store

import (
	"context"
	"sort"

	kberrors "github.com/localkb/engine/internal/errors"
)

// IndexDoc is the minimal unit BM25Index indexes: an identifier
// (a chunk hash) and the text to score against.
type IndexDoc struct {
	ID      string
	Content string
}

// BM25Result is one keyword-search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats summarizes a BM25Index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index is the keyword-index backend behind chunk search.
// SQLiteBM25Index reuses the chunks_fts virtual table maintained by
// triggers, so its Index/Delete are no-ops; BleveBM25Index maintains
// a standalone index that callers must feed explicitly.
type BM25Index interface {
	Index(ctx context.Context, docs []*IndexDoc) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save() error
	Load() error
	Close() error
}

// VectorResult is one semantic-search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStore is the semantic-search collaborator consumed by the
// hybrid search engine. ExactVectorStore performs a
// linear cosine scan over stored chunk embeddings; the Non-goal
// against approximate-nearest-neighbor indexes rules out an HNSW- or
// IVF-backed implementation here.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() ([]string, error)
	Contains(id string) bool
	Count() int
	Save() error
	Load() error
	Close() error
}

// SQLiteBM25Index implements BM25Index on top of the chunks_fts
// virtual table already maintained by schema.go's triggers.
type SQLiteBM25Index struct {
	db *DB
}

var _ BM25Index = (*SQLiteBM25Index)(nil)

// NewSQLiteBM25Index wraps db. Index/Delete are satisfied by the
// triggers on the chunks table, so this type only adds the Search and
// Stats surface the hybrid engine needs.
func NewSQLiteBM25Index(db *DB) *SQLiteBM25Index {
	return &SQLiteBM25Index{db: db}
}

// Index is a no-op: chunks_fts is kept current by chunks table
// triggers as soon as the chunk rows themselves are written via
// InsertChunk.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*IndexDoc) error {
	return nil
}

// Search runs the sanitised FTS5 chunk search and maps its hits to
// the backend-neutral result shape.
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	hits, err := s.db.SearchChunksFTS(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*BM25Result, 0, len(hits))
	for _, hit := range hits {
		// bm25() rank is lower-is-better and negative for matches;
		// invert so higher means more relevant, matching Bleve and
		// VectorResult conventions.
		out = append(out, &BM25Result{DocID: hit.Chunk.Hash, Score: -hit.Rank})
	}
	return out, nil
}

// Delete is a no-op: chunks_fts rows disappear via the delete trigger
// once the owning chunk row is removed (DeleteChunksForDocument).
func (s *SQLiteBM25Index) Delete(ctx context.Context, docIDs []string) error {
	return nil
}

// AllIDs returns every indexed chunk hash.
func (s *SQLiteBM25Index) AllIDs() ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rows, err := s.db.conn.Query(`SELECT hash FROM chunks`)
	if err != nil {
		return nil, kberrors.StorageError("list chunk hashes", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, kberrors.StorageError("scan chunk hash", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats reports basic index size; avg doc length is approximated from
// content length rather than tracked incrementally, since FTS5 already
// owns term statistics internally.
func (s *SQLiteBM25Index) Stats() *IndexStats {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stats := &IndexStats{}
	_ = s.db.conn.QueryRow(`SELECT COUNT(*), COALESCE(AVG(LENGTH(content)), 0) FROM chunks`).
		Scan(&stats.DocumentCount, &stats.AvgDocLength)
	return stats
}

// Save, Load, and Close are no-ops: the index lives inside the
// already-durable SQLite database the engine was constructed with.
func (s *SQLiteBM25Index) Save() error { return nil }
func (s *SQLiteBM25Index) Load() error { return nil }
func (s *SQLiteBM25Index) Close() error { return nil }

// ExactVectorStore implements VectorStore as a linear cosine-similarity
// scan over chunk_embeddings, the model-tagged embedding table.
// It deliberately never builds an approximate index.
type ExactVectorStore struct {
	db         *DB
	model      string
	collection string
}

var _ VectorStore = (*ExactVectorStore)(nil)

// NewExactVectorStore wraps db, scoped to a single embedding model's
// vectors; switching models invalidates the previous index through
// the dimension-mismatch handling.
func NewExactVectorStore(db *DB, model string) *ExactVectorStore {
	return &ExactVectorStore{db: db, model: model}
}

// NewExactVectorStoreForCollection additionally restricts the scan to
// chunks of active documents in one collection.
func NewExactVectorStoreForCollection(db *DB, model, collection string) *ExactVectorStore {
	return &ExactVectorStore{db: db, model: model, collection: collection}
}

func (v *ExactVectorStore) records() ([]EmbeddingRecord, error) {
	if v.collection != "" {
		return v.db.GetChunkEmbeddingsForCollection(v.model, v.collection)
	}
	return v.db.GetAllChunkEmbeddings(v.model)
}

// Add stores chunk-level embeddings.
func (v *ExactVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	for i, id := range ids {
		if err := v.db.InsertChunkEmbedding(id, v.model, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Search scores every stored vector against query and returns the top
// k by cosine similarity, descending.
func (v *ExactVectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	records, err := v.records()
	if err != nil {
		return nil, err
	}
	results := make([]*VectorResult, 0, len(records))
	for _, r := range records {
		sim := CosineSimilarity(query, r.Vector)
		results = append(results, &VectorResult{
			ID:       r.Hash,
			Distance: float32(1 - sim),
			Score:    float32(sim),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes chunk embeddings for ids.
func (v *ExactVectorStore) Delete(ctx context.Context, ids []string) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	for _, id := range ids {
		if _, err := v.db.conn.Exec(`DELETE FROM chunk_embeddings WHERE chunk_hash = ? AND model = ?`, id, v.model); err != nil {
			return kberrors.StorageError("delete chunk embedding", err)
		}
	}
	return nil
}

// AllIDs returns every chunk hash with a stored embedding for model.
func (v *ExactVectorStore) AllIDs() ([]string, error) {
	records, err := v.records()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.Hash
	}
	return ids, nil
}

// Contains reports whether id has a stored embedding for model.
func (v *ExactVectorStore) Contains(id string) bool {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	var count int
	_ = v.db.conn.QueryRow(`SELECT COUNT(*) FROM chunk_embeddings WHERE chunk_hash = ? AND model = ?`, id, v.model).Scan(&count)
	return count > 0
}

// Count returns the number of stored embeddings for model.
func (v *ExactVectorStore) Count() int {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	var count int
	_ = v.db.conn.QueryRow(`SELECT COUNT(*) FROM chunk_embeddings WHERE model = ?`, v.model).Scan(&count)
	return count
}

// Save, Load, and Close are no-ops for the same reason as SQLiteBM25Index.
func (v *ExactVectorStore) Save() error  { return nil }
func (v *ExactVectorStore) Load() error  { return nil }
func (v *ExactVectorStore) Close() error { return nil }
