package store

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	kberrors "github.com/localkb/engine/internal/errors"
)

// BleveBM25Index is the alternate keyword backend: a standalone Bleve
// index over chunk content. The SQLite FTS5 path is the default;
// Bleve remains selectable for deployments that want its analyzers or
// an index file separate from the database.
type BleveBM25Index struct {
	index bleve.Index
	path  string
}

var _ BM25Index = (*BleveBM25Index)(nil)

// NewBleveBM25Index opens (or creates) a Bleve index at path; an
// empty path builds an in-memory index, used by tests.
func NewBleveBM25Index(path string) (*BleveBM25Index, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = standard.Name

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, kberrors.StorageError("open bleve index", err)
	}
	return &BleveBM25Index{index: idx, path: path}, nil
}

type bleveDoc struct {
	Content string `json:"content"`
}

// Index adds or replaces documents.
func (b *BleveBM25Index) Index(ctx context.Context, docs []*IndexDoc) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDoc{Content: doc.Content}); err != nil {
			return kberrors.StorageError("batch bleve document", err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return kberrors.StorageError("index bleve batch", err)
	}
	return nil
}

// Search runs a match query ranked by Bleve's BM25 scoring.
func (b *BleveBM25Index) Search(ctx context.Context, query string, limit int) ([]*BM25Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	req := bleve.NewSearchRequestOptions(match, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, kberrors.StorageError("bleve search", err)
	}
	out := make([]*BM25Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &BM25Result{DocID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Delete removes documents by id.
func (b *BleveBM25Index) Delete(ctx context.Context, docIDs []string) error {
	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return kberrors.StorageError("delete from bleve index", err)
	}
	return nil
}

// AllIDs lists every indexed document id.
func (b *BleveBM25Index) AllIDs() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, kberrors.StorageError("bleve doc count", err)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, kberrors.StorageError("bleve list ids", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Stats reports index size.
func (b *BleveBM25Index) Stats() *IndexStats {
	count, err := b.index.DocCount()
	if err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: int(count)}
}

// Save and Load are no-ops: Bleve persists incrementally.
func (b *BleveBM25Index) Save() error { return nil }
func (b *BleveBM25Index) Load() error { return nil }

// Close releases the index.
func (b *BleveBM25Index) Close() error { return b.index.Close() }

// BM25Backend names a keyword-index backend.
type BM25Backend string

const (
	// BM25BackendSQLite is the default FTS5-over-SQLite backend.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve is the standalone Bleve backend.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25Index constructs the configured keyword backend. blevePath
// is only used by the Bleve backend.
func NewBM25Index(backend BM25Backend, db *DB, blevePath string) (BM25Index, error) {
	switch backend {
	case BM25BackendBleve:
		return NewBleveBM25Index(blevePath)
	case BM25BackendSQLite, "":
		return NewSQLiteBM25Index(db), nil
	default:
		return nil, kberrors.InvalidInput("unknown bm25 backend: "+string(backend), nil)
	}
}
