// Package index drives the indexing pipeline: provider items are
// deduplicated by content hash, chunked, enriched with generated
// metadata, persisted, and embedded, after which the per-directory
// aggregate index is refreshed.
package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/localkb/engine/internal/chunk"
	"github.com/localkb/engine/internal/llmkit"
	"github.com/localkb/engine/internal/provider"
	"github.com/localkb/engine/internal/store"
)

// Stats aggregates the outcome of one collection indexing run.
// Per-document failures are counted, logged, and skipped rather than
// aborting the run.
type Stats struct {
	Listed    int
	Indexed   int
	Unchanged int
	Failed    int
	Chunks    int
}

// Pipeline wires the indexing collaborators together.
type Pipeline struct {
	DB       *store.DB
	Chunker  chunk.Chunker
	Metadata *llmkit.CachedMetadataGenerator
	Logger   *slog.Logger

	// Keyword is the chunk keyword backend. The SQLite backend is fed
	// automatically by FTS triggers; a standalone backend (Bleve) is
	// fed through its Index/Delete methods here.
	Keyword store.BM25Index
}

// NewPipeline builds a pipeline; logger may be nil for slog.Default.
func NewPipeline(db *store.DB, chunker chunk.Chunker, metadata *llmkit.CachedMetadataGenerator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{DB: db, Chunker: chunker, Metadata: metadata, Logger: logger}
}

// IndexCollection lists the collection's items through prov and
// indexes each one. Unchanged items (same active hash at the same
// path) are skipped unless force is set.
func (p *Pipeline) IndexCollection(ctx context.Context, prov provider.Provider, col store.Collection, force bool) (Stats, error) {
	items, err := prov.ListItems(ctx, provider.Config{
		BasePath: col.Path,
		Pattern:  col.Pattern,
		Options:  col.ProviderOptions(),
	})
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.Listed = len(items)
	for _, item := range items {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		n, err := p.indexItem(ctx, col, item, force)
		if err != nil {
			stats.Failed++
			p.Logger.Warn("indexing failed for item",
				slog.String("collection", col.Name),
				slog.String("uri", item.URI),
				slog.String("error", err.Error()))
			continue
		}
		if n < 0 {
			stats.Unchanged++
			continue
		}
		stats.Indexed++
		stats.Chunks += n
	}

	if err := p.DB.RebuildDirectoryIndex(col.Name); err != nil {
		p.Logger.Warn("directory index rebuild failed",
			slog.String("collection", col.Name),
			slog.String("error", err.Error()))
	}
	return stats, nil
}

// indexItem indexes one source item. Returns the number of chunks
// written, or -1 when the item was unchanged and skipped.
func (p *Pipeline) indexItem(ctx context.Context, col store.Collection, item provider.SourceItem, force bool) (int, error) {
	relPath := itemPath(col, item)
	hash := item.Hash
	if hash == "" {
		hash = provider.HashContent(item.Content)
	}

	existing, err := p.DB.FindActiveDocument(col.Name, relPath)
	if err != nil {
		return 0, err
	}
	if existing != nil && existing.Hash == hash && !force {
		return -1, nil
	}

	if err := p.DB.InsertContent(hash, item.Content); err != nil {
		return 0, err
	}

	chunks, err := p.Chunker.Chunk(ctx, relPath, []byte(item.Content))
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var docID int64
	if existing != nil {
		if existing.Hash != hash {
			if err := p.deleteKeywordDocs(ctx, existing.Hash); err != nil {
				return 0, err
			}
			if err := p.DB.DeleteChunksForDocument(existing.Hash); err != nil {
				return 0, err
			}
			if err := p.DB.DeleteEmbeddings(existing.Hash); err != nil {
				return 0, err
			}
		}
		if err := p.DB.UpdateDocument(existing.ID, item.Title, hash, now); err != nil {
			return 0, err
		}
		docID = existing.ID
	} else {
		docID, err = p.DB.InsertDocument(col.Name, relPath, item.Title, hash, item.SourceType, item.URI, now, now)
		if err != nil {
			return 0, err
		}
	}

	storeChunks := make([]*store.Chunk, 0, len(chunks))
	keywordDocs := make([]*store.IndexDoc, 0, len(chunks))
	for _, c := range chunks {
		sc := store.Chunk{
			Hash:         c.Hash,
			DocumentHash: hash,
			Seq:          c.Seq,
			Pos:          c.Pos,
			Content:      c.Content,
			ChunkType:    string(c.Type),
			Breadcrumb:   c.Breadcrumb,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Language:     c.Language,
		}
		if err := p.DB.InsertChunk(sc); err != nil {
			return 0, err
		}
		copied := sc
		storeChunks = append(storeChunks, &copied)
		keywordDocs = append(keywordDocs, &store.IndexDoc{ID: sc.Hash, Content: sc.Content})
	}
	if p.Keyword != nil {
		if err := p.Keyword.Index(ctx, keywordDocs); err != nil {
			return 0, err
		}
	}

	if p.Metadata != nil {
		meta, err := p.generateMetadata(ctx, col, item, relPath, chunks, force)
		if err != nil {
			// Metadata generation degrades to heuristics internally;
			// an error here is a storage problem worth surfacing.
			return 0, err
		}
		if err := p.DB.UpdateDocumentLLMFields(docID, store.LLMFields{
			Summary:          meta.Summary,
			Title:            meta.Title,
			Keywords:         meta.Keywords,
			Category:         meta.Category,
			Intent:           meta.Intent,
			Concepts:         meta.Concepts,
			Difficulty:       meta.Difficulty,
			SuggestedQueries: meta.SuggestedQueries,
			Model:            meta.Model,
			GeneratedAt:      meta.GeneratedAt,
		}); err != nil {
			return 0, err
		}
		if err := llmkit.ExtractConcepts(p.DB, hash, storeChunks, meta); err != nil {
			return 0, err
		}
	}

	return len(chunks), nil
}

func (p *Pipeline) generateMetadata(ctx context.Context, col store.Collection, item provider.SourceItem, relPath string, chunks []*chunk.Chunk, force bool) (llmkit.DocumentMetadata, error) {
	chunkTypes := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, c := range chunks {
		t := string(c.Type)
		if !seen[t] {
			seen[t] = true
			chunkTypes = append(chunkTypes, t)
		}
	}
	mctx := llmkit.MetadataContext{
		SourceType:    item.SourceType,
		Language:      languageOf(chunks),
		FileExtension: strings.TrimPrefix(filepath.Ext(relPath), "."),
		Collection:    col.Name,
		ChunkTypes:    chunkTypes,
		Filename:      filepath.Base(relPath),
	}
	if force {
		return p.Metadata.GenerateMetadataForce(ctx, item.Content, mctx)
	}
	return p.Metadata.GenerateMetadata(ctx, item.Content, mctx)
}

func languageOf(chunks []*chunk.Chunk) string {
	for _, c := range chunks {
		if c.Language != "" {
			return c.Language
		}
	}
	return ""
}

// Deactivate soft-deletes the document at (collection, path) and
// removes its chunks from the search surface.
func (p *Pipeline) Deactivate(collection, path string) (bool, error) {
	doc, err := p.DB.FindActiveDocument(collection, path)
	if err != nil {
		return false, err
	}
	ok, err := p.DB.DeactivateDocument(collection, path)
	if err != nil || !ok {
		return ok, err
	}
	if doc != nil {
		if err := p.deleteKeywordDocs(context.Background(), doc.Hash); err != nil {
			return true, err
		}
		if err := p.DB.DeleteChunksForDocument(doc.Hash); err != nil {
			return true, err
		}
		if err := p.DB.DeleteEmbeddings(doc.Hash); err != nil {
			return true, err
		}
	}
	return true, nil
}

// deleteKeywordDocs removes a document's chunk entries from a
// standalone keyword backend before the chunk rows themselves go.
func (p *Pipeline) deleteKeywordDocs(ctx context.Context, docHash string) error {
	if p.Keyword == nil {
		return nil
	}
	chunks, err := p.DB.GetChunksForDocument(docHash)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.Hash)
	}
	if len(ids) == 0 {
		return nil
	}
	return p.Keyword.Delete(ctx, ids)
}

// itemPath derives the document path within its collection from the
// item's metadata, falling back to the URI made base-relative.
func itemPath(col store.Collection, item provider.SourceItem) string {
	if p, ok := item.Metadata["path"]; ok && p != "" {
		return filepath.ToSlash(p)
	}
	if rel, err := filepath.Rel(col.Path, item.URI); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return item.URI
}
