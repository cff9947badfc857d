package search

import (
	"context"

	"github.com/localkb/engine/internal/store"
)

// candidateFactor over-fetches FTS and vector candidates so that
// post-search filtering and per-document dedup still leave enough
// results to fill Options.Limit.
const candidateFactor = 3

// FTS is the BM25 document search primitive: sanitised
// match over documents_fts, constraint filtering, then the boost
// stack, sorted by boosted score descending.
func FTS(db *store.DB, query string, opts Options) ([]*Result, error) {
	limit := opts.effectiveLimit()
	if limit == 0 {
		return nil, nil
	}
	hits, err := db.SearchDocumentsFTS(query, limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	boosts := opts.Boosts
	if boosts.isZero() {
		boosts = DefaultBoosts()
	}
	terms := queryTerms(query)

	var results []*Result
	for _, hit := range hits {
		doc := hit.Document
		if !opts.allowsCollection(doc.Collection) || !opts.allowsSourceType(doc.SourceType) {
			continue
		}
		if !opts.allowsMetadata(doc) {
			continue
		}
		// bm25() rank is lower-is-better and negative for matches;
		// negate so higher means more relevant before boosting.
		score := boosts.apply(-hit.Rank, boostInput{
			collection: doc.Collection,
			docPath:    doc.Path,
			title:      doc.Title,
			importance: doc.ImportanceScore,
			preferDocs: opts.PreferDocs,
		}, terms)
		r := resultFromDocument(doc, SourceBM25, score)
		r.Snippet = doc.LLM.Summary
		results = append(results, r)
	}
	return applyScoreWindow(results, opts), nil
}

// ChunksFTS is the chunk-level BM25 primitive over the default
// SQLite FTS5 backend.
func ChunksFTS(db *store.DB, query string, opts Options) ([]*Result, error) {
	return ChunksKeyword(context.Background(), db, store.NewSQLiteBM25Index(db), query, opts)
}

// ChunksKeyword runs chunk keyword search through any BM25Index
// backend (FTS5 or Bleve), hydrates the hits into chunks and their
// owning documents, and applies the same constraint and boost flow as
// document search.
func ChunksKeyword(ctx context.Context, db *store.DB, idx store.BM25Index, query string, opts Options) ([]*Result, error) {
	limit := opts.effectiveLimit()
	if limit == 0 {
		return nil, nil
	}
	hits, err := idx.Search(ctx, query, limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	boosts := opts.Boosts
	if boosts.isZero() {
		boosts = DefaultBoosts()
	}
	terms := queryTerms(query)

	var results []*Result
	for _, hit := range hits {
		chunk, err := db.GetChunk(hit.DocID)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		doc, err := db.FindDocumentByHash(chunk.DocumentHash)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if !opts.allowsCollection(doc.Collection) || !opts.allowsSourceType(doc.SourceType) {
			continue
		}
		if !opts.allowsMetadata(doc) {
			continue
		}
		score := boosts.apply(hit.Score, boostInput{
			collection: doc.Collection,
			docPath:    doc.Path,
			title:      doc.Title,
			importance: doc.ImportanceScore,
			preferDocs: opts.PreferDocs,
		}, terms)
		results = append(results, chunkResult(doc, chunk, SourceBM25, score))
	}
	return applyScoreWindow(results, opts), nil
}

// chunkResult projects document and chunk fields into one Result.
func chunkResult(doc *store.Document, c *store.Chunk, source Source, score float64) *Result {
	r := resultFromDocument(doc, source, score)
	r.ChunkHash = c.Hash
	r.Breadcrumb = c.Breadcrumb
	r.StartLine = c.StartLine
	r.EndLine = c.EndLine
	r.Purpose = c.LLM.Purpose
	r.Concepts = c.LLM.Concepts
	r.Labels = c.LLM.Labels
	r.Snippet = snippetOf(c.Content)
	return r
}

func snippetOf(content string) string {
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max]
}
