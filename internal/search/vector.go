package search

import (
	"context"

	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/store"
)

// QueryEmbedPrefix is prepended to queries before embedding; retrieval
// models distinguish queries from passages via this template.
const QueryEmbedPrefix = "search_query: "

// Vector is the semantic document search primitive: embed
// the query, cosine-scan stored chunk embeddings, dedup per document
// keeping the max-scoring chunk, boost, then normalise so the top
// result scores 100.
func Vector(ctx context.Context, db *store.DB, embedder embed.Embedder, query string, opts Options) ([]*Result, error) {
	scored, err := scoreChunks(ctx, db, embedder, query, opts)
	if err != nil || len(scored) == 0 {
		return nil, err
	}

	boosts := opts.Boosts
	if boosts.isZero() {
		boosts = DefaultBoosts()
	}
	terms := queryTerms(query)

	// Dedup per document, keeping the best-scoring chunk.
	best := make(map[string]*Result)
	var order []string
	for _, sc := range scored {
		doc, err := db.FindDocumentByHash(sc.chunk.DocumentHash)
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
		score := boosts.apply(sc.score, boostInput{
			collection: doc.Collection,
			docPath:    doc.Path,
			title:      doc.Title,
			importance: doc.ImportanceScore,
			preferDocs: opts.PreferDocs,
		}, terms)
		if prev, ok := best[doc.Hash]; !ok || score > prev.Score {
			if !ok {
				order = append(order, doc.Hash)
			}
			best[doc.Hash] = chunkResult(doc, sc.chunk, SourceVector, score)
		}
	}

	results := make([]*Result, 0, len(best))
	for _, h := range order {
		results = append(results, best[h])
	}
	normalizeTo100(results)
	return applyScoreWindow(results, opts), nil
}

// ChunksVector is the chunk-level semantic primitive: same scan, no
// per-document dedup, scores normalised the same way.
func ChunksVector(ctx context.Context, db *store.DB, embedder embed.Embedder, query string, opts Options) ([]*Result, error) {
	scored, err := scoreChunks(ctx, db, embedder, query, opts)
	if err != nil || len(scored) == 0 {
		return nil, err
	}

	boosts := opts.Boosts
	if boosts.isZero() {
		boosts = DefaultBoosts()
	}
	terms := queryTerms(query)

	var results []*Result
	for _, sc := range scored {
		doc, err := db.FindDocumentByHash(sc.chunk.DocumentHash)
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
		score := boosts.apply(sc.score, boostInput{
			collection: doc.Collection,
			docPath:    doc.Path,
			title:      doc.Title,
			importance: doc.ImportanceScore,
			preferDocs: opts.PreferDocs,
		}, terms)
		results = append(results, chunkResult(doc, sc.chunk, SourceVector, score))
	}
	normalizeTo100(results)
	return applyScoreWindow(results, opts), nil
}

type scoredChunk struct {
	chunk *store.Chunk
	score float64
}

// scoreChunks embeds the query and cosine-scores every stored chunk
// embedding, returning the top 3*limit chunks by similarity.
func scoreChunks(ctx context.Context, db *store.DB, embedder embed.Embedder, query string, opts Options) ([]scoredChunk, error) {
	limit := opts.effectiveLimit()
	if limit == 0 {
		return nil, nil
	}

	queryVec, err := embedder.Embed(ctx, QueryEmbedPrefix+query)
	if err != nil {
		return nil, err
	}

	model := embedder.ModelName()
	var vectors store.VectorStore
	if len(opts.Collections) == 1 {
		vectors = store.NewExactVectorStoreForCollection(db, model, opts.Collections[0])
	} else {
		vectors = store.NewExactVectorStore(db, model)
	}
	hits, err := vectors.Search(ctx, queryVec, limit*candidateFactor)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score <= 0 {
			continue
		}
		c, err := db.GetChunk(h.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		scored = append(scored, scoredChunk{chunk: c, score: float64(h.Score)})
	}
	return scored, nil
}

// normalizeTo100 rescales so the top score becomes 100. Scores are
// therefore relative to the query's own best hit and must not be
// compared across queries.
func normalizeTo100(results []*Result) {
	var top float64
	for _, r := range results {
		if r.Score > top {
			top = r.Score
		}
	}
	if top <= 0 {
		return
	}
	for _, r := range results {
		r.Score = r.Score / top * 100
	}
}
