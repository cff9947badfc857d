package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/store"
)

// HybridOptions extends Options with the hybrid-only collaborators.
type HybridOptions struct {
	Options

	// Expander, when set and UseExpansion is true, widens the query
	// before the parallel searches.
	Expander     QueryExpander
	UseExpansion bool

	// Reranker, when set and UseReranking is true, reorders the fused
	// list before the final window is applied.
	Reranker     Reranker
	UseReranking bool

	// RRFConstant overrides the fusion constant; 0 means the default.
	RRFConstant int
}

// Hybrid runs BM25 and vector search in parallel, fuses the lists by
// reciprocal rank, and applies optional expansion and reranking.
func Hybrid(ctx context.Context, db *store.DB, embedder embed.Embedder, query string, opts HybridOptions) ([]*Result, error) {
	limit := opts.effectiveLimit()
	if limit == 0 {
		return nil, nil
	}

	queries := []string{query}
	if opts.UseExpansion && opts.Expander != nil {
		if variants, err := opts.Expander.Expand(ctx, query); err == nil {
			queries = append(queries, variants...)
		}
	}

	// Over-fetch both branches; fusion plus the final window trims.
	branchOpts := opts.Options
	branchOpts.Limit = limit * candidateFactor
	branchOpts.MinScore = 0

	var bm25, vec []*Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bm25, err = ftsMultiQuery(db, queries, branchOpts)
		return err
	})
	g.Go(func() error {
		var err error
		vec, err = Vector(gctx, db, embedder, query, branchOpts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := FuseRRF(opts.RRFConstant, bm25, vec)

	if opts.UseReranking && opts.Reranker != nil {
		reranked, err := opts.Reranker.Rerank(ctx, query, fused, limit*candidateFactor)
		if err == nil {
			fused = reranked
		}
	}

	// RRF scores are tiny fractions; MinScore applies to them as-is,
	// and the window keeps fused order rather than re-sorting.
	out := make([]*Result, 0, limit)
	for _, r := range fused {
		if r.Score < opts.MinScore {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ftsMultiQuery unions BM25 results across query variants, keeping
// each document's best rank position.
func ftsMultiQuery(db *store.DB, queries []string, opts Options) ([]*Result, error) {
	if len(queries) == 1 {
		return FTS(db, queries[0], opts)
	}
	var lists [][]*Result
	for _, q := range queries {
		list, err := FTS(db, q, opts)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return Interleave(lists...), nil
}
