// Package search implements the retrieval primitives of the engine:
// BM25 full-text search over documents and chunks, exact cosine
// vector search, reciprocal-rank fusion, and hybrid search, with the
// score-boost stack applied uniformly across all of them.
package search

import (
	"github.com/localkb/engine/internal/store"
)

// Source tags which primitive produced a result.
type Source string

const (
	SourceBM25     Source = "bm25"
	SourceVector   Source = "vector"
	SourceHybrid   Source = "hybrid"
	SourceGlossary Source = "glossary"
)

// Result is a single search hit. Document-level searches leave the
// chunk fields empty; chunk-level searches fill them.
type Result struct {
	Docid        string
	DocumentHash string
	Collection   string
	Path         string
	Title        string
	Score        float64
	Source       Source
	Snippet      string

	// Chunk-level fields
	ChunkHash  string
	Breadcrumb string
	StartLine  int
	EndLine    int
	Purpose    string
	Concepts   []string
	Labels     map[string]string

	// Projections used by post-search filtering
	Category   string
	Difficulty string
	Tags       []string
	ModifiedAt string
}

// Options configures a search call.
type Options struct {
	// Limit caps the number of returned results; 0 returns nothing.
	Limit int

	// MinScore drops results scoring below it (inclusive: a result
	// with Score == MinScore survives).
	MinScore float64

	// Collections restricts results to documents in any of the named
	// collections; empty means all.
	Collections []string

	// SourceTypes restricts by document source_type; empty means all.
	SourceTypes []string

	// Metadata filters results through the user-metadata algebra.
	Metadata *store.MetadataFilter

	// Boosts is the multiplier stack applied to ranked scores.
	// Zero value means DefaultBoosts().
	Boosts BoostConfig

	// PreferDocs biases ranking toward documentation-style collections
	// over source-code collections.
	PreferDocs bool
}

// DefaultLimit is used when Options.Limit is negative (callers that
// did not think about limits at all); an explicit 0 still means zero.
const DefaultLimit = 10

func (o Options) effectiveLimit() int {
	if o.Limit < 0 {
		return DefaultLimit
	}
	return o.Limit
}

func (o Options) allowsCollection(name string) bool {
	if len(o.Collections) == 0 {
		return true
	}
	for _, c := range o.Collections {
		if c == name {
			return true
		}
	}
	return false
}

func (o Options) allowsSourceType(st string) bool {
	if len(o.SourceTypes) == 0 {
		return true
	}
	for _, s := range o.SourceTypes {
		if s == st {
			return true
		}
	}
	return false
}

func (o Options) allowsMetadata(doc *store.Document) bool {
	if o.Metadata == nil {
		return true
	}
	return o.Metadata.Matches(doc.UserMetadata)
}

// resultFromDocument projects the shared document fields into a Result.
func resultFromDocument(doc *store.Document, source Source, score float64) *Result {
	var tags []string
	if doc.UserMetadata != nil {
		if v, ok := doc.UserMetadata.Get("tags"); ok && v.Kind == store.KindTags {
			tags = v.Tags
		}
	}
	return &Result{
		Docid:        doc.Docid(),
		DocumentHash: doc.Hash,
		Collection:   doc.Collection,
		Path:         doc.Path,
		Title:        doc.Title,
		Score:        score,
		Source:       source,
		Category:     doc.LLM.Category,
		Difficulty:   doc.LLM.Difficulty,
		Tags:         tags,
		ModifiedAt:   doc.ModifiedAt,
	}
}

// applyScoreWindow sorts by score descending and applies MinScore and
// Limit. The MinScore comparison is inclusive.
func applyScoreWindow(results []*Result, opts Options) []*Result {
	sortByScore(results)
	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r.Score < opts.MinScore {
			continue
		}
		out = append(out, r)
		if len(out) >= opts.effectiveLimit() {
			break
		}
	}
	return out
}
