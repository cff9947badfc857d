package search

import (
	"path"
	"sort"
	"strings"
)

// BoostConfig is the multiplier stack applied to raw ranked scores.
// The multipliers are exposed as configuration so tests can zero them
// out instead of reverse-engineering the heuristics.
type BoostConfig struct {
	// DocsCollection multiplies scores of documents in documentation
	// collections when Options.PreferDocs is set.
	DocsCollection float64

	// SourceCollection multiplies scores of documents in "-src"
	// suffixed source collections when Options.PreferDocs is set.
	SourceCollection float64

	// TestPath multiplies scores of documents under a /test/ or
	// /tests/ path segment.
	TestPath float64

	// FilenameTerm multiplies the score when a query term appears in
	// the file name. Checked before TitleTerm; first match wins.
	FilenameTerm float64

	// TitleTerm multiplies the score when a query term appears in the
	// document title.
	TitleTerm float64
}

// DefaultBoosts returns the standard boost stack.
func DefaultBoosts() BoostConfig {
	return BoostConfig{
		DocsCollection:   1.5,
		SourceCollection: 0.7,
		TestPath:         0.1,
		FilenameTerm:     10,
		TitleTerm:        4,
	}
}

func (b BoostConfig) isZero() bool {
	return b == BoostConfig{}
}

// boostInput carries the document attributes the boost stack reads.
type boostInput struct {
	collection string
	docPath    string
	title      string
	importance float64
	preferDocs bool
}

// apply returns score after the full multiplier stack: importance,
// collection preference, test-path demotion, and the graduated
// filename/title term boost.
func (b BoostConfig) apply(score float64, in boostInput, queryTerms []string) float64 {
	if in.importance > 0 {
		score *= in.importance
	}

	if in.preferDocs {
		if strings.HasSuffix(in.collection, "-src") {
			score *= b.SourceCollection
		} else {
			score *= b.DocsCollection
		}
	}

	lowered := strings.ToLower(in.docPath)
	if strings.Contains(lowered, "/tests/") || strings.Contains(lowered, "/test/") ||
		strings.HasPrefix(lowered, "tests/") || strings.HasPrefix(lowered, "test/") {
		score *= b.TestPath
	}

	filename := strings.ToLower(path.Base(in.docPath))
	title := strings.ToLower(in.title)
	for _, term := range queryTerms {
		if term == "" {
			continue
		}
		if strings.Contains(filename, term) {
			score *= b.FilenameTerm
			break
		}
		if strings.Contains(title, term) {
			score *= b.TitleTerm
			break
		}
	}
	return score
}

// queryTerms lowercases and splits a query into boost-matchable terms.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func sortByScore(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentHash < results[j].DocumentHash
	})
}
