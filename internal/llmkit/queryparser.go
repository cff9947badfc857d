package llmkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SearchType is the query parser's search-strategy suggestion; it
// never binds the caller.
type SearchType string

const (
	SearchTypeBM25   SearchType = "bm25"
	SearchTypeVector SearchType = "vector"
	SearchTypeHybrid SearchType = "hybrid"
)

// TemporalFilter is a parsed date-range hint.
type TemporalFilter struct {
	Start       string // ISO-8601, empty if open-ended
	End         string
	Description string
}

// MetadataHint is a typed field/operator/value hint extracted from
// free text.
type MetadataHint struct {
	Field    string
	Operator string
	Value    string
}

// ParsedQuery is the result of QueryParser.Parse.
type ParsedQuery struct {
	SearchTerms     string
	TemporalFilter  *TemporalFilter
	MetadataFilters []MetadataHint
	SearchType      SearchType
}

// QueryParser is the collaborator interface.
type QueryParser interface {
	Parse(query string) ParsedQuery
}

// HeuristicQueryParser implements QueryParser with the fixed phrase
// table and regex extraction described in ; no LLM call is
// required.
type HeuristicQueryParser struct {
	// Now lets tests pin "the current time" for deterministic relative
	// time parsing; nil means time.Now.
	Now func() time.Time
}

var _ QueryParser = (*HeuristicQueryParser)(nil)

// NewHeuristicQueryParser returns a parser using the real wall clock.
func NewHeuristicQueryParser() *HeuristicQueryParser {
	return &HeuristicQueryParser{}
}

func (p *HeuristicQueryParser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Parse implements the full parsing contract: temporal
// phrases, metadata hints, and a search_type suggestion.
func (p *HeuristicQueryParser) Parse(query string) ParsedQuery {
	temporal, residual := p.extractTemporal(query)
	hints, residual2 := extractMetadataHints(residual)

	return ParsedQuery{
		SearchTerms:     strings.TrimSpace(residual2),
		TemporalFilter:  temporal,
		MetadataFilters: hints,
		SearchType:      suggestSearchType(query),
	}
}

var (
	lastHourRe    = regexp.MustCompile(`(?i)\blast hour\b`)
	lastNDaysRe   = regexp.MustCompile(`(?i)\blast (\d+) days?\b`)
	thisWeekRe    = regexp.MustCompile(`(?i)\bthis week\b`)
	betweenRe     = regexp.MustCompile(`(?i)\bbetween (\d{4}-\d{2}-\d{2}) and (\d{4}-\d{2}-\d{2})\b`)
	recentlyRe    = regexp.MustCompile(`(?i)\brecently\b`)
	yesterdayRe   = regexp.MustCompile(`(?i)\byesterday\b`)
)

// extractTemporal recognises the fixed phrase table and
// returns the filter plus the query with the matched phrase removed.
func (p *HeuristicQueryParser) extractTemporal(query string) (*TemporalFilter, string) {
	now := p.now()

	if m := betweenRe.FindStringSubmatchIndex(query); m != nil {
		start := query[m[2]:m[3]]
		end := query[m[4]:m[5]]
		residual := query[:m[0]] + query[m[1]:]
		return &TemporalFilter{Start: start, End: end, Description: "between " + start + " and " + end}, residual
	}

	if loc := lastHourRe.FindStringIndex(query); loc != nil {
		start := now.Add(-1 * time.Hour).Format(time.RFC3339)
		residual := query[:loc[0]] + query[loc[1]:]
		return &TemporalFilter{Start: start, End: now.Format(time.RFC3339), Description: "last hour"}, residual
	}

	if m := lastNDaysRe.FindStringSubmatchIndex(query); m != nil {
		n, _ := strconv.Atoi(query[m[2]:m[3]])
		start := now.AddDate(0, 0, -n).Format(time.RFC3339)
		residual := query[:m[0]] + query[m[1]:]
		return &TemporalFilter{Start: start, End: now.Format(time.RFC3339), Description: fmt.Sprintf("last %d days", n)}, residual
	}

	if loc := thisWeekRe.FindStringIndex(query); loc != nil {
		start := now.AddDate(0, 0, -7).Format(time.RFC3339)
		residual := query[:loc[0]] + query[loc[1]:]
		return &TemporalFilter{Start: start, End: now.Format(time.RFC3339), Description: "this week"}, residual
	}

	if loc := recentlyRe.FindStringIndex(query); loc != nil {
		start := now.AddDate(0, 0, -30).Format(time.RFC3339)
		residual := query[:loc[0]] + query[loc[1]:]
		return &TemporalFilter{Start: start, End: now.Format(time.RFC3339), Description: "recently"}, residual
	}

	if loc := yesterdayRe.FindStringIndex(query); loc != nil {
		start := now.AddDate(0, 0, -1).Format("2006-01-02")
		end := now.Format("2006-01-02")
		residual := query[:loc[0]] + query[loc[1]:]
		return &TemporalFilter{Start: start, End: end, Description: "yesterday"}, residual
	}

	return nil, query
}

var (
	fieldValueRe = regexp.MustCompile(`\b(category|difficulty|tag|keyword)[:=]([^\s]+)\b`)
	byAuthorRe   = regexp.MustCompile(`(?i)\bby ([A-Z][a-zA-Z]*)\b`)
)

// extractMetadataHints extracts typed field hints, both key:value
// tokens and freeform phrases like "by Alice".
func extractMetadataHints(query string) ([]MetadataHint, string) {
	var hints []MetadataHint
	residual := query

	residual = fieldValueRe.ReplaceAllStringFunc(residual, func(match string) string {
		sub := fieldValueRe.FindStringSubmatch(match)
		field := sub[1]
		if field == "keyword" {
			field = "tag"
		}
		hints = append(hints, MetadataHint{Field: field, Operator: "eq", Value: sub[2]})
		return ""
	})

	if m := byAuthorRe.FindStringSubmatch(residual); m != nil {
		hints = append(hints, MetadataHint{Field: "author", Operator: "contains", Value: m[1]})
		residual = byAuthorRe.ReplaceAllString(residual, "")
	}

	return hints, residual
}

var (
	naturalLanguageMarkers = []string{"how", "what", "why", "explain", "when", "where", "who"}
	technicalMarkerRe      = regexp.MustCompile(`::|_|[A-Z][a-z]+[A-Z]`)
)

// suggestSearchType applies the heuristic: natural-language
// questions without technical markers lean Vector, identifier-looking
// queries lean BM25, everything else is Hybrid.
func suggestSearchType(query string) SearchType {
	lower := strings.ToLower(query)
	hasNL := false
	for _, marker := range naturalLanguageMarkers {
		if strings.Contains(lower, marker) {
			hasNL = true
			break
		}
	}
	hasTechnical := technicalMarkerRe.MatchString(query)

	switch {
	case hasNL && !hasTechnical:
		return SearchTypeVector
	case hasTechnical:
		return SearchTypeBM25
	default:
		return SearchTypeHybrid
	}
}

// urlLikeRe matches tokens that contain a scheme separator and so
// must never be parsed as key:value filters.
var urlLikeRe = regexp.MustCompile(`\S*://\S*`)

// inlineFilterRe matches key:value tokens for the recognised filter
// keys.
var inlineFilterRe = regexp.MustCompile(`\b(category|difficulty|tag|keyword):(\S+)`)

// ParseInlineMetadataFilters extracts key:value tokens for
// category/difficulty/tag/keyword from a free-form query, leaving
// URL-like tokens untouched, and returns the residual query plus the
// extracted filters.
func ParseInlineMetadataFilters(query string) (string, []MetadataHint) {
	urlSpans := urlLikeRe.FindAllStringIndex(query, -1)
	isURLOverlap := func(start, end int) bool {
		for _, span := range urlSpans {
			if start < span[1] && end > span[0] {
				return true
			}
		}
		return false
	}

	var hints []MetadataHint
	matches := inlineFilterRe.FindAllStringSubmatchIndex(query, -1)
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if isURLOverlap(start, end) {
			continue
		}
		field := query[m[2]:m[3]]
		if field == "keyword" {
			field = "tag"
		}
		value := query[m[4]:m[5]]
		hints = append(hints, MetadataHint{Field: field, Operator: "eq", Value: value})
		b.WriteString(query[last:start])
		last = end
	}
	b.WriteString(query[last:])

	residual := strings.Join(strings.Fields(b.String()), " ")
	return residual, hints
}
