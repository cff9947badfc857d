package workflow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative time expressions use fixed, locale-free conversions: a
// month is 30 days and a year is 365, so cutoffs never drift with
// calendar arithmetic.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var relativeRe = regexp.MustCompile(`(?i)^\s*(\d+)\s+(hour|day|week|month|year)s?\s+ago\s*$`)

// ParseTimeExpression resolves expr into a point in time relative to
// now. Accepts ISO-8601 dates/timestamps and relative expressions
// ("3 months ago", "2 weeks ago", "yesterday").
func ParseTimeExpression(expr string, now time.Time) (time.Time, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, false
	}

	if m := relativeRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "hour":
			unit = time.Hour
		case "day":
			unit = day
		case "week":
			unit = week
		case "month":
			unit = month
		case "year":
			unit = year
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	if strings.EqualFold(expr, "yesterday") {
		return now.Add(-day), true
	}
	if strings.EqualFold(expr, "now") || strings.EqualFold(expr, "today") {
		return now, true
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, expr); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
