package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// MetadataKind identifies the concrete type held by a MetadataValue.
type MetadataKind string

const (
	KindText        MetadataKind = "text"
	KindInteger     MetadataKind = "integer"
	KindFloat       MetadataKind = "float"
	KindBoolean     MetadataKind = "boolean"
	KindDateTime    MetadataKind = "datetime"
	KindTags        MetadataKind = "tags"
	KindEnum        MetadataKind = "enum"
	KindQualitative MetadataKind = "qualitative"
	KindQuantitative MetadataKind = "quantitative"
	KindJSON        MetadataKind = "json"
)

// MetadataValue is a typed user-attached metadata value, tagged by
// Kind so that filters can be applied without type assertions at
// every call site.
type MetadataValue struct {
	Kind  MetadataKind `json:"kind"`
	Text  string       `json:"text,omitempty"`
	Int   int64        `json:"int,omitempty"`
	Float float64      `json:"float,omitempty"`
	Bool  bool         `json:"bool,omitempty"`
	Time  string       `json:"time,omitempty"` // RFC3339
	Tags  []string     `json:"tags,omitempty"`
	JSON  string       `json:"json,omitempty"`

	// Options holds the allowed values for Enum (and the ordered
	// scale for Qualitative); the value is validated against it on
	// construction.
	Options []string `json:"options,omitempty"`

	// Unit annotates Quantitative values.
	Unit string `json:"unit,omitempty"`
}

func TextValue(s string) MetadataValue     { return MetadataValue{Kind: KindText, Text: s} }
func IntegerValue(n int64) MetadataValue   { return MetadataValue{Kind: KindInteger, Int: n} }
func FloatValue(f float64) MetadataValue   { return MetadataValue{Kind: KindFloat, Float: f} }
func BooleanValue(b bool) MetadataValue    { return MetadataValue{Kind: KindBoolean, Bool: b} }
func DateTimeValue(t time.Time) MetadataValue {
	return MetadataValue{Kind: KindDateTime, Time: t.UTC().Format(time.RFC3339)}
}
func TagsValue(tags []string) MetadataValue { return MetadataValue{Kind: KindTags, Tags: tags} }

// EnumValue builds an enum value; value must be one of options.
func EnumValue(value string, options []string) (MetadataValue, error) {
	if !containsString(options, value) {
		return MetadataValue{}, kberrors.InvalidInput(
			"enum value "+value+" is not among its options", nil)
	}
	return MetadataValue{Kind: KindEnum, Text: value, Options: options}, nil
}

// QualitativeValue builds a qualitative value; value must appear on
// its scale.
func QualitativeValue(value string, scale []string) (MetadataValue, error) {
	if !containsString(scale, value) {
		return MetadataValue{}, kberrors.InvalidInput(
			"qualitative value "+value+" is not on its scale", nil)
	}
	return MetadataValue{Kind: KindQualitative, Text: value, Options: scale}, nil
}

// QuantitativeValue builds a measured value with its unit.
func QuantitativeValue(f float64, unit string) MetadataValue {
	return MetadataValue{Kind: KindQuantitative, Float: f, Unit: unit}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
func JSONValue(raw string) MetadataValue { return MetadataValue{Kind: KindJSON, JSON: raw} }

// UserMetadata is the free-form, typed metadata bag attached to a
// document, persisted as a JSON object column. Fields
// serialise in insertion order.
type UserMetadata struct {
	Fields map[string]MetadataValue
	order  []string
}

func NewUserMetadata() *UserMetadata {
	return &UserMetadata{Fields: make(map[string]MetadataValue)}
}

func (m *UserMetadata) Set(key string, v MetadataValue) {
	if m.Fields == nil {
		m.Fields = make(map[string]MetadataValue)
	}
	if _, seen := m.Fields[key]; !seen {
		m.order = append(m.order, key)
	}
	m.Fields[key] = v
}

func (m *UserMetadata) Get(key string) (MetadataValue, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

func (m *UserMetadata) Remove(key string) {
	if _, ok := m.Fields[key]; !ok {
		return
	}
	delete(m.Fields, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (m *UserMetadata) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ToJSON serialises the bag as {"fields":{...}} with object keys in
// insertion order.
func (m *UserMetadata) ToJSON() (string, error) {
	var b strings.Builder
	b.WriteString(`{"fields":{`)
	for i, k := range m.order {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return "", kberrors.ParseError("marshal metadata key", err)
		}
		valJSON, err := json.Marshal(m.Fields[k])
		if err != nil {
			return "", kberrors.ParseError("marshal metadata value", err)
		}
		b.Write(keyJSON)
		b.WriteByte(':')
		b.Write(valJSON)
	}
	b.WriteString(`}}`)
	return b.String(), nil
}

// UserMetadataFromJSON parses a bag serialised by ToJSON, preserving
// the on-disk key order as the insertion order.
func UserMetadataFromJSON(raw string) (*UserMetadata, error) {
	var envelope struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, kberrors.ParseError("unmarshal user metadata", err)
	}
	m := NewUserMetadata()
	if len(envelope.Fields) == 0 {
		return m, nil
	}

	dec := json.NewDecoder(strings.NewReader(string(envelope.Fields)))
	tok, err := dec.Token()
	if err != nil {
		return nil, kberrors.ParseError("unmarshal metadata fields", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, kberrors.ParseError("metadata fields is not an object", nil)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, kberrors.ParseError("read metadata key", err)
		}
		key, _ := keyTok.(string)
		var v MetadataValue
		if err := dec.Decode(&v); err != nil {
			return nil, kberrors.ParseError("decode metadata value", err)
		}
		m.Set(key, v)
	}
	return m, nil
}

// FilterOp names the comparison applied by a leaf MetadataFilter.
type FilterOp string

const (
	OpEquals     FilterOp = "eq"
	OpNotEquals  FilterOp = "ne"
	OpGreaterThan FilterOp = "gt"
	OpLessThan   FilterOp = "lt"
	OpGreaterEq  FilterOp = "gte"
	OpLessEq     FilterOp = "lte"
	OpContains   FilterOp = "contains"
	OpHasTag     FilterOp = "has_tag"
	OpExists     FilterOp = "exists"
)

// MetadataFilter is a boolean expression tree over UserMetadata
// fields: a leaf compares one field with Op/Value, composites combine
// child filters with And/Or/Not.
type MetadataFilter struct {
	// Leaf fields
	Field string
	Op    FilterOp
	Value MetadataValue

	// Composite fields
	And []MetadataFilter
	Or  []MetadataFilter
	Not *MetadataFilter
}

// Matches evaluates the filter against a document's metadata bag,
// covering the full algebra including Float and DateTime comparison.
func (f MetadataFilter) Matches(m *UserMetadata) bool {
	if len(f.And) > 0 {
		for _, child := range f.And {
			if !child.Matches(m) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, child := range f.Or {
			if child.Matches(m) {
				return true
			}
		}
		return false
	}
	if f.Not != nil {
		return !f.Not.Matches(m)
	}

	if m == nil {
		return f.Op == OpExists && false
	}
	actual, ok := m.Get(f.Field)
	if f.Op == OpExists {
		return ok
	}
	if !ok {
		return false
	}
	return matchLeaf(f.Op, actual, f.Value)
}

func matchLeaf(op FilterOp, actual, want MetadataValue) bool {
	if op != OpHasTag && !kindsCompatible(actual, want) {
		return false
	}
	switch op {
	case OpEquals:
		return valuesEqual(actual, want)
	case OpNotEquals:
		return !valuesEqual(actual, want)
	case OpContains:
		// Substring match is case-sensitive; callers normalise both
		// sides when they want a case-blind match.
		return strings.Contains(actual.Text, want.Text)
	case OpHasTag:
		if actual.Kind != KindTags {
			return false
		}
		for _, t := range actual.Tags {
			if strings.EqualFold(t, want.Text) {
				return true
			}
		}
		return false
	case OpGreaterThan, OpLessThan, OpGreaterEq, OpLessEq:
		return compareOrdered(op, actual, want)
	}
	return false
}

// kindGroup buckets value kinds that are mutually comparable.
func kindGroup(k MetadataKind) string {
	switch k {
	case KindInteger, KindFloat, KindQuantitative:
		return "numeric"
	case KindText, KindEnum, KindQualitative:
		return "text"
	case KindDateTime:
		return "datetime"
	case KindBoolean:
		return "boolean"
	case KindTags:
		return "tags"
	default:
		return "json"
	}
}

// kindsCompatible enforces the rule that a filter only matches a
// value of a compatible type.
func kindsCompatible(a, b MetadataValue) bool {
	return kindGroup(a.Kind) == kindGroup(b.Kind)
}

func valuesEqual(a, b MetadataValue) bool {
	switch a.Kind {
	case KindInteger:
		return a.Int == numericOf(b)
	case KindFloat, KindQuantitative:
		return a.Float == floatOf(b)
	case KindBoolean:
		return a.Bool == b.Bool
	case KindDateTime:
		return a.Time == b.Time
	case KindTags:
		return strings.Join(a.Tags, ",") == strings.Join(b.Tags, ",")
	default:
		return strings.EqualFold(a.Text, b.Text) || a.JSON == b.JSON
	}
}

func numericOf(v MetadataValue) int64 {
	if v.Kind == KindFloat || v.Kind == KindQuantitative {
		return int64(v.Float)
	}
	return v.Int
}

func floatOf(v MetadataValue) float64 {
	if v.Kind == KindInteger {
		return float64(v.Int)
	}
	return v.Float
}

// compareOrdered handles Integer, Float/Quantitative, and DateTime
// ordering comparisons (RFC3339 strings compare lexicographically in
// chronological order).
func compareOrdered(op FilterOp, a, b MetadataValue) bool {
	var cmp int
	switch a.Kind {
	case KindInteger:
		av, bv := a.Int, numericOf(b)
		cmp = compareInt64(av, bv)
	case KindFloat, KindQuantitative:
		av, bv := a.Float, floatOf(b)
		cmp = compareFloat64(av, bv)
	case KindDateTime:
		cmp = strings.Compare(a.Time, b.Time)
	default:
		cmp = strings.Compare(a.Text, b.Text)
	}

	switch op {
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	case OpGreaterEq:
		return cmp >= 0
	case OpLessEq:
		return cmp <= 0
	}
	return false
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Merge returns a new bag containing every field of a overridden
// key-wise by b; merge is left-associative and right-biased, the
// right operand winning per key.
func Merge(a, b *UserMetadata) *UserMetadata {
	out := NewUserMetadata()
	if a != nil {
		for _, k := range a.order {
			out.Set(k, a.Fields[k])
		}
	}
	if b != nil {
		for _, k := range b.order {
			out.Set(k, b.Fields[k])
		}
	}
	return out
}

// SetDocumentUserMetadata replaces the metadata bag of a document.
func (d *DB) SetDocumentUserMetadata(id int64, m *UserMetadata) error {
	raw, err := m.ToJSON()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`UPDATE documents SET user_metadata = ? WHERE id = ?`, raw, id); err != nil {
		return kberrors.StorageError("set document user metadata", err)
	}
	return nil
}

// MergeDocumentUserMetadata folds m into the document's existing bag,
// right-biased per key.
func (d *DB) MergeDocumentUserMetadata(id int64, m *UserMetadata) error {
	d.mu.Lock()
	var raw sql.NullString
	err := d.conn.QueryRow(`SELECT user_metadata FROM documents WHERE id = ?`, id).Scan(&raw)
	d.mu.Unlock()
	if err != nil {
		return kberrors.StorageError("read document user metadata", err)
	}
	existing := NewUserMetadata()
	if raw.Valid && raw.String != "" {
		if parsed, perr := UserMetadataFromJSON(raw.String); perr == nil {
			existing = parsed
		}
	}
	return d.SetDocumentUserMetadata(id, Merge(existing, m))
}

// FindByMetadata scans active documents carrying a metadata bag and
// returns those matching filter, up to limit.
func (d *DB) FindByMetadata(filter MetadataFilter, limit int) ([]*Document, error) {
	d.mu.Lock()
	rows, err := d.conn.Query(
		`SELECT ` + documentColumns + ` FROM documents
		 WHERE active = 1 AND user_metadata IS NOT NULL AND user_metadata != ''`,
	)
	if err != nil {
		d.mu.Unlock()
		return nil, kberrors.StorageError("scan documents for metadata filter", err)
	}
	var candidates []*Document
	for rows.Next() {
		doc, serr := scanDocument(rows)
		if serr != nil {
			rows.Close()
			d.mu.Unlock()
			return nil, kberrors.StorageError("scan document", serr)
		}
		candidates = append(candidates, doc)
	}
	rows.Close()
	d.mu.Unlock()

	var out []*Document
	for _, doc := range candidates {
		if filter.Matches(doc.UserMetadata) {
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
