package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMetadataJSONRoundTrip(t *testing.T) {
	m := NewUserMetadata()
	m.Set("title", TextValue("intro"))
	m.Set("score", IntegerValue(42))
	m.Set("weight", FloatValue(2.5))
	m.Set("published", BooleanValue(true))
	m.Set("when", DateTimeValue(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	m.Set("tags", TagsValue([]string{"go", "search"}))

	raw, err := m.ToJSON()
	require.NoError(t, err)

	back, err := UserMetadataFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, m.Fields, back.Fields)
	assert.Equal(t, m.Keys(), back.Keys())
}

func TestUserMetadataInsertionOrderSerialization(t *testing.T) {
	m := NewUserMetadata()
	m.Set("zebra", TextValue("z"))
	m.Set("alpha", TextValue("a"))
	m.Set("mid", TextValue("m"))

	raw, err := m.ToJSON()
	require.NoError(t, err)
	zebraAt := indexOf(raw, "zebra")
	alphaAt := indexOf(raw, "alpha")
	midAt := indexOf(raw, "mid")
	assert.Less(t, zebraAt, alphaAt)
	assert.Less(t, alphaAt, midAt)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestMergeRightBiased(t *testing.T) {
	a := NewUserMetadata()
	a.Set("keep", TextValue("from-a"))
	a.Set("override", TextValue("old"))

	b := NewUserMetadata()
	b.Set("override", TextValue("new"))
	b.Set("extra", IntegerValue(1))

	merged := Merge(a, b)
	v, _ := merged.Get("keep")
	assert.Equal(t, "from-a", v.Text)
	v, _ = merged.Get("override")
	assert.Equal(t, "new", v.Text)
	_, ok := merged.Get("extra")
	assert.True(t, ok)

	// Left-associative: merge(merge(a,b),c) == fields of c win last.
	c := NewUserMetadata()
	c.Set("override", TextValue("newest"))
	final := Merge(merged, c)
	v, _ = final.Get("override")
	assert.Equal(t, "newest", v.Text)
}

func TestMetadataFilterAlgebra(t *testing.T) {
	m := NewUserMetadata()
	m.Set("name", TextValue("retrieval engine"))
	m.Set("score", IntegerValue(7))
	m.Set("ratio", FloatValue(0.5))
	m.Set("active", BooleanValue(true))
	m.Set("when", DateTimeValue(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	m.Set("tags", TagsValue([]string{"go", "sqlite"}))

	cases := []struct {
		name   string
		filter MetadataFilter
		want   bool
	}{
		{"text eq", MetadataFilter{Field: "name", Op: OpEquals, Value: TextValue("retrieval engine")}, true},
		{"text contains", MetadataFilter{Field: "name", Op: OpContains, Value: TextValue("engine")}, true},
		{"text contains case sensitive", MetadataFilter{Field: "name", Op: OpContains, Value: TextValue("Engine")}, false},
		{"int gt", MetadataFilter{Field: "score", Op: OpGreaterThan, Value: IntegerValue(5)}, true},
		{"int lt", MetadataFilter{Field: "score", Op: OpLessThan, Value: IntegerValue(5)}, false},
		{"float gt", MetadataFilter{Field: "ratio", Op: OpGreaterThan, Value: FloatValue(0.4)}, true},
		{"bool eq", MetadataFilter{Field: "active", Op: OpEquals, Value: BooleanValue(true)}, true},
		{"datetime after", MetadataFilter{Field: "when", Op: OpGreaterThan, Value: DateTimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}, true},
		{"datetime before", MetadataFilter{Field: "when", Op: OpLessThan, Value: DateTimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}, false},
		{"tag has", MetadataFilter{Field: "tags", Op: OpHasTag, Value: TextValue("go")}, true},
		{"tag missing", MetadataFilter{Field: "tags", Op: OpHasTag, Value: TextValue("rust")}, false},
		{"exists", MetadataFilter{Field: "score", Op: OpExists}, true},
		{"exists missing", MetadataFilter{Field: "ghost", Op: OpExists}, false},
		{"type mismatch", MetadataFilter{Field: "name", Op: OpGreaterThan, Value: IntegerValue(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(m))
		})
	}
}

func TestMetadataFilterComposites(t *testing.T) {
	m := NewUserMetadata()
	m.Set("score", IntegerValue(7))

	gt5 := MetadataFilter{Field: "score", Op: OpGreaterThan, Value: IntegerValue(5)}
	lt3 := MetadataFilter{Field: "score", Op: OpLessThan, Value: IntegerValue(3)}

	assert.True(t, MetadataFilter{And: []MetadataFilter{gt5}}.Matches(m))
	assert.False(t, MetadataFilter{And: []MetadataFilter{gt5, lt3}}.Matches(m))
	assert.True(t, MetadataFilter{Or: []MetadataFilter{lt3, gt5}}.Matches(m))
	assert.False(t, MetadataFilter{Not: &gt5}.Matches(m))

	// An Or with no children is vacuously false; a bare exists leaf on
	// a present field is true.
	assert.False(t, MetadataFilter{Or: nil, Field: "ghost", Op: OpEquals, Value: TextValue("x")}.Matches(m))
	assert.True(t, MetadataFilter{Field: "score", Op: OpExists}.Matches(m))
}

func TestFindByMetadata(t *testing.T) {
	db := openTestDB(t)
	for i, score := range []int64{1, 2, 3} {
		hash := mustInsertDocument(t, db, "docs", fmt.Sprintf("doc-%d.md", i), "Doc", "body "+string(rune('a'+i)))
		doc, err := db.FindDocumentByHash(hash)
		require.NoError(t, err)
		m := NewUserMetadata()
		m.Set("score", IntegerValue(score))
		require.NoError(t, db.SetDocumentUserMetadata(doc.ID, m))
	}

	matches, err := db.FindByMetadata(MetadataFilter{
		Field: "score", Op: OpGreaterThan, Value: IntegerValue(1),
	}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, doc := range matches {
		v, ok := doc.UserMetadata.Get("score")
		require.True(t, ok)
		assert.Greater(t, v.Int, int64(1))
	}
}

func TestEnumAndQualitativeValidation(t *testing.T) {
	v, err := EnumValue("high", []string{"low", "medium", "high"})
	require.NoError(t, err)
	assert.Equal(t, "high", v.Text)

	_, err = EnumValue("extreme", []string{"low", "medium", "high"})
	require.Error(t, err)

	q, err := QualitativeValue("good", []string{"poor", "fair", "good"})
	require.NoError(t, err)
	assert.Equal(t, []string{"poor", "fair", "good"}, q.Options)

	_, err = QualitativeValue("excellent", []string{"poor", "fair", "good"})
	require.Error(t, err)

	m := NewUserMetadata()
	m.Set("rating", q)
	assert.True(t, MetadataFilter{Field: "rating", Op: OpEquals, Value: TextValue("good")}.Matches(m))

	quant := QuantitativeValue(2.5, "ms")
	assert.Equal(t, "ms", quant.Unit)
}
