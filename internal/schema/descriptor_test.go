package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoreFeedback() *Descriptor {
	return MustNew(
		Field{Name: "score", Kind: KindInteger, Required: true, Role: RoleAggregate, Aliases: []string{"total"}},
		Field{Name: "feedback", Kind: KindString, Required: true, Role: RoleFeedback, Default: "flagged for manual review"},
	)
}

func TestNew_FailsFast(t *testing.T) {
	neg, pos := -1.0, 1.0
	tests := []struct {
		name   string
		fields []Field
	}{
		{"no fields", nil},
		{"empty name", []Field{{Name: " ", Kind: KindString}}},
		{"dotted name", []Field{{Name: "a.b", Kind: KindString}}},
		{"unknown kind", []Field{{Name: "a", Kind: "decimal"}}},
		{"nested on scalar", []Field{{Name: "a", Kind: KindString, Fields: []Field{{Name: "b", Kind: KindString}}}}},
		{"items on object", []Field{{Name: "a", Kind: KindObject, Items: &Field{Name: "x", Kind: KindString}}}},
		{"duplicate", []Field{{Name: "a", Kind: KindString}, {Name: "a", Kind: KindInteger}}},
		{"alias collides", []Field{{Name: "a", Kind: KindString}, {Name: "b", Kind: KindString, Aliases: []string{"a"}}}},
		{"bad default", []Field{{Name: "a", Kind: KindInteger, Default: "seven"}}},
		{"range on string", []Field{{Name: "a", Kind: KindString, Minimum: &pos}}},
		{"inverted range", []Field{{Name: "a", Kind: KindInteger, Minimum: &pos, Maximum: &neg}}},
		{"nested invalid", []Field{{Name: "a", Kind: KindObject, Fields: []Field{{Name: "", Kind: KindString}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestNew_CanonicalizesDefaults(t *testing.T) {
	d := MustNew(
		Field{Name: "n", Kind: KindInteger, Default: 3},
		Field{Name: "f", Kind: KindFloat, Default: 2},
		Field{Name: "o", Kind: KindObject, Default: map[string]any{"k": 1}},
	)
	n, _ := d.Lookup("n")
	assert.Equal(t, int64(3), n.Default)
	f, _ := d.Lookup("f")
	assert.Equal(t, int64(2), f.Default)
	o, _ := d.Lookup("o")
	assert.Equal(t, map[string]any{"k": int64(1)}, o.Default)
}

func TestDescriptor_Paths(t *testing.T) {
	d := MustNew(
		Field{Name: "scores", Kind: KindObject, Required: true, Fields: []Field{
			{Name: "a", Kind: KindInteger},
			{Name: "total", Kind: KindInteger, Required: true, Role: RoleAggregate},
		}},
		Field{Name: "notes", Kind: KindArray, Items: &Field{Name: "note", Kind: KindString}},
	)
	assert.Equal(t, []string{"scores", "scores.a", "scores.total", "notes"}, d.Paths())
	assert.Equal(t, []string{"scores.total"}, d.RequiredLeaves())
	assert.Equal(t, []string{"scores.a", "scores.total", "notes"}, d.Leaves())

	p, ok := d.PathOf(RoleAggregate)
	require.True(t, ok)
	assert.Equal(t, "scores.total", p)
	_, ok = d.PathOf(RoleReviewFlag)
	assert.False(t, ok)
}

func TestDescriptor_DefaultRecord(t *testing.T) {
	d := scoreFeedback()
	rec := d.DefaultRecord()
	assert.Equal(t, map[string]any{"score": int64(0), "feedback": "flagged for manual review"}, rec)

	rec["score"] = int64(9)
	assert.Equal(t, int64(0), d.DefaultRecord()["score"], "each call returns an independent record")
	assert.True(t, d.Validate(d.DefaultRecord()).Valid)
}

func TestDescriptor_JSONSchema(t *testing.T) {
	doc := scoreFeedback().JSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []any{"score", "feedback"}, toAny(doc["required"]))
	props := doc["properties"].(map[string]any)
	assert.Equal(t, "integer", props["score"].(map[string]any)["type"])
}

func toAny(v any) []any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		return t
	}
	return nil
}
