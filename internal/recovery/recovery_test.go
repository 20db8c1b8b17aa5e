package recovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

func rubricDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d, err := schema.FromRubric(schema.Rubric{Criteria: []schema.Criterion{{
		Name: "climate", MaxScore: 10,
		SubCriteria: []schema.SubCriterion{{Name: "temperature", MaxScore: 5}, {Name: "rainfall", MaxScore: 5}},
	}}}, schema.DefaultLabels())
	require.NoError(t, err)
	return d
}

func TestRecover_LabeledFragments(t *testing.T) {
	d := rubricDescriptor(t)
	e := New(d, DefaultOptions())

	res := e.Recover("Total score: 8\nCriterion 1 1 score = 4\nFeedback: Clear explanation of monsoon climate.\n")
	require.True(t, res.Accepted)
	assert.InDelta(t, 2.0/3.0, res.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"scores.total_score", "scores.criterion_1_1_score", "feedback.content"}, res.Recovered)
	assert.Equal(t, []string{"feedback.bluffing"}, res.Defaulted)

	assert.Equal(t, int64(8), res.Payload["scores"].(map[string]any)["total_score"])
	fb := res.Payload["feedback"].(map[string]any)
	assert.Equal(t, "Clear explanation of monsoon climate.", fb["content"])
	assert.Equal(t, false, fb["bluffing"])
	assert.True(t, d.Validate(res.Payload).Valid)
}

func TestRecover_BrokenJSON(t *testing.T) {
	d := rubricDescriptor(t)
	res := New(d, DefaultOptions()).Recover(`{"scores": {"total_score": 7, "criterion_1_score": 7 "content": "good grasp of rainfall"}, "bluffing": false`)
	require.True(t, res.Accepted)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, "good grasp of rainfall", res.Payload["feedback"].(map[string]any)["content"])
	assert.Empty(t, res.Defaulted)
}

func TestRecover_BelowThreshold(t *testing.T) {
	d := schema.MustNew(
		schema.Field{Name: "score", Kind: schema.KindInteger, Required: true, Role: schema.RoleAggregate},
		schema.Field{Name: "feedback", Kind: schema.KindString, Required: true, Default: "grading failed; manual review required"},
		schema.Field{Name: "rationale", Kind: schema.KindString, Required: true, Default: "recovery failed"},
		schema.Field{Name: "level", Kind: schema.KindString, Required: true},
	)
	e := New(d, DefaultOptions())

	res := e.Recover("The student scored well overall.")
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, e.Default(), res.Payload)
	assert.Equal(t, int64(0), res.Payload["score"])

	res = e.Recover("score: 9")
	assert.False(t, res.Accepted, "one of four required fields is below 0.3")
	assert.InDelta(t, 0.25, res.Confidence, 1e-9)
	assert.Equal(t, []string{"score"}, res.Recovered)
	assert.Equal(t, e.Default(), res.Payload)
}

func TestRecover_LabelBoundaries(t *testing.T) {
	d := schema.MustNew(schema.Field{Name: "score", Kind: schema.KindInteger, Required: true})
	e := New(d, Options{Threshold: 0.3})

	for _, text := range []string{"scored 9 points", "subscore: 3", "score_total: 5"} {
		assert.False(t, e.Recover(text).Accepted, text)
	}
	for _, text := range []string{"score 9", "Score is 9", `"score": "9"`, "final\nSCORE= 9"} {
		res := e.Recover(text)
		require.True(t, res.Accepted, text)
		assert.Equal(t, int64(9), res.Payload["score"], text)
	}
}

func TestRecover_Aliases(t *testing.T) {
	d := schema.MustNew(schema.Field{Name: "total_score", Kind: schema.KindInteger, Required: true, Aliases: []string{"total", "\ucd1d\uc810"}})
	e := New(d, DefaultOptions())
	res := e.Recover("\ucd1d\uc810: 12")
	require.True(t, res.Accepted)
	assert.Equal(t, int64(12), res.Payload["total_score"])
}

func TestRecover_BoundedScan(t *testing.T) {
	d := schema.MustNew(schema.Field{Name: "score", Kind: schema.KindInteger, Required: true})
	e := New(d, Options{Threshold: 0.3, MaxScanBytes: 64})
	text := strings.Repeat("x", 100) + "\nscore: 4"
	assert.False(t, e.Recover(text).Accepted, "labels past the scan limit are ignored")
}

func TestRecover_StructuralTextIsNotAValue(t *testing.T) {
	d := rubricDescriptor(t)
	e := New(d, DefaultOptions())

	res := e.Recover(`"scores": {"total_score": 6, "criterion_1_score": 6 "feedback": {"content": "fine", "bluffing": false`)
	require.True(t, res.Accepted)
	fb := res.Payload["feedback"].(map[string]any)
	assert.Equal(t, "fine", fb["content"])
	assert.Equal(t, false, fb["bluffing"])

	res = e.Recover("total score: 5\nfeedback: [see above]\nfeedback: clear and concise")
	require.True(t, res.Accepted)
	assert.Equal(t, "clear and concise", res.Payload["feedback"].(map[string]any)["content"])
}

func TestRecover_DeclaredNameBeforeAlias(t *testing.T) {
	d := schema.MustNew(
		schema.Field{Name: "content", Kind: schema.KindString, Required: true, Aliases: []string{"feedback"}},
		schema.Field{Name: "total_score", Kind: schema.KindInteger, Required: true, Aliases: []string{"score"}},
	)
	e := New(d, DefaultOptions())

	res := e.Recover("feedback: see the rubric\nscore: 2\ncontent: well argued\ntotal score: 9")
	require.True(t, res.Accepted)
	assert.Equal(t, "well argued", res.Payload["content"])
	assert.Equal(t, int64(9), res.Payload["total_score"])

	res = e.Recover("feedback: see the rubric\nscore: 2")
	require.True(t, res.Accepted)
	assert.Equal(t, "see the rubric", res.Payload["content"])
	assert.Equal(t, int64(2), res.Payload["total_score"])
}

func TestRecover_StringValuesNeverStructural(t *testing.T) {
	d := rubricDescriptor(t)
	e := New(d, DefaultOptions())
	for _, text := range []string{
		`{"feedback": {"content": "ok"}}`,
		`feedback: [1, 2, 3]` + "\ntotal: 3",
		`feedback = {"x": 1}` + "\ntotal: 3",
		"content: {\ntotal_score: 4",
	} {
		res := e.Recover(text)
		if !res.Accepted {
			continue
		}
		fb, _ := res.Payload["feedback"].(map[string]any)
		s, _ := fb["content"].(string)
		assert.NotRegexp(t, `^\s*[{\[]`, s, text)
	}
}
