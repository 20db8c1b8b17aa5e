package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Payload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"leading prose", `Here is the result: {"score": 7, "feedback": "good"}  `, `{"score": 7, "feedback": "good"}`},
		{"fenced with trailing comma", "```json\n{\"score\": 5, \"feedback\": \"ok\",}\n```", `{"score": 5, "feedback": "ok"}`},
		{"inline fence", "```json {\"a\": 1}```", `{"a": 1}`},
		{"trailing prose", "{\"a\": [1, 2, ]}\nHope this helps!", `{"a": [1, 2]}`},
		{"whitespace outside strings", "{\n\t\"a\" :   1,\n\n \"b\":  \"x   y\"\n}", `{ "a" : 1, "b": "x   y"}`},
		{"comma inside string kept", `{"a": "x,}"}`, `{"a": "x,}"}`},
		{"escaped quote", `{"a": "say \"hi\" ,"}`, `{"a": "say \"hi\" ,"}`},
		{"prose only", "The student   scored\nwell overall.", "The student scored well overall."},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw).Payload)
		})
	}
}

func TestCanonicalize(t *testing.T) {
	// decomposed hangul and a BOM
	raw := "\ufeff\u1100\u1161 score:\r\n  7   \r\n\r\n\r\n\r\nend"
	got := Canonicalize(raw)
	assert.Equal(t, "\uac00 score:\n  7\n\nend", got)
}

func TestCanonicalize_KeepsStringLiterals(t *testing.T) {
	raw := "Result:   \n\n\n\n{\"feedback\": \"line1   \nline2\n\n\n\nend\",   \n\n\n\"score\": 4}"
	assert.Equal(t, "Result:\n\n{\"feedback\": \"line1   \nline2\n\n\n\nend\",\n\n\"score\": 4}", Canonicalize(raw))

	// a quote in leading prose does not open a literal
	raw = "the student's \"answer   \n{\"a\": 1}   "
	assert.Equal(t, "the student's \"answer\n{\"a\": 1}", Canonicalize(raw))

	payload := Normalize("{\"feedback\": \"a  \n\n\nb\"}").Payload
	assert.Equal(t, "{\"feedback\": \"a  \n\n\nb\"}", payload)
}

func TestNormalize_KeepsFencesInCanonical(t *testing.T) {
	raw := "intro\n```json\n{\"a\": 1}\n```\n"
	got := Normalize(raw)
	assert.Equal(t, "intro\n```json\n{\"a\": 1}\n```", got.Canonical)
	assert.Equal(t, `{"a": 1}`, got.Payload)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		`Here is the result: {"score": 7, "feedback": "good"}  `,
		"```json\n{\"score\": 5, \"feedback\": \"ok\",}\n```",
		"} odd { order ,]",
		"{\"a\": \"unterminated\n  value, }",
		"note [1] then {\"x\": [ 1 , 2 ,, ] , }\n\n\n\ntrailer",
		"~~~\n[ {\"k\": \"v\" } , ]\n~~~",
		"plain prose\twith\ttabs",
		"각 {\"이름\": \"값\"}",
	}
	for _, raw := range inputs {
		once := Normalize(raw)
		assert.Equal(t, once.Payload, Normalize(once.Payload).Payload, "payload view for %q", raw)
		assert.Equal(t, once.Canonical, Normalize(once.Canonical).Canonical, "canonical view for %q", raw)
	}
}
