package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// ErrNotObject is returned when decoded text is valid but not a record.
var ErrNotObject = errors.New("payload is not an object")

// DecodeObject strictly decodes one JSON object. Integral number literals
// become int64, all other numbers float64.
func DecodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after payload")
	}
	m, ok := fromJSON(v).(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		f, err := t.Float64()
		if err != nil {
			return s
		}
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSON(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSON(e)
		}
		return t
	default:
		return v
	}
}

// KindOf reports the value kind of a decoded value. ok is false for null
// and for types that never come out of the decoder.
func KindOf(v any) (Kind, bool) {
	switch t := v.(type) {
	case int, int32, int64:
		return KindInteger, true
	case float32:
		return KindFloat, true
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return KindInteger, true
		}
		return KindFloat, true
	case string:
		return KindString, true
	case bool:
		return KindBoolean, true
	case map[string]any:
		return KindObject, true
	case []any:
		return KindArray, true
	}
	return "", false
}

// Satisfies reports whether a value of kind got is acceptable where want is
// expected. Numeric kinds are cross-compatible when no fraction is lost.
func Satisfies(want Kind, v any) bool {
	got, ok := KindOf(v)
	if !ok {
		return false
	}
	if got == want {
		return true
	}
	return want == KindFloat && got == KindInteger
}

// Clone deep-copies a decoded value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// CloneRecord is Clone for a top-level record.
func CloneRecord(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case float32, float64:
		return string(KindFloat)
	}
	if k, ok := KindOf(v); ok {
		return string(k)
	}
	return fmt.Sprintf("%T", v)
}
