package correct

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// a number, optionally out of a maximum, optionally with a points unit
var reNumeric = regexp.MustCompile(`(?i)^\s*([-+]?\d+(?:\.\d+)?)\s*(?:/\s*\d+(?:\.\d+)?)?\s*(?:points?|pts?|\x{C810})?\.?\s*$`)

var truthy = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "on": true,
	"false": false, "no": false, "n": false, "0": false, "off": false,
}

// coerce converts v towards f.Kind. ok is false when no lossless or
// well-known conversion exists.
func coerce(v any, f schema.Field) (any, bool) {
	if f.Kind != schema.KindArray {
		if arr, isArr := v.([]any); isArr {
			if len(arr) != 1 {
				return nil, false
			}
			if schema.Satisfies(f.Kind, arr[0]) {
				return arr[0], true
			}
			return coerce(arr[0], f)
		}
	}

	switch f.Kind {
	case schema.KindInteger:
		n, ok := number(v)
		if !ok || n != math.Trunc(n) || math.Abs(n) >= math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case schema.KindFloat:
		n, ok := number(v)
		return n, ok
	case schema.KindString:
		switch t := v.(type) {
		case int64:
			return strconv.FormatInt(t, 10), true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(t), true
		}
	case schema.KindBoolean:
		switch t := v.(type) {
		case int64:
			if t == 0 || t == 1 {
				return t == 1, true
			}
		case float64:
			if t == 0 || t == 1 {
				return t == 1, true
			}
		case string:
			b, known := truthy[strings.ToLower(strings.TrimSpace(t))]
			return b, known
		}
	case schema.KindArray:
		if v != nil {
			if it := f.Items; it == nil || schema.Satisfies(it.Kind, v) {
				return []any{v}, true
			}
		}
	case schema.KindObject:
		if s, isStr := v.(string); isStr {
			if m, err := schema.DecodeObject(strings.TrimSpace(s)); err == nil {
				return m, true
			}
		}
	}
	return nil, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		m := reNumeric.FindStringSubmatch(t)
		if m == nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(m[1], 64)
		return f, err == nil
	case bool:
		return 0, false
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case float64:
		return string(schema.KindFloat)
	}
	if k, ok := schema.KindOf(v); ok {
		return string(k)
	}
	return "unknown"
}
