package schema

import (
	"encoding/json"
	"fmt"
)

func canonicalValue(v any) (any, error) {
	b, err := json.Marshal(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	m, err := DecodeObject(string(b))
	if err != nil {
		return nil, err
	}
	return m["v"], nil
}

// DefaultValue returns a fresh copy of the value used when f has to be
// filled in. A declared default wins. Objects without one are built from
// their required and role-tagged children; everything else gets the zero
// value of its kind.
func DefaultValue(f Field) any {
	if f.Default != nil {
		return Clone(f.Default)
	}
	switch f.Kind {
	case KindInteger:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindString:
		return ""
	case KindBoolean:
		return false
	case KindArray:
		return []any{}
	case KindObject:
		return defaultObject(f.Fields)
	}
	panic(fmt.Sprintf("schema: unhandled kind %q", f.Kind))
}

func defaultObject(fields []Field) map[string]any {
	out := map[string]any{}
	for _, f := range fields {
		if f.Required || f.Role != RoleNone {
			out[f.Name] = DefaultValue(f)
		}
	}
	return out
}

// DefaultRecord is the deterministic minimal record for d. Every call
// returns an equal, independent value.
func (d *Descriptor) DefaultRecord() map[string]any {
	return defaultObject(d.fields)
}
