package correct

import (
	"strconv"
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

type segment struct {
	name  string
	index int // -1 for named segments
}

func parsePath(p string) []segment {
	var segs []segment
	for _, part := range strings.Split(p, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name != "" {
			segs = append(segs, segment{name: name, index: -1})
		}
		for rest != "" {
			num, after, found := strings.Cut(rest, "]")
			if !found {
				break
			}
			if i, err := strconv.Atoi(num); err == nil {
				segs = append(segs, segment{index: i})
			}
			rest = strings.TrimPrefix(after, "[")
		}
	}
	return segs
}

// target is a resolved payload location together with its declaration.
type target struct {
	parent   any // map[string]any or []any
	last     segment
	field    schema.Field
	siblings []schema.Field
}

func locate(root map[string]any, d *schema.Descriptor, path string) (target, bool) {
	segs := parsePath(path)
	if len(segs) == 0 {
		return target{}, false
	}
	fields := d.Fields()
	var field schema.Field
	var container any = root
	for i, s := range segs {
		siblings := fields
		if s.index < 0 {
			f, found := byName(fields, s.name)
			if !found {
				return target{}, false
			}
			field = f
		} else {
			if field.Items == nil {
				return target{}, false
			}
			field = *field.Items
			siblings = nil
		}
		fields = field.Fields

		if i == len(segs)-1 {
			return target{parent: container, last: s, field: field, siblings: siblings}, true
		}
		next, ok := get(container, s)
		if !ok {
			return target{}, false
		}
		container = next
	}
	return target{}, false
}

func byName(fields []schema.Field, name string) (schema.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.Field{}, false
}

func get(container any, s segment) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		if s.index >= 0 {
			return nil, false
		}
		v, ok := c[s.name]
		return v, ok
	case []any:
		if s.index < 0 || s.index >= len(c) {
			return nil, false
		}
		return c[s.index], true
	}
	return nil, false
}

func set(container any, s segment, v any) bool {
	switch c := container.(type) {
	case map[string]any:
		if s.index >= 0 {
			return false
		}
		c[s.name] = v
		return true
	case []any:
		if s.index < 0 || s.index >= len(c) {
			return false
		}
		c[s.index] = v
		return true
	}
	return false
}
