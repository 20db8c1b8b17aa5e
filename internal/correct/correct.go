package correct

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// Options toggles the correction steps. Default-filling always runs.
type Options struct {
	FieldMapping    bool
	TypeCoercion    bool
	MaxEditDistance int
}

func DefaultOptions() Options {
	return Options{FieldMapping: true, TypeCoercion: true, MaxEditDistance: 2}
}

// ChangeKind is the kind of correction applied to one field.
type ChangeKind string

const (
	ChangeRename  ChangeKind = "rename"
	ChangeCoerce  ChangeKind = "coerce"
	ChangeDefault ChangeKind = "default"
)

// Change records one correction. Every change surfaces as a warning.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Path   string     `json:"path"`
	Detail string     `json:"detail"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s: %s", c.Kind, c.Path, c.Detail)
}

// Result is the best payload the corrector could build. It may still fail
// validation; the caller re-validates.
type Result struct {
	Payload map[string]any
	Changes []Change
}

// Defaulted reports whether path, or one of its ancestors, was filled from
// a declared default.
func (r Result) Defaulted(path string) bool {
	for _, c := range r.Changes {
		if c.Kind != ChangeDefault {
			continue
		}
		if c.Path == path || strings.HasPrefix(path, c.Path+".") || strings.HasPrefix(path, c.Path+"[") {
			return true
		}
	}
	return false
}

// at most this many rename or coercion passes; each pass can expose nested
// fields that the previous one could not reach
const maxRounds = 8

// Apply corrects a copy of payload. issues are the validation errors of
// payload; later passes re-validate the working copy. It never fails.
func Apply(payload map[string]any, issues []schema.Issue, d *schema.Descriptor, opts Options) Result {
	work := schema.CloneRecord(payload)
	if work == nil {
		work = map[string]any{}
	}
	var changes []Change

	if opts.FieldMapping {
		current := issues
		for range maxRounds {
			renamed := renameAll(work, current, d, opts.MaxEditDistance)
			if len(renamed) == 0 {
				break
			}
			changes = append(changes, renamed...)
			current = d.Validate(work).Errors
		}
	}

	if opts.TypeCoercion {
		for range maxRounds {
			coerced := coerceAll(work, d.Validate(work).Errors, d)
			if len(coerced) == 0 {
				break
			}
			changes = append(changes, coerced...)
		}
	}

	changes = append(changes, fillDefaults(work, d.Validate(work).Errors, d)...)
	return Result{Payload: work, Changes: changes}
}

func renameAll(work map[string]any, issues []schema.Issue, d *schema.Descriptor, maxDist int) []Change {
	var changes []Change
	for _, is := range issues {
		if is.Code != schema.CodeMissing {
			continue
		}
		t, ok := locate(work, d, is.Path)
		if !ok || t.last.index >= 0 {
			continue
		}
		obj, ok := t.parent.(map[string]any)
		if !ok {
			continue
		}
		if v, present := obj[t.last.name]; present && v != nil {
			continue
		}
		cands := make([]Candidate, len(t.siblings))
		declared := make(map[string]bool, len(t.siblings))
		for i, f := range t.siblings {
			cands[i] = Candidate{Name: f.Name, Aliases: f.Aliases}
			declared[f.Name] = true
		}

		keys := make([]string, 0, len(obj))
		for k := range obj {
			if !declared[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !fits(obj[k], t.field) {
				continue
			}
			if name, matched := MatchField(k, cands, maxDist); matched && name == t.last.name {
				obj[name] = obj[k]
				delete(obj, k)
				changes = append(changes, Change{
					Kind:   ChangeRename,
					Path:   is.Path,
					Detail: fmt.Sprintf("renamed %q to %q", k, name),
				})
				break
			}
		}
	}
	return changes
}

// fits reports whether v can live under f, as-is or after coercion. A
// rename that cannot satisfy the target kind only moves the error.
func fits(v any, f schema.Field) bool {
	if v == nil {
		return false
	}
	if schema.Satisfies(f.Kind, v) {
		return true
	}
	_, ok := coerce(v, f)
	return ok
}

func coerceAll(work map[string]any, issues []schema.Issue, d *schema.Descriptor) []Change {
	var changes []Change
	for _, is := range issues {
		if is.Code != schema.CodeKind {
			continue
		}
		t, ok := locate(work, d, is.Path)
		if !ok {
			continue
		}
		old, ok := get(t.parent, t.last)
		if !ok {
			continue
		}
		v, ok := coerce(old, t.field)
		if !ok || !set(t.parent, t.last, v) {
			continue
		}
		changes = append(changes, Change{
			Kind:   ChangeCoerce,
			Path:   is.Path,
			Detail: fmt.Sprintf("coerced %s to %s", kindName(old), t.field.Kind),
		})
	}
	return changes
}

func fillDefaults(work map[string]any, issues []schema.Issue, d *schema.Descriptor) []Change {
	var changes []Change
	for _, is := range issues {
		if is.Code != schema.CodeMissing {
			continue
		}
		t, ok := locate(work, d, is.Path)
		if !ok {
			continue
		}
		v := schema.DefaultValue(t.field)
		if !set(t.parent, t.last, v) {
			continue
		}
		changes = append(changes, Change{
			Kind:   ChangeDefault,
			Path:   is.Path,
			Detail: fmt.Sprintf("filled missing field with default %s", preview(v)),
		})
	}
	return changes
}

func preview(v any) string {
	s := fmt.Sprintf("%v", v)
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40]) + "..."
	}
	if _, isStr := v.(string); isStr {
		return fmt.Sprintf("%q", s)
	}
	return s
}
