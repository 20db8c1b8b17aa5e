package schema

import (
	"fmt"
	"sort"
)

// IssueCode classifies a validation finding.
type IssueCode string

const (
	CodeMissing    IssueCode = "missing_field"
	CodeKind       IssueCode = "kind_mismatch"
	CodeConstraint IssueCode = "constraint"
	CodeUnknown    IssueCode = "unknown_field"
)

// Issue is one validation error or warning.
type Issue struct {
	Path     string    `json:"path"`
	Code     IssueCode `json:"code"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Message  string    `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s %s: %s", i.Code, i.Path, i.Message)
}

// Outcome is the result of one validation call. Corrected is only set by
// callers that validated a corrected payload.
type Outcome struct {
	Valid     bool
	Errors    []Issue
	Warnings  []Issue
	Corrected map[string]any
}

// Validate checks payload against d without modifying it.
func Validate(payload map[string]any, d *Descriptor) Outcome {
	return d.Validate(payload)
}

// Validate runs the checks in order: required paths, value kinds level by
// level with nested fields after their parents, then declared constraints
// once the structure is sound. Unknown keys only produce warnings.
func (d *Descriptor) Validate(payload map[string]any) Outcome {
	var out Outcome
	if payload == nil {
		payload = map[string]any{}
	}
	out.Errors = append(out.Errors, missing(payload, d.fields, "")...)

	kindErrs, warnings := kinds(payload, d.fields, "")
	out.Errors = append(out.Errors, kindErrs...)
	out.Warnings = warnings

	if len(out.Errors) == 0 {
		out.Errors = append(out.Errors, d.constraintIssues(payload)...)
	}
	out.Valid = len(out.Errors) == 0
	return out
}

func missing(obj map[string]any, fields []Field, parent string) []Issue {
	var issues []Issue
	for _, f := range fields {
		p := join(parent, f.Name)
		v, present := obj[f.Name]
		if f.Required && (!present || v == nil) {
			issues = append(issues, Issue{
				Path:     p,
				Code:     CodeMissing,
				Expected: string(f.Kind),
				Message:  "required field is missing",
			})
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			if len(f.Fields) > 0 {
				issues = append(issues, missing(t, f.Fields, p)...)
			}
		case []any:
			if f.Items == nil || len(f.Items.Fields) == 0 {
				continue
			}
			for i, e := range t {
				if child, ok := e.(map[string]any); ok {
					issues = append(issues, missing(child, f.Items.Fields, fmt.Sprintf("%s[%d]", p, i))...)
				}
			}
		}
	}
	return issues
}

type nested struct {
	value any
	field Field
	path  string
}

func kinds(obj map[string]any, fields []Field, parent string) (errs, warnings []Issue) {
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var deeper []nested
	for _, k := range keys {
		v := obj[k]
		p := join(parent, k)
		f, known := byName[k]
		if !known {
			warnings = append(warnings, Issue{
				Path:    p,
				Code:    CodeUnknown,
				Actual:  describe(v),
				Message: "field is not declared by the schema",
			})
			continue
		}
		if v == nil {
			continue
		}
		if !Satisfies(f.Kind, v) {
			errs = append(errs, kindIssue(p, f.Kind, v))
			continue
		}
		if len(f.Fields) > 0 || f.Items != nil {
			deeper = append(deeper, nested{value: v, field: f, path: p})
		}
	}

	for _, n := range deeper {
		e, w := nestedKinds(n)
		errs = append(errs, e...)
		warnings = append(warnings, w...)
	}
	return errs, warnings
}

func nestedKinds(n nested) (errs, warnings []Issue) {
	switch v := n.value.(type) {
	case map[string]any:
		return kinds(v, n.field.Fields, n.path)
	case []any:
		it := n.field.Items
		var deeper []nested
		for i, e := range v {
			p := fmt.Sprintf("%s[%d]", n.path, i)
			if e == nil || !Satisfies(it.Kind, e) {
				errs = append(errs, kindIssue(p, it.Kind, e))
				continue
			}
			if len(it.Fields) > 0 || it.Items != nil {
				deeper = append(deeper, nested{value: e, field: *it, path: p})
			}
		}
		for _, d := range deeper {
			e, w := nestedKinds(d)
			errs = append(errs, e...)
			warnings = append(warnings, w...)
		}
	}
	return errs, warnings
}

func kindIssue(path string, want Kind, v any) Issue {
	return Issue{
		Path:     path,
		Code:     CodeKind,
		Expected: string(want),
		Actual:   describe(v),
		Message:  fmt.Sprintf("expected %s, got %s", want, describe(v)),
	}
}
