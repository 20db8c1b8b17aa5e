package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var jsonTypes = map[Kind]string{
	KindInteger: "integer",
	KindFloat:   "number",
	KindString:  "string",
	KindBoolean: "boolean",
	KindObject:  "object",
	KindArray:   "array",
}

// buildDocument renders fields as a JSON-Schema (draft 2020-12 subset).
// Unknown properties stay allowed; the validator reports them as warnings.
func buildDocument(fields []Field) map[string]any {
	props, required := properties(fields)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func properties(fields []Field) (map[string]any, []string) {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = property(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return props, required
}

func property(f Field) map[string]any {
	p := map[string]any{}
	if f.Required {
		p["type"] = jsonTypes[f.Kind]
	} else {
		// optional fields may be sent as null
		p["type"] = []any{jsonTypes[f.Kind], "null"}
	}
	if f.Description != "" {
		p["description"] = f.Description
	}
	if f.Minimum != nil {
		p["minimum"] = *f.Minimum
	}
	if f.Maximum != nil {
		p["maximum"] = *f.Maximum
	}
	if f.MinLength > 0 {
		p["minLength"] = f.MinLength
	}
	if len(f.Fields) > 0 {
		props, required := properties(f.Fields)
		p["properties"] = props
		p["required"] = required
	}
	if f.Items != nil {
		p["items"] = property(*f.Items)
	}
	return p
}

func compileDocument(doc map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// constraintIssues validates payload against the compiled document and turns
// each failing leaf into an Issue.
func (d *Descriptor) constraintIssues(payload map[string]any) []Issue {
	b, err := json.Marshal(payload)
	if err != nil {
		return []Issue{{Code: CodeConstraint, Message: fmt.Sprintf("payload cannot be encoded: %v", err)}}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return []Issue{{Code: CodeConstraint, Message: fmt.Sprintf("payload cannot be decoded: %v", err)}}
	}
	err = d.compiled.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Code: CodeConstraint, Message: err.Error()}}
	}

	seen := map[string]bool{}
	var issues []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		path := pointerToPath(e.InstanceLocation)
		key := path + "|" + e.Message
		if seen[key] {
			return
		}
		seen[key] = true
		issues = append(issues, Issue{Path: path, Code: CodeConstraint, Message: e.Message})
	}
	walk(ve)
	if len(issues) == 0 {
		issues = append(issues, Issue{Code: CodeConstraint, Message: ve.Message})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

// pointerToPath converts "/feedback/content" to "feedback.content" and
// "/tags/2" to "tags[2]".
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	var b strings.Builder
	for _, p := range parts {
		p = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
		if isIndex(p) {
			b.WriteString("[" + p + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
