package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidSchema marks a descriptor that cannot be used for a run.
var ErrInvalidSchema = errors.New("invalid schema descriptor")

// Kind is the expected value kind of a field.
type Kind string

const (
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

func (k Kind) valid() bool {
	switch k {
	case KindInteger, KindFloat, KindString, KindBoolean, KindObject, KindArray:
		return true
	}
	return false
}

// Numeric reports whether k is integer or float.
func (k Kind) Numeric() bool { return k == KindInteger || k == KindFloat }

// Role tags fields that collaborators and the recovery engine need to find
// without knowing their names.
type Role string

const (
	RoleNone       Role = ""
	RoleAggregate  Role = "aggregate"
	RoleRationale  Role = "rationale"
	RoleFeedback   Role = "feedback"
	RoleReviewFlag Role = "review_flag"
)

// Field declares one named value. Object fields nest through Fields, array
// fields may constrain their elements through Items.
type Field struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Role        Role     `yaml:"role,omitempty" json:"role,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Minimum     *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength   int      `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	Fields      []Field  `yaml:"fields,omitempty" json:"fields,omitempty"`
	Items       *Field   `yaml:"items,omitempty" json:"items,omitempty"`
}

// Descriptor is an immutable, validated set of fields. It is safe for
// concurrent use.
type Descriptor struct {
	fields   []Field
	index    map[string]Field
	paths    []string
	document map[string]any
	compiled *jsonschema.Schema
}

// New validates and freezes fields. Names and aliases are converted to NFC
// and declared defaults to their decoded form.
func New(fields ...Field) (*Descriptor, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields declared", ErrInvalidSchema)
	}
	frozen := make([]Field, len(fields))
	for i, f := range fields {
		c, err := freeze(f, "")
		if err != nil {
			return nil, err
		}
		frozen[i] = c
	}
	if err := checkSiblings(frozen, ""); err != nil {
		return nil, err
	}

	d := &Descriptor{fields: frozen, index: map[string]Field{}}
	d.indexFields(frozen, "")
	d.document = buildDocument(frozen)

	compiled, err := compileDocument(d.document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	d.compiled = compiled
	return d, nil
}

// MustNew is New for descriptors declared in code.
func MustNew(fields ...Field) *Descriptor {
	d, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return d
}

func freeze(f Field, parent string) (Field, error) {
	f.Name = norm.NFC.String(strings.TrimSpace(f.Name))
	path := join(parent, f.Name)
	switch {
	case f.Name == "":
		return f, fmt.Errorf("%w: empty field name under %q", ErrInvalidSchema, parent)
	case strings.ContainsAny(f.Name, ".[]"):
		return f, fmt.Errorf("%w: field name %q contains a path separator", ErrInvalidSchema, path)
	case !f.Kind.valid():
		return f, fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidSchema, path, f.Kind)
	case len(f.Fields) > 0 && f.Kind != KindObject:
		return f, fmt.Errorf("%w: field %q declares nested fields but is %s", ErrInvalidSchema, path, f.Kind)
	case f.Items != nil && f.Kind != KindArray:
		return f, fmt.Errorf("%w: field %q declares items but is %s", ErrInvalidSchema, path, f.Kind)
	case f.MinLength < 0 || (f.MinLength > 0 && f.Kind != KindString):
		return f, fmt.Errorf("%w: field %q has an invalid min_length", ErrInvalidSchema, path)
	case (f.Minimum != nil || f.Maximum != nil) && !f.Kind.Numeric():
		return f, fmt.Errorf("%w: field %q has a range but is %s", ErrInvalidSchema, path, f.Kind)
	case f.Minimum != nil && f.Maximum != nil && *f.Minimum > *f.Maximum:
		return f, fmt.Errorf("%w: field %q has minimum above maximum", ErrInvalidSchema, path)
	}

	aliases := make([]string, 0, len(f.Aliases))
	for _, a := range f.Aliases {
		if a = norm.NFC.String(strings.TrimSpace(a)); a != "" && a != f.Name && !slices.Contains(aliases, a) {
			aliases = append(aliases, a)
		}
	}
	f.Aliases = aliases

	if f.Default != nil {
		v, err := canonicalValue(f.Default)
		if err != nil || !Satisfies(f.Kind, v) {
			return f, fmt.Errorf("%w: default of %q is not a %s", ErrInvalidSchema, path, f.Kind)
		}
		f.Default = v
	}

	if len(f.Fields) > 0 {
		children := make([]Field, len(f.Fields))
		for i, c := range f.Fields {
			fc, err := freeze(c, path)
			if err != nil {
				return f, err
			}
			children[i] = fc
		}
		if err := checkSiblings(children, path); err != nil {
			return f, err
		}
		f.Fields = children
	}
	if f.Items != nil {
		it, err := freeze(*f.Items, path)
		if err != nil {
			return f, err
		}
		f.Items = &it
	}
	return f, nil
}

func checkSiblings(fields []Field, parent string) error {
	seen := map[string]string{}
	for _, f := range fields {
		for _, n := range append([]string{f.Name}, f.Aliases...) {
			if owner, dup := seen[n]; dup {
				return fmt.Errorf("%w: %q under %q is declared by both %q and %q", ErrInvalidSchema, n, parent, owner, f.Name)
			}
			seen[n] = f.Name
		}
	}
	return nil
}

func (d *Descriptor) indexFields(fields []Field, parent string) {
	for _, f := range fields {
		p := join(parent, f.Name)
		d.index[p] = f
		d.paths = append(d.paths, p)
		if len(f.Fields) > 0 {
			d.indexFields(f.Fields, p)
		}
	}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// Fields returns the top-level fields.
func (d *Descriptor) Fields() []Field { return slices.Clone(d.fields) }

// Paths lists every declared field path, depth first in declaration order.
func (d *Descriptor) Paths() []string { return slices.Clone(d.paths) }

// Lookup returns the field declared at a dotted path.
func (d *Descriptor) Lookup(path string) (Field, bool) {
	f, ok := d.index[path]
	return f, ok
}

// PathOf returns the first path carrying role.
func (d *Descriptor) PathOf(role Role) (string, bool) {
	for _, p := range d.paths {
		if d.index[p].Role == role {
			return p, true
		}
	}
	return "", false
}

// RequiredLeaves lists the non-object paths reachable from the root through
// required fields only. These are the fields a record cannot do without.
func (d *Descriptor) RequiredLeaves() []string {
	var out []string
	var walk func(fields []Field, parent string)
	walk = func(fields []Field, parent string) {
		for _, f := range fields {
			if !f.Required {
				continue
			}
			p := join(parent, f.Name)
			if f.Kind == KindObject && len(f.Fields) > 0 {
				walk(f.Fields, p)
				continue
			}
			out = append(out, p)
		}
	}
	walk(d.fields, "")
	return out
}

// Leaves lists every declared non-object path.
func (d *Descriptor) Leaves() []string {
	var out []string
	for _, p := range d.paths {
		f := d.index[p]
		if f.Kind == KindObject && len(f.Fields) > 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// JSONSchema returns a copy of the JSON Schema document the descriptor
// compiles to.
func (d *Descriptor) JSONSchema() map[string]any {
	return Clone(d.document).(map[string]any)
}
