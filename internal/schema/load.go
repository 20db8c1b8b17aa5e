package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldsFile is the on-disk form of a static descriptor.
type FieldsFile struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

// LoadRubricFile reads a rubric from YAML (.yaml, .yml) or JSON.
func LoadRubricFile(path string) (Rubric, error) {
	var r Rubric
	if err := decodeFile(path, &r); err != nil {
		return Rubric{}, err
	}
	if err := r.Validate(); err != nil {
		return Rubric{}, fmt.Errorf("rubric %s: %w", path, err)
	}
	return r, nil
}

// LoadFieldsFile reads a static descriptor from YAML or JSON.
func LoadFieldsFile(path string) (*Descriptor, error) {
	var ff FieldsFile
	if err := decodeFile(path, &ff); err != nil {
		return nil, err
	}
	d, err := New(ff.Fields...)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return d, nil
}

func decodeFile(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrInvalidSchema, path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrInvalidSchema, path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported file type %q", ErrInvalidSchema, filepath.Ext(path))
	}
	return nil
}
