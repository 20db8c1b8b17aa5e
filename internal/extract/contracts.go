package extract

import (
	"errors"
	"fmt"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// ID names a strategy in attempt logs and metrics.
type ID string

const (
	IDDirect  ID = "direct"
	IDFenced  ID = "fenced"
	IDPattern ID = "pattern"
)

// Strategy carves one structured payload out of normalized text.
// Implementations hold no per-call state and are safe for concurrent use.
type Strategy interface {
	ID() ID
	Attempt(text normalize.Text) (map[string]any, error)
}

// Conditional is implemented by strategies that only apply to some shapes
// of text. Plan skips them when Applicable reports false.
type Conditional interface {
	Applicable(s Shape) bool
}

var (
	ErrNoMarkers   = errors.New("no structural markers")
	ErrUnbalanced  = errors.New("unbalanced structural markers")
	ErrNoFence     = errors.New("no fenced block")
	ErrNoCandidate = errors.New("no candidate region")
	ErrTooLarge    = errors.New("text exceeds scan limit")
	// ErrNotObject is returned when a region decodes to something other
	// than a JSON object.
	ErrNotObject = schema.ErrNotObject
)

// DecodeError reports a region that was found but could not be decoded.
type DecodeError struct {
	Strategy ID
	Region   string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode: %v", e.Strategy, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Defaults returns the standard ordered strategy set. expectedKeys lets the
// pattern scan prefer candidates that look like the target record.
func Defaults(expectedKeys []string) []Strategy {
	return []Strategy{
		DirectMatch{},
		FencedBlock{},
		NewPatternScan(expectedKeys),
	}
}

// maxScan bounds every scan so a single attempt has bounded cost.
const maxScan = 1 << 20
