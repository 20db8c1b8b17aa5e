package extract

import (
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// DirectMatch decodes the first outermost balanced region of the canonical
// text as-is. Object regions are preferred over array regions.
type DirectMatch struct{}

func (DirectMatch) ID() ID { return IDDirect }

func (DirectMatch) Attempt(text normalize.Text) (map[string]any, error) {
	s := text.Canonical
	if len(s) > maxScan {
		return nil, ErrTooLarge
	}
	if !strings.ContainsAny(s, "{[") {
		return nil, ErrNoMarkers
	}
	found, _ := regions(s)
	if len(found) == 0 {
		return nil, ErrUnbalanced
	}
	pick := found[0]
	for _, f := range found {
		if s[f.start] == '{' {
			pick = f
			break
		}
	}
	r := s[pick.start:pick.end]
	m, err := schema.DecodeObject(r)
	if err != nil {
		return nil, &DecodeError{Strategy: IDDirect, Region: r, Err: err}
	}
	return m, nil
}
