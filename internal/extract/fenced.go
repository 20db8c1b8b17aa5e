package extract

import (
	"regexp"
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

var reFenced = regexp.MustCompile("(?s)(```|~~~)[ \t]*([\\w+.-]*)[ \t]*\n?(.*?)(?:```|~~~)")

// FencedBlock decodes the content of the first code fence, with or without
// a language tag, that holds a record.
type FencedBlock struct{}

func (FencedBlock) ID() ID { return IDFenced }

func (FencedBlock) Applicable(s Shape) bool { return s.HasFences }

func (FencedBlock) Attempt(text normalize.Text) (map[string]any, error) {
	s := text.Canonical
	if len(s) > maxScan {
		return nil, ErrTooLarge
	}
	blocks := reFenced.FindAllStringSubmatch(s, -1)
	if len(blocks) == 0 {
		return nil, ErrNoFence
	}
	var firstErr error
	for _, b := range blocks {
		body := strings.TrimSpace(b[3])
		if body == "" {
			continue
		}
		m, err := schema.DecodeObject(body)
		if err == nil {
			return m, nil
		}
		if firstErr == nil {
			firstErr = &DecodeError{Strategy: IDFenced, Region: body, Err: err}
		}
	}
	if firstErr == nil {
		return nil, ErrNoFence
	}
	return nil, firstErr
}
