package extract

import (
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
)

// Format is the coarse shape of a response.
type Format string

const (
	FormatJSON     Format = "json"
	FormatFenced   Format = "fenced"
	FormatEmbedded Format = "embedded"
	FormatText     Format = "text"
)

// Shape describes a normalized response without decoding it.
type Shape struct {
	Format    Format `json:"format"`
	HasFences bool   `json:"has_fences"`
	FenceLang string `json:"fence_lang,omitempty"`
	Openers   int    `json:"openers"`
	Closers   int    `json:"closers"`
	Regions   int    `json:"regions"`
}

// Classify inspects text. It is pure and cheap relative to any strategy.
func Classify(text normalize.Text) Shape {
	s := text.Canonical
	if len(s) > maxScan {
		s = s[:maxScan]
	}
	sh := Shape{
		Openers: strings.Count(s, "{") + strings.Count(s, "["),
		Closers: strings.Count(s, "}") + strings.Count(s, "]"),
	}
	if m := reFenced.FindStringSubmatch(s); m != nil {
		sh.HasFences = true
		sh.FenceLang = strings.ToLower(m[2])
	}
	found, _ := regions(s)
	sh.Regions = len(found)

	trimmed := strings.TrimSpace(s)
	switch {
	case sh.HasFences:
		sh.Format = FormatFenced
	case len(found) == 1 && found[0].start == 0 && found[0].end == len(trimmed):
		sh.Format = FormatJSON
	case sh.Openers > 0:
		sh.Format = FormatEmbedded
	default:
		sh.Format = FormatText
	}
	return sh
}

// Plan keeps the order of strategies and drops the ones that declare
// themselves inapplicable to s. Ordering is never changed.
func Plan(s Shape, strategies []Strategy) (run []Strategy, skipped []ID) {
	for _, st := range strategies {
		if c, ok := st.(Conditional); ok && !c.Applicable(s) {
			skipped = append(skipped, st.ID())
			continue
		}
		run = append(run, st)
	}
	return run, skipped
}
