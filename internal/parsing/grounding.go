package parsing

import (
	"fmt"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/correct"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// grounding measures how much of a corrected payload came from the decoded
// text rather than from declared defaults.
type grounding struct {
	required  int
	defaulted int
	// aggregate is the aggregate field path when it was defaulted
	aggregate string
}

func (e *Engine) grounding(fixed correct.Result) grounding {
	var g grounding
	for _, p := range e.required {
		g.required++
		if fixed.Defaulted(p) {
			g.defaulted++
		}
	}
	if p, ok := e.d.PathOf(schema.RoleAggregate); ok && fixed.Defaulted(p) {
		g.aggregate = p
	}
	return g
}

// share is the fraction of required leaves present in the decoded payload.
func (g grounding) share() float64 {
	if g.required == 0 {
		return 1
	}
	return float64(g.required-g.defaulted) / float64(g.required)
}

// acceptable holds when the aggregate was decoded and at least threshold of
// the required leaves were, with never zero of them.
func (g grounding) acceptable(threshold float64) bool {
	if g.aggregate != "" {
		return false
	}
	if g.required > 0 && g.defaulted == g.required {
		return false
	}
	return g.share() >= threshold
}

func (g grounding) String() string {
	if g.aggregate != "" {
		return fmt.Sprintf("corrected payload rejected: aggregate field %s was filled from its default", g.aggregate)
	}
	return fmt.Sprintf("corrected payload rejected: only %d of %d required fields came from the response",
		g.required-g.defaulted, g.required)
}
