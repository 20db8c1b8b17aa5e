package grading

import (
	"time"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
)

// Summary aggregates a batch of runs.
type Summary struct {
	Total       int            `json:"total"`
	ByTier      map[string]int `json:"by_tier"`
	NeedsReview int            `json:"needs_review"`
	// AverageScore covers FULL and PARTIAL runs with an aggregate score.
	AverageScore   float64       `json:"average_score"`
	Scored         int           `json:"scored"`
	TotalElapsed   time.Duration `json:"total_elapsed"`
	AverageElapsed time.Duration `json:"average_elapsed"`
}

// SuccessRate is the share of runs that did not fail.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Total-s.ByTier[string(parsing.TierFailed)]) / float64(s.Total)
}

func Summarize(runs []entity.ParseRun) Summary {
	s := Summary{Total: len(runs), ByTier: map[string]int{}}
	var scoreSum float64
	for _, r := range runs {
		s.ByTier[r.Tier]++
		if r.NeedsReview {
			s.NeedsReview++
		}
		s.TotalElapsed += time.Duration(r.ElapsedMS) * time.Millisecond
		if r.Score != nil && r.Tier != string(parsing.TierFailed) {
			scoreSum += *r.Score
			s.Scored++
		}
	}
	if s.Scored > 0 {
		s.AverageScore = scoreSum / float64(s.Scored)
	}
	if s.Total > 0 {
		s.AverageElapsed = s.TotalElapsed / time.Duration(s.Total)
	}
	return s
}
