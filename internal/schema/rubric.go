package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Rubric is an externally supplied description of scoring criteria.
type Rubric struct {
	Title    string      `yaml:"title" json:"title"`
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

// Criterion is a main scoring criterion with optional sub-criteria.
type Criterion struct {
	Name        string         `yaml:"name" json:"name"`
	MaxScore    int            `yaml:"max_score" json:"max_score"`
	SubCriteria []SubCriterion `yaml:"sub_criteria,omitempty" json:"sub_criteria,omitempty"`
}

// SubCriterion is one scored item under a criterion.
type SubCriterion struct {
	Name     string `yaml:"name" json:"name"`
	MaxScore int    `yaml:"max_score" json:"max_score"`
}

// Validate checks that the rubric can be turned into a descriptor.
func (r Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("%w: rubric has no criteria", ErrInvalidSchema)
	}
	for i, c := range r.Criteria {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: criterion %d has no name", ErrInvalidSchema, i+1)
		}
		if c.MaxScore < 0 {
			return fmt.Errorf("%w: criterion %q has a negative max score", ErrInvalidSchema, c.Name)
		}
		for j, s := range c.SubCriteria {
			if strings.TrimSpace(s.Name) == "" {
				return fmt.Errorf("%w: sub-criterion %d.%d has no name", ErrInvalidSchema, i+1, j+1)
			}
			if s.MaxScore < 0 {
				return fmt.Errorf("%w: sub-criterion %q has a negative max score", ErrInvalidSchema, s.Name)
			}
		}
	}
	return nil
}

// Fingerprint identifies the rubric content.
func (r Rubric) Fingerprint() string {
	b, _ := json.Marshal(r)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Labels names every key of a synthesized descriptor. Criterion and
// SubCriterion are fmt patterns taking one and two 1-based indexes.
type Labels struct {
	Scores       string `yaml:"scores" json:"scores"`
	Criterion    string `yaml:"criterion" json:"criterion"`
	SubCriterion string `yaml:"sub_criterion" json:"sub_criterion"`
	Total        string `yaml:"total" json:"total"`
	Rationale    string `yaml:"rationale" json:"rationale"`
	Feedback     string `yaml:"feedback" json:"feedback"`
	Content      string `yaml:"content" json:"content"`
	Bluffing     string `yaml:"bluffing" json:"bluffing"`
	BluffingNote string `yaml:"bluffing_note" json:"bluffing_note"`
	NeedsReview  string `yaml:"needs_review" json:"needs_review"`

	TotalAliases    []string `yaml:"total_aliases" json:"total_aliases"`
	ContentAliases  []string `yaml:"content_aliases" json:"content_aliases"`
	FeedbackAliases []string `yaml:"feedback_aliases" json:"feedback_aliases"`

	// values of the minimal record used when grading fails
	FailedRationale string `yaml:"failed_rationale" json:"failed_rationale"`
	FailedFeedback  string `yaml:"failed_feedback" json:"failed_feedback"`
}

// DefaultLabels returns English keys. The aliases also cover the labels
// generators commonly emit for Korean-language rubrics.
func DefaultLabels() Labels {
	return Labels{
		Scores:          "scores",
		Criterion:       "criterion_%d_score",
		SubCriterion:    "criterion_%d_%d_score",
		Total:           "total_score",
		Rationale:       "rationale",
		Feedback:        "feedback",
		Content:         "content",
		Bluffing:        "bluffing",
		BluffingNote:    "bluffing_explanation",
		NeedsReview:     "needs_review",
		TotalAliases:    []string{"total", "score", "aggregate_score", "합산_점수", "총점"},
		ContentAliases:  []string{"feedback", "comment", "교과_내용_피드백", "피드백"},
		FeedbackAliases: []string{"feedback_block", "피드백"},
		FailedRationale: "automatic grading failed; no rationale could be recovered",
		FailedFeedback:  "Grading could not be completed automatically. Flagged for manual review.",
	}
}

func (l Labels) withDefaults() Labels {
	d := DefaultLabels()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&l.Scores, d.Scores)
	fill(&l.Criterion, d.Criterion)
	fill(&l.SubCriterion, d.SubCriterion)
	fill(&l.Total, d.Total)
	fill(&l.Rationale, d.Rationale)
	fill(&l.Feedback, d.Feedback)
	fill(&l.Content, d.Content)
	fill(&l.Bluffing, d.Bluffing)
	fill(&l.BluffingNote, d.BluffingNote)
	fill(&l.NeedsReview, d.NeedsReview)
	fill(&l.FailedRationale, d.FailedRationale)
	fill(&l.FailedFeedback, d.FailedFeedback)
	// an explicitly empty list disables aliases; nil means unset
	if l.TotalAliases == nil {
		l.TotalAliases = d.TotalAliases
	}
	if l.ContentAliases == nil {
		l.ContentAliases = d.ContentAliases
	}
	if l.FeedbackAliases == nil {
		l.FeedbackAliases = d.FeedbackAliases
	}
	return l
}

// FromRubric synthesizes a descriptor with one optional score field per
// criterion and sub-criterion, a required aggregate and a required feedback
// block. Any subset of the generated score fields validates.
func FromRubric(r Rubric, labels Labels) (*Descriptor, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	l := labels.withDefaults()
	zero := 0.0

	var scores []Field
	total := 0
	for i, c := range r.Criteria {
		scores = append(scores, Field{
			Name:        fmt.Sprintf(l.Criterion, i+1),
			Kind:        KindInteger,
			Description: c.Name,
			Minimum:     &zero,
			Maximum:     maxOf(c.MaxScore),
		})
		total += c.MaxScore
		for j, s := range c.SubCriteria {
			scores = append(scores, Field{
				Name:        fmt.Sprintf(l.SubCriterion, i+1, j+1),
				Kind:        KindInteger,
				Description: s.Name,
				Minimum:     &zero,
				Maximum:     maxOf(s.MaxScore),
			})
		}
	}
	scores = append(scores, Field{
		Name:     l.Total,
		Kind:     KindInteger,
		Required: true,
		Default:  0,
		Aliases:  l.TotalAliases,
		Role:     RoleAggregate,
		Minimum:  &zero,
		Maximum:  maxOf(total),
	})

	return New(
		Field{
			Name:     l.Scores,
			Kind:     KindObject,
			Required: true,
			Fields:   scores,
		},
		Field{
			Name:    l.Rationale,
			Kind:    KindObject,
			Role:    RoleRationale,
			Default: map[string]any{"status": l.FailedRationale},
		},
		Field{
			Name:     l.Feedback,
			Kind:     KindObject,
			Required: true,
			Aliases:  l.FeedbackAliases,
			Fields: []Field{
				{Name: l.Content, Kind: KindString, Required: true, MinLength: 1, Role: RoleFeedback, Aliases: l.ContentAliases, Default: l.FailedFeedback},
				{Name: l.Bluffing, Kind: KindBoolean, Required: true, Default: false},
				{Name: l.BluffingNote, Kind: KindString, Default: ""},
				{Name: l.NeedsReview, Kind: KindBoolean, Role: RoleReviewFlag, Default: true},
			},
		},
	)
}

func maxOf(n int) *float64 {
	if n <= 0 {
		return nil
	}
	f := float64(n)
	return &f
}
