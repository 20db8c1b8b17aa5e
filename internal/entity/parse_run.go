package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParseRun is one graded submission as stored in parse_run.
// JSON columns are kept as text so both sqlite and postgres accept them.
type ParseRun struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	Student      string    `db:"student" json:"student,omitempty"`
	SourcePath   string    `db:"source_path" json:"source_path,omitempty"`
	ContentHash  string    `db:"content_hash" json:"content_hash"`
	Rubric       string    `db:"rubric" json:"rubric"`
	Tier         string    `db:"tier" json:"tier"`
	Status       string    `db:"status" json:"status"`
	Source       string    `db:"source" json:"source"`
	NeedsReview  bool      `db:"needs_review" json:"needs_review"`
	Confidence   float64   `db:"confidence" json:"confidence"`
	Strategy     string    `db:"strategy" json:"strategy,omitempty"`
	Attempts     int       `db:"attempts" json:"attempts"`
	ElapsedMS    int64     `db:"elapsed_ms" json:"elapsed_ms"`
	Score        *float64  `db:"score" json:"score,omitempty"`
	PayloadJSON  string    `db:"payload" json:"-"`
	WarningsJSON string    `db:"warnings" json:"-"`
	ErrorsJSON   string    `db:"errors" json:"-"`
	AttemptsJSON string    `db:"attempt_log" json:"-"`
	RawSample    string    `db:"raw_sample" json:"raw_sample,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Payload decodes the stored record.
func (r *ParseRun) Payload() (map[string]any, error) {
	var m map[string]any
	if r.PayloadJSON == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(r.PayloadJSON), &m)
	return m, err
}

// Warnings decodes the stored warning messages.
func (r *ParseRun) Warnings() ([]string, error) { return decodeStrings(r.WarningsJSON) }

// Errors decodes the stored error messages.
func (r *ParseRun) Errors() ([]string, error) { return decodeStrings(r.ErrorsJSON) }

func decodeStrings(s string) ([]string, error) {
	var out []string
	if s == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(s), &out)
	return out, err
}

// RunFilter narrows List queries. Zero values do not filter.
type RunFilter struct {
	Tier        string
	NeedsReview *bool
	Rubric      string
	// From and To bound created_at, both inclusive.
	From, To *time.Time
	Limit    int
	Offset   int
}
