package parsing

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/correct"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/extract"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// Tier is the quality of a result.
type Tier string

const (
	TierFull    Tier = "FULL"
	TierPartial Tier = "PARTIAL"
	TierFailed  Tier = "FAILED"
)

// Source names where the final payload came from.
type Source string

const (
	SourceStrategy  Source = "strategy"
	SourceCorrected Source = "corrected"
	SourceRecovered Source = "recovered"
	SourceDefault   Source = "default"
)

// Stage names the pipeline step that produced a diagnostic.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageExtract   Stage = "extract"
	StageValidate  Stage = "validate"
	StageCorrect   Stage = "correct"
	StageRecover   Stage = "recover"
	StageEngine    Stage = "engine"
)

// Diagnostic is one error or warning collected during a run.
type Diagnostic struct {
	Stage    Stage      `json:"stage"`
	Strategy extract.ID `json:"strategy,omitempty"`
	Path     string     `json:"path,omitempty"`
	Code     string     `json:"code,omitempty"`
	Message  string     `json:"message"`
}

func (d Diagnostic) String() string {
	prefix := string(d.Stage)
	if d.Strategy != "" {
		prefix += "/" + string(d.Strategy)
	}
	if d.Path != "" {
		return fmt.Sprintf("%s: %s: %s", prefix, d.Path, d.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, d.Message)
}

// Outcome is what happened to a decoded attempt.
type Outcome string

const (
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeAccepted     Outcome = "accepted"
	OutcomeCorrected    Outcome = "corrected"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInterrupted  Outcome = "interrupted"
)

// Attempt records one strategy invocation. Index is the strategy's position
// in the engine's strategy list.
type Attempt struct {
	Index    int            `json:"index"`
	Strategy extract.ID     `json:"strategy"`
	Success  bool           `json:"success"`
	Outcome  Outcome        `json:"outcome"`
	Elapsed  time.Duration  `json:"elapsed"`
	Err      string         `json:"error,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	// Issues are the validation errors of the decoded payload, Residual the
	// ones left after correction.
	Issues      []schema.Issue   `json:"issues,omitempty"`
	Residual    []schema.Issue   `json:"residual,omitempty"`
	Corrections []correct.Change `json:"corrections,omitempty"`
}

func (a Attempt) clone() Attempt {
	a.Payload = schema.CloneRecord(a.Payload)
	a.Issues = slices.Clone(a.Issues)
	a.Residual = slices.Clone(a.Residual)
	a.Corrections = slices.Clone(a.Corrections)
	return a
}

// Stats summarizes a result for logging and metrics.
type Stats struct {
	Attempts       int                        `json:"attempts"`
	FailedAttempts int                        `json:"failed_attempts"`
	Skipped        int                        `json:"skipped"`
	Corrections    map[correct.ChangeKind]int `json:"corrections,omitempty"`
	Recovered      int                        `json:"recovered"`
	Confidence     float64                    `json:"confidence"`
	Errors         int                        `json:"errors"`
	Warnings       int                        `json:"warnings"`
}

// Result is the immutable outcome of Engine.Parse. Accessors return copies.
type Result struct {
	tier        Tier
	source      Source
	payload     map[string]any
	strategy    extract.ID
	confidence  float64
	attempts    []Attempt
	errors      []Diagnostic
	warnings    []Diagnostic
	elapsed     time.Duration
	shape       extract.Shape
	skipped     []extract.ID
	trace       []State
	rawSample   string
	corrections []correct.Change
	recovered   []string
	defaulted   bool
}

func (r *Result) Tier() Tier { return r.tier }

// Source reports which stage produced the payload.
func (r *Result) Source() Source { return r.source }

// Payload returns a deep copy of the final record. It is never nil.
func (r *Result) Payload() map[string]any { return schema.CloneRecord(r.payload) }

// Strategy is the strategy whose output became the payload, if any.
func (r *Result) Strategy() extract.ID { return r.strategy }

// Confidence is 1 for FULL and 0 for FAILED results.
func (r *Result) Confidence() float64 { return r.confidence }

func (r *Result) Attempts() []Attempt {
	out := make([]Attempt, len(r.attempts))
	for i, a := range r.attempts {
		out[i] = a.clone()
	}
	return out
}

func (r *Result) Errors() []Diagnostic          { return slices.Clone(r.errors) }
func (r *Result) Warnings() []Diagnostic        { return slices.Clone(r.warnings) }
func (r *Result) Elapsed() time.Duration        { return r.elapsed }
func (r *Result) Shape() extract.Shape          { return r.shape }
func (r *Result) Skipped() []extract.ID         { return slices.Clone(r.skipped) }
func (r *Result) Trace() []State                { return slices.Clone(r.trace) }
func (r *Result) Corrections() []correct.Change { return slices.Clone(r.corrections) }

// RawSample is a prefix of the raw response kept for non-FULL results.
func (r *Result) RawSample() string { return r.rawSample }

// NeedsReview reports whether a person should look at the record: FAILED
// results, recovered payloads, and corrected payloads with required fields
// filled from defaults.
func (r *Result) NeedsReview() bool {
	return r.tier == TierFailed || r.source == SourceRecovered || r.defaulted
}

func (r *Result) Stats() Stats {
	s := Stats{
		Attempts:   len(r.attempts),
		Skipped:    len(r.skipped),
		Recovered:  len(r.recovered),
		Confidence: r.confidence,
		Errors:     len(r.errors),
		Warnings:   len(r.warnings),
	}
	for _, a := range r.attempts {
		if !a.Success {
			s.FailedAttempts++
		}
	}
	for _, c := range r.corrections {
		if s.Corrections == nil {
			s.Corrections = map[correct.ChangeKind]int{}
		}
		s.Corrections[c.Kind]++
	}
	return s
}

// ErrorStrings flattens Errors for storage and display.
func (r *Result) ErrorStrings() []string { return diagStrings(r.errors) }

// WarningStrings flattens Warnings for storage and display.
func (r *Result) WarningStrings() []string { return diagStrings(r.warnings) }

func diagStrings(ds []Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

type resultView struct {
	Tier        Tier             `json:"tier"`
	Source      Source           `json:"source"`
	Strategy    extract.ID       `json:"strategy,omitempty"`
	Confidence  float64          `json:"confidence"`
	NeedsReview bool             `json:"needs_review"`
	Payload     map[string]any   `json:"payload"`
	Attempts    []Attempt        `json:"attempts"`
	Errors      []Diagnostic     `json:"errors"`
	Warnings    []Diagnostic     `json:"warnings"`
	Corrections []correct.Change `json:"corrections,omitempty"`
	Shape       extract.Shape    `json:"shape"`
	Skipped     []extract.ID     `json:"skipped,omitempty"`
	Trace       []State          `json:"trace"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	RawSample   string           `json:"raw_sample,omitempty"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultView{
		Tier:        r.tier,
		Source:      r.source,
		Strategy:    r.strategy,
		Confidence:  r.confidence,
		NeedsReview: r.NeedsReview(),
		Payload:     r.payload,
		Attempts:    nonNil(r.attempts),
		Errors:      nonNil(r.errors),
		Warnings:    nonNil(r.warnings),
		Corrections: r.corrections,
		Shape:       r.shape,
		Skipped:     r.skipped,
		Trace:       r.trace,
		ElapsedMS:   r.elapsed.Milliseconds(),
		RawSample:   r.rawSample,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
