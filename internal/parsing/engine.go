package parsing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/GEOeduHJ/geo-assessment-refactoring/constants"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/correct"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/extract"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/recovery"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

var ErrNilDescriptor = errors.New("parsing: nil schema descriptor")

// Engine runs the parsing pipeline against one schema. It holds no per-run
// state and is safe for concurrent use.
type Engine struct {
	d          *schema.Descriptor
	cfg        Config
	strategies []extract.Strategy
	recovery   *recovery.Engine
	required   []string
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Engine)

// WithStrategies replaces the default ordered strategy set.
func WithStrategies(s ...extract.Strategy) Option {
	return func(e *Engine) { e.strategies = s }
}

// WithLogger sets the logger used for per-run debug events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for budget checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(d *schema.Descriptor, cfg Config, opts ...Option) (*Engine, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		d:      d,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.strategies) == 0 {
		e.strategies = extract.Defaults(expectedKeys(d))
	}
	e.required = d.RequiredLeaves()
	if len(e.required) == 0 {
		e.required = d.Leaves()
	}
	e.recovery = recovery.New(d, recovery.Options{
		Threshold:    cfg.ConfidenceThreshold,
		MaxScanBytes: recovery.DefaultMaxScanBytes,
	})
	return e, nil
}

func expectedKeys(d *schema.Descriptor) []string {
	var keys []string
	for _, f := range d.Fields() {
		keys = append(keys, f.Name)
		keys = append(keys, f.Aliases...)
	}
	return keys
}

func (e *Engine) Descriptor() *schema.Descriptor { return e.d }
func (e *Engine) Config() Config                 { return e.cfg }

// Strategies lists the engine's strategy IDs in order.
func (e *Engine) Strategies() []extract.ID {
	ids := make([]extract.ID, len(e.strategies))
	for i, s := range e.strategies {
		ids[i] = s.ID()
	}
	return ids
}

// Parse turns one raw response into a Result. It never fails: when nothing
// can be extracted the result is FAILED and carries the schema's minimal
// default record. Cancelling ctx ends the run at the next state transition.
func (e *Engine) Parse(ctx context.Context, raw string) *Result {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{e: e, ctx: ctx, start: e.now(), raw: raw, state: StateStart}
	r.trace = append(r.trace, StateStart)
	for !IsTerminal(r.state) {
		switch r.state {
		case StateStart:
			r.moveTo(StateNormalizing)
		case StateNormalizing:
			r.normalize()
		case StateTrying:
			r.try()
		case StateValidating:
			r.validate()
		case StateCorrecting:
			r.correct()
		case StateRecovering:
			r.recover()
		}
	}
	return r.result()
}

type planned struct {
	index int
	st    extract.Strategy
}

// run is the mutable state of one Parse call.
type run struct {
	e     *Engine
	ctx   context.Context
	start time.Time
	raw   string

	state     State
	trace     []State
	cancelled bool

	text    normalize.Text
	shape   extract.Shape
	plan    []planned
	skipped []extract.ID
	pos     int

	pending  *Attempt
	current  map[string]any
	attempts []Attempt
	errs     []Diagnostic
	warns    []Diagnostic

	tier        Tier
	source      Source
	payload     map[string]any
	strategy    extract.ID
	confidence  float64
	corrections []correct.Change
	recovered   []string
	defaulted   bool
}

func (r *run) moveTo(next State) {
	if next != StateRecovering && next != StateDone && !r.cancelled && r.ctx.Err() != nil {
		r.cancelled = true
		r.warn(Diagnostic{Stage: StageEngine, Code: "cancelled", Message: "run cancelled: " + context.Cause(r.ctx).Error()})
		r.commit(OutcomeInterrupted)
		next = StateRecovering
	}
	if !isAllowedTransition(r.state, next) {
		panic(fmt.Sprintf("parsing: transition %s -> %s not allowed", r.state, next))
	}
	r.e.logger.Debug("parsing.transition", "from", r.state, "to", next)
	r.state = next
	r.trace = append(r.trace, next)
}

func (r *run) fail(d Diagnostic) { r.errs = append(r.errs, d) }
func (r *run) warn(d Diagnostic) { r.warns = append(r.warns, d) }

func (r *run) elapsed() time.Duration { return r.e.now().Sub(r.start) }

func (r *run) normalize() {
	raw := r.raw
	if limit := r.e.cfg.MaxInputBytes; len(raw) > limit {
		raw = truncateBytes(raw, limit)
		r.warn(Diagnostic{
			Stage:   StageNormalize,
			Code:    "truncated",
			Message: fmt.Sprintf("input of %d bytes truncated to %d", len(r.raw), len(raw)),
		})
	}
	r.text = normalize.Normalize(raw)
	r.shape = extract.Classify(r.text)

	runnable, skipped := extract.Plan(r.shape, r.e.strategies)
	r.skipped = skipped
	j := 0
	for i, st := range r.e.strategies {
		if j < len(runnable) && runnable[j].ID() == st.ID() {
			r.plan = append(r.plan, planned{index: i, st: runnable[j]})
			j++
		}
	}
	for _, id := range skipped {
		r.warn(Diagnostic{Stage: StageExtract, Strategy: id, Code: "skipped", Message: "strategy not applicable to " + string(r.shape.Format) + " input"})
	}
	r.next()
}

// next moves to the next planned strategy or, when none may run, to recovery.
func (r *run) next() {
	switch {
	case r.pos >= len(r.plan):
		r.moveTo(StateRecovering)
	case len(r.attempts) >= r.e.cfg.MaxAttempts:
		r.warn(Diagnostic{
			Stage:   StageEngine,
			Code:    "attempt_ceiling",
			Message: fmt.Sprintf("attempt ceiling of %d reached with %d strategies untried", r.e.cfg.MaxAttempts, len(r.plan)-r.pos),
		})
		r.moveTo(StateRecovering)
	case r.elapsed() >= r.e.cfg.Budget:
		r.warn(Diagnostic{
			Stage:   StageEngine,
			Code:    "budget_exceeded",
			Message: fmt.Sprintf("budget of %s exhausted after %d attempts", r.e.cfg.Budget, len(r.attempts)),
		})
		r.moveTo(StateRecovering)
	default:
		r.moveTo(StateTrying)
	}
}

func (r *run) try() {
	p := r.plan[r.pos]
	r.pos++

	began := r.e.now()
	payload, err := invoke(p.st, r.text)
	att := &Attempt{Index: p.index, Strategy: p.st.ID(), Elapsed: r.e.now().Sub(began)}
	r.pending = att
	if err != nil {
		att.Err = err.Error()
		r.fail(Diagnostic{Stage: StageExtract, Strategy: att.Strategy, Code: "decode_failed", Message: err.Error()})
		r.commit(OutcomeDecodeFailed)
		r.next()
		return
	}
	att.Success = true
	att.Payload = schema.CloneRecord(payload)
	r.current = payload
	r.moveTo(StateValidating)
}

// invoke shields the run from a misbehaving strategy.
func invoke(st extract.Strategy, text normalize.Text) (payload map[string]any, err error) {
	defer func() {
		if v := recover(); v != nil {
			payload, err = nil, fmt.Errorf("strategy %s panicked: %v", st.ID(), v)
		}
	}()
	payload, err = st.Attempt(text)
	if err == nil && payload == nil {
		err = errors.New("strategy returned no payload")
	}
	return payload, err
}

// commit appends the pending attempt. Attempts are never changed after this.
func (r *run) commit(o Outcome) {
	if r.pending == nil {
		return
	}
	r.pending.Outcome = o
	r.attempts = append(r.attempts, *r.pending)
	r.pending = nil
}

func (r *run) validate() {
	out := r.e.d.Validate(r.current)
	id := r.pending.Strategy
	r.pending.Issues = out.Errors
	if out.Valid {
		r.warnIssues(StageValidate, id, out.Warnings)
		r.commit(OutcomeAccepted)
		r.finish(TierFull, SourceStrategy, r.current, id, 1)
		r.moveTo(StateDone)
		return
	}
	r.failIssues(StageValidate, id, out.Errors)
	r.moveTo(StateCorrecting)
}

func (r *run) correct() {
	cfg := r.e.cfg
	id := r.pending.Strategy
	fixed := correct.Apply(r.current, r.pending.Issues, r.e.d, correct.Options{
		FieldMapping:    cfg.FieldMapping,
		TypeCoercion:    cfg.TypeCoercion,
		MaxEditDistance: cfg.MaxEditDistance,
	})
	out := r.e.d.Validate(fixed.Payload)
	r.pending.Corrections = fixed.Changes
	r.pending.Residual = out.Errors

	if out.Valid {
		// a record made mostly of defaults is residue, not an answer
		g := r.e.grounding(fixed)
		if !g.acceptable(cfg.ConfidenceThreshold) {
			r.fail(Diagnostic{Stage: StageCorrect, Strategy: id, Code: "correction_residue", Message: g.String()})
			r.commit(OutcomeRejected)
			r.current = nil
			r.next()
			return
		}
		r.defaulted = g.defaulted > 0
	}
	if out.Valid && cfg.AcceptPartial {
		for _, c := range fixed.Changes {
			r.warn(Diagnostic{Stage: StageCorrect, Strategy: id, Path: c.Path, Code: string(c.Kind), Message: c.Detail})
		}
		r.warnIssues(StageValidate, id, out.Warnings)
		r.commit(OutcomeCorrected)
		r.corrections = fixed.Changes
		r.finish(TierPartial, SourceCorrected, fixed.Payload, id, correctedConfidence(len(fixed.Changes)))
		r.moveTo(StateDone)
		return
	}
	if out.Valid {
		r.fail(Diagnostic{Stage: StageCorrect, Strategy: id, Code: "partial_disabled", Message: "corrected payload discarded because partial results are disabled"})
	} else {
		r.failIssues(StageCorrect, id, out.Errors)
	}
	r.commit(OutcomeRejected)
	r.current = nil
	r.next()
}

// correctedConfidence drops by a tenth per change, never below one half.
func correctedConfidence(changes int) float64 {
	return max(0.5, 1-0.1*float64(changes))
}

func (r *run) recover() {
	cfg := r.e.cfg
	if !cfg.EnableRecovery {
		r.warn(Diagnostic{Stage: StageRecover, Code: "disabled", Message: "field-pattern recovery disabled"})
		r.fallback()
		return
	}
	rec := r.e.recovery.Recover(r.text.Canonical)
	r.recovered = rec.Recovered
	if !rec.Accepted {
		msg := "no labeled fields found in response"
		if len(rec.Recovered) > 0 {
			msg = fmt.Sprintf("recovery confidence %.2f below threshold %.2f", rec.Confidence, cfg.ConfidenceThreshold)
		}
		r.fail(Diagnostic{Stage: StageRecover, Code: "below_threshold", Message: msg})
		r.fallback()
		return
	}
	out := r.e.d.Validate(rec.Payload)
	switch {
	case !out.Valid:
		r.failIssues(StageRecover, "", out.Errors)
	case !cfg.AcceptPartial:
		r.fail(Diagnostic{Stage: StageRecover, Code: "partial_disabled", Message: "recovered payload discarded because partial results are disabled"})
	default:
		r.warn(Diagnostic{
			Stage:   StageRecover,
			Code:    "recovered",
			Message: fmt.Sprintf("recovered %d fields from unstructured text with confidence %.2f", len(rec.Recovered), rec.Confidence),
		})
		for _, p := range rec.Defaulted {
			r.warn(Diagnostic{Stage: StageRecover, Path: p, Code: string(correct.ChangeDefault), Message: "filled with default"})
		}
		r.finish(TierPartial, SourceRecovered, rec.Payload, "", rec.Confidence)
		r.moveTo(StateDone)
		return
	}
	r.fallback()
}

func (r *run) fallback() {
	r.fail(Diagnostic{Stage: StageEngine, Code: "failed", Message: "no usable record extracted; returning default record"})
	r.finish(TierFailed, SourceDefault, r.e.recovery.Default(), "", 0)
	r.moveTo(StateDone)
}

func (r *run) finish(t Tier, s Source, payload map[string]any, id extract.ID, confidence float64) {
	r.tier = t
	r.source = s
	r.payload = schema.CloneRecord(payload)
	r.strategy = id
	r.confidence = confidence
}

func (r *run) failIssues(stage Stage, id extract.ID, issues []schema.Issue) {
	for _, is := range issues {
		r.fail(Diagnostic{Stage: stage, Strategy: id, Path: is.Path, Code: string(is.Code), Message: is.Message})
	}
}

func (r *run) warnIssues(stage Stage, id extract.ID, issues []schema.Issue) {
	for _, is := range issues {
		r.warn(Diagnostic{Stage: stage, Strategy: id, Path: is.Path, Code: string(is.Code), Message: is.Message})
	}
}

func (r *run) result() *Result {
	res := &Result{
		tier:        r.tier,
		source:      r.source,
		payload:     r.payload,
		strategy:    r.strategy,
		confidence:  r.confidence,
		attempts:    r.attempts,
		errors:      r.errs,
		warnings:    r.warns,
		elapsed:     r.elapsed(),
		shape:       r.shape,
		skipped:     r.skipped,
		trace:       r.trace,
		corrections: r.corrections,
		recovered:   r.recovered,
		defaulted:   r.source == SourceCorrected && r.defaulted,
	}
	switch r.tier {
	case TierPartial:
		res.rawSample = sample(r.raw, constants.PartialSampleRunes)
	case TierFailed:
		res.rawSample = sample(r.raw, constants.FailedSampleRunes)
	}
	return res
}

func sample(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func truncateBytes(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
