package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/GEOeduHJ/geo-assessment-refactoring/constants"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/metrics"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/repository"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

const defaultCacheSize = 16

// Submission is one model response to grade.
type Submission struct {
	ID          string
	Student     string
	SourcePath  string
	ContentHash string
	Response    string
}

func (s Submission) Validate() error {
	return common.NewValidator().
		Field("submission_id", s.ID, common.Required, common.MaxLength(512)).
		Field("student", s.Student, common.MaxLength(256)).
		AppError(common.CodeInvalidInput)
}

// Outcome pairs the stored run with the full parsing result.
type Outcome struct {
	Run    entity.ParseRun
	Result *parsing.Result
}

// Service grades responses against rubrics. It is safe for concurrent use.
type Service struct {
	cfg     parsing.Config
	labels  schema.Labels
	logger  *slog.Logger
	metrics *metrics.Metrics
	runs    repository.RunRepository

	cacheSize int
	mu        sync.Mutex
	engines   *lru.Cache[string, *parsing.Engine]
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRepository stores every graded run. Without it nothing is persisted.
func WithRepository(r repository.RunRepository) Option {
	return func(s *Service) { s.runs = r }
}

// WithLabels changes the field names used for rubric synthesis.
func WithLabels(l schema.Labels) Option {
	return func(s *Service) { s.labels = l }
}

// WithCacheSize bounds the number of rubric engines kept.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

func NewService(cfg parsing.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, common.NewAppError(common.CodeInvalidConfig, "parsing", err)
	}
	s := &Service{
		cfg:       cfg,
		labels:    schema.DefaultLabels(),
		logger:    slog.Default(),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	engines, err := lru.New[string, *parsing.Engine](s.cacheSize)
	if err != nil {
		return nil, err
	}
	s.engines = engines
	return s, nil
}

// Engine returns the engine for r, building and caching it on first use.
// The second return value is the rubric fingerprint.
func (s *Service) Engine(r schema.Rubric) (*parsing.Engine, string, error) {
	key := r.Fingerprint()
	if e, ok := s.engines.Get(key); ok {
		return e, key, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines.Get(key); ok {
		return e, key, nil
	}
	d, err := schema.FromRubric(r, s.labels)
	if err != nil {
		return nil, key, common.NewAppError(common.CodeInvalidSchema, "rubric "+r.Title, fmt.Errorf("%w: %w", common.ErrInvalidSchema, err))
	}
	e, err := s.NewEngine(d)
	if err != nil {
		return nil, key, err
	}
	s.engines.Add(key, e)
	s.logger.Debug("grading.engine.built", "rubric", key, "fields", len(d.Paths()))
	return e, key, nil
}

// NewEngine builds an uncached engine for an explicit descriptor.
func (s *Service) NewEngine(d *schema.Descriptor) (*parsing.Engine, error) {
	e, err := parsing.New(d, s.cfg, parsing.WithLogger(s.logger))
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidSchema, "build engine", fmt.Errorf("%w: %w", common.ErrInvalidSchema, err))
	}
	return e, nil
}

// CachedEngines reports how many rubric engines are cached.
func (s *Service) CachedEngines() int { return s.engines.Len() }

// Grade parses sub against the rubric's schema.
func (s *Service) Grade(ctx context.Context, r schema.Rubric, sub Submission) (*Outcome, error) {
	e, key, err := s.Engine(r)
	if err != nil {
		return nil, err
	}
	return s.GradeWith(ctx, e, key, sub)
}

// GradeWith parses sub with e. rubricKey is stored with the run.
func (s *Service) GradeWith(ctx context.Context, e *parsing.Engine, rubricKey string, sub Submission) (*Outcome, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	runID := common.RunIDFromContext(ctx)
	if runID == "" {
		runID = common.NewRunID()
		ctx = common.WithRunID(ctx, runID)
	}
	ctx = common.WithSubmissionID(ctx, sub.ID)
	log := common.LoggerFromContext(ctx, s.logger)

	log.Info("grading.run.start", "rubric", rubricKey, "bytes", len(sub.Response))
	end := s.metrics.Start()
	res := e.Parse(ctx, sub.Response)
	end()
	s.metrics.ObserveResult(res)

	for _, a := range res.Attempts() {
		if a.Outcome == parsing.OutcomeAccepted || a.Outcome == parsing.OutcomeCorrected {
			continue
		}
		log.Warn("grading.attempt.failed",
			"strategy", a.Strategy,
			"index", a.Index,
			"outcome", a.Outcome,
			"elapsed", a.Elapsed,
			"error", attemptError(a),
		)
	}

	run, err := ToRun(res, e.Descriptor(), sub, rubricKey)
	if err != nil {
		return nil, err
	}
	if parsed, perr := uuid.Parse(runID); perr == nil {
		run.ID = parsed
	}
	if s.runs != nil {
		if err := s.runs.Save(ctx, &run); err != nil {
			return nil, err
		}
	}

	log.Info("grading.run.done",
		"tier", res.Tier(),
		"source", res.Source(),
		"strategy", res.Strategy(),
		"confidence", res.Confidence(),
		"needs_review", res.NeedsReview(),
		"attempts", len(res.Attempts()),
		"elapsed", res.Elapsed(),
	)
	return &Outcome{Run: run, Result: res}, nil
}

func attemptError(a parsing.Attempt) string {
	if a.Err != "" {
		return a.Err
	}
	issues := a.Residual
	if len(issues) == 0 {
		issues = a.Issues
	}
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.String()
	}
	return strings.Join(parts, "; ")
}

// ToRun flattens a result into its stored form.
func ToRun(res *parsing.Result, d *schema.Descriptor, sub Submission, rubricKey string) (entity.ParseRun, error) {
	payload := res.Payload()
	run := entity.ParseRun{
		SubmissionID: sub.ID,
		Student:      sub.Student,
		SourcePath:   sub.SourcePath,
		ContentHash:  sub.ContentHash,
		Rubric:       rubricKey,
		Tier:         string(res.Tier()),
		Status:       string(constants.RunStatusDone),
		Source:       string(res.Source()),
		NeedsReview:  res.NeedsReview(),
		Confidence:   res.Confidence(),
		Strategy:     string(res.Strategy()),
		Attempts:     len(res.Attempts()),
		ElapsedMS:    res.Elapsed().Milliseconds(),
		RawSample:    res.RawSample(),
	}
	if path, ok := d.PathOf(schema.RoleAggregate); ok {
		if v, ok := lookup(payload, path); ok {
			if f, ok := toFloat(v); ok {
				run.Score = &f
			}
		}
	}

	var err error
	if run.PayloadJSON, err = marshal(payload); err != nil {
		return run, err
	}
	if run.WarningsJSON, err = marshal(res.WarningStrings()); err != nil {
		return run, err
	}
	if run.ErrorsJSON, err = marshal(res.ErrorStrings()); err != nil {
		return run, err
	}
	if run.AttemptsJSON, err = marshal(res.Attempts()); err != nil {
		return run, err
	}
	return run, nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	return string(b), nil
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
