package grading

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/ingest"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/metrics"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/repository"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

func climateRubric() schema.Rubric {
	return schema.Rubric{
		Title: "climate regions",
		Criteria: []schema.Criterion{
			{Name: "knowledge", MaxScore: 5},
			{Name: "reasoning", MaxScore: 5},
		},
	}
}

const fullResponse = "```json\n" + `{
  "scores": {"criterion_1_score": 4, "criterion_2_score": 3, "total_score": 7},
  "rationale": {"knowledge": "names both climates"},
  "feedback": {"content": "Good comparison.", "bluffing": false}
}` + "\n```"

func newService(t *testing.T, opts ...Option) (*Service, repository.RunRepository) {
	t.Helper()
	db, err := repository.Open(context.Background(), common.StoreConfig{Driver: repository.DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewRunRepository(db, nil)

	opts = append([]Option{WithRepository(repo), WithMetrics(metrics.MustNewMetrics(prometheus.NewRegistry()))}, opts...)
	svc, err := NewService(parsing.DefaultConfig(), opts...)
	require.NoError(t, err)
	return svc, repo
}

func TestService_GradeStoresRun(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	out, err := svc.Grade(ctx, climateRubric(), Submission{ID: "kim/q1", Student: "kim", Response: fullResponse})
	require.NoError(t, err)
	assert.Equal(t, parsing.TierFull, out.Result.Tier())
	require.NotNil(t, out.Run.Score)
	assert.Equal(t, 7.0, *out.Run.Score)

	stored, err := repo.Get(ctx, out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "FULL", stored.Tier)
	assert.Equal(t, "kim", stored.Student)
	assert.False(t, stored.NeedsReview)
	payload, err := stored.Payload()
	require.NoError(t, err)
	assert.Contains(t, payload, "feedback")
}

func TestService_GradeFailedResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, _ := newService(t, WithLogger(logger))

	out, err := svc.Grade(context.Background(), climateRubric(), Submission{ID: "lee/q1", Response: "I could not grade this answer."})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", out.Run.Tier)
	assert.True(t, out.Run.NeedsReview)
	require.NotNil(t, out.Run.Score)
	assert.Zero(t, *out.Run.Score)
	assert.Equal(t, "I could not grade this answer.", out.Run.RawSample)

	logs := buf.String()
	assert.Contains(t, logs, `"msg":"grading.attempt.failed"`)
	assert.Contains(t, logs, `"msg":"grading.run.done"`)
	assert.Contains(t, logs, `"submission_id":"lee/q1"`)
}

func TestService_EngineCache(t *testing.T) {
	svc, _ := newService(t, WithCacheSize(1))

	a, keyA, err := svc.Engine(climateRubric())
	require.NoError(t, err)
	b, keyB, err := svc.Engine(climateRubric())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, keyA, keyB)

	other := climateRubric()
	other.Criteria[0].MaxScore = 6
	c, keyC, err := svc.Engine(other)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.NotEqual(t, keyA, keyC)
	assert.Equal(t, 1, svc.CachedEngines())
}

func TestService_RejectsBadInput(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Grade(context.Background(), climateRubric(), Submission{Response: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Grade(context.Background(), schema.Rubric{Title: "empty"}, Submission{ID: "a"})
	assert.ErrorIs(t, err, common.ErrInvalidSchema)

	bad := parsing.DefaultConfig()
	bad.MaxAttempts = 0
	_, err = NewService(bad)
	assert.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))
}

func TestService_GradeBatch(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	e, key, err := svc.Engine(climateRubric())
	require.NoError(t, err)

	subs := []ingest.Submission{
		{ID: "a", Response: fullResponse, HashHex: "h1"},
		{ID: "b", Response: `{"scores": {"total_score": "6"}, "feedback": {"content": "ok", "bluffing": false}}`, HashHex: "h2"},
		{ID: "c", Response: "no structure", HashHex: "h3"},
		{ID: "d", Response: fullResponse, HashHex: "h1", Duplicate: true},
		{ID: "e", Path: "e.txt", Err: "permission denied"},
	}
	report, err := svc.GradeBatch(ctx, e, key, subs, BatchOptions{Workers: 2, JobTimeout: time.Minute})
	require.NoError(t, err)

	require.Len(t, report.Runs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{report.Runs[0].SubmissionID, report.Runs[1].SubmissionID, report.Runs[2].SubmissionID})
	assert.Equal(t, map[string]int{"FULL": 1, "PARTIAL": 1, "FAILED": 1}, report.Summary.ByTier)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "d", report.Skipped[0].SubmissionID)
	require.Len(t, report.Failed, 1)

	again, err := svc.GradeBatch(ctx, e, key, subs[:3], BatchOptions{Workers: 1})
	require.NoError(t, err)
	assert.Empty(t, again.Runs)
	assert.Len(t, again.Skipped, 3)

	counts, err := repo.CountByTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["FULL"]+counts["PARTIAL"]+counts["FAILED"])
}

func TestSummarize(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	runs := []entity.ParseRun{
		{Tier: "FULL", Score: f(8), ElapsedMS: 10},
		{Tier: "PARTIAL", Score: f(4), ElapsedMS: 20, NeedsReview: true},
		{Tier: "FAILED", Score: f(0), ElapsedMS: 30, NeedsReview: true},
	}
	s := Summarize(runs)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.NeedsReview)
	assert.Equal(t, 6.0, s.AverageScore)
	assert.Equal(t, 60*time.Millisecond, s.TotalElapsed)
	assert.Equal(t, 20*time.Millisecond, s.AverageElapsed)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 1e-9)

	assert.Zero(t, Summarize(nil).SuccessRate())
}
