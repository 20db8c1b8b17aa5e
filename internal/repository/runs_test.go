package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), common.StoreConfig{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRun(sub, tier string, review bool, at time.Time) *entity.ParseRun {
	score := 6.0
	return &entity.ParseRun{
		SubmissionID: sub,
		ContentHash:  "hash-" + sub,
		Rubric:       "rubric-1",
		Tier:         tier,
		Status:       "DONE",
		Source:       "strategy",
		NeedsReview:  review,
		Confidence:   1,
		Strategy:     "direct",
		Attempts:     1,
		ElapsedMS:    3,
		Score:        &score,
		PayloadJSON:  `{"score":6}`,
		WarningsJSON: `["correct: score: coerced"]`,
		ErrorsJSON:   `[]`,
		AttemptsJSON: `[]`,
		CreatedAt:    at,
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	ctx := context.Background()

	run := sampleRun("s1", "PARTIAL", false, time.Time{})
	require.NoError(t, repo.Save(ctx, run))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SubmissionID)
	assert.Equal(t, "PARTIAL", got.Tier)
	require.NotNil(t, got.Score)
	assert.Equal(t, 6.0, *got.Score)

	payload, err := got.Payload()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"score": 6.0}, payload)
	warnings, err := got.Warnings()
	require.NoError(t, err)
	assert.Equal(t, []string{"correct: score: coerced"}, warnings)
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, common.CodeNotFound, common.CodeOf(err))
}

func TestRunRepository_ListAndCount(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sampleRun("a", "FULL", false, base)))
	require.NoError(t, repo.Save(ctx, sampleRun("b", "FAILED", true, base.Add(time.Minute))))
	require.NoError(t, repo.Save(ctx, sampleRun("c", "FULL", false, base.Add(2*time.Minute))))

	all, err := repo.List(ctx, entity.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SubmissionID, "newest first")

	review := true
	flagged, err := repo.List(ctx, entity.RunFilter{NeedsReview: &review})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "b", flagged[0].SubmissionID)

	full, err := repo.List(ctx, entity.RunFilter{Tier: "FULL", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Equal(t, "a", full[0].SubmissionID)

	from, to := base.Add(time.Minute), base.Add(2*time.Minute)
	window, err := repo.List(ctx, entity.RunFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "c", window[0].SubmissionID)
	assert.Equal(t, "b", window[1].SubmissionID)

	counts, err := repo.CountByTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"FULL": 2, "FAILED": 1}, counts)
}

func TestRunRepository_FindByHash(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleRun("a", "FULL", false, time.Time{})))

	got, err := repo.FindByHash(ctx, "hash-a", "rubric-1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.SubmissionID)

	_, err = repo.FindByHash(ctx, "hash-a", "other")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.StoreConfig{Driver: "mysql"}, nil)
	assert.ErrorIs(t, err, common.ErrDatabase)
}
