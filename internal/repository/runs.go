package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
)

type RunRepository interface {
	Save(ctx context.Context, run *entity.ParseRun) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ParseRun, error)
	List(ctx context.Context, f entity.RunFilter) ([]entity.ParseRun, error)
	// FindByHash returns the latest run for the same content and rubric.
	FindByHash(ctx context.Context, contentHash, rubric string) (*entity.ParseRun, error)
	CountByTier(ctx context.Context) (map[string]int, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

const runColumns = `id, submission_id, student, source_path, content_hash, rubric, tier, status,
	source, needs_review, confidence, strategy, attempts, elapsed_ms, score,
	payload, warnings, errors, attempt_log, raw_sample, created_at`

func (r *runRepo) Save(ctx context.Context, run *entity.ParseRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	query := `INSERT INTO parse_run (` + runColumns + `) VALUES (
		:id, :submission_id, :student, :source_path, :content_hash, :rubric, :tier, :status,
		:source, :needs_review, :confidence, :strategy, :attempts, :elapsed_ms, :score,
		:payload, :warnings, :errors, :attempt_log, :raw_sample, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		r.log.Error("repository.run.save_failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("runRepo.Save: %w: %w", common.ErrDatabase, err)
	}
	r.log.Debug("repository.run.saved", "run_id", run.ID, "submission_id", run.SubmissionID, "tier", run.Tier)
	return nil
}

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ParseRun, error) {
	var run entity.ParseRun
	err := r.db.GetContext(ctx, &run,
		r.db.Rebind(`SELECT `+runColumns+` FROM parse_run WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError(common.CodeNotFound, "run "+id.String(), common.ErrNotFound)
		}
		return nil, fmt.Errorf("runRepo.Get: %w: %w", common.ErrDatabase, err)
	}
	return &run, nil
}

func (r *runRepo) List(ctx context.Context, f entity.RunFilter) ([]entity.ParseRun, error) {
	var (
		where []string
		args  []any
	)
	if f.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, f.Tier)
	}
	if f.NeedsReview != nil {
		where = append(where, "needs_review = ?")
		args = append(args, *f.NeedsReview)
	}
	if f.Rubric != "" {
		where = append(where, "rubric = ?")
		args = append(args, f.Rubric)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	query := `SELECT ` + runColumns + ` FROM parse_run`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	var runs []entity.ParseRun
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("runRepo.List: %w: %w", common.ErrDatabase, err)
	}
	return runs, nil
}

func (r *runRepo) FindByHash(ctx context.Context, contentHash, rubric string) (*entity.ParseRun, error) {
	var run entity.ParseRun
	err := r.db.GetContext(ctx, &run, r.db.Rebind(`SELECT `+runColumns+` FROM parse_run
		WHERE content_hash = ? AND rubric = ? ORDER BY created_at DESC LIMIT 1`), contentHash, rubric)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError(common.CodeNotFound, "run with hash "+contentHash, common.ErrNotFound)
		}
		return nil, fmt.Errorf("runRepo.FindByHash: %w: %w", common.ErrDatabase, err)
	}
	return &run, nil
}

func (r *runRepo) CountByTier(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Tier  string `db:"tier"`
		Count int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT tier, COUNT(*) AS n FROM parse_run GROUP BY tier`); err != nil {
		return nil, fmt.Errorf("runRepo.CountByTier: %w: %w", common.ErrDatabase, err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Tier] = row.Count
	}
	return out, nil
}
