package grading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/async"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/ingest"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
)

type BatchOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Force regrades content already stored for the same rubric.
	Force bool
}

// Skipped is a submission that was not graded.
type Skipped struct {
	SubmissionID string `json:"submission_id"`
	Path         string `json:"path"`
	Reason       string `json:"reason"`
}

type BatchReport struct {
	Runs    []entity.ParseRun `json:"runs"`
	Skipped []Skipped         `json:"skipped,omitempty"`
	Failed  []Skipped         `json:"failed,omitempty"`
	Summary Summary           `json:"summary"`
}

// GradeBatch grades submissions on a worker pool. Unreadable files,
// duplicates within the batch and content already stored for the rubric are
// skipped. opts.Force grades stored content again.
func (s *Service) GradeBatch(ctx context.Context, e *parsing.Engine, rubricKey string, subs []ingest.Submission, opts BatchOptions) (*BatchReport, error) {
	report := &BatchReport{}
	byID := make(map[string]ingest.Submission, len(subs))
	var queued []ingest.Submission
	for _, sub := range subs {
		switch {
		case sub.Err != "":
			report.Failed = append(report.Failed, Skipped{SubmissionID: sub.ID, Path: sub.Path, Reason: sub.Err})
			continue
		case sub.Duplicate:
			report.Skipped = append(report.Skipped, Skipped{SubmissionID: sub.ID, Path: sub.Path, Reason: "duplicate content in batch"})
			continue
		case !opts.Force && s.alreadyGraded(ctx, sub.HashHex, rubricKey):
			report.Skipped = append(report.Skipped, Skipped{SubmissionID: sub.ID, Path: sub.Path, Reason: "already graded"})
			continue
		}
		byID[sub.ID] = sub
		queued = append(queued, sub)
	}

	var mu sync.Mutex
	proc := async.ProcessorFunc(func(ctx context.Context, job async.Job) error {
		sub := byID[job.SubmissionID]
		out, err := s.GradeWith(ctx, e, rubricKey, Submission{
			ID:          sub.ID,
			Student:     sub.Student,
			SourcePath:  sub.Path,
			ContentHash: sub.HashHex,
			Response:    job.Response,
		})
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed = append(report.Failed, Skipped{SubmissionID: sub.ID, Path: sub.Path, Reason: err.Error()})
			return err
		}
		report.Runs = append(report.Runs, out.Run)
		return nil
	})

	q := async.NewProcessorQueue(proc, s.logger,
		async.WithWorkers(opts.Workers),
		async.WithQueueSize(opts.QueueSize),
		async.WithProcessTimeout(opts.JobTimeout),
	)
	var enqueueErr error
	for _, sub := range queued {
		job := async.Job{SubmissionID: sub.ID, Path: sub.Path, Response: sub.Response, RunID: common.NewRunID()}
		if err := q.Enqueue(ctx, job); err != nil {
			enqueueErr = fmt.Errorf("enqueue %s: %w", sub.ID, err)
			break
		}
	}
	// drain what was queued even when ctx is already done
	if err := q.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}

	sort.Slice(report.Runs, func(i, j int) bool { return report.Runs[i].SubmissionID < report.Runs[j].SubmissionID })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].SubmissionID < report.Failed[j].SubmissionID })
	report.Summary = Summarize(report.Runs)
	s.logger.Info("grading.batch.done",
		"total", report.Summary.Total,
		"full", report.Summary.ByTier[string(parsing.TierFull)],
		"partial", report.Summary.ByTier[string(parsing.TierPartial)],
		"failed", report.Summary.ByTier[string(parsing.TierFailed)],
		"skipped", len(report.Skipped),
		"errors", len(report.Failed),
	)
	return report, enqueueErr
}

func (s *Service) alreadyGraded(ctx context.Context, hash, rubricKey string) bool {
	if s.runs == nil || hash == "" {
		return false
	}
	_, err := s.runs.FindByHash(ctx, hash, rubricKey)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn("grading.dedup.lookup_failed", "error", err)
	}
	return err == nil
}
