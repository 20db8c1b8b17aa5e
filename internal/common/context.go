package common

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID        contextKey = "run_id"
	ContextKeySubmissionID contextKey = "submission_id"
	ContextKeyLogger       contextKey = "logger"
)

// NewRunID returns a fresh identifier for one grading run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithSubmissionID adds a submission ID to the context
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySubmissionID, id)
}

// SubmissionIDFromContext extracts the submission ID from context
func SubmissionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeySubmissionID).(string); ok {
		return id
	}
	return ""
}

// WithLogger stores a request-scoped logger.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ContextKeyLogger, l)
}

// LoggerFromContext returns the request-scoped logger, or fallback when none
// is set. The returned logger carries the run and submission IDs found in ctx.
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	l, ok := ctx.Value(ContextKeyLogger).(*slog.Logger)
	if !ok || l == nil {
		l = fallback
	}
	if l == nil {
		l = slog.Default()
	}
	if id := RunIDFromContext(ctx); id != "" {
		l = l.With("run_id", id)
	}
	if id := SubmissionIDFromContext(ctx); id != "" {
		l = l.With("submission_id", id)
	}
	return l
}
