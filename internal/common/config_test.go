package common

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, parsing.DefaultConfig(), cfg.Parsing)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Worker.Workers)
	assert.Equal(t, time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, 16, cfg.Cache.Engines)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRADEPARSE_PARSING_MAX_ATTEMPTS", "2")
	t.Setenv("GRADEPARSE_PARSING_ACCEPT_PARTIAL", "false")
	t.Setenv("GRADEPARSE_STORE_DRIVER", "postgres")
	t.Setenv("GRADEPARSE_STORE_DSN", "postgres://localhost/grades")
	t.Setenv("GRADEPARSE_WORKER_JOB_TIMEOUT", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Parsing.MaxAttempts)
	assert.False(t, cfg.Parsing.AcceptPartial)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/grades", cfg.Store.DSN)
	assert.Equal(t, 90*time.Second, cfg.Worker.JobTimeout)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradeparse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
parsing:
  confidence_threshold: 0.5
  budget: 10s
log:
  format: text
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Parsing.ConfidenceThreshold)
	assert.Equal(t, 10*time.Second, cfg.Parsing.Budget)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"GRADEPARSE_STORE_DRIVER":                 "mysql",
		"GRADEPARSE_PARSING_CONFIDENCE_THRESHOLD": "2",
		"GRADEPARSE_WORKER_WORKERS":               "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load("")
			require.Error(t, err)
			assert.Equal(t, CodeInvalidConfig, CodeOf(err))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, CodeInvalidConfig, CodeOf(err))
}

func TestAppError(t *testing.T) {
	err := NewAppError(CodeNotFound, "run abc", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "NOT_FOUND: run abc: resource not found", err.Error())
	assert.Equal(t, CodeNotFound, CodeOf(WrapError(err, "get")))
	assert.Nil(t, WrapError(nil, "noop"))
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("id", "", Required).
		Field("name", "abcdef", MaxLength(3)).
		Field("driver", "sqlite", OneOf("sqlite", "postgres")).
		Field("run", "not-a-uuid", UUID).
		Field("workers", -1, Positive)
	require.Len(t, v.Errors(), 4)
	assert.ErrorIs(t, v.AppError(CodeInvalidInput), ErrValidation)
	assert.NoError(t, NewValidator().Field("d", time.Second, Positive).AppError(CodeInvalidInput))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("grading.run.done", "tier", "FULL")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"grading.run.done"`)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LogConfig{Level: "info", Format: "text"}, &buf)
	ctx := WithSubmissionID(WithRunID(context.Background(), "r1"), "s1")

	LoggerFromContext(ctx, base).Info("x")
	assert.Contains(t, buf.String(), "run_id=r1")
	assert.Contains(t, buf.String(), "submission_id=s1")
	assert.Len(t, NewRunID(), 36)
}
