package repository

import (
	"context"
	"fmt"
)

var schemaDDL = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS parse_run (
			id            TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL,
			student       TEXT NOT NULL DEFAULT '',
			source_path   TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL DEFAULT '',
			rubric        TEXT NOT NULL DEFAULT '',
			tier          TEXT NOT NULL,
			status        TEXT NOT NULL,
			source        TEXT NOT NULL DEFAULT '',
			needs_review  BOOLEAN NOT NULL DEFAULT 0,
			confidence    REAL NOT NULL DEFAULT 0,
			strategy      TEXT NOT NULL DEFAULT '',
			attempts      INTEGER NOT NULL DEFAULT 0,
			elapsed_ms    INTEGER NOT NULL DEFAULT 0,
			score         REAL,
			payload       TEXT NOT NULL DEFAULT '{}',
			warnings      TEXT NOT NULL DEFAULT '[]',
			errors        TEXT NOT NULL DEFAULT '[]',
			attempt_log   TEXT NOT NULL DEFAULT '[]',
			raw_sample    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS parse_run_hash_idx ON parse_run (content_hash, rubric)`,
		`CREATE INDEX IF NOT EXISTS parse_run_tier_idx ON parse_run (tier)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS parse_run (
			id            UUID PRIMARY KEY,
			submission_id TEXT NOT NULL,
			student       TEXT NOT NULL DEFAULT '',
			source_path   TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL DEFAULT '',
			rubric        TEXT NOT NULL DEFAULT '',
			tier          TEXT NOT NULL,
			status        TEXT NOT NULL,
			source        TEXT NOT NULL DEFAULT '',
			needs_review  BOOLEAN NOT NULL DEFAULT FALSE,
			confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
			strategy      TEXT NOT NULL DEFAULT '',
			attempts      INTEGER NOT NULL DEFAULT 0,
			elapsed_ms    BIGINT NOT NULL DEFAULT 0,
			score         DOUBLE PRECISION,
			payload       TEXT NOT NULL DEFAULT '{}',
			warnings      TEXT NOT NULL DEFAULT '[]',
			errors        TEXT NOT NULL DEFAULT '[]',
			attempt_log   TEXT NOT NULL DEFAULT '[]',
			raw_sample    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS parse_run_hash_idx ON parse_run (content_hash, rubric)`,
		`CREATE INDEX IF NOT EXISTS parse_run_tier_idx ON parse_run (tier)`,
	},
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, db *DB) error {
	stmts, ok := schemaDDL[db.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.driver)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
