package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/GEOeduHJ/geo-assessment-refactoring/constants"
)

// Submission is one response file ready for grading.
type Submission struct {
	// ID is the path relative to the walk root, without extension.
	ID string
	// Student is the first directory below the root, if any.
	Student  string
	Path     string
	Ext      string
	Response string
	HashHex  string
	// Duplicate is set when an earlier file in the same walk had the same content.
	Duplicate bool
	Err       string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Walk collects matching files under root. exts nil means
// constants.ResponseExtensions. Per-file errors are recorded on the
// submission and do not stop the walk.
func Walk(ctx context.Context, root string, exts map[string]struct{}, skipHidden bool) ([]Submission, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if exts == nil {
		exts = constants.ResponseExtensions
	}

	var (
		subs  []Submission
		stats DirStats
	)
	seen := map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			subs = append(subs, Submission{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !Allowed(path, exts) {
			return nil
		}
		stats.Matched++

		sub, err := ReadSubmission(root, path)
		if err != nil {
			slog.Warn("ingest.read.failed", "path", path, "error", err)
			subs = append(subs, Submission{Path: path, ID: sub.ID, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if seen[sub.HashHex] {
			sub.Duplicate = true
			stats.Deduplicated++
		}
		seen[sub.HashHex] = true
		subs = append(subs, sub)
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return subs, stats, fmt.Errorf("walk: %w", err)
	}
	return subs, stats, nil
}

// ReadSubmission loads one file. root may be empty for a file given directly.
func ReadSubmission(root, path string) (Submission, error) {
	sub := Submission{Path: path, Ext: constants.NormalizeExt(filepath.Ext(path))}
	sub.ID, sub.Student = identify(root, path)

	b, err := os.ReadFile(path)
	if err != nil {
		return sub, err
	}
	sum := sha256.Sum256(b)
	sub.HashHex = hex.EncodeToString(sum[:])
	sub.Response = string(b)
	return sub, nil
}

func identify(root, path string) (id, student string) {
	rel := filepath.Base(path)
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	if i := strings.IndexByte(rel, '/'); i > 0 {
		student = rel[:i]
	}
	return rel, student
}

// Allowed reports whether path has one of exts.
func Allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
