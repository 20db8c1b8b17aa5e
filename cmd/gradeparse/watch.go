package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GEOeduHJ/geo-assessment-refactoring/constants"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/grading"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/ingest"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		rubricPath, fieldsPath string
		dir, exts              string
		initial                bool
		debounce               time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Grade response files as they appear under a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				return fmt.Errorf("--dir is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := a.service(ctx, true)
			if err != nil {
				return err
			}
			e, key, err := a.engine(svc, rubricPath, fieldsPath)
			if err != nil {
				return err
			}
			events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
				Roots:       []string{dir},
				AllowedExts: constants.ParseExtensions(exts),
				InitialScan: initial,
				Debounce:    debounce,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}
			a.logger.Info("ingest.watch.started", "root", dir)

			root, _ := filepath.Abs(dir)
			for {
				select {
				case path, ok := <-events:
					if !ok {
						return nil
					}
					abs, _ := filepath.Abs(path)
					sub, err := ingest.ReadSubmission(root, abs)
					if err != nil {
						a.logger.Warn("ingest.read.failed", "path", path, "error", err)
						continue
					}
					out, err := svc.GradeWith(ctx, e, key, grading.Submission{
						ID:          sub.ID,
						Student:     sub.Student,
						SourcePath:  sub.Path,
						ContentHash: sub.HashHex,
						Response:    sub.Response,
					})
					if err != nil {
						a.logger.Error("grading.watch.failed", "path", path, "error", err)
						continue
					}
					if err := writeJSON(cmd, out.Run); err != nil {
						return err
					}
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					a.logger.Warn("ingest.watch.error", "error", err)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&rubricPath, "rubric", "", "rubric file (yaml or json)")
	f.StringVar(&fieldsPath, "fields", "", "explicit fields file (yaml or json)")
	f.StringVar(&dir, "dir", "", "directory to watch")
	f.StringVar(&exts, "ext", "txt,md,json", "comma separated response file extensions")
	f.BoolVar(&initial, "initial", false, "grade files already present at start")
	f.DurationVar(&debounce, "debounce", 250*time.Millisecond, "coalesce write bursts")
	return cmd
}
