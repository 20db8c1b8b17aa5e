package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/GEOeduHJ/geo-assessment-refactoring/constants"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/grading"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/ingest"
)

func newBatchCommand(a *app) *cobra.Command {
	var (
		rubricPath, fieldsPath string
		dir, exts, metricsFile string
		includeHidden, force   bool
		store, verbose         bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Grade every response file under a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if dir == "" {
				return fmt.Errorf("--dir is required")
			}
			svc, err := a.service(ctx, store)
			if err != nil {
				return err
			}
			e, key, err := a.engine(svc, rubricPath, fieldsPath)
			if err != nil {
				return err
			}

			subs, stats, err := ingest.Walk(ctx, dir, constants.ParseExtensions(exts), !includeHidden)
			if err != nil {
				return err
			}
			a.logger.Info("ingest.walk.done",
				"root", dir,
				"scanned", stats.Scanned,
				"matched", stats.Matched,
				"deduplicated", stats.Deduplicated,
				"failed", stats.Failed,
			)

			report, err := svc.GradeBatch(ctx, e, key, subs, grading.BatchOptions{
				Workers:    a.cfg.Worker.Workers,
				QueueSize:  a.cfg.Worker.QueueSize,
				JobTimeout: a.cfg.Worker.JobTimeout,
				Force:      force,
			})
			if err != nil {
				return err
			}
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			if verbose {
				return writeJSON(cmd, report)
			}
			return writeJSON(cmd, struct {
				Summary grading.Summary   `json:"summary"`
				Skipped []grading.Skipped `json:"skipped,omitempty"`
				Failed  []grading.Skipped `json:"failed,omitempty"`
			}{report.Summary, report.Skipped, report.Failed})
		},
	}
	f := cmd.Flags()
	f.StringVar(&rubricPath, "rubric", "", "rubric file (yaml or json)")
	f.StringVar(&fieldsPath, "fields", "", "explicit fields file (yaml or json)")
	f.StringVar(&dir, "dir", "", "directory of response files")
	f.StringVar(&exts, "ext", "txt,md,json", "comma separated response file extensions")
	f.BoolVar(&includeHidden, "include-hidden", false, "include hidden files and directories")
	f.BoolVar(&force, "force", false, "regrade content already stored for this rubric")
	f.BoolVar(&store, "store", true, "store runs")
	f.BoolVarP(&verbose, "verbose", "v", false, "print every run, not just the summary")
	f.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}
