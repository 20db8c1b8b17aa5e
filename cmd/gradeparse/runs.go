package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/common"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/entity"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/grading"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/repository"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored grading runs",
	}
	cmd.AddCommand(newRunsListCommand(a), newRunsShowCommand(a), newRunsSummaryCommand(a))
	return cmd
}

func newRunsListCommand(a *app) *cobra.Command {
	var (
		filter     entity.RunFilter
		reviewOnly bool
		asJSON     bool
		from, to   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if filter.From, err = parseDate("from", from); err != nil {
				return err
			}
			if filter.To, err = parseDate("to", to); err != nil {
				return err
			}
			db, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			if reviewOnly {
				t := true
				filter.NeedsReview = &t
			}
			runs, err := repository.NewRunRepository(db, a.logger).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUBMISSION\tTIER\tSCORE\tREVIEW\tSTRATEGY\tCREATED")
			for _, r := range runs {
				score := "-"
				if r.Score != nil {
					score = fmt.Sprintf("%g", *r.Score)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					r.ID, r.SubmissionID, r.Tier, score, r.NeedsReview, r.Strategy, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Tier, "tier", "", "only runs of this tier (FULL, PARTIAL, FAILED)")
	f.StringVar(&filter.Rubric, "rubric-key", "", "only runs graded with this rubric fingerprint")
	f.IntVar(&filter.Limit, "limit", 50, "maximum rows")
	f.IntVar(&filter.Offset, "offset", 0, "rows to skip")
	f.StringVar(&from, "from", "", "first day to include (YYYY-MM-DD, UTC)")
	f.StringVar(&to, "to", "", "last day to include (YYYY-MM-DD, UTC)")
	f.BoolVar(&reviewOnly, "review", false, "only runs that need review")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRunsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.NewValidator().Field("id", args[0], common.UUID).AppError(common.CodeInvalidInput); err != nil {
				return err
			}
			id := uuid.MustParse(args[0])
			db, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			run, err := repository.NewRunRepository(db, a.logger).Get(cmd.Context(), id)
			if err != nil {
				return common.WrapError(err, "show run "+args[0])
			}
			payload, err := run.Payload()
			if err != nil {
				return common.WrapError(err, "decode run "+args[0])
			}
			warnings, _ := run.Warnings()
			errs, _ := run.Errors()
			return writeJSON(cmd, struct {
				*entity.ParseRun
				Payload  map[string]any `json:"payload"`
				Warnings []string       `json:"warnings"`
				Errors   []string       `json:"errors"`
			}{run, payload, warnings, errs})
		},
	}
}

func newRunsSummaryCommand(a *app) *cobra.Command {
	var filter entity.RunFilter
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := repository.NewRunRepository(db, a.logger).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeJSON(cmd, grading.Summarize(runs))
		},
	}
	cmd.Flags().StringVar(&filter.Rubric, "rubric-key", "", "only runs graded with this rubric fingerprint")
	cmd.Flags().IntVar(&filter.Limit, "limit", 10000, "maximum runs to include")
	return cmd
}

func parseDate(name, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD", name)
	}
	if name == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
