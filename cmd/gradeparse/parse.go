package main

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/grading"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/ingest"
)

func newParseCommand(a *app) *cobra.Command {
	var (
		rubricPath, fieldsPath string
		input, id, student     string
		store                  bool
	)
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse one response and print the result",
		Long:  "Parse one response read from --input (or stdin) against a rubric or fields file and print the full result as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx, store)
			if err != nil {
				return err
			}
			e, key, err := a.engine(svc, rubricPath, fieldsPath)
			if err != nil {
				return err
			}

			sub := grading.Submission{ID: id, Student: student}
			if input == "" || input == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				sub.Response = string(b)
				if sub.ID == "" {
					sub.ID = "stdin"
				}
			} else {
				s, err := ingest.ReadSubmission("", input)
				if err != nil {
					return err
				}
				sub.Response, sub.ContentHash, sub.SourcePath = s.Response, s.HashHex, s.Path
				if sub.ID == "" {
					sub.ID = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				}
			}

			out, err := svc.GradeWith(ctx, e, key, sub)
			if err != nil {
				return err
			}
			return writeJSON(cmd, out.Result)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rubricPath, "rubric", "", "rubric file (yaml or json)")
	f.StringVar(&fieldsPath, "fields", "", "explicit fields file (yaml or json)")
	f.StringVarP(&input, "input", "i", "-", "response file, - for stdin")
	f.StringVar(&id, "id", "", "submission id (defaults to the file stem)")
	f.StringVar(&student, "student", "", "student name stored with the run")
	f.BoolVar(&store, "store", false, "store the run")
	return cmd
}
