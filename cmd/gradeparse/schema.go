package main

import (
	"github.com/spf13/cobra"
)

func newSchemaCommand(a *app) *cobra.Command {
	var rubricPath, fieldsPath string
	var defaults bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema, or the default record, for a rubric or fields file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}
			e, _, err := a.engine(svc, rubricPath, fieldsPath)
			if err != nil {
				return err
			}
			d := e.Descriptor()
			if defaults {
				return writeJSON(cmd, d.DefaultRecord())
			}
			return writeJSON(cmd, d.JSONSchema())
		},
	}
	f := cmd.Flags()
	f.StringVar(&rubricPath, "rubric", "", "rubric file (yaml or json)")
	f.StringVar(&fieldsPath, "fields", "", "explicit fields file (yaml or json)")
	f.BoolVar(&defaults, "defaults", false, "print the minimal default record instead")
	return cmd
}
