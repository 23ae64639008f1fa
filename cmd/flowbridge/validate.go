package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <job-file>",
		Short: "Lint a job file",
		Long: `Decode a job file and report every issue found. Warnings do not fail
validation.

Exit codes:
  0 - job is valid
  1 - validation errors
  2 - the file cannot be read or decoded`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := a.loadJob(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %s\n", args[0])
			return nil
		},
	}
}
