package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"flowbridge/internal/engine"
	"flowbridge/internal/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schema <job-file>",
		Short: "Print the schema the sinks of a job receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			j, err := a.loadJob(args[0])
			if err != nil {
				return err
			}
			desc, err := engine.OutputSchema(j, nil)
			if err != nil {
				return fail(ExitValidationError, err)
			}
			if asJSON {
				return printSchemaJSON(a, desc)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tFIELD\tCLASS\tKIND")
			for i := 0; i < desc.Arity(); i++ {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, desc.FieldName(i), desc.ClassAt(i), desc.KindAt(i))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the fields as JSON")
	return cmd
}

func printSchemaJSON(a *app, desc *schema.Descriptor) error {
	b, err := sonic.ConfigStd.MarshalIndent(desc.Fields(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(b))
	return err
}
