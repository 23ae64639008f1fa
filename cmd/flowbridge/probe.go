package main

import (
	"path"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowbridge/internal/datasource"
	"flowbridge/internal/probe"
)

func newProbeCmd(a *app) *cobra.Command {
	var (
		name  string
		comma string
		sampleBytes int
	)
	cmd := &cobra.Command{
		Use:   "probe <csv-file-or-url>",
		Short: "Draft a job file from a CSV sample",
		Long: `Sample the start of a local or remote CSV file, infer column types and
print a job draft in YAML. Typed columns are read as strings and converted by
a coerce stage; edit the sinks before running it.

Examples:
  flowbridge probe data/people.csv > people.yaml
  flowbridge probe https://example.com/export.csv --comma ';' --bytes 131072`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := probe.Options{Name: name, Path: args[0], SampleBytes: sampleBytes}
			if comma != "" {
				opt.Comma = []rune(comma)[0]
			}
			if opt.Name == "" {
				opt.Name = jobNameFromPath(args[0])
			}
			j, err := probe.CSV(cmd.Context(), datasource.Resolve(args[0], nil), opt)
			if err != nil {
				return fail(ExitRuntimeError, err)
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(j); err != nil {
				return fail(ExitRuntimeError, err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name; the file name when empty")
	cmd.Flags().StringVar(&comma, "comma", ",", "field delimiter")
	cmd.Flags().IntVar(&sampleBytes, "bytes", probe.DefaultSampleBytes, "sample size in bytes")
	return cmd
}

// jobNameFromPath returns the last path or URL segment without its
// extension.
func jobNameFromPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return strings.TrimSuffix(p, path.Ext(p))
}
