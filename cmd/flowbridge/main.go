// Command flowbridge runs declarative record pipelines on the local host.
//
//	flowbridge validate job.yaml
//	flowbridge schema job.yaml
//	flowbridge run job.yaml --parallelism 8
//	flowbridge probe people.csv > job.yaml
//
// Process settings come from FLOWBRIDGE_* environment variables; flags
// override them.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/logging"

	// Operator classes and every tap kind with its storage backend.
	_ "flowbridge/internal/operator/builtin"
	_ "flowbridge/internal/tap/all"
)

// Exit codes.
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "flowbridge: %v\n", err)
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(stderr, "  hint: %s\n", h)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitRuntimeError
}

// app is the state shared by the subcommands.
type app struct {
	stdout, stderr io.Writer
	settings       config.Settings
	logLevel       string
	logDev         bool
	log            *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "flowbridge",
		Short: "Run declarative record pipelines",
		Long: `flowbridge reads records from a source tap, runs them through a chain of
operators in parallel slices and writes the results to one or more sink taps.

Examples:
  # Lint a job file
  flowbridge validate job.yaml

  # Print the schema the sinks receive
  flowbridge schema job.yaml

  # Run a job with four slices
  flowbridge run job.yaml --parallelism 4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (env FLOWBRIDGE_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&a.logDev, "log-dev", false, "human-readable console logs (env FLOWBRIDGE_LOG_DEV)")

	root.AddCommand(newValidateCmd(a), newSchemaCmd(a), newRunCmd(a), newProbeCmd(a), newVersionCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	s, err := config.LoadSettings()
	if err != nil {
		return fail(ExitParseError, err)
	}
	if cmd.Flags().Changed("log-level") {
		s.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-dev") {
		s.LogDev = a.logDev
	}
	a.settings = s

	log, err := logging.New(logging.Config{Level: s.LogLevel, Development: s.LogDev})
	if err != nil {
		return fail(ExitParseError, err)
	}
	a.log = log
	return nil
}

// loadJob decodes and lints the job at path, printing every issue.
func (a *app) loadJob(path string) (config.Job, error) {
	j, err := config.Load(path)
	if err != nil {
		return config.Job{}, fail(ExitParseError, err)
	}
	issues := config.ValidateJob(j)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return config.Job{}, fail(ExitValidationError, errors.Newf("configuration is invalid: %s", path))
	}
	return j, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "flowbridge %s (%s)\n", version, commit)
		},
	}
}
