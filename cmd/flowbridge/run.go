package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowbridge/internal/config"
	"flowbridge/internal/engine"
	"flowbridge/internal/errors"
	"flowbridge/internal/metrics"
	"flowbridge/internal/metrics/datadog"
	"flowbridge/internal/metrics/prompush"
)

type runFlags struct {
	parallelism int
	runID       string
	properties  map[string]string
	metrics     string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <job-file>",
		Short: "Run a job",
		Long: `Run a job to completion. SIGINT and SIGTERM cancel the run; sinks that
were opened are still closed.

Exit codes:
  0 - success
  1 - validation errors
  2 - the job file cannot be read or decoded
  3 - the run failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.loadJob(args[0])
			if err != nil {
				return err
			}
			if len(f.properties) > 0 && j.Properties == nil {
				j.Properties = make(map[string]string, len(f.properties))
			}
			for k, v := range f.properties {
				j.Properties[k] = v
			}

			backend := a.settings.MetricsBackend
			if cmd.Flags().Changed("metrics") {
				backend = f.metrics
			}
			if err := a.setupMetrics(backend, jobLabel(j)); err != nil {
				return fail(ExitParseError, err)
			}
			defer func() {
				if err := metrics.Flush(); err != nil {
					a.log.Warn("metrics flush failed", zap.Error(err))
				}
			}()

			parallelism := a.settings.Parallelism
			if cmd.Flags().Changed("parallelism") {
				parallelism = f.parallelism
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := engine.Run(ctx, j, engine.Options{
				Parallelism: parallelism,
				Logger:      a.log,
				RunID:       f.runID,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fail(ExitRuntimeError, errors.Wrap(err, "run cancelled"))
				}
				return fail(ExitRuntimeError, err)
			}
			printResult(a, res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.parallelism, "parallelism", "p", 0, "slices to run when the job sets none; 0 means one per CPU (env FLOWBRIDGE_PARALLELISM)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier for logs; random when empty")
	cmd.Flags().StringToStringVar(&f.properties, "property", nil, "job property override, key=value (repeatable)")
	cmd.Flags().StringVar(&f.metrics, "metrics", "", "metrics backend: none, prometheus, datadog (env FLOWBRIDGE_METRICS_BACKEND)")
	return cmd
}

func jobLabel(j config.Job) string {
	if j.Job != "" {
		return j.Job
	}
	return "flowbridge_job"
}

// setupMetrics installs the process metrics backend.
func (a *app) setupMetrics(kind, job string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return nil
	case "prometheus", "pushgateway":
		b, err := prompush.NewBackend(job, a.settings.PushgatewayURL)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	case "datadog", "dogstatsd":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       a.settings.DogStatsDAddr,
			Namespace:  "flowbridge.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	default:
		return errors.WithHint(errors.Newf("unknown metrics backend %q", kind), "use none, prometheus or datadog")
	}
	a.log.Debug("metrics backend installed", zap.String("backend", kind))
	return nil
}

func printResult(a *app, res engine.Result) {
	fmt.Fprintf(a.stdout, "run %s: %d slices, %d read, %d written in %s\n",
		res.RunID, res.Slices, res.Read, res.Written, res.Elapsed.Round(time.Millisecond))
	for _, k := range res.Counters.Keys() {
		fmt.Fprintf(a.stdout, "  %s/%s = %d\n", k.Group, k.Name, res.Counters.Get(k.Group, k.Name))
	}
}
