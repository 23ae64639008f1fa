// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Runs are short-lived batch jobs, so collected metrics are pushed to a
// Pushgateway at Flush instead of being exposed on a scrape endpoint. The
// job label of the metrics package becomes the Pushgateway grouping key.
package prompush

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"flowbridge/internal/errors"
	"flowbridge/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // flowbridge_step_total
	stepDuration  *prometheus.SummaryVec // flowbridge_step_duration_seconds
	recordCounter *prometheus.CounterVec // flowbridge_records_total
	userCounter   *prometheus.CounterVec // flowbridge_counter_total
	sliceCounter  prometheus.Counter     // flowbridge_slices_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the job of the run).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "flowbridge"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Slice phase executions, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of slice phases in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records read from sources and written to sinks.",
		}, []string{"kind"}),
		userCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.CounterTotal,
			Help: "Worker counters merged at the end of a run.",
		}, []string{"group", "name"}),
		sliceCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.SlicesTotal,
			Help: "Slices finished by this run.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"record counter": b.recordCounter,
		"user counter":   b.userCounter,
		"slice counter":  b.sliceCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, errors.Wrapf(err, "prompush: register %s", name)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.CounterTotal:
		if b.userCounter != nil {
			b.userCounter.WithLabelValues(labels["group"], labels["name"]).Add(delta)
		}
	case metrics.SlicesTotal:
		if b.sliceCounter != nil {
			b.sliceCounter.Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return errors.Wrapf(err, "prompush: push to %s", b.gatewayURL)
	}
	return nil
}
