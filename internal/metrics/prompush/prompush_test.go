package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbridge/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, metric.Write(m))
	require.NotNil(t, m.GetSummary())
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{"missing gateway URL returns error", "job", "", true, ""},
		{"empty job name uses default", "", "http://pushgateway:9091", false, "flowbridge"},
		{"explicit job name is preserved", "people", "http://pushgateway:9091", false, "people"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobName, b.jobName)
			assert.Equal(t, tt.gatewayURL, b.gatewayURL)
		})
	}
}

/*
TestIncCounter verifies that IncCounter routes updates to the collector of
each metric family and ignores unknown metric names.
*/
func TestIncCounter(t *testing.T) {
	b, err := NewBackend("j", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "run", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "read"})
	b.IncCounter(metrics.CounterTotal, 2, metrics.Labels{"group": "g", "name": "n"})
	b.IncCounter(metrics.SlicesTotal, 2, nil)
	b.IncCounter(metrics.SlicesTotal, 0.5, nil)
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 3.0, readCounterValue(t, b.stepCounter.WithLabelValues("run", "success")))
	assert.Equal(t, 5.0, readCounterValue(t, b.recordCounter.WithLabelValues("read")))
	assert.Equal(t, 2.0, readCounterValue(t, b.userCounter.WithLabelValues("g", "n")))
	assert.Equal(t, 2.5, readCounterValue(t, b.sliceCounter))
	assert.Equal(t, 0.0, readCounterValue(t, b.stepCounter.WithLabelValues("x", "y")))
}

func TestIncCounterNilMetrics(t *testing.T) {
	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "ok"})
		b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "read"})
		b.IncCounter(metrics.CounterTotal, 1, nil)
		b.IncCounter(metrics.SlicesTotal, 1, nil)
		b.ObserveHistogram(metrics.StepDuration, 1, nil)
	})
}

func TestObserveHistogram(t *testing.T) {
	b, err := NewBackend("j", "http://example.com")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "open", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"step": "open", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stepDuration, "open", "success")
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 1.5, sum)
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL.
func TestFlush(t *testing.T) {
	type pushRequest struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequest{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("people", server.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "run", "status": "success"})
	require.NoError(t, b.Flush())

	select {
	case got := <-reqCh:
		assert.Equal(t, http.MethodPut, got.method)
		assert.Contains(t, got.path, "people")
		assert.Positive(t, got.bodyLen)
	default:
		t.Fatal("Flush did not send a request to the Pushgateway")
	}
}

func TestFlush_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b, err := NewBackend("people", server.URL)
	require.NoError(t, err)
	assert.Error(t, b.Flush())
}

// BenchmarkIncCounterRecord measures the cost of incrementing the record
// counter through the Backend abstraction.
func BenchmarkIncCounterRecord(b *testing.B) {
	backend, err := NewBackend("j", "http://example.com")
	if err != nil {
		b.Fatal(err)
	}
	labels := metrics.Labels{"kind": "read"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RecordsTotal, 1, labels)
	}
}
