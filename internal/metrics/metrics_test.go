package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

/*
TestRecordStep_SuccessAndFailure verifies that each phase produces one counter
and one duration observation labelled with job, step and status.
*/
func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "run", nil, 2*time.Second)
	RecordStep("jobB", "cleanup", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, counterCall{StepTotal, 1, Labels{"job": "jobA", "step": "run", "status": "success"}}, fb.counters[0])
	assert.Equal(t, "failure", fb.counters[1].labels["status"])

	assert.Equal(t, StepDuration, fb.histograms[0].name)
	assert.InDelta(t, 2.0, fb.histograms[0].value, 0.001)
	assert.InDelta(t, 1.5, fb.histograms[1].value, 0.001)
}

func TestRecordRecordsCountersAndSlices(t *testing.T) {
	fb := install(t)

	RecordRecords("j", "read", 3)
	RecordRecords("j", "written", 0)
	RecordCounter("j", "flowbridge.SliceCounters", "Tuples_Read", 3)
	RecordCounter("j", "g", "n", -1)
	RecordSlices("j", 2)

	require.Len(t, fb.counters, 3)
	assert.Equal(t, counterCall{RecordsTotal, 3, Labels{"job": "j", "kind": "read"}}, fb.counters[0])
	assert.Equal(t, counterCall{CounterTotal, 3, Labels{"job": "j", "group": "flowbridge.SliceCounters", "name": "Tuples_Read"}}, fb.counters[1])
	assert.Equal(t, counterCall{SlicesTotal, 2, Labels{"job": "j"}}, fb.counters[2])
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)
	assert.Same(t, fb, current())

	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushCount)

	SetBackend(nil)
	assert.Same(t, fb, current())
}

func TestNopBackend(t *testing.T) {
	var b Backend = nopBackend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
}
