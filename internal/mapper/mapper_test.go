package mapper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/fields"
	"flowbridge/internal/flow"
	"flowbridge/internal/graph"
	"flowbridge/internal/operator"
	_ "flowbridge/internal/operator/builtin"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

func fragment(nodes ...graph.Node) graph.Fragment {
	return graph.Fragment{
		Name:    "people",
		Sources: []graph.Boundary{{Name: "in", Fields: []schema.Field{{Name: "name", Class: "string"}, {Name: "age", Class: "int"}}}},
		Sinks:   []graph.Boundary{{Name: "out"}},
		Nodes:   nodes,
	}
}

var bump = graph.Node{
	Name:      "bump",
	Class:     "expr",
	Arguments: fields.Names("age"),
	Outputs:   []schema.Field{{Name: "age", Class: "int"}},
	Policy:    fields.Swap,
	Options:   config.Options{"expressions": map[string]any{"age": "age + 1"}},
}

// fixedClock returns successive instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func withCounters(t *testing.T) (*flow.Process, flow.CounterMap) {
	t.Helper()
	counters := flow.CounterMap{}
	p, err := flow.New(0, 1, nil, flow.WithCounters(counters))
	require.NoError(t, err)
	return p, counters
}

/*
TestMapper_MapPartition verifies the full slice lifecycle: records are
transformed into the output and the slice counters are recorded.
*/
func TestMapper_MapPartition(t *testing.T) {
	p, counters := withCounters(t)
	m := New(fragment(bump))
	m.now = fixedClock(time.UnixMilli(1_000_000))

	assert.Nil(t, m.Schema())
	require.NoError(t, m.Open(p))
	require.NotNil(t, m.Schema())
	out := &records.Buffer{}
	in := records.FromSlice([]records.Record{records.Of("Alice", 30), records.Of("Bob", 40)})
	require.NoError(t, m.MapPartition(context.Background(), in, out))
	require.NoError(t, m.Close())

	assert.Equal(t, []records.Record{records.Of("Alice", 31), records.Of("Bob", 41)}, out.Records)
	assert.False(t, out.Closed, "the output belongs to the host")

	assert.Equal(t, int64(2), counters.Get(SliceCounters, TuplesRead))
	assert.Equal(t, int64(2), counters.Get(SliceCounters, TuplesWritten))
	begin := counters.Get(SliceCounters, ProcessBeginTime)
	end := counters.Get(SliceCounters, ProcessEndTime)
	assert.Positive(t, begin)
	assert.Greater(t, end, begin)
	assert.Equal(t, end-begin, counters.Get(SliceCounters, ProcessDuration))
}

func TestMapper_NoCountersBound(t *testing.T) {
	m := New(fragment(bump))
	require.NoError(t, m.Open(flow.Null()))
	out := &records.Buffer{}
	require.NoError(t, m.MapPartition(context.Background(), records.FromSlice([]records.Record{records.Of("a", 1)}), out))
	assert.Len(t, out.Records, 1)
}

/*
TestMapper_OpenErrors verifies configuration failures: taxonomy errors pass
through unchanged, anything else is wrapped as an internal configuration
error.
*/
func TestMapper_OpenErrors(t *testing.T) {
	t.Run("topology passes through", func(t *testing.T) {
		f := fragment()
		f.Sinks = nil
		err := New(f).Open(flow.Null())
		var te *errors.TopologyError
		require.ErrorAs(t, err, &te)
		assert.NotContains(t, err.Error(), "internal error")
	})

	t.Run("unknown field passes through", func(t *testing.T) {
		n := bump
		n.Arguments = fields.Names("nope")
		err := New(fragment(n)).Open(flow.Null())
		var uf *errors.UnknownFieldError
		require.ErrorAs(t, err, &uf)
	})

	t.Run("duplicate source fields", func(t *testing.T) {
		f := fragment()
		f.Sources[0].Fields = []schema.Field{{Name: "a"}, {Name: "a"}}
		err := New(f).Open(flow.Null())
		var df *errors.DuplicateFieldError
		assert.ErrorAs(t, err, &df)
	})

	t.Run("other failures are wrapped", func(t *testing.T) {
		err := New(fragment()).Open(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "internal error during mapper configuration")
	})
}

/*
TestMapper_ExecutionErrors verifies that execution failures are classified
and that cleanup runs regardless.
*/
func TestMapper_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name     string
		op       operator.Operator
		in       records.Iterator
		check    func(t *testing.T, err error)
		internal bool
	}{
		{
			name: "operator failure is attributed to the stage",
			op: operator.Func(func(*flow.Process, *operator.Call) error {
				return errors.New("boom")
			}),
			in: records.FromSlice([]records.Record{records.Of("a", 1)}),
			check: func(t *testing.T, err error) {
				var oe *errors.OperatorExecutionError
				require.ErrorAs(t, err, &oe)
				assert.Equal(t, "op", oe.Stage)
			},
		},
		{
			name: "resource exhaustion passes through",
			op: operator.Func(func(*flow.Process, *operator.Call) error {
				return errors.Wrap(errors.ErrResourceExhausted, "heap")
			}),
			in: records.FromSlice([]records.Record{records.Of("a", 1)}),
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsResourceExhausted(err))
			},
		},
		{
			name:     "source failure is wrapped",
			op:       operator.Func(func(*flow.Process, *operator.Call) error { return nil }),
			in:       failingIterator{},
			internal: true,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "disk gone")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned := false
			op := &cleanupSpy{Operator: tt.op, cleaned: &cleaned}
			m := New(fragment(graph.Node{Name: "op", Operator: op, Outputs: []schema.Field{{Name: "x"}}, Arguments: fields.Names("age")}))
			require.NoError(t, m.Open(flow.Null()))

			err := m.MapPartition(context.Background(), tt.in, &records.Buffer{})
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.internal, containsInternal(err))
			assert.True(t, cleaned, "cleanup must run after a failure")
		})
	}
}

func TestMapper_ContextCancelled(t *testing.T) {
	m := New(fragment(bump))
	require.NoError(t, m.Open(flow.Null()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.MapPartition(ctx, records.FromSlice([]records.Record{records.Of("a", 1)}), &records.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, containsInternal(err))
}

func TestMapper_MapPartitionBeforeOpen(t *testing.T) {
	err := New(fragment()).MapPartition(context.Background(), records.FromSlice(nil), &records.Buffer{})
	assert.ErrorIs(t, err, errors.ErrStageNotOpen)
}

func containsInternal(err error) bool {
	return err != nil && strings.Contains(err.Error(), "internal error during mapper execution")
}

type failingIterator struct{}

func (failingIterator) Next(context.Context) (records.Record, error) {
	return nil, errors.New("disk gone")
}

func (failingIterator) Close() error { return nil }

type cleanupSpy struct {
	operator.Operator
	cleaned *bool
}

func (c *cleanupSpy) Cleanup(p *flow.Process, call *operator.Call) error {
	*c.cleaned = true
	return c.Operator.Cleanup(p, call)
}
