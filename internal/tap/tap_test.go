package tap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

type nopTap struct{ id string }

func (n nopTap) Identifier() string { return n.id }
func (nopTap) OpenForRead(context.Context, *flow.Process) (records.Iterator, error) {
	return records.FromSlice(nil), nil
}
func (nopTap) OpenForWrite(context.Context, *flow.Process) (records.Collector, error) {
	return &records.Buffer{}, nil
}

var people = schema.MustNew(schema.Field{Name: "name", Class: "string"}, schema.Field{Name: "age", Class: "int"})

func TestRegistry(t *testing.T) {
	Register("nop-test", func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
		return nopTap{id: cfg.Path}, nil
	})
	Register("broken-test", func(config.Tap, *schema.Descriptor) (flow.Tap, error) {
		return nil, errors.New("bad options")
	})
	assert.Panics(t, func() { Register("nop-test", nil) })
	assert.Contains(t, Kinds(), "nop-test")

	got, err := New(config.Tap{Kind: " nop-test ", Path: "x"}, people)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Identifier())

	_, err = New(config.Tap{Kind: "nope"}, people)
	require.Error(t, err)
	assert.Contains(t, errors.GetAllHints(err)[0], "tap/all")

	_, err = New(config.Tap{Kind: "broken-test"}, people)
	assert.ErrorContains(t, err, "broken-test tap: bad options")

	_, err = New(config.Tap{Kind: "nop-test"}, nil)
	assert.Error(t, err)
}

func TestColumns(t *testing.T) {
	cols, err := Columns(config.Tap{}, people)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, cols)

	cols, err = Columns(config.Tap{Columns: []string{"jmeno", "vek"}}, people)
	require.NoError(t, err)
	assert.Equal(t, []string{"jmeno", "vek"}, cols)

	_, err = Columns(config.Tap{Columns: []string{"only"}}, people)
	var am *errors.ArityMismatchError
	assert.ErrorAs(t, err, &am)
}

func TestWithRelease(t *testing.T) {
	released := 0
	it := WithRelease(records.FromSlice(nil), func() error { released++; return errors.New("release") })
	assert.ErrorContains(t, it.Close(), "release")
	assert.NoError(t, it.Close())
	assert.Equal(t, 1, released)
}
