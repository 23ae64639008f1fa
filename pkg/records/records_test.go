package records

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestCopy_Independent verifies that Copy returns a record that does not share
backing storage with the original.
*/
func TestCopy_Independent(t *testing.T) {
	r := Of("a", 1)
	c := r.Copy()
	c[0] = "b"

	assert.Equal(t, "a", r[0])
	assert.Nil(t, Record(nil).Copy())
}

func TestEqual(t *testing.T) {
	assert.True(t, Of("a", 1, nil).Equal(Of("a", 1, nil)))
	assert.False(t, Of("a", 1).Equal(Of("a", int64(1))))
	assert.False(t, Of("a").Equal(Of("a", 1)))
}

func TestSliceIterator_DrainsThenEOF(t *testing.T) {
	ctx := context.Background()
	it := FromSlice([]Record{Of(1), Of(2)})

	var got []Record
	for {
		r, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, r)
	}
	assert.Equal(t, []Record{Of(1), Of(2)}, got)

	_, err := it.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestChanIterator_ContextCancel(t *testing.T) {
	ch := make(chan Record)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FromChan(ch).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTee_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var a, c Buffer
	tee := Tee{&a, SinkFunc(func(Record) error { return boom }), &c}

	err := tee.Add(Of(1))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Records, 1)
	assert.Empty(t, c.Records)
}

func TestCount_Forwards(t *testing.T) {
	var b Buffer
	c := &Count{Next: &b}
	require.NoError(t, c.Add(Of(1)))
	require.NoError(t, c.Add(Of(2)))
	assert.Equal(t, int64(2), c.N)
	assert.Len(t, b.Records, 2)
}
