package recfile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

var events = schema.MustNew(
	schema.Field{Name: "id", Class: "long"},
	schema.Field{Name: "kind", Class: "string"},
	schema.Field{Name: "ok", Class: "bool"},
)

func sample() []records.Record {
	return []records.Record{
		records.Of(int64(1), "open", true),
		records.Of(int64(2), nil, false),
		records.Of(int64(3), "close", nil),
	}
}

func writeAll(t *testing.T, tp *Tap, p *flow.Process, recs []records.Record) {
	t.Helper()
	w, err := tp.OpenForWrite(context.Background(), p)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Add(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, tp *Tap, p *flow.Process) []records.Record {
	t.Helper()
	it, err := tp.OpenForRead(context.Background(), p)
	require.NoError(t, err)
	defer it.Close()
	var out []records.Record
	for {
		rec, err := it.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

/*
TestRoundTrip verifies that records, including nils, survive a write and a
read, with and without compression.
*/
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts config.Options
	}{
		{"plain", nil},
		{"zstd", config.Options{"compression": "zstd"}},
		{"zstd best", config.Options{"compression": "zstd", "level": "best"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.rec")
			tp, err := New(config.Tap{Path: path, Options: tt.opts}, events)
			require.NoError(t, err)

			writeAll(t, tp, flow.Null(), sample())
			assert.Equal(t, sample(), readAll(t, tp, flow.Null()))

			// The reader detects compression on its own.
			plain, err := New(config.Tap{Path: path}, events)
			require.NoError(t, err)
			assert.Equal(t, sample(), readAll(t, plain, flow.Null()))
		})
	}
}

func TestPartsPerWorker(t *testing.T) {
	dir := t.TempDir()
	tp, err := New(config.Tap{Path: dir, Options: config.Options{"compression": "zstd"}}, events)
	require.NoError(t, err)

	recs := sample()
	for i := 0; i < 2; i++ {
		p, err := flow.New(i, 2, nil)
		require.NoError(t, err)
		writeAll(t, tp, p, recs[i:i+1])
	}
	assert.FileExists(t, filepath.Join(dir, "part-00000.rec.zst"))
	assert.FileExists(t, filepath.Join(dir, "part-00001.rec.zst"))

	// A single reader sees every part in name order.
	assert.Equal(t, recs[:2], readAll(t, tp, flow.Null()))
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "narrow.rec")
	narrow := schema.MustNew(schema.Field{Name: "id", Class: "long"})
	tp, err := New(config.Tap{Path: path}, narrow)
	require.NoError(t, err)
	writeAll(t, tp, flow.Null(), []records.Record{records.Of(int64(1))})

	wide, err := New(config.Tap{Path: path}, events)
	require.NoError(t, err)
	it, err := wide.OpenForRead(context.Background(), flow.Null())
	require.NoError(t, err)
	_, err = it.Next(context.Background())
	var am *errors.ArityMismatchError
	require.ErrorAs(t, err, &am)
	assert.Equal(t, 3, am.Want)
	assert.Equal(t, 1, am.Got)

	junk := filepath.Join(dir, "junk.rec")
	require.NoError(t, os.WriteFile(junk, []byte("name,age\n"), 0o644))
	jt, err := New(config.Tap{Path: junk}, events)
	require.NoError(t, err)
	it, err = jt.OpenForRead(context.Background(), flow.Null())
	require.NoError(t, err)
	_, err = it.Next(context.Background())
	assert.ErrorContains(t, err, "not a record file")
}

func TestNewErrors(t *testing.T) {
	_, err := New(config.Tap{}, events)
	assert.Error(t, err)
	_, err = New(config.Tap{Path: "x", Options: config.Options{"compression": "lz4"}}, events)
	assert.ErrorContains(t, err, "unknown compression")
	_, err = New(config.Tap{Path: "x", Options: config.Options{"level": "ludicrous"}}, events)
	assert.ErrorContains(t, err, "unknown zstd level")
}

func TestWriteArity(t *testing.T) {
	tp, err := New(config.Tap{Path: filepath.Join(t.TempDir(), "e.rec")}, events)
	require.NoError(t, err)
	w, err := tp.OpenForWrite(context.Background(), flow.Null())
	require.NoError(t, err)
	var am *errors.ArityMismatchError
	assert.ErrorAs(t, w.Add(records.Of(int64(1))), &am)
	require.NoError(t, w.Close())
	assert.Error(t, w.Add(sample()[0]))
}
