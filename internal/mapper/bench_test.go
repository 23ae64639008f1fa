package mapper

import (
	"context"
	"testing"

	"flowbridge/internal/config"
	"flowbridge/internal/fields"
	"flowbridge/internal/flow"
	"flowbridge/internal/graph"
	"flowbridge/internal/operator/builtin"
	"flowbridge/internal/schema"
	"flowbridge/internal/storage"
	"flowbridge/pkg/records"
)

// BenchmarkMapPartition_CoerceToBatches measures one slice turning raw
// string records into typed rows and batching them for a bulk copy that
// discards them.
//
//	go test -run=^$ -bench ^BenchmarkMapPartition_CoerceToBatches$ -benchmem ./internal/mapper
func BenchmarkMapPartition_CoerceToBatches(b *testing.B) {
	ctx := context.Background()
	cols := []string{"pcv", "typ", "stav", "platnost_od", "aktualni"}
	src := make([]schema.Field, len(cols))
	for i, c := range cols {
		src[i] = schema.Field{Name: c, Class: "string"}
	}

	frag := graph.Fragment{
		Name:    "bench",
		Sources: []graph.Boundary{{Name: "in", Fields: src}},
		Sinks:   []graph.Boundary{{Name: "out"}},
		Nodes: []graph.Node{{
			Name:      "coerce",
			Class:     builtin.ClassCoerce,
			Arguments: fields.Names("pcv", "platnost_od", "aktualni"),
			Outputs: []schema.Field{
				{Name: "pcv", Class: "long"},
				{Name: "platnost_od", Class: "date"},
				{Name: "aktualni", Class: "bool"},
			},
			Policy:  fields.Swap,
			Options: config.Options{"layout": "02.01.2006"},
		}},
	}
	m := New(frag)
	if err := m.Open(flow.Null()); err != nil {
		b.Fatal(err)
	}
	defer m.Close()

	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		return int64(len(rows)), nil
	}
	w, err := storage.NewBatchWriter(ctx, cols, 4096, copyFn, nil, nil)
	if err != nil {
		b.Fatal(err)
	}

	in := make(chan records.Record, 8192)
	go func() {
		defer close(in)
		for i := 0; i < b.N; i++ {
			in <- records.Of("123456", "E - Evidenční", "Nezjištěno", "07.10.2011", "True")
		}
	}()

	b.ResetTimer()
	if err := m.MapPartition(ctx, records.FromChan(in), w); err != nil {
		b.Fatal(err)
	}
	if err := w.Close(); err != nil {
		b.Fatal(err)
	}
	b.StopTimer()
	if w.Total() != int64(b.N) {
		b.Fatalf("wrote %d rows, want %d", w.Total(), b.N)
	}
}
