package builtin

import (
	"sort"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/operator"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// Dedup collapses records that agree on a key. Keys are argument field
// names (options.keys, default: every argument) compared with the schema
// comparator and bucketed by its xxh3 hash.
//
//   - keep-first (default) streams: the first record of each key is emitted
//     immediately and later duplicates are dropped.
//   - keep-last buffers one winner per key and emits them at Cleanup, ordered
//     by the position of each winner in the input.
type Dedup struct {
	keys     []string
	keepLast bool

	cmp     *schema.Comparator
	buckets map[uint64][]int
	winners []dedupSlot
	seen    int
}

type dedupSlot struct {
	rec   records.Record
	index int
}

func (d *Dedup) Configure(opts config.Options) error {
	d.keys = opts.StringSlice("keys")
	switch p := opts.String("policy", "keep-first"); p {
	case "keep-first":
	case "keep-last":
		d.keepLast = true
	default:
		return errors.Newf("dedup: policy %q must be keep-first or keep-last", p)
	}
	return nil
}

func (d *Dedup) Prepare(_ *flow.Process, call *operator.Call) error {
	if err := sameShape(ClassDedup, call); err != nil {
		return err
	}
	args := call.ArgumentFields()
	keys := d.keys
	if len(keys) == 0 {
		keys = args.Names()
	}
	cmp, err := args.Comparator(keys...)
	if err != nil {
		return errors.Wrap(err, "dedup keys")
	}
	d.cmp = cmp
	d.buckets = map[uint64][]int{}
	d.winners = nil
	d.seen = 0
	return nil
}

func (d *Dedup) Operate(p *flow.Process, call *operator.Call) error {
	rec := call.Arguments().Values()
	index := d.seen
	d.seen++

	h := d.cmp.Hash(rec)
	for _, w := range d.buckets[h] {
		if !d.cmp.Equal(d.winners[w].rec, rec) {
			continue
		}
		if p.CountersInitialized() {
			_ = p.Increment(CounterGroup, "Dedup_Duplicates", 1)
		}
		if d.keepLast {
			d.winners[w] = dedupSlot{rec: rec.Copy(), index: index}
		}
		return nil
	}

	d.buckets[h] = append(d.buckets[h], len(d.winners))
	d.winners = append(d.winners, dedupSlot{rec: rec.Copy(), index: index})
	if d.keepLast {
		return nil
	}
	return call.EmitRecord(rec)
}

func (d *Dedup) Cleanup(_ *flow.Process, call *operator.Call) error {
	defer func() { d.buckets, d.winners = nil, nil }()
	if !d.keepLast {
		return nil
	}
	sort.Slice(d.winners, func(i, j int) bool { return d.winners[i].index < d.winners[j].index })
	for _, w := range d.winners {
		if err := call.EmitRecord(w.rec); err != nil {
			return err
		}
	}
	return nil
}
