// Package tap turns configured storage endpoints into flow.Tap values.
// Implementations register a factory per kind from their init function;
// import flowbridge/internal/tap/all to link every built-in kind.
package tap

import (
	"sort"
	"strings"
	"sync"

	"flowbridge/internal/config"
	"flowbridge/internal/errors"
	"flowbridge/internal/flow"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

// Factory builds a tap for records described by desc.
type Factory func(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register binds kind to f. Registering a kind twice panics.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("tap: duplicate kind " + kind)
	}
	factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the tap cfg names.
func New(cfg config.Tap, desc *schema.Descriptor) (flow.Tap, error) {
	if desc == nil {
		return nil, errors.Newf("tap %s: no schema", cfg.Kind)
	}
	kind := strings.TrimSpace(cfg.Kind)
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(errors.Newf("unknown tap kind %q", kind),
			"registered kinds: %v; import flowbridge/internal/tap/all", Kinds())
	}
	t, err := f(cfg, desc)
	if err != nil {
		return nil, errors.Wrapf(err, "%s tap", kind)
	}
	return t, nil
}

// Columns returns the external column names of desc: cfg.Columns when set,
// the field names otherwise.
func Columns(cfg config.Tap, desc *schema.Descriptor) ([]string, error) {
	if len(cfg.Columns) == 0 {
		return desc.Names(), nil
	}
	if len(cfg.Columns) != desc.Arity() {
		return nil, &errors.ArityMismatchError{What: "tap columns", Want: desc.Arity(), Got: len(cfg.Columns)}
	}
	return append([]string(nil), cfg.Columns...), nil
}

// WithRelease returns it with release run after it is closed. The first
// error wins.
func WithRelease(it records.Iterator, release func() error) records.Iterator {
	return &releasing{Iterator: it, release: release}
}

type releasing struct {
	records.Iterator
	release func() error
	done    bool
}

func (r *releasing) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	err := r.Iterator.Close()
	if rerr := r.release(); err == nil {
		err = rerr
	}
	return err
}
