package flow

import "sort"

// Counters receives counter increments for one worker.
type Counters interface {
	Increment(group, name string, delta int64)
}

// CounterKey names one counter.
type CounterKey struct {
	Group string
	Name  string
}

func (k CounterKey) String() string { return k.Group + "." + k.Name }

// CounterMap is a worker-owned Counters backed by a plain map. The host
// merges the maps of all workers after their slices finish.
type CounterMap map[CounterKey]int64

func (m CounterMap) Increment(group, name string, delta int64) {
	m[CounterKey{Group: group, Name: name}] += delta
}

// Get returns the value of group/name.
func (m CounterMap) Get(group, name string) int64 {
	return m[CounterKey{Group: group, Name: name}]
}

// Merge adds every counter of o into m.
func (m CounterMap) Merge(o CounterMap) {
	for k, v := range o {
		m[k] += v
	}
}

// Keys returns the counter keys sorted by group, then name.
func (m CounterMap) Keys() []CounterKey {
	keys := make([]CounterKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}
