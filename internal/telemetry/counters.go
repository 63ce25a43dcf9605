package telemetry

import (
	"sort"
	"sync"
)

// Counters counts events per "component/op" key.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
	last   map[string]Event
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: map[string]int64{}, last: map[string]Event{}}
}

func (c *Counters) Observe(e Event) {
	key := e.Component + "/" + e.Op
	c.mu.Lock()
	c.counts[key]++
	c.last[key] = e
	c.mu.Unlock()
}

// Count returns the number of events seen for component/op.
func (c *Counters) Count(component, op string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[component+"/"+op]
}

// Last returns the most recent event for component/op.
func (c *Counters) Last(component, op string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.last[component+"/"+op]
	return e, ok
}

// Snapshot copies the current counts.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Keys returns the observed keys in sorted order.
func (c *Counters) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}
