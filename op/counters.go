package op

import "sync/atomic"

// Counters tally one operator invocation. Every record is counted once: a
// batch dropped by its guard adds its length to Dropped a single time.
type Counters struct {
	in      atomic.Int64
	out     atomic.Int64
	dropped atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	In      int64 `json:"in"`
	Out     int64 `json:"out"`
	Dropped int64 `json:"dropped"`
}

// AddDropped records n records lost to fault containment.
func (c *Counters) AddDropped(n int) {
	if c != nil && n > 0 {
		c.dropped.Add(int64(n))
	}
}

func (c *Counters) setIO(in, out int) {
	c.in.Store(int64(in))
	c.out.Store(int64(out))
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() CounterSnapshot {
	if c == nil {
		return CounterSnapshot{}
	}
	return CounterSnapshot{In: c.in.Load(), Out: c.out.Load(), Dropped: c.dropped.Load()}
}
