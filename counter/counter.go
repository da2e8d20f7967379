// Package counter holds the pulse counters fed by the rain gauge and anemometer edges.
//
// A PulseCounter has any number of writers (edge handlers calling Increment)
// and exactly one reader, the batch writer, which drains it with ReadAndReset
// once per sampling tick. Nothing else may reset it.
package counter

import "sync/atomic"

type PulseCounter struct {
	name  string
	count atomic.Uint64
}

func New(name string) *PulseCounter {
	return &PulseCounter{name: name}
}

func (c *PulseCounter) Name() string {
	return c.name
}

// Increment records one debounced pulse. Safe to call from the edge goroutine.
func (c *PulseCounter) Increment() {
	c.count.Add(1)
}

// ReadAndReset returns the pulses seen since the last call and zeroes the counter
// in one atomic step, so a pulse is either in this result or the next.
func (c *PulseCounter) ReadAndReset() uint64 {
	return c.count.Swap(0)
}

// Load returns the pending count without consuming it.
func (c *PulseCounter) Load() uint64 {
	return c.count.Load()
}
