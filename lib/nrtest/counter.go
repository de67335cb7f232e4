package nrtest

import "github.com/nrlog/nr/lib/nr"

// CounterOp is the mutating operation accepted by Counter.
type CounterOp struct {
	Delta int64 // Increment adds Delta to the running total
	Reset bool  // Reset, if set, zeroes the total before applying Delta
}

// CounterReadOp is the read-only operation accepted by Counter. It carries
// no fields: Counter only ever answers "what is the current value".
type CounterReadOp struct{}

// Counter is the simplest possible replicated data structure: a running
// total. It exists mainly to exercise nr.Log/nr.Replica's ordering and
// liveness guarantees without any domain complexity getting in the way.
type Counter struct {
	value int64
}

var _ nr.Dispatch[CounterOp, CounterReadOp, int64] = (*Counter)(nil)

// ApplyMut implements nr.Dispatch.
func (c *Counter) ApplyMut(op CounterOp, _ nr.ThreadToken) int64 {
	if op.Reset {
		c.value = 0
	}
	c.value += op.Delta
	return c.value
}

// Apply implements nr.Dispatch.
func (c *Counter) Apply(CounterReadOp) int64 {
	return c.value
}
