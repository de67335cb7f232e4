package nr

import "sync/atomic"

// Context is the per-thread handoff point between a submitting thread and
// whichever thread is currently acting as its replica's combiner. A thread
// enqueues an operation here, and - once some combiner round has replayed
// it - pops the matching result back out. It is a single-producer (the
// owning thread) / single-consumer-at-a-time (whichever thread currently
// holds the combiner role) ring buffer; ownership of the consumer side
// changes hands across combiner rounds, synchronized by Replica's combiner
// lock, never by Context itself.
type Context[M any, Rs any] struct {
	cap uint32

	ops   []M
	alive []atomic.Bool // alive[i]: ops[i] holds an op not yet dequeued
	tail  uint32         // next slot this thread will enqueue into

	results     []Rs
	resultAlive []atomic.Bool // resultAlive[i]: results[i] holds a result not yet popped
	head        uint32         // next slot the combiner will dequeue an op from
	resTail     uint32         // next slot the combiner will publish a result into
	resHead     uint32         // next slot this thread will pop a result from
}

// newContext builds a Context sized to hold up to cfg.BatchSize outstanding
// operations for a single thread.
func newContext[M any, Rs any](cfg Config) *Context[M, Rs] {
	n := cfg.BatchSize
	if n == 0 {
		n = 1
	}
	return &Context[M, Rs]{
		cap:         n,
		ops:         make([]M, n),
		alive:       make([]atomic.Bool, n),
		results:     make([]Rs, n),
		resultAlive: make([]atomic.Bool, n),
	}
}

// EnqueueOp stages op for the next combiner round to pick up. It returns
// false if the thread already has cap outstanding, unconsumed operations -
// callers should back off and retry rather than treat this as an error.
func (c *Context[M, Rs]) EnqueueOp(op M) bool {
	idx := c.tail % c.cap
	if c.alive[idx].Load() {
		return false
	}
	c.ops[idx] = op
	c.alive[idx].Store(true)
	c.tail++
	return true
}

// DequeueOps appends every currently pending operation, in submission
// order, to dst and returns the extended slice. Only the thread currently
// holding the combiner role for this context's replica may call this.
func (c *Context[M, Rs]) DequeueOps(dst []M) []M {
	for {
		idx := c.head % c.cap
		if !c.alive[idx].Load() {
			return dst
		}
		dst = append(dst, c.ops[idx])
		c.alive[idx].Store(false)
		c.head++
	}
}

// PublishResult hands back the result of the operation this context's
// owning thread least-recently enqueued and has not yet received a result
// for. Results must be published in the same relative order DequeueOps
// returned their operations - one PublishResult call per dequeued op, in
// order. Only the current combiner may call this.
func (c *Context[M, Rs]) PublishResult(r Rs) {
	idx := c.resTail % c.cap
	c.results[idx] = r
	c.resultAlive[idx].Store(true)
	c.resTail++
}

// PopResult returns the next result this thread has not yet consumed, if
// the combiner has published one. Only the owning thread may call this.
func (c *Context[M, Rs]) PopResult() (Rs, bool) {
	idx := c.resHead % c.cap
	if !c.resultAlive[idx].Load() {
		var zero Rs
		return zero, false
	}
	r := c.results[idx]
	c.resultAlive[idx].Store(false)
	c.resHead++
	return r, true
}
