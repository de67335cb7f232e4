package nr

import "testing"

func TestContextEnqueueDequeuePublishPop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 4
	ctx := newContext[int, string](cfg)

	if !ctx.EnqueueOp(10) {
		t.Fatalf("EnqueueOp(10) should succeed")
	}
	if !ctx.EnqueueOp(20) {
		t.Fatalf("EnqueueOp(20) should succeed")
	}

	ops := ctx.DequeueOps(nil)
	if len(ops) != 2 || ops[0] != 10 || ops[1] != 20 {
		t.Fatalf("unexpected dequeued ops: %v", ops)
	}

	// Nothing left to dequeue until something new is enqueued.
	if ops2 := ctx.DequeueOps(nil); len(ops2) != 0 {
		t.Fatalf("expected no pending ops, got %v", ops2)
	}

	ctx.PublishResult("ten")
	ctx.PublishResult("twenty")

	r1, ok := ctx.PopResult()
	if !ok || r1 != "ten" {
		t.Fatalf("PopResult 1: %q, %v", r1, ok)
	}
	r2, ok := ctx.PopResult()
	if !ok || r2 != "twenty" {
		t.Fatalf("PopResult 2: %q, %v", r2, ok)
	}
	if _, ok := ctx.PopResult(); ok {
		t.Fatalf("expected no more results")
	}
}

func TestContextFullRing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	ctx := newContext[int, int](cfg)

	if !ctx.EnqueueOp(1) || !ctx.EnqueueOp(2) {
		t.Fatalf("expected first two enqueues to succeed")
	}
	if ctx.EnqueueOp(3) {
		t.Fatalf("expected enqueue to fail once the ring is full")
	}

	ctx.DequeueOps(nil)
	if !ctx.EnqueueOp(3) {
		t.Fatalf("expected enqueue to succeed once a slot freed up")
	}
}
