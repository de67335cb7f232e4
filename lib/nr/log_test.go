package nr

import (
	"testing"
	"time"
)

func newTestLog(t *testing.T, capacity, slack uint64) *Log[int] {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LogCapacity = capacity
	cfg.ReclaimSlack = slack
	l, err := NewLog[int](cfg, "")
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	return l
}

func TestLogAppendAndExecSingleReplica(t *testing.T) {
	l := newTestLog(t, 16, 2)

	rid, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	if _, err := l.Append(rid, []int{1, 2, 3}, []uint32{0, 0, 0}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var seen []int
	tail := l.Exec(rid, nil, func(op int, _, _ uint32, _ uint64) {
		seen = append(seen, op)
	})

	if tail != 3 {
		t.Fatalf("want tail 3, got %d", tail)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("unexpected replay order: %v", seen)
	}
}

func TestLogGenerationWrapsAcrossCapacity(t *testing.T) {
	const capacity = 8
	l := newTestLog(t, capacity, 2)
	rid, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	var flips int
	prevWant := l.lmasks[rid]

	for i := 0; i < capacity*8; i++ {
		if _, err := l.Append(rid, []int{i}, []uint32{0}); err != nil {
			t.Fatalf("Append at i=%d: %v", i, err)
		}
		l.Exec(rid, nil, func(int, uint32, uint32, uint64) {})
		l.AdvanceHead()

		if l.lmasks[rid] != prevWant {
			flips++
			prevWant = l.lmasks[rid]
		}
	}

	// Every full pass through the ring flips the generation bit once; 8
	// passes through an 8-slot ring over 64 appends flips it 8 times.
	if flips != 8 {
		t.Fatalf("want 8 generation flips, got %d", flips)
	}
}

func TestLogNeedSyncUnderBackpressure(t *testing.T) {
	l := newTestLog(t, 8, 2)
	fast, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}
	slow, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica (slow): %v", err)
	}

	// Fill until backpressure kicks in - slow never replays, so head never
	// advances past its local tail (0).
	var gotNeedSync bool
	for i := 0; i < 20; i++ {
		if _, err := l.Append(fast, []int{i}, []uint32{0}); err != nil {
			if err == ErrNeedSync {
				gotNeedSync = true
				break
			}
			t.Fatalf("Append: unexpected error %v", err)
		}
	}
	if !gotNeedSync {
		t.Fatalf("expected ErrNeedSync once the log filled up relative to the stalled replica")
	}

	// Once every registered replica - including fast itself, for its own
	// appended ops - has replayed, head can advance and fast can make
	// progress again.
	l.Exec(fast, nil, func(int, uint32, uint32, uint64) {})
	l.Exec(slow, nil, func(int, uint32, uint32, uint64) {})
	l.AdvanceHead()

	if _, err := l.Append(fast, []int{999}, []uint32{0}); err != nil {
		t.Fatalf("Append after slow caught up: %v", err)
	}
}

func TestLogRegisterReplicaAfterOddWrap(t *testing.T) {
	const capacity = 8
	l := newTestLog(t, capacity, 2)
	first, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica: %v", err)
	}

	// Drive the tail past exactly one full pass through the ring (an odd
	// number of wraps), replaying and reclaiming as it goes so Append never
	// hits backpressure.
	for i := 0; i < capacity+2; i++ {
		if _, err := l.Append(first, []int{i}, []uint32{0}); err != nil {
			t.Fatalf("Append at i=%d: %v", i, err)
		}
		l.Exec(first, nil, func(int, uint32, uint32, uint64) {})
		l.AdvanceHead()
	}
	if l.generation(l.tail.Load()) {
		t.Fatalf("test setup bug: expected an odd generation at registration time")
	}

	late, err := l.RegisterReplica()
	if err != nil {
		t.Fatalf("RegisterReplica (late): %v", err)
	}

	if _, err := l.Append(first, []int{100}, []uint32{0}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	done := make(chan struct{})
	go func() {
		l.Exec(late, nil, func(int, uint32, uint32, uint64) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("late replica's Exec hung waiting for the wrong generation bit")
	}
}

func TestLogCommittedTailIsAdvisory(t *testing.T) {
	l := newTestLog(t, 16, 2)
	r1, _ := l.RegisterReplica()
	r2, _ := l.RegisterReplica()

	l.Append(r1, []int{1, 2, 3}, []uint32{0, 0, 0})
	l.Exec(r1, nil, func(int, uint32, uint32, uint64) {})

	// r2 has not replayed anything yet: committed tail reflects the
	// minimum across replicas, so it should still read 0.
	if got := l.RefreshCommittedTail(); got != 0 {
		t.Fatalf("want committed tail 0 before r2 catches up, got %d", got)
	}

	l.Exec(r2, nil, func(int, uint32, uint32, uint64) {})
	if got := l.RefreshCommittedTail(); got != 3 {
		t.Fatalf("want committed tail 3 after both replicas caught up, got %d", got)
	}
}
