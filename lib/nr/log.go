package nr

import (
	"math/bits"
	"runtime"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("nr")

// spinWarnThreshold is how many busy-wait iterations Log logs a single
// warning after, so that a deadlocked or badly starved caller shows up in
// the logs instead of spinning silently forever.
const spinWarnThreshold = 1 << 20

// Log is the circular, lock-free operation log shared by every Replica
// registered against it. It is generic over M, the type of mutating
// operations it carries; read-only operations never touch the log.
//
// A Log is safe for concurrent use by multiple goroutines. There is no
// dynamic resizing: LogCapacity and MaxReplicas are fixed at construction.
type Log[M any] struct {
	cfg     Config
	capBits uint
	mask    uint64
	slots   []slot[M]

	tail          atomic.Uint64
	head          atomic.Uint64
	committedTail atomic.Uint64

	numReplicas atomic.Uint32
	ltails      [MaxReplicas]atomic.Uint64
	lmasks      [MaxReplicas]bool

	metrics *logMetrics
}

// NewLog constructs a Log from cfg. If name is non-empty, the Log exposes a
// VictoriaMetrics set (see Log.Metrics) under that name; pass "" to skip
// instrumentation entirely.
func NewLog[M any](cfg Config, name string) (*Log[M], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Log[M]{
		cfg:     cfg,
		capBits: uint(bits.TrailingZeros64(cfg.LogCapacity)),
		mask:    cfg.LogCapacity - 1,
		slots:   make([]slot[M], cfg.LogCapacity),
	}
	// Placeholder default for as-yet-unregistered slots; RegisterReplica
	// overwrites this with the real generation snapshot at registration
	// time, so this only matters if lmasks is read before any replica
	// registers.
	for i := range l.lmasks {
		l.lmasks[i] = true
	}

	if name != "" {
		l.metrics = newLogMetrics(name, l)
	}

	return l, nil
}

// generation returns the producer's generation bit for global log index idx:
// true for the first pass through the ring, flipping every time idx crosses
// a multiple of the log's capacity.
func (l *Log[M]) generation(idx uint64) bool {
	return (idx>>l.capBits)&1 == 0
}

func (l *Log[M]) index(idx uint64) uint64 {
	return idx & l.mask
}

// RegisterReplica allocates a new replica id. It returns *Error{Code:
// RetCRegisterFull} once Config.MaxReplicas replicas have registered.
//
// Replicas should register before any Append calls target the log; a
// replica registering later simply starts replaying from the log's current
// tail; it will never see entries appended before it existed. Growing or
// shrinking the replica set beyond this is out of scope (see Non-goals).
func (l *Log[M]) RegisterReplica() (uint32, error) {
	for {
		n := l.numReplicas.Load()
		if n >= l.cfg.MaxReplicas {
			return 0, NewError(RetCRegisterFull, "no more replica slots on this log")
		}
		if l.numReplicas.CompareAndSwap(n, n+1) {
			t := l.tail.Load()
			l.ltails[n].Store(t)
			l.lmasks[n] = l.generation(t)
			return n, nil
		}
	}
}

// Append reserves len(ops) contiguous slots at the tail, fills them, and
// publishes them by flipping each slot's generation bit. threadIDs[i]
// identifies which of replicaID's threads submitted ops[i] and is used
// later, during replay, to route ops[i]'s result back to its submitter.
//
// Append returns ErrNeedSync when the log is too full relative to head for
// the reservation to be safe; the caller must drive a replay of its own
// replica (Log.Exec) and retry - this is ordinary backpressure, not an
// error condition.
func (l *Log[M]) Append(replicaID uint32, ops []M, threadIDs []uint32) (uint64, error) {
	n := uint64(len(ops))
	if n == 0 {
		return l.tail.Load(), nil
	}

	numReplicas := l.numReplicas.Load()
	slack := l.cfg.reclaimSlack()

	for {
		tail := l.tail.Load()
		head := l.head.Load()

		if tail+n-head > l.cfg.LogCapacity-slack {
			l.metrics.recordNeedSync()
			return 0, ErrNeedSync
		}

		if !l.tail.CompareAndSwap(tail, tail+n) {
			l.metrics.recordAppendRetry()
			continue
		}

		for i := uint64(0); i < n; i++ {
			idx := tail + i
			s := &l.slots[l.index(idx)]
			s.op = ops[i]
			s.replicaID = replicaID
			s.threadID = threadIDs[i]
			s.replicasLeft.reset(numReplicas)
			s.alive.Store(l.generation(idx))
		}

		return tail, nil
	}
}

// Exec replays every slot in [ltails[replicaID], until) - or up to the
// log's current tail if until is nil - invoking apply for each one, then
// advances and returns replicaID's local tail. apply receives the operation,
// the id of the replica that originally appended it, the thread slot on that
// replica that submitted it, and the operation's absolute log index.
//
// Exec must only ever be called by the thread currently acting as
// replicaID's combiner (see Replica); it is not safe to call concurrently
// for the same replicaID.
func (l *Log[M]) Exec(replicaID uint32, until *uint64, apply func(op M, opReplicaID, opThreadID uint32, logIdx uint64)) uint64 {
	t := l.tail.Load()
	if until != nil && *until < t {
		t = *until
	}

	lt := l.ltails[replicaID].Load()
	if lt >= t {
		return lt
	}

	want := l.lmasks[replicaID]
	for i := lt; i < t; i++ {
		s := &l.slots[l.index(i)]

		spins := 0
		for s.alive.Load() != want {
			// The slot's index has been reserved by Append but not yet
			// filled in - this window is always short (a handful of
			// stores) and never blocked on another replica.
			spins++
			if spins == spinWarnThreshold {
				log.Warningf("nr: replica %d waiting a long time for slot %d to be published", replicaID, i)
			}
			runtime.Gosched()
		}

		apply(s.op, s.replicaID, s.threadID, i)
		s.replicasLeft.clear(replicaID)

		if l.index(i+1) == 0 {
			want = !want
		}
	}

	l.lmasks[replicaID] = want
	l.ltails[replicaID].Store(t)
	return t
}

// AdvanceHead reclaims up to 128 consecutive slots starting at head: while
// the slot currently at head has been replayed by every replica, head is
// advanced past it. It stops at the first slot some replica still has to
// replay, never blocks, and reports whether head moved; callers that want to
// reclaim more call it in a loop.
func (l *Log[M]) AdvanceHead() bool {
	const maxBatch = 128

	advanced := false
	for i := 0; i < maxBatch; i++ {
		h := l.head.Load()
		if h >= l.tail.Load() {
			break
		}
		s := &l.slots[l.index(h)]
		if !s.replicasLeft.isEmpty() {
			break
		}
		if !l.head.CompareAndSwap(h, h+1) {
			break
		}
		l.metrics.recordAdvanceHead()
		advanced = true
	}
	return advanced
}

// GetCtail snapshots the log's current tail. A reader that wants freshness
// relative to "everything appended so far" replays up to this value via
// SyncTo before querying its replica's data structure.
func (l *Log[M]) GetCtail() uint64 {
	return l.tail.Load()
}

// SyncTo replays replicaID up to (at most) ctail and returns its new local
// tail. It is a thin wrapper around Exec bounded by an explicit index.
func (l *Log[M]) SyncTo(replicaID uint32, ctail uint64, apply func(op M, opReplicaID, opThreadID uint32, logIdx uint64)) uint64 {
	return l.Exec(replicaID, &ctail, apply)
}

// RefreshCommittedTail recomputes the advisory committed-tail as the
// minimum local tail across every registered replica and stores it if it
// increased. CommittedTail is never used for correctness - only tail, head,
// and each replica's local tail are - so callers may refresh it as
// infrequently as they like (e.g. from a metrics scrape).
func (l *Log[M]) RefreshCommittedTail() uint64 {
	n := l.numReplicas.Load()
	if n == 0 {
		return l.committedTail.Load()
	}

	min := l.ltails[0].Load()
	for r := uint32(1); r < n; r++ {
		if v := l.ltails[r].Load(); v < min {
			min = v
		}
	}

	for {
		cur := l.committedTail.Load()
		if min <= cur {
			return cur
		}
		if l.committedTail.CompareAndSwap(cur, min) {
			return min
		}
	}
}

// LocalTail returns replicaID's local tail: the next log index it will
// apply, i.e. one past the highest index it has applied.
func (l *Log[M]) LocalTail(replicaID uint32) uint64 {
	return l.ltails[replicaID].Load()
}
