package nr

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Replica is one NUMA-local copy of a Dispatch-shaped data structure. Every
// Replica registered against the same Log converges to the same sequence of
// mutations; reads served by a Replica only ever observe its own copy.
//
// A Replica is safe for concurrent use by every thread registered against
// it, and by no one else: a ThreadToken obtained from one Replica must never
// be passed to another.
type Replica[M any, R any, Rs any] struct {
	id       uint32
	log      *Log[M]
	dispatch Dispatch[M, R, Rs]

	// dataMu guards the underlying data structure directly. It is taken
	// exclusively while replaying mutations (see combine/replay) and taken
	// for reading while answering a read-only operation (see Execute) -
	// this is what keeps a read from observing a partially-applied replay
	// once the combiner lock below has already been handed off to someone
	// else.
	dataMu sync.RWMutex

	// combinerLock arbitrates which single thread is allowed to drive a
	// log append and replay on behalf of everyone else at any moment. It
	// is a plain CAS flag, not a sync.Mutex, because losing the race is a
	// valid, expected outcome (see tryBecomeCombiner).
	combinerLock atomic.Uint32

	ctxMu    sync.RWMutex
	contexts []*Context[M, Rs]
	active   []bool
	nextScan atomic.Uint32
}

// NewReplica registers a new replica against log and returns it, ready to
// accept thread registrations. dispatch is the data structure this replica
// will keep in sync with every other replica on log.
func NewReplica[M any, R any, Rs any](log *Log[M], dispatch Dispatch[M, R, Rs]) (*Replica[M, R, Rs], error) {
	id, err := log.RegisterReplica()
	if err != nil {
		return nil, err
	}
	return &Replica[M, R, Rs]{
		id:       id,
		log:      log,
		dispatch: dispatch,
	}, nil
}

// ID returns this replica's id on its Log.
func (r *Replica[M, R, Rs]) ID() uint32 { return r.id }

// Register allocates a ThreadToken for a new thread that wants to submit
// operations to this replica. Threads should register once, up front, and
// reuse the token for the lifetime of the goroutine.
func (r *Replica[M, R, Rs]) Register() (ThreadToken, error) {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()

	if uint32(len(r.contexts)) >= r.log.cfg.MaxThreadsPerReplica {
		return ThreadToken{}, NewError(RetCRegisterFull, "replica has no more thread slots")
	}

	threadID := uint32(len(r.contexts))
	r.contexts = append(r.contexts, newContext[M, Rs](r.log.cfg))
	r.active = append(r.active, true)

	return ThreadToken{replicaID: r.id, threadID: threadID}, nil
}

// Unregister releases tkn. The underlying slot is not reused for the
// lifetime of the replica - MaxThreadsPerReplica bounds how many threads may
// ever register, registered or not - which keeps combine's round-robin scan
// and every context index stable without any extra synchronization beyond
// the active flag checked here and in contextFor.
func (r *Replica[M, R, Rs]) Unregister(tkn ThreadToken) {
	if tkn.replicaID != r.id {
		panic(NewError(RetCInvalidToken, "thread token does not belong to this replica"))
	}
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()
	if int(tkn.threadID) >= len(r.active) || !r.active[tkn.threadID] {
		panic(NewError(RetCInvalidToken, "thread token is not registered on this replica"))
	}
	r.active[tkn.threadID] = false
}

func (r *Replica[M, R, Rs]) contextFor(tkn ThreadToken) *Context[M, Rs] {
	if tkn.replicaID != r.id {
		panic(NewError(RetCInvalidToken, "thread token does not belong to this replica"))
	}
	r.ctxMu.RLock()
	defer r.ctxMu.RUnlock()
	if int(tkn.threadID) >= len(r.contexts) || !r.active[tkn.threadID] {
		panic(NewError(RetCInvalidToken, "thread token is not registered on this replica"))
	}
	return r.contexts[tkn.threadID]
}

// ExecuteMut submits a mutating operation and blocks until it has been
// ordered into the shared log and applied to this replica, returning its
// result. Every other replica will eventually apply the same operation, in
// the same order relative to every other mutation ever submitted to the
// log, producing the same result.
func (r *Replica[M, R, Rs]) ExecuteMut(op M, tkn ThreadToken) Rs {
	ctx := r.contextFor(tkn)

	// Under this blocking API a thread never has more than one operation
	// outstanding at a time (ExecuteMut always pops its result before
	// returning), so EnqueueOp succeeds on the first try; the spin below
	// only guards against the BatchSize-outstanding edge case.
	for !ctx.EnqueueOp(op) {
		runtime.Gosched()
	}

	return r.executeHelper(ctx)
}

// Execute answers a read-only operation using this replica's own copy of
// the data structure, after first syncing it up to the log's tail at the
// moment of the call. It never mutates the log.
func (r *Replica[M, R, Rs]) Execute(op R, tkn ThreadToken) Rs {
	_ = r.contextFor(tkn) // validates the token even though reads need no context

	ctail := r.log.GetCtail()
	for r.log.LocalTail(r.id) < ctail {
		if r.tryBecomeCombiner() {
			r.combine()
			r.releaseCombiner()
		} else {
			runtime.Gosched()
		}
	}

	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.dispatch.Apply(op)
}

// Sync replays every mutation appended to the log up to this call's start,
// without answering any operation. It is useful to call after a burst of
// ExecuteMut calls elsewhere before relying on this replica's copy being
// current, and is what backs the freshness guarantee Execute already
// provides internally.
func (r *Replica[M, R, Rs]) Sync(tkn ThreadToken) {
	_ = r.contextFor(tkn)

	ctail := r.log.GetCtail()
	for r.log.LocalTail(r.id) < ctail {
		if r.tryBecomeCombiner() {
			r.combine()
			r.releaseCombiner()
		} else {
			runtime.Gosched()
		}
	}
}
