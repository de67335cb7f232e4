package nr

import "sync/atomic"

// slot is a single entry in the log's ring buffer. It holds the operation
// payload plus the bookkeeping needed to route its result and to know when
// every replica has replayed it.
//
// Producer and every replaying consumer synchronize on exactly one field:
// alive. The producer writes op, replicaID, threadID, and replicasLeft first,
// then publishes the slot by storing alive with release semantics (Go's
// atomic.Bool.Store already provides this). A replaying consumer loads alive
// with acquire semantics (atomic.Bool.Load) before touching op, replicaID,
// or threadID - this happens-before relationship is the only synchronization
// this type provides. There are no per-slot locks.
type slot[M any] struct {
	op        M
	replicaID uint32
	threadID  uint32

	// alive is the generation bit: it must equal the reader's expected
	// generation (see Log.lmasks) before the slot's payload may be read.
	alive atomic.Bool

	// replicasLeft is the set of replicas that have not yet replayed this
	// slot. The head may advance past this slot only once it is empty.
	replicasLeft replicaBitmap
}
