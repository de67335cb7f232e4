package nr

// Dispatch is the contract a user data structure must satisfy to be
// replicated by a Replica. M is the mutating operation type, R the
// read-only operation type, Rs the (shared) result type returned by both.
//
// ApplyMut must be deterministic: given the same starting state and the
// same op, it must produce the same mutation and the same result on every
// replica. Nondeterministic ApplyMut breaks replica equivalence and is not
// supported.
//
// A Replica never calls ApplyMut and Apply concurrently against the same
// underlying data: ApplyMut runs under an exclusive lock (only one combiner
// replays at a time), Apply runs under a shared lock (concurrent reads are
// allowed, but never overlap a replay).
type Dispatch[M any, R any, Rs any] interface {
	// ApplyMut applies a mutating operation to the data structure and
	// returns its result. tkn identifies the thread that originally
	// submitted op, for data structures that care about submitter
	// identity (e.g. lock ownership).
	ApplyMut(op M, tkn ThreadToken) Rs

	// Apply answers a read-only operation without mutating the data
	// structure.
	Apply(op R) Rs
}

// ThreadToken is an opaque handle identifying a thread registered with a
// specific Replica. It is valid only on the replica that issued it via
// Register, and must not be used concurrently by two goroutines.
type ThreadToken struct {
	replicaID uint32
	threadID  uint32
}

// ReplicaID returns the id of the replica that issued this token.
func (t ThreadToken) ReplicaID() uint32 { return t.replicaID }
