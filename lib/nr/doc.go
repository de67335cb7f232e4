// Package nr implements a node-replicated shared log: a technique for scaling
// an arbitrary single-threaded data structure across many CPU cores by keeping
// one deterministic replica of the structure per NUMA node and serializing
// every mutation through a single lock-free operation log.
//
// Core Functionality:
//   - A circular, lock-free operation Log with a single producer-batched
//     append path and many concurrent replay consumers.
//   - A flat-combining Replica executor that funnels per-thread calls into
//     log appends and replays, and serves reads against a stable log index.
//   - A liveness protocol coordinating log reclamation (head advancement),
//     tail movement, and per-replica progress via a wrap-around generation bit.
//
// Implementation Approach:
//
//	Mutating operations never touch the replicated data structure directly.
//	Instead, a thread hands its operation to the Replica, which either becomes
//	the combiner for that replica or waits for the current combiner to finish.
//	The combiner batches every pending operation from sibling threads into a
//	single Log.Append call, then drives Log.Exec to replay the newly appended
//	entries (and any entries appended by other replicas) into the local data
//	structure, routing results back to the threads that submitted them.
//
//	Read-only operations never append to the log. They snapshot the log's
//	current tail (the "ctail"), replay up to that point, and then query the
//	local data structure directly - this is the only synchronization a read
//	needs.
//
// Thread Safety:
//
//	The Log's tail/head/committed-tail cursors and per-replica local tails are
//	atomic. The replicated data structure itself needs no internal
//	synchronization: mutations are replayed into it only by whichever thread
//	currently holds its replica's combiner lock (a single atomic word), under
//	the Replica's write lock, and reads are answered under that lock's read
//	side, so reads may run concurrently with each other but never with a
//	replay.
//
// Non-goals:
//
//	No durability - the log is volatile, in-memory only. No cross-machine
//	replication or consensus. No dynamic resizing of the log or the replica
//	set. No support for operations whose execution is nondeterministic across
//	replicas.
package nr
