package nr

import "runtime"

// tryBecomeCombiner attempts to claim the combiner role for this replica. It
// never blocks: the caller either wins the race and must run combine (and
// release the role when done), or loses and should assume whoever is
// currently combining will make progress on its behalf too.
func (r *Replica[M, R, Rs]) tryBecomeCombiner() bool {
	return r.combinerLock.CompareAndSwap(0, 1)
}

func (r *Replica[M, R, Rs]) releaseCombiner() {
	r.combinerLock.Store(0)
}

// combine drains every registered thread's pending operations into a single
// log append, replays the log up to and including that append, and routes
// each result back to its submitter's Context. The caller must already hold
// the combiner role (see tryBecomeCombiner) and release it afterwards.
//
// combine is where the replicated data structure's mutations actually
// happen: it takes the replica's write lock for the duration of the replay
// so that no Execute call can observe the data structure mid-mutation.
func (r *Replica[M, R, Rs]) combine() {
	r.ctxMu.RLock()
	contexts := r.contexts
	r.ctxMu.RUnlock()

	batch := make([]M, 0, r.log.cfg.BatchSize)
	owners := make([]uint32, 0, r.log.cfg.BatchSize)

	n := uint32(len(contexts))
	if n == 0 {
		return
	}

	start := r.nextScan.Load() % n
	for i := uint32(0); i < n; i++ {
		idx := (start + i) % n
		before := len(batch)
		batch = contexts[idx].DequeueOps(batch)
		for range batch[before:] {
			owners = append(owners, idx)
		}
	}
	r.nextScan.Store((start + 1) % n)

	r.log.metrics.recordCombinerBatch(len(batch))

	if len(batch) > 0 {
		for {
			_, err := r.log.Append(r.id, batch, owners)
			if err == nil {
				break
			}
			// ErrNeedSync: the log has no room for this batch relative to
			// head. Help reclaim by replaying what we can, then retry.
			r.replay(nil)
			r.log.AdvanceHead()
		}
	}

	r.replay(contexts)
}

// replay drives the log forward for this replica and applies every
// mutation to the underlying data structure under its write lock,
// publishing each op's result back to the submitting context (looked up by
// thread id) when contexts is non-nil. Passing a nil contexts replays
// without publishing, for helper calls made only to relieve backpressure.
func (r *Replica[M, R, Rs]) replay(contexts []*Context[M, Rs]) uint64 {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()

	return r.log.Exec(r.id, nil, func(op M, opReplicaID, opThreadID uint32, _ uint64) {
		res := r.dispatch.ApplyMut(op, ThreadToken{replicaID: opReplicaID, threadID: opThreadID})
		if contexts != nil && opReplicaID == r.id && int(opThreadID) < len(contexts) {
			contexts[opThreadID].PublishResult(res)
		}
	})
}

// executeHelper spins until the caller's own context has a result ready,
// making sure progress happens even if this thread never wins the combiner
// race: it retries becoming the combiner, and otherwise simply waits for
// whoever is combining to get around to its op.
func (r *Replica[M, R, Rs]) executeHelper(ctx *Context[M, Rs]) Rs {
	spins := 0
	for {
		if res, ok := ctx.PopResult(); ok {
			return res
		}
		if r.tryBecomeCombiner() {
			r.combine()
			r.releaseCombiner()
			if res, ok := ctx.PopResult(); ok {
				return res
			}
		}
		spins++
		if spins == spinWarnThreshold {
			log.Warningf("nr: replica %d thread waiting a long time for its result", r.id)
		}
		runtime.Gosched()
	}
}
