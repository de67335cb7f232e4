package nr

import "sync/atomic"

// replicaBitmap tracks, for a single log slot, which replicas have yet to
// replay it. It packs into a single atomic machine word rather than a
// heap-allocated bitmap because MaxReplicas is capped at 64 (see Config for
// the rationale), which keeps clearing a replica's bit a single lock-free
// AND on the hot replay path.
type replicaBitmap struct {
	bits atomic.Uint64
}

// maskN returns a bitmask with the low n bits set.
func maskN(n uint32) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// reset marks the low n bits as pending (1 = "has not yet replayed this
// slot") and clears the rest. Called by the producer while filling a slot,
// before it publishes the slot via the generation bit.
func (b *replicaBitmap) reset(n uint32) {
	b.bits.Store(maskN(n))
}

// clear marks replica id as having replayed this slot. Safe to call
// concurrently from multiple replicas' replay paths on the same slot.
func (b *replicaBitmap) clear(id uint32) {
	b.bits.And(^(uint64(1) << id))
}

// isEmpty reports whether every replica has replayed this slot.
func (b *replicaBitmap) isEmpty() bool {
	return b.bits.Load() == 0
}
