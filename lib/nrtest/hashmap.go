package nrtest

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nrlog/nr/lib/nr"
)

// HashMapOp is the mutating operation accepted by HashMap.
type HashMapOp struct {
	Key      string
	Value    []byte
	Delete   bool   // Delete, if set, removes Key instead of writing Value
	TTLTicks uint64 // TTLTicks, if non-zero, expires the entry after this many further mutations
}

// HashMapReadOp is the read-only operation accepted by HashMap.
type HashMapReadOp struct {
	Key string
	Has bool // Has, if set, only checks presence; otherwise the value is returned
}

// HashMapResult is the result both of HashMap's operations produce.
type HashMapResult struct {
	Value []byte
	Found bool
}

type hashMapEntry struct {
	value    []byte
	expireAt uint64 // 0 = never; otherwise a tick count from HashMap.clock
}

// HashMap is a replicated string-keyed map with optional per-entry expiry.
// Expiry is measured in mutations applied, not wall-clock time: every
// replica applies the exact same sequence of mutations in the exact same
// order, so counting ApplyMut calls is already a deterministic logical
// clock and needs no external synchronization.
//
// The map is a single shard rather than a sharded store: NR's combiner
// already serializes every mutation, so sharding to spread lock contention
// across goroutines has no mutation-side counterpart here. A concurrent map
// is used anyway because Apply (reads) may run concurrently with other reads
// on other threads while a write is not in flight.
type HashMap struct {
	data   *xsync.MapOf[string, hashMapEntry]
	expiry *ttlHeap[string]
	clock  uint64
}

var _ nr.Dispatch[HashMapOp, HashMapReadOp, HashMapResult] = (*HashMap)(nil)

// NewHashMap constructs an empty HashMap.
func NewHashMap() *HashMap {
	return &HashMap{
		data:   xsync.NewMapOf[string, hashMapEntry](),
		expiry: newTTLHeap[string](),
	}
}

// reap drops every entry whose expiry is due as of the current clock.
// Called at the top of ApplyMut so that a key just past its TTL is never
// visible to a mutation applied later in the same batch, let alone a read.
func (m *HashMap) reap() {
	for {
		key, at, ok := m.expiry.peek()
		if !ok || at > m.clock {
			return
		}
		m.expiry.popFront()
		m.data.Delete(key)
	}
}

// ApplyMut implements nr.Dispatch.
func (m *HashMap) ApplyMut(op HashMapOp, _ nr.ThreadToken) HashMapResult {
	m.clock++
	m.reap()

	if op.Delete {
		old, existed := m.data.LoadAndDelete(op.Key)
		m.expiry.remove(op.Key)
		if !existed {
			return HashMapResult{}
		}
		return HashMapResult{Value: old.value, Found: true}
	}

	entry := hashMapEntry{value: op.Value}
	if op.TTLTicks > 0 {
		entry.expireAt = m.clock + op.TTLTicks
		m.expiry.set(op.Key, entry.expireAt)
	} else {
		m.expiry.remove(op.Key)
	}
	m.data.Store(op.Key, entry)

	return HashMapResult{Value: op.Value, Found: true}
}

// Apply implements nr.Dispatch. It does not reap expired entries itself
// (reads must never mutate state), but entries already reaped by a prior
// ApplyMut are simply absent from data.
func (m *HashMap) Apply(op HashMapReadOp) HashMapResult {
	entry, ok := m.data.Load(op.Key)
	if !ok || (entry.expireAt != 0 && entry.expireAt <= m.clock) {
		return HashMapResult{}
	}
	if op.Has {
		return HashMapResult{Found: true}
	}
	return HashMapResult{Value: entry.value, Found: true}
}

// Len returns the number of live entries, including ones past their TTL but
// not yet reaped by a mutation. Intended for tests and metrics, not the hot
// path.
func (m *HashMap) Len() int {
	return m.data.Size()
}
