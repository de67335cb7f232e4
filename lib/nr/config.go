package nr

import (
	"fmt"
	"math/bits"
	"strings"
)

// Compile-time ceilings. These bound the size of fixed, inline structures
// (the per-slot replica bitmap, the per-replica context array) so that the
// hot path never allocates. They are not construction parameters: Config
// validates against them.
const (
	// MaxReplicas is the largest number of replicas a single Log can ever
	// serve. One replica per NUMA node; 64 comfortably covers every NUMA
	// topology this design targets, and it lets replicasLeft live as a
	// single atomic machine word per slot instead of a heap-allocated
	// bitmap sized dynamically per Log.
	MaxReplicas = 64

	// MaxThreadsPerReplica is the largest number of threads that may
	// Register with a single Replica.
	MaxThreadsPerReplica = 256
)

// Config holds the fixed, construction-time parameters of a Log and the
// Replicas registered against it. All fields are immutable for the lifetime
// of the Log - there is no dynamic resizing of the log or the replica set.
type Config struct {
	// LogCapacity is the number of slots in the ring buffer. Must be a
	// power of two.
	LogCapacity uint64

	// MaxReplicas bounds how many replicas may register with the Log.
	// Must be in [1, nr.MaxReplicas].
	MaxReplicas uint32

	// MaxThreadsPerReplica bounds how many threads may register with any
	// one Replica. Must be in [1, nr.MaxThreadsPerReplica].
	MaxThreadsPerReplica uint32

	// BatchSize is the capacity of each thread's pending-operation and
	// result rings, and therefore the largest single combiner batch that
	// thread can contribute.
	BatchSize uint32

	// ReclaimSlack is the number of entries kept free between tail and
	// head at all times, so that a combiner append always has room to
	// complete without further reclamation. Zero means "derive from
	// BatchSize * MaxReplicas", mirroring the reference design's
	// GC_FROM_HEAD constant. That default assumes at most one outstanding
	// op per thread per round, which the blocking ExecuteMut API
	// guarantees; a Dispatch that pipelines multiple ops per thread per
	// round should set this explicitly to BatchSize * MaxThreadsPerReplica
	// * MaxReplicas, sized to the true largest possible combiner batch.
	ReclaimSlack uint64
}

// DefaultConfig returns sane defaults suitable for development and testing:
// an 8Ki-entry log, up to 8 replicas, up to 64 threads per replica, and a
// batch size of 32.
func DefaultConfig() Config {
	return Config{
		LogCapacity:          8 * 1024,
		MaxReplicas:          8,
		MaxThreadsPerReplica: 64,
		BatchSize:            32,
	}
}

// reclaimSlack returns the effective reclamation slack, deriving it from
// BatchSize and MaxReplicas when not explicitly set.
func (c Config) reclaimSlack() uint64 {
	if c.ReclaimSlack != 0 {
		return c.ReclaimSlack
	}
	slack := uint64(c.BatchSize) * uint64(c.MaxReplicas)
	if slack == 0 {
		slack = 1
	}
	return slack
}

// Validate checks that the configuration can be used to construct a Log.
func (c Config) Validate() error {
	if c.LogCapacity == 0 || bits.OnesCount64(c.LogCapacity) != 1 {
		return fmt.Errorf("nr: LogCapacity must be a power of two, got %d", c.LogCapacity)
	}
	if c.MaxReplicas == 0 || c.MaxReplicas > MaxReplicas {
		return fmt.Errorf("nr: MaxReplicas must be in [1, %d], got %d", MaxReplicas, c.MaxReplicas)
	}
	if c.MaxThreadsPerReplica == 0 || c.MaxThreadsPerReplica > MaxThreadsPerReplica {
		return fmt.Errorf("nr: MaxThreadsPerReplica must be in [1, %d], got %d", MaxThreadsPerReplica, c.MaxThreadsPerReplica)
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("nr: BatchSize must be >= 1")
	}
	slack := c.reclaimSlack()
	if slack*2 >= c.LogCapacity {
		return fmt.Errorf("nr: LogCapacity %d too small for reclaim slack %d (need capacity > 2*slack)", c.LogCapacity, slack)
	}
	return nil
}

// String returns a human-readable, multi-section rendering of the
// configuration.
func (c Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title))
		sb.WriteString("\n")
	}
	addField := func(name string, value any) {
		sb.WriteString(fmt.Sprintf("  %-22s: %v\n", name, value))
	}

	addSection("Log")
	addField("Capacity", c.LogCapacity)
	addField("Reclaim Slack", c.reclaimSlack())

	addSection("Replicas")
	addField("Max Replicas", c.MaxReplicas)
	addField("Max Threads/Replica", c.MaxThreadsPerReplica)
	addField("Batch Size", c.BatchSize)

	return sb.String()
}
