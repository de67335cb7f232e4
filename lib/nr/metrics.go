package nr

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// logMetrics holds the VictoriaMetrics instrumentation for one Log instance.
// NewLog builds it only when given a non-empty name: a Log constructed with
// an empty name carries no metrics.Set and every method below becomes a
// no-op, so instrumentation never appears on the hot path unless requested.
type logMetrics struct {
	set *metrics.Set

	appendRetriesTotal *metrics.Counter
	needSyncTotal      *metrics.Counter
	advanceHeadTotal   *metrics.Counter
	combinerBatchSize  *metrics.Histogram
}

// newLogMetrics builds the metric set for a Log named name, wiring the tail,
// head, and committed-tail gauges directly to the Log's atomic cursors so
// that scraping never contends with the append/replay paths.
func newLogMetrics[M any](name string, l *Log[M]) *logMetrics {
	set := metrics.NewSet()

	set.NewGauge(fmt.Sprintf(`nr_log_tail{log=%q}`, name), func() float64 {
		return float64(l.tail.Load())
	})
	set.NewGauge(fmt.Sprintf(`nr_log_head{log=%q}`, name), func() float64 {
		return float64(l.head.Load())
	})
	set.NewGauge(fmt.Sprintf(`nr_log_committed_tail{log=%q}`, name), func() float64 {
		return float64(l.committedTail.Load())
	})
	set.NewGauge(fmt.Sprintf(`nr_log_replicas{log=%q}`, name), func() float64 {
		return float64(l.numReplicas.Load())
	})

	return &logMetrics{
		set:                set,
		appendRetriesTotal: set.NewCounter(fmt.Sprintf(`nr_log_append_retries_total{log=%q}`, name)),
		needSyncTotal:      set.NewCounter(fmt.Sprintf(`nr_log_needsync_total{log=%q}`, name)),
		advanceHeadTotal:   set.NewCounter(fmt.Sprintf(`nr_log_advance_head_total{log=%q}`, name)),
		combinerBatchSize:  set.NewHistogram(fmt.Sprintf(`nr_combiner_batch_size{log=%q}`, name)),
	}
}

func (m *logMetrics) recordAppendRetry() {
	if m == nil {
		return
	}
	m.appendRetriesTotal.Inc()
}

func (m *logMetrics) recordNeedSync() {
	if m == nil {
		return
	}
	m.needSyncTotal.Inc()
}

func (m *logMetrics) recordAdvanceHead() {
	if m == nil {
		return
	}
	m.advanceHeadTotal.Inc()
}

func (m *logMetrics) recordCombinerBatch(n int) {
	if m == nil {
		return
	}
	m.combinerBatchSize.Update(float64(n))
}

// Metrics returns the VictoriaMetrics set backing this Log, or nil if the
// Log was constructed without a metrics name. Callers typically pass this to
// metrics.WritePrometheus when exposing a /metrics endpoint.
func (l *Log[M]) Metrics() *metrics.Set {
	if l.metrics == nil {
		return nil
	}
	return l.metrics.set
}
