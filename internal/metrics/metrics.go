// Package metrics carries this engine's ambient observability surface
// (SPEC_FULL §B): prometheus counters and gauges for index operations,
// delta-queue depth, and journal/restore batch activity. Recording is
// an in-memory update that does no I/O (§5); internal/dml records at
// the end of each successful call, after the mutation has already
// committed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric this engine exports. Construct one
// per server instance and register it with a prometheus.Registerer of
// the caller's choosing.
type Registry struct {
	IndexOps      *prometheus.CounterVec
	DeltaQueueLen *prometheus.GaugeVec
	BatchesWritten prometheus.Counter
	BatchesRecovered prometheus.Counter
	RestoreFailures  prometheus.Counter
}

func NewRegistry() *Registry {
	return &Registry{
		IndexOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbengine_index_ops_total",
			Help: "Primary index operations by kind and model.",
		}, []string{"model", "op"}),
		DeltaQueueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbengine_delta_queue_length",
			Help: "Current depth of a model's pending-delta queue.",
		}, []string{"model"}),
		BatchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbengine_journal_batches_written_total",
			Help: "Batches successfully committed to the journal.",
		}),
		BatchesRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbengine_restore_batches_recovered_total",
			Help: "Batches skipped during restore via a recovery marker.",
		}),
		RestoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbengine_restore_failures_total",
			Help: "Restore runs that ended in CorruptedBatchFile.",
		}),
	}
}

// MustRegister registers every metric in r with reg, panicking on a
// duplicate registration — the same convention client_golang examples
// use for process-lifetime singletons.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.IndexOps, r.DeltaQueueLen, r.BatchesWritten, r.BatchesRecovered, r.RestoreFailures)
}

// ObserveIndexOp records one index operation for a model.
func (r *Registry) ObserveIndexOp(model, op string) {
	r.IndexOps.WithLabelValues(model, op).Inc()
}

// ObserveDeltaQueueLen records a model's current pending-delta depth.
func (r *Registry) ObserveDeltaQueueLen(model string, n int) {
	r.DeltaQueueLen.WithLabelValues(model).Set(float64(n))
}
