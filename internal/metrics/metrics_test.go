package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_MustRegisterDoesNotPanic(t *testing.T) {
	r := NewRegistry()
	reg := prometheus.NewRegistry()
	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("MustRegister panicked: %v", rec)
		}
	}()
	r.MustRegister(reg)
}

func TestRegistry_ObserveIndexOpIncrementsCounter(t *testing.T) {
	r := NewRegistry()
	r.ObserveIndexOp("users", "insert")
	r.ObserveIndexOp("users", "insert")
	got := testutil.ToFloat64(r.IndexOps.WithLabelValues("users", "insert"))
	if got != 2 {
		t.Fatalf("IndexOps counter = %v, want 2", got)
	}
}

func TestRegistry_ObserveDeltaQueueLenSetsGauge(t *testing.T) {
	r := NewRegistry()
	r.ObserveDeltaQueueLen("users", 7)
	got := testutil.ToFloat64(r.DeltaQueueLen.WithLabelValues("users"))
	if got != 7 {
		t.Fatalf("DeltaQueueLen gauge = %v, want 7", got)
	}
}
