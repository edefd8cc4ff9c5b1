// Package delta implements per-model delta bookkeeping (§3, §4.2): two
// monotonic version counters (schema_current_version,
// data_delta_version) and the pending queue of committed data deltas
// that an external journal flusher drains and persists.
package delta

import (
	"sync"
	"sync/atomic"

	"github.com/gridrow/dbengine/internal/row"
)

// Kind tags what kind of mutation produced a delta.
type Kind uint8

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Delta is one entry in the pending queue: the kind of change, the row
// it affected (for a delete, the row that was removed from the index;
// consumers that need only the key read it via Row.PK()), and the
// data_delta_version stamped on it at commit time.
type Delta struct {
	Kind    Kind
	Row     *row.Row
	Version uint64
}

// State owns a model's two monotonic counters and its pending-delta
// queue. No file in the retrieval pack exercises a lock-free MPSC
// queue crate, so the queue itself is a mutex-guarded slice — a
// deliberate, documented stdlib fallback (DESIGN.md) rather than a
// fabricated dependency.
type State struct {
	schemaVersion atomic.Uint64
	dataVersion   atomic.Uint64

	mu      sync.Mutex
	pending []Delta
}

func New() *State {
	s := &State{}
	s.schemaVersion.Store(1)
	return s
}

// SchemaVersion returns the model's current schema_current_version.
func (s *State) SchemaVersion() uint64 { return s.schemaVersion.Load() }

// BumpSchemaVersion advances schema_current_version and returns the
// new value, called whenever a field is added to the model.
func (s *State) BumpSchemaVersion() uint64 { return s.schemaVersion.Add(1) }

// CreateNewDataDeltaVersion allocates the next data_delta_version for
// a single committing write. Callers must hold the model's
// change-direction latch while doing this and building the delta, so
// that delta versions are enqueued in the same order they are minted.
func (s *State) CreateNewDataDeltaVersion() uint64 { return s.dataVersion.Add(1) }

// CurrentDataVersion reports the most recently minted data_delta_version.
func (s *State) CurrentDataVersion() uint64 { return s.dataVersion.Load() }

// AppendNewDataDeltaWith enqueues a committed mutation for the journal
// flusher to drain.
func (s *State) AppendNewDataDeltaWith(kind Kind, r *row.Row, version uint64) {
	s.mu.Lock()
	s.pending = append(s.pending, Delta{Kind: kind, Row: r, Version: version})
	s.mu.Unlock()
}

// DrainPending removes and returns every currently queued delta, in
// enqueue order. The journal flusher calls this on its own schedule;
// it never runs on the synchronous DML hot path (§5, §9).
func (s *State) DrainPending() []Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

// PendingLen reports the current queue depth, exposed for metrics.
func (s *State) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
