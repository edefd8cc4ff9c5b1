// Package epoch implements the minimal epoch-based memory reclamation
// scheme required by the concurrent hash trie (§4.1, §5): every read
// or write into the index happens under a pinned Guard, and memory
// freed by a mutation is only reclaimed once no pinned guard predates
// that mutation's epoch.
//
// No example in the retrieval pack implements epoch reclamation (it is
// a narrow lock-free-allocator concern the rest of the corpus never
// touches); this is a from-scratch, deliberately small implementation
// built directly on sync/atomic, the correct and only stdlib tool for
// it.
package epoch

import (
	"sync"
	"sync/atomic"
)

// Manager owns the global epoch counter and the set of currently
// pinned guards. One Manager is created per MTIndex (or shared by
// whatever owns several indexes with the same lifetime, e.g. a Model).
type Manager struct {
	epoch   atomic.Uint64
	mu      sync.Mutex
	pinned  map[*Guard]struct{}
	garbage map[uint64][]func()
}

func NewManager() *Manager {
	return &Manager{
		pinned:  make(map[*Guard]struct{}),
		garbage: make(map[uint64][]func()),
	}
}

// Guard is a pin scope. References handed out by the index (row
// pointers, cell borrows) are only valid for the guard's lifetime;
// Unpin is the only signal the index needs that it is safe to consider
// reclaiming memory freed during the pin.
type Guard struct {
	mgr   *Manager
	epoch uint64
}

// Pin enters a new pin scope at the current global epoch.
func (m *Manager) Pin() *Guard {
	g := &Guard{mgr: m, epoch: m.epoch.Load()}
	m.mu.Lock()
	m.pinned[g] = struct{}{}
	m.mu.Unlock()
	return g
}

// Unpin leaves the pin scope and attempts to sweep garbage that is now
// provably unreachable by any remaining guard.
func (g *Guard) Unpin() {
	m := g.mgr
	m.mu.Lock()
	delete(m.pinned, g)
	m.sweepLocked()
	m.mu.Unlock()
}

// DeferDestroy schedules fn to run once every guard pinned at or
// before the current epoch has unpinned. The caller must have already
// removed the corresponding node/value from the live structure via
// CAS before calling this — DeferDestroy only governs when it is safe
// to actually free it.
func (m *Manager) DeferDestroy(fn func()) {
	e := m.epoch.Add(1) - 1 // the epoch just retired, pre-bump
	m.mu.Lock()
	m.garbage[e] = append(m.garbage[e], fn)
	m.sweepLocked()
	m.mu.Unlock()
}

// sweepLocked runs garbage queued under any epoch older than the
// oldest currently-pinned guard. Caller must hold m.mu.
func (m *Manager) sweepLocked() {
	if len(m.garbage) == 0 {
		return
	}
	minPinned := m.epoch.Load()
	for g := range m.pinned {
		if g.epoch < minPinned {
			minPinned = g.epoch
		}
	}
	for e, fns := range m.garbage {
		if e < minPinned {
			for _, fn := range fns {
				fn()
			}
			delete(m.garbage, e)
		}
	}
}
