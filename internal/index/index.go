// Package index composes mtidx into the primary index proper: a
// concurrent map from PrimaryIndexKey to *row.Row, plus the advisory
// change-direction latch DML operations serialize under (§4.2,
// original_source's dml/ins.rs acquire_cd).
package index

import (
	"sync"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/epoch"
	"github.com/gridrow/dbengine/internal/mtidx"
	"github.com/gridrow/dbengine/internal/row"
)

// Primary is one model's primary index.
type Primary struct {
	trie *mtidx.Index[cell.PrimaryIndexKey, *row.Row]

	// cd is the change-direction latch: DML insert/update/delete/
	// upsert all acquire it before pinning an epoch guard and mutating
	// the trie, giving the model a single global ordering point for
	// delta-version allocation without serializing reads.
	cd sync.Mutex
}

func New() *Primary {
	return &Primary{trie: mtidx.New[cell.PrimaryIndexKey, *row.Row]()}
}

// AcquireCD acquires the change-direction latch and returns the
// release function; callers defer the release immediately.
func (p *Primary) AcquireCD() func() {
	p.cd.Lock()
	return p.cd.Unlock
}

// Pin enters a new epoch-pinned scope for a single index operation.
func (p *Primary) Pin() *epoch.Guard { return p.trie.Pin() }

func (p *Primary) Insert(g *epoch.Guard, k cell.PrimaryIndexKey, r *row.Row) bool {
	return p.trie.Insert(g, k, r)
}

func (p *Primary) Upsert(g *epoch.Guard, k cell.PrimaryIndexKey, r *row.Row) {
	p.trie.Upsert(g, k, r)
}

func (p *Primary) Update(g *epoch.Guard, k cell.PrimaryIndexKey, r *row.Row) bool {
	return p.trie.Update(g, k, r)
}

func (p *Primary) Get(g *epoch.Guard, k cell.PrimaryIndexKey) (*row.Row, bool) {
	return p.trie.Get(g, k)
}

func (p *Primary) Contains(g *epoch.Guard, k cell.PrimaryIndexKey) bool {
	return p.trie.Contains(g, k)
}

func (p *Primary) Delete(g *epoch.Guard, k cell.PrimaryIndexKey) bool {
	return p.trie.Delete(g, k)
}

func (p *Primary) DeleteReturn(g *epoch.Guard, k cell.PrimaryIndexKey) (*row.Row, bool) {
	return p.trie.DeleteReturn(g, k)
}

func (p *Primary) Clear(g *epoch.Guard) { p.trie.Clear(g) }

func (p *Primary) Len() int64 { return p.trie.Len() }
