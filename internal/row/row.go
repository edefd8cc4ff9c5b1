// Package row implements the Row record: primary key, field map,
// version stamps, and the fine-grained interior lock guarding mutation
// of the field map during schema-delta materialization (§3).
package row

import (
	"sync"

	"github.com/gridrow/dbengine/internal/cell"
)

// FieldIndex maps non-pk field name to Datacell (the "DcFieldIndex" of
// the spec). It is an unordered Go map; callers that need disk-stable
// order consult the owning Model instead.
type FieldIndex map[string]cell.Datacell

func (fi FieldIndex) Clone() FieldIndex {
	out := make(FieldIndex, len(fi))
	for k, v := range fi {
		out[k] = v.Clone()
	}
	return out
}

// FieldAddition describes one schema-delta column a row must
// materialize lazily: a new nullable field introduced after the row's
// own schema_version was stamped.
type FieldAddition struct {
	Name string
	Zero cell.Datacell
}

// Row owns a primary key, a field map, two version stamps
// (schema_version, data_version), and — only meaningful for rows
// produced by the restore driver — a restored_txn stamp used as the
// last-writer-wins ordering key (§3, §4.4).
type Row struct {
	pk           cell.PrimaryIndexKey
	mu           sync.Mutex
	data         FieldIndex
	schemaVer    uint64
	dataVer      uint64
	restoredTxn  uint64
	wasRestored  bool
}

// New builds a freshly-inserted row, as produced by the DML insert
// path (§4.2 step 5).
func New(pk cell.PrimaryIndexKey, data FieldIndex, schemaVersion, dataVersion uint64) *Row {
	return &Row{pk: pk, data: data, schemaVer: schemaVersion, dataVer: dataVersion}
}

// NewRestored builds a row reconstructed by the restore driver, with
// restored_txn set to the event's logical timestamp and data_version
// fixed at 0 — the source always stamps restored rows this way, and
// this engine preserves that (spec.md §9 Open Questions).
func NewRestored(pk cell.PrimaryIndexKey, data FieldIndex, schemaVersion, restoredTxn uint64) *Row {
	return &Row{pk: pk, data: data, schemaVer: schemaVersion, dataVer: 0, restoredTxn: restoredTxn, wasRestored: true}
}

func (r *Row) PK() cell.PrimaryIndexKey { return r.pk }

func (r *Row) SchemaVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schemaVer
}

func (r *Row) DataVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataVer
}

// RestoredTxn returns the logical write timestamp used as the
// last-writer-wins ordering key during restore conflict resolution.
// Rows never produced by restore report 0, which is never greater than
// any event's txn_id (txn ids start at 1), so the "skip if restored_txn
// > txn_id" check behaves correctly for live (non-restored) rows too.
func (r *Row) RestoredTxn() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restoredTxn
}

// Data returns a snapshot copy of the field map. Callers must not
// mutate a row's live data through any other path.
func (r *Row) Data() FieldIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone()
}

// Get reads a single field under the row's interior lock.
func (r *Row) Get(field string) (cell.Datacell, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[field]
	return v, ok
}

// SetData atomically replaces the row's field map and bumps its
// data_version, as the update DML path does.
func (r *Row) SetData(data FieldIndex, dataVersion uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
	r.dataVer = dataVersion
}

// ResolveSchemaDeltasAndFreeze materializes any field additions the
// model has accrued since this row's own schema_version, then advances
// the row's schema_version to targetVersion. Idempotent: calling it
// again with the same or lower targetVersion is a no-op.
func (r *Row) ResolveSchemaDeltasAndFreeze(targetVersion uint64, additions []FieldAddition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schemaVer >= targetVersion {
		return
	}
	for _, add := range additions {
		if _, exists := r.data[add.Name]; !exists {
			r.data[add.Name] = add.Zero
		}
	}
	r.schemaVer = targetVersion
}

// Clone deep-copies the row, including its field map and all version
// stamps.
func (r *Row) Clone() *Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Row{
		pk:          r.pk,
		data:        r.data.Clone(),
		schemaVer:   r.schemaVer,
		dataVer:     r.dataVer,
		restoredTxn: r.restoredTxn,
		wasRestored: r.wasRestored,
	}
	return c
}
