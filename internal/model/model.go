package model

import (
	"sync"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/delta"
	"github.com/gridrow/dbengine/internal/index"
	"github.com/gridrow/dbengine/internal/qerr"
	"github.com/gridrow/dbengine/internal/row"
)

// Model owns a table's schema (ordered fields, one of which is the
// primary key), its primary index, and its delta-versioning state. A
// Model is the unit every DML operation addresses (§3, §4.2).
type Model struct {
	name string

	mu        sync.RWMutex
	fields    []Field // declared order, includes the pk field
	pkPos     int
	additions []row.FieldAddition // schema-delta additions, in the order they were added

	idx *index.Primary
	ds  *delta.State
}

// New constructs a Model. fields must include the primary key field at
// pkPos and must not be empty.
func New(name string, fields []Field, pkPos int) *Model {
	return &Model{
		name:   name,
		fields: append([]Field(nil), fields...),
		pkPos:  pkPos,
		idx:    index.New(),
		ds:     delta.New(),
	}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Index() *index.Primary { return m.idx }

func (m *Model) Delta() *delta.State { return m.ds }

func (m *Model) PKField() Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fields[m.pkPos]
}

// Fields returns a snapshot of the declared field list, pk included.
func (m *Model) Fields() []Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Field(nil), m.fields...)
}

// AddField appends a new nullable field to the schema and bumps
// schema_current_version; existing rows lazily materialize it via
// Row.ResolveSchemaDeltasAndFreeze the next time they are touched. A
// non-nullable addition is rejected: every already-stored row would
// otherwise violate the new field's constraint on first read.
func (m *Model) AddField(f Field) (uint64, error) {
	if !f.Nullable {
		return 0, qerr.Wrap(qerr.ErrValidation, "schema delta fields must be nullable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields = append(m.fields, f)
	m.additions = append(m.additions, row.FieldAddition{Name: f.Name, Zero: cell.Null()})
	return m.ds.BumpSchemaVersion(), nil
}

// ResolveRowSchema materializes any pending schema deltas onto r,
// called by every DML and restore code path before handing a row back
// to a caller or re-persisting it (§3).
func (m *Model) ResolveRowSchema(r *row.Row) {
	m.mu.RLock()
	target := m.ds.SchemaVersion()
	additions := m.additions
	m.mu.RUnlock()
	r.ResolveSchemaDeltasAndFreeze(target, additions)
}

// KeyedField is one (name, value) pair of a Keyed-shaped InsertInput,
// kept in the order the caller supplied it. A Go map can't stand in
// for this: range order over map[string]cell.Datacell is unspecified,
// and the keyed validation rule below is positional.
type KeyedField struct {
	Name  string
	Value cell.Datacell
}

// InsertInput is the dual-shaped payload prepare_insert accepts:
// exactly one of Ordered or Keyed must be set.
type InsertInput struct {
	Ordered []cell.Datacell
	Keyed   []KeyedField
}

// PrepareInsert validates in against the model's declared fields and
// splits out the primary key, following original_source's
// dml/ins.rs::prepare_insert. Keyed input is zipped against the
// model's fields POSITIONALLY, same as Ordered: index i of Keyed is
// checked against field i of the schema, and the two names must match
// at that position. A field correctly named but supplied out of
// schema order is therefore rejected, not silently reordered — the
// field count is checked up front rather than recovered from a
// trailing count mismatch (§4.2, edge case S2).
func (m *Model) PrepareInsert(in InsertInput) (cell.PrimaryIndexKey, row.FieldIndex, error) {
	m.mu.RLock()
	fields := m.fields
	pkPos := m.pkPos
	m.mu.RUnlock()

	data := make(map[string]cell.Datacell, len(fields))
	switch {
	case in.Ordered != nil:
		if len(in.Ordered) != len(fields) {
			return cell.PrimaryIndexKey{}, nil, qerr.Wrapf(qerr.ErrValidation,
				"expected %d ordered values, got %d", len(fields), len(in.Ordered))
		}
		for i, f := range fields {
			v := in.Ordered[i]
			if !f.Validate(&v) {
				return cell.PrimaryIndexKey{}, nil, qerr.Wrapf(qerr.ErrValidation, "field %q: type mismatch", f.Name)
			}
			data[f.Name] = v
		}
	case in.Keyed != nil:
		if len(in.Keyed) != len(fields) {
			return cell.PrimaryIndexKey{}, nil, qerr.Wrapf(qerr.ErrValidation,
				"expected %d keyed values, got %d", len(fields), len(in.Keyed))
		}
		for i, f := range fields {
			kv := in.Keyed[i]
			if kv.Name != f.Name {
				return cell.PrimaryIndexKey{}, nil, qerr.Wrapf(qerr.ErrValidation,
					"field %d: expected %q, got %q", i, f.Name, kv.Name)
			}
			v := kv.Value
			if !f.Validate(&v) {
				return cell.PrimaryIndexKey{}, nil, qerr.Wrapf(qerr.ErrValidation, "field %q: type mismatch", f.Name)
			}
			data[f.Name] = v
		}
	default:
		return cell.PrimaryIndexKey{}, nil, qerr.Wrap(qerr.ErrValidation, "insert requires ordered or map data")
	}

	pkField := fields[pkPos]
	pkCell := data[pkField.Name]
	delete(data, pkField.Name)
	pk, err := cell.NewFromDatacell(pkCell)
	if err != nil {
		return cell.PrimaryIndexKey{}, nil, qerr.Wrap(qerr.ErrValidation, "primary key field class is not hashable")
	}
	return pk, row.FieldIndex(data), nil
}

// ValidateFieldUpdate checks a single non-pk field change for Update,
// rejecting attempts to touch fields the model does not declare.
func (m *Model) ValidateFieldUpdate(name string, v *cell.Datacell) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.fields {
		if f.Name == name {
			if f.Name == m.fields[m.pkPos].Name {
				return qerr.Wrap(qerr.ErrValidation, "primary key is immutable")
			}
			if !f.Validate(v) {
				return qerr.Wrapf(qerr.ErrValidation, "field %q: type mismatch", name)
			}
			return nil
		}
	}
	return qerr.Wrapf(qerr.ErrValidation, "unknown field %q", name)
}
