package row

import (
	"testing"

	"github.com/gridrow/dbengine/internal/cell"
)

func newTestPK(t *testing.T, s string) cell.PrimaryIndexKey {
	t.Helper()
	pk, err := cell.NewFromDatacell(cell.NewStr(s))
	if err != nil {
		t.Fatalf("unexpected error building pk: %v", err)
	}
	return pk
}

func TestRow_NewStampsVersions(t *testing.T) {
	pk := newTestPK(t, "k1")
	data := FieldIndex{"name": cell.NewStr("alice")}
	r := New(pk, data, 1, 10)
	if r.SchemaVersion() != 1 {
		t.Errorf("SchemaVersion() = %d, want 1", r.SchemaVersion())
	}
	if r.DataVersion() != 10 {
		t.Errorf("DataVersion() = %d, want 10", r.DataVersion())
	}
	if r.RestoredTxn() != 0 {
		t.Errorf("a freshly-inserted row must report RestoredTxn() 0, got %d", r.RestoredTxn())
	}
}

func TestRow_NewRestoredSetsRestoredTxnAndZeroDataVersion(t *testing.T) {
	pk := newTestPK(t, "k2")
	r := NewRestored(pk, FieldIndex{}, 3, 77)
	if r.RestoredTxn() != 77 {
		t.Errorf("RestoredTxn() = %d, want 77", r.RestoredTxn())
	}
	if r.DataVersion() != 0 {
		t.Errorf("a restored row must have DataVersion() 0, got %d", r.DataVersion())
	}
}

func TestRow_SetDataBumpsVersionAndReplacesMap(t *testing.T) {
	pk := newTestPK(t, "k3")
	r := New(pk, FieldIndex{"a": cell.NewUint(1)}, 1, 1)
	r.SetData(FieldIndex{"a": cell.NewUint(2)}, 2)
	if r.DataVersion() != 2 {
		t.Fatalf("DataVersion() = %d, want 2", r.DataVersion())
	}
	v, ok := r.Get("a")
	if !ok {
		t.Fatal("field a should still be present")
	}
	got, _ := v.Uint()
	if got != 2 {
		t.Fatalf("field a = %d, want 2", got)
	}
}

func TestRow_DataReturnsIndependentSnapshot(t *testing.T) {
	pk := newTestPK(t, "k4")
	r := New(pk, FieldIndex{"a": cell.NewBin([]byte{1, 2})}, 1, 1)
	snap := r.Data()
	b, _ := snap["a"].Bin()
	b[0] = 99
	live, _ := r.Get("a")
	lb, _ := live.Bin()
	if lb[0] == 99 {
		t.Fatal("mutating a Data() snapshot must not affect the row's live field map")
	}
}

func TestRow_ResolveSchemaDeltasAndFreezeIsIdempotent(t *testing.T) {
	pk := newTestPK(t, "k5")
	r := New(pk, FieldIndex{}, 1, 1)
	additions := []FieldAddition{{Name: "bio", Zero: cell.Null()}}

	r.ResolveSchemaDeltasAndFreeze(2, additions)
	if r.SchemaVersion() != 2 {
		t.Fatalf("SchemaVersion() = %d, want 2", r.SchemaVersion())
	}
	v, ok := r.Get("bio")
	if !ok || !v.IsNull() {
		t.Fatal("the added field should materialize as null")
	}

	// Mutate the row's copy of the field and call again with the same
	// target version: the call must be a no-op, not clobber the mutation.
	r.SetData(FieldIndex{"bio": cell.NewStr("hi")}, 2)
	r.ResolveSchemaDeltasAndFreeze(2, additions)
	v, _ = r.Get("bio")
	got, _ := v.Str()
	if got != "hi" {
		t.Fatalf("re-resolving at the same target version must not overwrite existing data, got %q", got)
	}
}

func TestRow_ResolveSchemaDeltasAndFreezeDoesNotOverwriteExistingField(t *testing.T) {
	pk := newTestPK(t, "k6")
	r := New(pk, FieldIndex{"bio": cell.NewStr("already set")}, 1, 1)
	additions := []FieldAddition{{Name: "bio", Zero: cell.Null()}}
	r.ResolveSchemaDeltasAndFreeze(2, additions)
	v, _ := r.Get("bio")
	got, _ := v.Str()
	if got != "already set" {
		t.Fatalf("a field the row already has must not be clobbered by a schema delta, got %q", got)
	}
}

func TestRow_CloneIsDeepAndIndependent(t *testing.T) {
	pk := newTestPK(t, "k7")
	r := New(pk, FieldIndex{"a": cell.NewBin([]byte{1})}, 1, 1)
	c := r.Clone()
	c.SetData(FieldIndex{"a": cell.NewBin([]byte{2})}, 2)
	v, _ := r.Get("a")
	b, _ := v.Bin()
	if b[0] != 1 {
		t.Fatal("mutating a clone must not affect the original row")
	}
}
