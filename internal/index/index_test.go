package index

import (
	"sync"
	"testing"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/row"
)

func pk(t *testing.T, s string) cell.PrimaryIndexKey {
	t.Helper()
	k, err := cell.NewFromDatacell(cell.NewStr(s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return k
}

func TestPrimary_InsertGetDelete(t *testing.T) {
	p := New()
	g := p.Pin()
	defer g.Unpin()

	k := pk(t, "a")
	r := row.New(k, row.FieldIndex{}, 1, 1)

	if !p.Insert(g, k, r) {
		t.Fatal("Insert should succeed for a new key")
	}
	got, ok := p.Get(g, k)
	if !ok || got != r {
		t.Fatal("Get should return the exact row pointer just inserted")
	}
	if !p.Delete(g, k) {
		t.Fatal("Delete should succeed for an existing key")
	}
	if p.Contains(g, k) {
		t.Fatal("a deleted key must no longer be Contains()")
	}
}

func TestPrimary_AcquireCDSerializesWriters(t *testing.T) {
	p := New()
	release := p.AcquireCD()

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r2 := p.AcquireCD()
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("a second AcquireCD must block while the first holder has not released")
	default:
	}
	release()
	wg.Wait()
}

func TestPrimary_LenTracksMutations(t *testing.T) {
	p := New()
	g := p.Pin()
	defer g.Unpin()

	p.Insert(g, pk(t, "a"), row.New(pk(t, "a"), row.FieldIndex{}, 1, 1))
	p.Insert(g, pk(t, "b"), row.New(pk(t, "b"), row.FieldIndex{}, 1, 1))
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}
