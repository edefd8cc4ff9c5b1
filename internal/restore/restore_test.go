package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/delta"
	"github.com/gridrow/dbengine/internal/engctx"
	"github.com/gridrow/dbengine/internal/journal"
	"github.com/gridrow/dbengine/internal/metrics"
	"github.com/gridrow/dbengine/internal/model"
	"github.com/gridrow/dbengine/internal/serr"
	"github.com/gridrow/dbengine/pkg/diskio"
)

func newUserModel() *model.Model {
	fields := []model.Field{
		{Name: "id", Class: cell.TagClassStr, Nullable: false},
		{Name: "age", Class: cell.TagClassUnsignedInt, Nullable: false},
	}
	return model.New("users", fields, 0)
}

func strPK(t *testing.T, s string) cell.PrimaryIndexKey {
	t.Helper()
	pk, err := cell.NewFromDatacell(cell.NewStr(s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pk
}

// writeBatchBytes runs a single BatchWriter.WriteBatch call against a
// fresh temp file and returns the raw bytes it produced.
func writeBatchBytes(t *testing.T, kind delta.Kind, txnID uint64, pk cell.PrimaryIndexKey, age uint64) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bw := journal.NewBatchWriter(diskio.NewWriter(f), journal.DefaultWriterOptions(), engctx.New(zerolog.Nop(), metrics.NewRegistry()))

	var cells []cell.Datacell
	if kind != delta.KindDelete {
		cells = []cell.Datacell{cell.NewUint(age)}
	}
	ev := journal.Event{Kind: kind, TxnID: txnID, PK: pk, Cells: cells}
	if err := bw.WriteBatch(pk.Tag(), 1, 1, 1, []journal.Event{ev}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return b
}

func openDriver(t *testing.T, path string, m *model.Model) *Driver {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r, err := diskio.NewReader(f)
	if err != nil {
		t.Fatalf("diskio.NewReader: %v", err)
	}
	return New(r, m, engctx.New(zerolog.Nop(), metrics.NewRegistry()))
}

func writeFile(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.bin")
	var all []byte
	for _, c := range chunks {
		all = append(all, c...)
	}
	if err := os.WriteFile(path, all, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestRestore_InsertUpdateDeleteAcrossBatches covers S1's insert/update/
// delete shape replayed through the restore driver.
func TestRestore_InsertUpdateDeleteAcrossBatches(t *testing.T) {
	pk := strPK(t, "u1")
	b1 := writeBatchBytes(t, delta.KindInsert, 1, pk, 20)
	b2 := writeBatchBytes(t, delta.KindUpdate, 2, pk, 21)
	b3 := writeBatchBytes(t, delta.KindDelete, 3, pk, 0)

	path := writeFile(t, b1, b2, b3, []byte{journal.MarkerBatchClosed})
	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := m.Index().Pin()
	defer g.Unpin()
	if _, ok := m.Index().Get(g, pk); ok {
		t.Fatal("u1 should have been deleted by the last batch")
	}
}

// TestRestore_LastWriterWinsByTxnID covers S3: a later-committed batch
// (higher txn_id) must win even though restore processes batches in
// file order.
func TestRestore_LastWriterWinsByTxnID(t *testing.T) {
	pk := strPK(t, "u1")
	fresh := writeBatchBytes(t, delta.KindInsert, 20, pk, 99)
	stale := writeBatchBytes(t, delta.KindUpdate, 10, pk, 1)

	path := writeFile(t, fresh, stale, []byte{journal.MarkerBatchClosed})
	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := m.Index().Pin()
	defer g.Unpin()
	r, ok := m.Index().Get(g, pk)
	if !ok {
		t.Fatal("u1 should be present")
	}
	v, _ := r.Get("age")
	age, _ := v.Uint()
	if age != 99 {
		t.Fatalf("age = %d, want 99: a stale (lower txn_id) event must not overwrite a newer one", age)
	}
}

// TestRestore_RecoveryMarkerSkipsGarbageBatch covers S4: a lone
// recovery marker stands in for an unreadable batch and must be
// skipped without failing the whole restore.
func TestRestore_RecoveryMarkerSkipsGarbageBatch(t *testing.T) {
	pk := strPK(t, "u1")
	good := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)

	path := writeFile(t, []byte{journal.MarkerRecoveryEvent}, good, []byte{journal.MarkerBatchClosed})
	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := m.Index().Pin()
	defer g.Unpin()
	if _, ok := m.Index().Get(g, pk); !ok {
		t.Fatal("the batch after the recovery marker should still have been applied")
	}
}

// TestRestore_CloseThenCleanEOF covers the first S5 sub-scenario.
func TestRestore_CloseThenCleanEOF(t *testing.T) {
	pk := strPK(t, "u1")
	b1 := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)
	path := writeFile(t, b1, []byte{journal.MarkerBatchClosed})

	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestRestore_CloseReopenThenCleanEOF covers the second S5 sub-scenario.
func TestRestore_CloseReopenThenCleanEOF(t *testing.T) {
	pk1 := strPK(t, "u1")
	pk2 := strPK(t, "u2")
	b1 := writeBatchBytes(t, delta.KindInsert, 1, pk1, 5)
	b2 := writeBatchBytes(t, delta.KindInsert, 2, pk2, 6)

	path := writeFile(t, b1, []byte{journal.MarkerBatchClosed, journal.MarkerBatchReopen}, b2, []byte{journal.MarkerBatchClosed})

	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := m.Index().Pin()
	defer g.Unpin()
	if _, ok := m.Index().Get(g, pk1); !ok {
		t.Fatal("u1 from the first session should be present")
	}
	if _, ok := m.Index().Get(g, pk2); !ok {
		t.Fatal("u2 from the reopened session should be present")
	}
}

// TestRestore_CloseThenJunkIsCorrupted covers the third S5 sub-scenario:
// a closed marker followed by a byte that is neither EOF nor a reopen
// marker must fail the whole restore.
func TestRestore_CloseThenJunkIsCorrupted(t *testing.T) {
	pk := strPK(t, "u1")
	b1 := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)
	path := writeFile(t, b1, []byte{journal.MarkerBatchClosed, 0x00})

	m := newUserModel()
	err := openDriver(t, path, m).Run()
	if err == nil {
		t.Fatal("a closed marker followed by junk (not reopen, not EOF) must fail")
	}
	if err != serr.ErrCorruptedBatchFile {
		t.Fatalf("err = %v, want serr.ErrCorruptedBatchFile", err)
	}
}

// TestRestore_CloseThenJunkIncrementsRestoreFailures checks that a hard
// ErrCorruptedBatchFile outcome is observed on the driver's metrics.
func TestRestore_CloseThenJunkIncrementsRestoreFailures(t *testing.T) {
	pk := strPK(t, "u1")
	b1 := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)
	path := writeFile(t, b1, []byte{journal.MarkerBatchClosed, 0x00})

	m := newUserModel()
	d := openDriver(t, path, m)
	if err := d.Run(); err != serr.ErrCorruptedBatchFile {
		t.Fatalf("err = %v, want serr.ErrCorruptedBatchFile", err)
	}
	if got := testutil.ToFloat64(d.ctx.Metrics.RestoreFailures); got != 1 {
		t.Fatalf("RestoreFailures = %v, want 1", got)
	}
}

// TestRestore_RecoveryMarkerIncrementsBatchesRecovered checks that each
// skipped-via-recovery-marker batch is observed on the driver's metrics.
func TestRestore_RecoveryMarkerIncrementsBatchesRecovered(t *testing.T) {
	pk := strPK(t, "u1")
	good := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)

	path := writeFile(t, []byte{journal.MarkerRecoveryEvent}, good, []byte{journal.MarkerBatchClosed})
	m := newUserModel()
	d := openDriver(t, path, m)
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := testutil.ToFloat64(d.ctx.Metrics.BatchesRecovered); got != 1 {
		t.Fatalf("BatchesRecovered = %v, want 1", got)
	}
}

// TestRestore_ChecksumMismatchTriggersRecovery covers S6: a batch whose
// stored checksum disagrees with its bytes must be treated as
// recoverable garbage, not a hard failure, provided a recovery marker
// follows within the threshold.
func TestRestore_ChecksumMismatchTriggersRecovery(t *testing.T) {
	pk := strPK(t, "u1")
	corrupt := writeBatchBytes(t, delta.KindInsert, 1, pk, 5)
	// Flip the last byte, part of the trailing checksum field, without
	// touching the structural framing before it.
	corrupt[len(corrupt)-1] ^= 0xFF

	good := writeBatchBytes(t, delta.KindInsert, 2, pk, 7)
	path := writeFile(t, corrupt, []byte{journal.MarkerRecoveryEvent}, good, []byte{journal.MarkerBatchClosed})

	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g := m.Index().Pin()
	defer g.Unpin()
	r, ok := m.Index().Get(g, pk)
	if !ok {
		t.Fatal("the batch after the recovery marker should have been applied")
	}
	v, _ := r.Get("age")
	age, _ := v.Uint()
	if age != 7 {
		t.Fatalf("age = %d, want 7 from the recovered batch", age)
	}
}

// TestRestore_EmptyClosedFileIsOK covers the degenerate empty-journal
// case: a file containing only a clean close marker restores with no
// rows and no error.
func TestRestore_EmptyClosedFileIsOK(t *testing.T) {
	path := writeFile(t, []byte{journal.MarkerBatchClosed})
	m := newUserModel()
	if err := openDriver(t, path, m).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Index().Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Index().Len())
	}
}
