// Package restore implements the data batch restore driver (§4.4):
// the decode loop over journal's wire format, recovery-marker
// tolerance, and last-writer-wins conflict resolution keyed by
// txn_id. It follows original_source's
// storage/v1/batch_jrnl/restore.rs closely, adapted to this engine's
// Go types.
package restore

import (
	"fmt"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/delta"
	"github.com/gridrow/dbengine/internal/engctx"
	"github.com/gridrow/dbengine/internal/epoch"
	"github.com/gridrow/dbengine/internal/journal"
	"github.com/gridrow/dbengine/internal/model"
	"github.com/gridrow/dbengine/internal/row"
	"github.com/gridrow/dbengine/internal/serr"
	"github.com/gridrow/dbengine/pkg/diskio"
)

type decodedEvent struct {
	kind  delta.Kind
	txnID uint64
	pk    cell.PrimaryIndexKey
	cells []cell.Datacell
}

type batchKind uint8

const (
	batchNormalOrEarly batchKind = iota
	batchRecovered
	batchClosed
)

type decodedBatch struct {
	events        []decodedEvent
	schemaVersion uint64
	promised      uint64
}

// Driver replays one model's journal file against its primary index.
type Driver struct {
	r   *diskio.Reader
	m   *model.Model
	ctx *engctx.Context
}

func New(r *diskio.Reader, m *model.Model, ctx *engctx.Context) *Driver {
	return &Driver{r: r, m: m, ctx: ctx}
}

// Run executes the full decode loop (§4.4) and applies every batch it
// accepts. It returns serr.ErrCorruptedBatchFile if the loop stops
// without a clean BatchClosed+EOF state or a recovery scan finds no
// marker, per §7's policy that restore must not leave the server
// startable on unrecoverable corruption. A read error while decoding a
// batch (e.g. a file truncated mid-batch) is returned as is.
func (d *Driver) Run() (err error) {
	defer func() {
		if err == serr.ErrCorruptedBatchFile && d.ctx.Metrics != nil {
			d.ctx.Metrics.RestoreFailures.Inc()
		}
	}()

	g := d.m.Index().Pin()
	defer g.Unpin()

	closed := false
	for !d.r.IsEOF() && !closed {
		kind, batch, rerr := d.readBatch()
		if rerr != nil {
			return rerr
		}

		switch kind {
		case batchRecovered:
			d.ctx.Log.Warn().Msg("restore: skipped a batch via recovery marker")
			if d.ctx.Metrics != nil {
				d.ctx.Metrics.BatchesRecovered.Inc()
			}
			continue
		case batchClosed:
			isReopen, hasNext := d.peekNextIsReopen()
			if hasNext && isReopen {
				if _, rerr := d.r.ReadByte(); rerr != nil {
					return rerr
				}
				continue
			}
			closed = true
			continue
		}

		commit, ok := d.readBatchSummary()
		if !ok || uint64(len(batch.events)) != commit {
			if rerr := d.attemptRecover(); rerr != nil {
				return rerr
			}
			d.ctx.Log.Warn().Msg("restore: skipped a batch via recovery marker")
			if d.ctx.Metrics != nil {
				d.ctx.Metrics.BatchesRecovered.Inc()
			}
			continue
		}
		d.apply(batch, g)
	}

	if closed && d.r.IsEOF() {
		return nil
	}
	return serr.ErrCorruptedBatchFile
}

func (d *Driver) peekNextIsReopen() (isReopen bool, hasNext bool) {
	b, err := d.r.PeekByte()
	if err != nil {
		return false, false
	}
	return b == journal.MarkerBatchReopen, true
}

// readBatch reads one batch-marker and, for an actual batch, its
// start block and event list up through (and including) the
// terminator/early-end byte — but not yet the trailing commit-count
// and checksum, which readBatchSummary reads separately.
func (d *Driver) readBatch() (batchKind, decodedBatch, error) {
	marker, err := d.r.ReadByte()
	if err != nil {
		return 0, decodedBatch{}, err
	}
	switch marker {
	case journal.MarkerRecoveryEvent:
		return batchRecovered, decodedBatch{}, nil
	case journal.MarkerBatchClosed:
		return batchClosed, decodedBatch{}, nil
	case journal.MarkerActualBatchEvent:
		return d.readActualBatch()
	default:
		if rerr := d.attemptRecover(); rerr != nil {
			return 0, decodedBatch{}, rerr
		}
		return batchRecovered, decodedBatch{}, nil
	}
}

func (d *Driver) readActualBatch() (batchKind, decodedBatch, error) {
	d.r.ResetChecksum()

	pkRaw, err := d.r.ReadByte()
	if err != nil {
		return 0, decodedBatch{}, err
	}
	pkTag, ok := cell.TryFromRaw(pkRaw)
	if !ok {
		if rerr := d.attemptRecover(); rerr != nil {
			return 0, decodedBatch{}, rerr
		}
		return batchRecovered, decodedBatch{}, nil
	}

	promised, err := d.r.ReadU64LE()
	if err != nil {
		return 0, decodedBatch{}, err
	}
	schemaVersion, err := d.r.ReadU64LE()
	if err != nil {
		return 0, decodedBatch{}, err
	}
	columnCount, err := d.r.ReadU64LE()
	if err != nil {
		return 0, decodedBatch{}, err
	}

	var events []decodedEvent
	for {
		cb, err := d.r.ReadByte()
		if err != nil {
			return 0, decodedBatch{}, err
		}
		if cb == journal.ChangeEnd {
			break
		}
		if uint64(len(events)) >= promised {
			if rerr := d.attemptRecover(); rerr != nil {
				return 0, decodedBatch{}, rerr
			}
			return batchRecovered, decodedBatch{}, nil
		}
		ev, err := d.decodeEvent(cb, pkTag, columnCount)
		if err != nil {
			if rerr := d.attemptRecover(); rerr != nil {
				return 0, decodedBatch{}, rerr
			}
			return batchRecovered, decodedBatch{}, nil
		}
		events = append(events, ev)
	}
	return batchNormalOrEarly, decodedBatch{events: events, schemaVersion: schemaVersion, promised: promised}, nil
}

func (d *Driver) decodeEvent(cb byte, pkTag cell.TagUnique, columnCount uint64) (decodedEvent, error) {
	var kind delta.Kind
	switch cb {
	case journal.ChangeDelete:
		kind = delta.KindDelete
	case journal.ChangeInsert:
		kind = delta.KindInsert
	case journal.ChangeUpdate:
		kind = delta.KindUpdate
	default:
		return decodedEvent{}, serr.Wrapf(serr.ErrCorruptedBatch, "invalid change-type byte 0x%02x", cb)
	}

	txnID, err := d.r.ReadU64LE()
	if err != nil {
		return decodedEvent{}, err
	}
	pk, err := journal.DecodePK(d.r)
	if err != nil {
		return decodedEvent{}, err
	}
	if pk.Tag() != pkTag {
		return decodedEvent{}, serr.Wrap(serr.ErrCorruptedBatch, "event primary-key tag disagrees with the batch's declared tag")
	}

	var cells []cell.Datacell
	if kind == delta.KindInsert || kind == delta.KindUpdate {
		cells = make([]cell.Datacell, 0, columnCount)
		for i := uint64(0); i < columnCount; i++ {
			c, err := journal.DecodeCell(d.r)
			if err != nil {
				return decodedEvent{}, err
			}
			cells = append(cells, c)
		}
	}
	return decodedEvent{kind: kind, txnID: txnID, pk: pk, cells: cells}, nil
}

// readBatchSummary reads actual_commit and the trailing checksum,
// validating the checksum against what the reader accumulated since
// the batch's ResetChecksum call (captured before the checksum
// field's own bytes are consumed, matching the writer).
func (d *Driver) readBatchSummary() (uint64, bool) {
	actualCommit, err := d.r.ReadU64LE()
	if err != nil {
		return 0, false
	}
	computed := d.r.Checksum()
	stored, err := d.r.ReadU64LE()
	if err != nil {
		return 0, false
	}
	return actualCommit, uint64(computed) == stored
}

// attemptRecover scans forward up to journal.RecoveryThreshold bytes
// for a recovery marker.
func (d *Driver) attemptRecover() error {
	for i := 0; i < journal.RecoveryThreshold; i++ {
		if d.r.IsEOF() {
			return serr.ErrCorruptedBatchFile
		}
		b, err := d.r.ReadByte()
		if err != nil {
			return serr.ErrCorruptedBatchFile
		}
		if b == journal.MarkerRecoveryEvent {
			return nil
		}
	}
	return serr.ErrCorruptedBatchFile
}

type pendingDelete struct {
	pk    cell.PrimaryIndexKey
	txnID uint64
}

func pkMapKey(pk cell.PrimaryIndexKey) string {
	if pk.Tag() == cell.TagUniqueUnsignedInt || pk.Tag() == cell.TagUniqueSignedInt {
		return fmt.Sprintf("%d:%d", pk.Tag(), pk.QW())
	}
	return fmt.Sprintf("%d:%s", pk.Tag(), pk.Bytes())
}

func nonPKFields(fields []model.Field, pkName string) []model.Field {
	out := make([]model.Field, 0, len(fields))
	for _, f := range fields {
		if f.Name != pkName {
			out = append(out, f)
		}
	}
	return out
}

// apply implements §4.4's per-batch conflict resolution: inserts and
// updates are replayed identically (delete-then-reinsert, even when
// nothing existed yet), deletes are deferred to a per-key
// last-writer-wins scratch map resolved after every event in the
// batch has been seen.
func (d *Driver) apply(batch decodedBatch, g *epoch.Guard) {
	idx := d.m.Index()
	nonPK := nonPKFields(d.m.Fields(), d.m.PKField().Name)
	pending := make(map[string]pendingDelete)

	for _, ev := range batch.events {
		switch ev.kind {
		case delta.KindInsert, delta.KindUpdate:
			if existing, ok := idx.Get(g, ev.pk); ok && existing.RestoredTxn() > ev.txnID {
				d.m.ResolveRowSchema(existing)
				continue
			}
			idx.Delete(g, ev.pk)

			data := make(row.FieldIndex, len(nonPK))
			for i, f := range nonPK {
				if i < len(ev.cells) {
					data[f.Name] = ev.cells[i]
				}
			}
			newRow := row.NewRestored(ev.pk, data, batch.schemaVersion, ev.txnID)
			d.m.ResolveRowSchema(newRow)
			idx.Insert(g, ev.pk, newRow)
		case delta.KindDelete:
			key := pkMapKey(ev.pk)
			cur, ok := pending[key]
			if !ok || ev.txnID > cur.txnID {
				pending[key] = pendingDelete{pk: ev.pk, txnID: ev.txnID}
			}
		}
	}

	for _, pd := range pending {
		existing, ok := idx.Get(g, pd.pk)
		if ok && existing.RestoredTxn() > pd.txnID {
			continue
		}
		idx.Delete(g, pd.pk)
	}
}
