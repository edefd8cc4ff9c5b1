package journal

import (
	"github.com/google/uuid"

	"github.com/cockroachdb/errors"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/delta"
	"github.com/gridrow/dbengine/internal/engctx"
	"github.com/gridrow/dbengine/pkg/diskio"
)

// WriterOptions tunes the batch writer, in the shape of the teacher's
// wal.Options/wal.DefaultOptions.
type WriterOptions struct {
	// MaxEventsPerBatch is the K in "a batch groups up to K row
	// changes" (§4.3).
	MaxEventsPerBatch int
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{MaxEventsPerBatch: 256}
}

// Event is one row change the flusher has drained from a model's
// delta.State and wants committed to the journal.
type Event struct {
	Kind  delta.Kind
	TxnID uint64
	PK    cell.PrimaryIndexKey
	Cells []cell.Datacell // non-pk fields in model field order; nil for delete
}

func changeByte(k delta.Kind) (byte, error) {
	switch k {
	case delta.KindDelete:
		return ChangeDelete, nil
	case delta.KindInsert:
		return ChangeInsert, nil
	case delta.KindUpdate:
		return ChangeUpdate, nil
	default:
		return 0, errors.Newf("journal: unknown delta kind %v", k)
	}
}

// BatchWriter commits batches of Events for a single model to an
// underlying diskio.Writer. GenerationID identifies this writer
// instance's run — rotated whenever the caller opens a fresh
// underlying file, via google/uuid, the same library the teacher uses
// for its own key generation.
type BatchWriter struct {
	w            *diskio.Writer
	opts         WriterOptions
	generationID uuid.UUID
	ctx          *engctx.Context
}

func NewBatchWriter(w *diskio.Writer, opts WriterOptions, ctx *engctx.Context) *BatchWriter {
	return &BatchWriter{w: w, opts: opts, generationID: uuid.New(), ctx: ctx}
}

func (bw *BatchWriter) GenerationID() uuid.UUID { return bw.generationID }

// WriteBatch commits one batch. promised is the expected_commit the
// start block advertises; it may exceed len(events) (a legal
// FinishedEarly batch, §4.4) but never be smaller.
func (bw *BatchWriter) WriteBatch(pkTag cell.TagUnique, schemaVersion uint64, columnCount uint64, promised uint64, events []Event) error {
	if uint64(len(events)) > promised {
		return errors.Newf("journal: %d events exceeds promised commit count %d", len(events), promised)
	}
	if len(events) > bw.opts.MaxEventsPerBatch {
		return errors.Newf("journal: batch of %d events exceeds configured max %d", len(events), bw.opts.MaxEventsPerBatch)
	}

	if err := bw.w.WriteByte(MarkerActualBatchEvent); err != nil {
		return err
	}
	bw.w.ResetChecksum()

	if err := bw.w.WriteByte(byte(pkTag)); err != nil {
		return err
	}
	if err := bw.w.WriteU64LE(promised); err != nil {
		return err
	}
	if err := bw.w.WriteU64LE(schemaVersion); err != nil {
		return err
	}
	if err := bw.w.WriteU64LE(columnCount); err != nil {
		return err
	}

	for _, ev := range events {
		cb, err := changeByte(ev.Kind)
		if err != nil {
			return err
		}
		if err := bw.w.WriteByte(cb); err != nil {
			return err
		}
		if err := bw.w.WriteU64LE(ev.TxnID); err != nil {
			return err
		}
		if err := EncodePK(bw.w, ev.PK); err != nil {
			return err
		}
		if ev.Kind == delta.KindInsert || ev.Kind == delta.KindUpdate {
			if uint64(len(ev.Cells)) != columnCount {
				return errors.Newf("journal: event carries %d cells, model declares %d columns", len(ev.Cells), columnCount)
			}
			for _, c := range ev.Cells {
				if err := EncodeCell(bw.w, c); err != nil {
					return err
				}
			}
		}
	}

	// This single byte serves both roles described in §4.3: a plain
	// terminator when len(events) == promised, or the inline
	// end-of-batch-early marker when the writer stops short of what it
	// promised. The wire bytes that follow are identical either way.
	if err := bw.w.WriteByte(MarkerEndOfBatch); err != nil {
		return err
	}
	if err := bw.w.WriteU64LE(uint64(len(events))); err != nil {
		return err
	}
	sum := uint64(bw.w.Checksum())
	if err := bw.w.WriteU64LE(sum); err != nil {
		return err
	}
	if err := bw.w.Flush(); err != nil {
		return err
	}
	bw.ctx.Log.Debug().
		Int("events", len(events)).
		Uint64("promised", promised).
		Uint64("schema_version", schemaVersion).
		Msg("journal: batch committed")
	if bw.ctx.Metrics != nil {
		bw.ctx.Metrics.BatchesWritten.Inc()
	}
	return nil
}

// WriteClosed writes the clean-close marker (§4.3); the writer must
// not append further batches to this file after calling it unless
// WriteReopen is called first.
func (bw *BatchWriter) WriteClosed() error {
	if err := bw.w.WriteByte(MarkerBatchClosed); err != nil {
		return err
	}
	if err := bw.w.Flush(); err != nil {
		return err
	}
	bw.ctx.Log.Info().Msg("journal: closed")
	return nil
}

// WriteReopen writes the reopen marker, permitting further batches to
// follow a prior WriteClosed.
func (bw *BatchWriter) WriteReopen() error {
	if err := bw.w.WriteByte(MarkerBatchReopen); err != nil {
		return err
	}
	return bw.w.Flush()
}
