// Package serr defines the storage-layer error taxonomy (§7): the
// journal writer and restore driver's failure modes, distinct from
// dml's query-facing qerr sentinels.
package serr

import "github.com/cockroachdb/errors"

var (
	// ErrCorruptedBatch covers a single batch failing structurally: an
	// unexpected marker byte, a checksum mismatch, or an invalid tag.
	// Restore attempts recovery-marker scanning before giving up.
	ErrCorruptedBatch = errors.New("serr: corrupted batch")

	// ErrCorruptedEntry covers a cell-level problem within an
	// otherwise well-formed batch: a bad dscr byte, non-UTF-8 string
	// bytes, or a list whose element count disagrees with its header.
	ErrCorruptedEntry = errors.New("serr: corrupted entry")

	// ErrCorruptedBatchFile is unrecoverable file-level corruption:
	// restore gives up and the server must not start.
	ErrCorruptedBatchFile = errors.New("serr: corrupted batch file")

	// ErrInternalDecodeStructureCorrupted marks a metadata-decoder
	// invariant violation that indicates a bug rather than on-disk
	// damage (e.g. a marker byte value outside the table this decoder
	// was built for).
	ErrInternalDecodeStructureCorrupted = errors.New("serr: internal decode structure corrupted")
)

func Wrap(sentinel error, msg string) error { return errors.Wrap(sentinel, msg) }

func Wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
