// Package qerr defines the DML error taxonomy (§4.2, §6), one
// sentinel per kind in the style of the teacher's pkg/errors: each
// kind is a distinct value that errors.Is can match, wrapped with
// cockroachdb/errors for stack traces and context instead of the
// teacher's bare fmt.Errorf.
package qerr

import "github.com/cockroachdb/errors"

var (
	// ErrValidation covers a field failing its Field.Validate check,
	// or prepare_insert finding an ordered/map payload that doesn't
	// match the model's field set exactly.
	ErrValidation = errors.New("qerr: validation failed")

	// ErrDuplicate is returned when Insert targets an existing primary key.
	ErrDuplicate = errors.New("qerr: duplicate primary key")

	// ErrNotFound is returned when Update/Delete targets a missing row.
	ErrNotFound = errors.New("qerr: row not found")

	// ErrAuth is returned by the auth layer (§6) for a bad root key or
	// unknown/invalid user credential.
	ErrAuth = errors.New("qerr: authentication failed")

	// ErrDecodeCorrupted is the query-facing kind for corrupted on-disk
	// encoding. The journal and restore packages do not return it; they
	// report decode failures through the serr sentinels.
	ErrDecodeCorrupted = errors.New("qerr: corrupted on-disk encoding")
)

// Wrap attaches msg as context to a sentinel without losing errors.Is
// matchability, mirroring cockroachdb/errors.Wrap's usual call shape.
func Wrap(sentinel error, msg string) error {
	return errors.Wrap(sentinel, msg)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
