// Package journal implements the append-only binary batch journal
// writer (§4.3): markers, the cell/primary-key wire codec, and the
// batch writer that groups row changes for a single model into
// checksummed, length-declared batches. The restore side of the same
// wire format lives in internal/restore.
package journal

// Marker bytes reserved by the wire format (§6).
const (
	MarkerActualBatchEvent byte = 0xA1
	MarkerRecoveryEvent    byte = 0xA2
	MarkerBatchClosed      byte = 0xA3
	MarkerBatchReopen      byte = 0xA4
	MarkerEndOfBatch       byte = 0xA5
)

// RecoveryThreshold is the maximum number of bytes the restore driver
// scans forward looking for MarkerRecoveryEvent before giving up.
const RecoveryThreshold = 4096

// Change-type bytes prefixing each event record. EndOfBatch reuses
// MarkerEndOfBatch's value: an event record whose change-type byte is
// 0xA5 carries no txn_id/pk/cells and means "no further events in this
// batch," whether or not the writer had promised more via
// expected_commit.
const (
	ChangeDelete byte = 0
	ChangeInsert byte = 1
	ChangeUpdate byte = 2
	ChangeEnd    byte = MarkerEndOfBatch
)
