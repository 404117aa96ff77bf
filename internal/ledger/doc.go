// Package ledger implements the hash-chained submission ledger that gates
// review scoring.
//
// A Ledger starts with a genesis record whose PreviousSeal is GenesisSeal
// ("0"). Every later record stores the seal of its predecessor, and each seal
// is the SHA-256 of the record's sequence number, timestamp, payload and
// previous seal, so any mutation is detectable via Verify.
//
// Whether a submission is appended is decided by a Policy:
//   - ReviewerPolicy: each User_ID may submit once.
//   - DuplicatePolicy: the same (User_ID, Product_ID, Review) triple may
//     appear once.
//
// Rejections are reported as a Decision, never as an error. Malformed
// payloads are rejected (fail-closed).
package ledger

import "errors"

var (
	// ErrNotFound is returned by Get for an out-of-range sequence number.
	ErrNotFound = errors.New("record not found")
	// ErrIntegrity wraps every chain verification failure.
	ErrIntegrity = errors.New("ledger integrity check failed")
)
