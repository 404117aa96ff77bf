package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisSeal is the previous-seal sentinel carried by the genesis record.
const GenesisSeal = "0"

// Payload is the submission carried by a record. The JSON field names and
// their order are part of the seal definition; do not reorder.
type Payload struct {
	UserID    string  `json:"User_ID"`
	ProductID string  `json:"Product_ID,omitempty"`
	Review    string  `json:"Review,omitempty"`
	Timestamp float64 `json:"Timestamp,omitempty"` // unix seconds
}

// Record is a single sealed entry in the ledger. Records are values: the
// ledger hands out copies and never exposes its own storage.
type Record struct {
	Sequence     int       `json:"sequence"`
	CreatedAt    time.Time `json:"created_at"`
	Payload      Payload   `json:"payload"`
	PreviousSeal string    `json:"previous_seal"`
	Seal         string    `json:"seal"`
}

// NewRecord builds a record and computes its seal. payload.Timestamp must be
// finite; Ledger.Submit rejects payloads that are not.
func NewRecord(sequence int, createdAt time.Time, payload Payload, previousSeal string) Record {
	r := Record{
		Sequence:     sequence,
		CreatedAt:    createdAt.UTC(),
		Payload:      payload,
		PreviousSeal: previousSeal,
	}
	r.Seal = computeSeal(r)
	return r
}

// Valid reports whether the stored seal matches the record's fields.
func (r Record) Valid() bool {
	return r.Seal == computeSeal(r)
}

// computeSeal hashes "<sequence>|<created_at>|<payload json>|<previous_seal>".
// Payload is a struct, so encoding/json emits its fields in declaration order
// and the serialization is stable for equal payloads.
func computeSeal(r Record) string {
	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		// Only a NaN or Inf timestamp can fail here.
		panic(fmt.Sprintf("ledger: marshal payload: %v", err))
	}
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s",
		r.Sequence, r.CreatedAt.Format(time.RFC3339Nano), payloadJSON, r.PreviousSeal,
	)
	return hex.EncodeToString(h.Sum(nil))
}
