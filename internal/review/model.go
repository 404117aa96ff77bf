package review

import (
	"strings"
	"time"

	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"github.com/jmerrifield20/reviewledger/internal/scoring"
)

// ErrValidation is returned for submissions rejected at the boundary,
// before the ledger is consulted.
type ErrValidation struct {
	Field string
	Msg   string
}

func (e *ErrValidation) Error() string { return e.Field + ": " + e.Msg }

// Submission is a review as received from a client.
type Submission struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Review    string `json:"review"`
}

// Validate checks the fields the given policy requires. Whitespace-only
// values count as missing. Values are not trimmed: duplicate detection
// compares exactly what the client sent.
func (s Submission) Validate(policy string) error {
	if blank(s.UserID) {
		return &ErrValidation{Field: "user_id", Msg: "is required"}
	}
	if blank(s.Review) {
		return &ErrValidation{Field: "review", Msg: "is required"}
	}
	if policy == ledger.PolicyDuplicate && blank(s.ProductID) {
		return &ErrValidation{Field: "product_id", Msg: "is required"}
	}
	return nil
}

// payload converts the submission into a ledger payload stamped with at.
func (s Submission) payload(at time.Time) ledger.Payload {
	return ledger.Payload{
		UserID:    s.UserID,
		ProductID: s.ProductID,
		Review:    s.Review,
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
	}
}

// Outcome is the result of Analyze.
type Outcome struct {
	Accepted bool             `json:"accepted"`
	Decision string           `json:"decision"`
	Record   *ledger.Record   `json:"record,omitempty"`
	Verdict  *scoring.Verdict `json:"verdict,omitempty"`
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
