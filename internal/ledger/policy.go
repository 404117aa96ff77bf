package ledger

import "fmt"

// Decision is the outcome of evaluating a payload against a Policy.
type Decision int

const (
	// Accepted means the payload was sealed and appended.
	Accepted Decision = iota
	// RejectedDuplicate means the policy matched an existing record or reviewer.
	RejectedDuplicate
	// RejectedInvalid means the payload lacked a required field such as User_ID
	// or carried a non-finite Timestamp.
	RejectedInvalid
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "duplicate"
	case RejectedInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// View is the read-only slice of ledger state a Policy may consult.
type View interface {
	IsDuplicate(userID, productID, review string) bool
	IsNewReviewer(userID string) bool
}

// Policy decides whether a payload may be appended. Implementations must be
// pure functions of the View and payload; the ledger owns all state.
type Policy interface {
	Name() string
	Evaluate(v View, p Payload) Decision
}

// Policy names accepted by PolicyByName.
const (
	PolicyReviewer  = "reviewer"
	PolicyDuplicate = "duplicate"
)

// ReviewerPolicy admits each User_ID at most once per ledger.
// An empty User_ID is never new and is therefore always rejected.
type ReviewerPolicy struct{}

// Name implements Policy.
func (ReviewerPolicy) Name() string { return PolicyReviewer }

// Evaluate implements Policy.
func (ReviewerPolicy) Evaluate(v View, p Payload) Decision {
	if p.UserID == "" {
		return RejectedInvalid
	}
	if !v.IsNewReviewer(p.UserID) {
		return RejectedDuplicate
	}
	return Accepted
}

// DuplicatePolicy rejects a payload whose (User_ID, Product_ID, Review)
// triple already exists anywhere in the chain, genesis included.
type DuplicatePolicy struct{}

// Name implements Policy.
func (DuplicatePolicy) Name() string { return PolicyDuplicate }

// Evaluate implements Policy.
func (DuplicatePolicy) Evaluate(v View, p Payload) Decision {
	if p.UserID == "" || p.ProductID == "" || p.Review == "" {
		return RejectedInvalid
	}
	if v.IsDuplicate(p.UserID, p.ProductID, p.Review) {
		return RejectedDuplicate
	}
	return Accepted
}

// PolicyByName returns the policy registered under name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case PolicyReviewer:
		return ReviewerPolicy{}, nil
	case PolicyDuplicate:
		return DuplicatePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger policy %q", name)
	}
}
