package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Ledger is an in-memory, append-only chain of sealed records gated by a
// Policy. It is safe for concurrent use; appends are serialised.
type Ledger struct {
	mu        sync.RWMutex
	policy    Policy
	now       func() time.Time
	records   []Record
	reviewers map[string]struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger holding only the genesis record.
func New(policy Policy, opts ...Option) *Ledger {
	l := &Ledger{
		policy:    policy,
		now:       time.Now,
		reviewers: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(l)
	}

	created := l.now().UTC()
	genesis := NewRecord(0, created, Payload{
		UserID:    "0",
		ProductID: "0",
		Review:    "Genesis",
		Timestamp: unixSeconds(created),
	}, GenesisSeal)
	l.records = append(l.records, genesis)
	return l
}

// Policy returns the acceptance policy this ledger was created with.
func (l *Ledger) Policy() Policy { return l.policy }

// IsDuplicate reports whether any record carries exactly this
// (User_ID, Product_ID, Review) triple. Comparison is case-sensitive and
// untrimmed.
func (l *Ledger) IsDuplicate(userID, productID, review string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isDuplicate(userID, productID, review)
}

// IsNewReviewer reports whether userID is non-empty and has not yet had a
// submission accepted.
func (l *Ledger) IsNewReviewer(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isNewReviewer(userID)
}

// TryAppend evaluates the policy and, on acceptance, appends a sealed record.
// On rejection the chain is left unchanged and the zero Record is returned.
func (l *Ledger) TryAppend(p Payload) (Record, bool) {
	rec, d := l.Submit(p)
	return rec, d == Accepted
}

// Submit is TryAppend with the reason for the outcome.
func (l *Ledger) Submit(p Payload) (Record, Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d := l.evaluate(p); d != Accepted {
		return Record{}, d
	}

	tail := l.records[len(l.records)-1]
	created := l.now().UTC()
	if created.Before(tail.CreatedAt) {
		created = tail.CreatedAt
	}

	rec := NewRecord(len(l.records), created, p, tail.Seal)
	l.records = append(l.records, rec)
	l.reviewers[p.UserID] = struct{}{}
	return rec, Accepted
}

// Evaluate reports the Decision Submit would reach for p without appending.
func (l *Ledger) Evaluate(p Payload) Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evaluate(p)
}

// evaluate must be called with l.mu held. A non-finite Timestamp cannot be
// sealed and is rejected before the policy runs.
func (l *Ledger) evaluate(p Payload) Decision {
	if math.IsNaN(p.Timestamp) || math.IsInf(p.Timestamp, 0) {
		return RejectedInvalid
	}
	return l.policy.Evaluate(lockedView{l}, p)
}

// Records returns a copy of the whole chain, genesis first.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Accepted returns every record after genesis in insertion order.
func (l *Ledger) Accepted() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records)-1)
	copy(out, l.records[1:])
	return out
}

// Get returns the record with the given sequence number.
func (l *Ledger) Get(sequence int) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sequence < 0 || sequence >= len(l.records) {
		return Record{}, fmt.Errorf("%w: sequence %d", ErrNotFound, sequence)
	}
	return l.records[sequence], nil
}

// Len returns the number of records, genesis included.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Root returns the seal of the chain tail.
func (l *Ledger) Root() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[len(l.records)-1].Seal
}

// Verify walks the chain and checks sequence order, linkage, timestamps and
// seals. It returns nil if the chain is intact.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.records)
}

// VerifyChain checks an ordered slice of records as a complete chain.
func VerifyChain(records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: empty chain", ErrIntegrity)
	}
	for i, curr := range records {
		if curr.Sequence != i {
			return fmt.Errorf("%w: record %d has sequence %d", ErrIntegrity, i, curr.Sequence)
		}
		if !curr.Valid() {
			return fmt.Errorf("%w: record %d has invalid seal", ErrIntegrity, i)
		}
		if i == 0 {
			if curr.PreviousSeal != GenesisSeal {
				return fmt.Errorf("%w: genesis previous seal is %q", ErrIntegrity, curr.PreviousSeal)
			}
			continue
		}
		prev := records[i-1]
		if curr.PreviousSeal != prev.Seal {
			return fmt.Errorf("%w: chain broken at record %d", ErrIntegrity, i)
		}
		if curr.CreatedAt.Before(prev.CreatedAt) {
			return fmt.Errorf("%w: record %d predates record %d", ErrIntegrity, i, i-1)
		}
	}
	return nil
}

func (l *Ledger) isDuplicate(userID, productID, review string) bool {
	for _, r := range l.records {
		if r.Payload.UserID == userID &&
			r.Payload.ProductID == productID &&
			r.Payload.Review == review {
			return true
		}
	}
	return false
}

func (l *Ledger) isNewReviewer(userID string) bool {
	if userID == "" {
		return false
	}
	_, seen := l.reviewers[userID]
	return !seen
}

// lockedView exposes ledger state to a Policy while Submit holds the lock.
type lockedView struct{ l *Ledger }

func (v lockedView) IsDuplicate(userID, productID, review string) bool {
	return v.l.isDuplicate(userID, productID, review)
}

func (v lockedView) IsNewReviewer(userID string) bool {
	return v.l.isNewReviewer(userID)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
