package ledger_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/reviewledger/internal/ledger"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func review(user, product, text string) ledger.Payload {
	return ledger.Payload{UserID: user, ProductID: product, Review: text, Timestamp: 1700000000}
}

func TestNew_genesisRecord(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})

	if n := l.Len(); n != 1 {
		t.Fatalf("expected 1 genesis record, got %d", n)
	}
	g, err := l.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if g.Sequence != 0 {
		t.Errorf("genesis sequence: got %d, want 0", g.Sequence)
	}
	if g.PreviousSeal != ledger.GenesisSeal {
		t.Errorf("genesis previous seal: got %q, want %q", g.PreviousSeal, ledger.GenesisSeal)
	}
	if g.Payload.UserID != "0" || g.Payload.Review != "Genesis" {
		t.Errorf("unexpected genesis payload: %+v", g.Payload)
	}
	if len(l.Accepted()) != 0 {
		t.Error("Accepted() on a fresh ledger should be empty")
	}
}

func TestNewRecord_deterministicSeal(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := review("U1", "P1", "great product")

	a := ledger.NewRecord(3, at, p, "abc")
	b := ledger.NewRecord(3, at, p, "abc")
	if a.Seal != b.Seal {
		t.Errorf("same inputs produced different seals: %q vs %q", a.Seal, b.Seal)
	}
	if len(a.Seal) != 64 {
		t.Errorf("seal length: got %d, want 64 hex chars", len(a.Seal))
	}

	c := ledger.NewRecord(4, at, p, "abc")
	if c.Seal == a.Seal {
		t.Error("different sequence numbers produced the same seal")
	}
}

func TestRecord_mutationInvalidatesSeal(t *testing.T) {
	r := ledger.NewRecord(1, time.Now(), review("U1", "P1", "ok"), "prev")
	if !r.Valid() {
		t.Fatal("freshly built record should be valid")
	}
	r.Payload.Review = "edited"
	if r.Valid() {
		t.Error("edited record should not validate")
	}
}

func TestReviewerPolicy_rejectsRepeatReviewer(t *testing.T) {
	l := ledger.New(ledger.ReviewerPolicy{})

	if _, ok := l.TryAppend(ledger.Payload{UserID: "U1", Review: "first"}); !ok {
		t.Fatal("first submission for U1 should be accepted")
	}
	if n := l.Len(); n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}

	rec, ok := l.TryAppend(ledger.Payload{UserID: "U1", Review: "something else"})
	if ok {
		t.Error("second submission for U1 should be rejected")
	}
	if rec.Seal != "" {
		t.Error("rejected submission should return the zero record")
	}
	if n := l.Len(); n != 2 {
		t.Errorf("chain grew on rejection: got %d records", n)
	}
	if l.IsNewReviewer("U1") {
		t.Error("U1 should no longer be a new reviewer")
	}
	if !l.IsNewReviewer("U2") {
		t.Error("U2 should be a new reviewer")
	}
}

func TestDuplicatePolicy_triple(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})

	if _, ok := l.TryAppend(review("U1", "P1", "great product")); !ok {
		t.Fatal("first submission should be accepted")
	}
	if _, d := l.Submit(review("U1", "P1", "great product")); d != ledger.RejectedDuplicate {
		t.Errorf("verbatim resubmission: got %v, want duplicate", d)
	}

	variants := []ledger.Payload{
		review("U2", "P1", "great product"),
		review("U1", "P2", "great product"),
		review("U1", "P1", "Great product"),
		review("U1", "P1", "great product "),
	}
	for _, p := range variants {
		if _, ok := l.TryAppend(p); !ok {
			t.Errorf("changed triple %+v should be accepted", p)
		}
	}
	if n := l.Len(); n != 2+len(variants) {
		t.Errorf("expected %d records, got %d", 2+len(variants), n)
	}
}

func TestDuplicatePolicy_genesisTripleIsDuplicate(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})
	if !l.IsDuplicate("0", "0", "Genesis") {
		t.Error("the genesis triple should count as already present")
	}
	if _, ok := l.TryAppend(review("0", "0", "Genesis")); ok {
		t.Error("submitting the genesis triple should be rejected")
	}
}

func TestEmptyIdentity_alwaysRejected(t *testing.T) {
	for _, p := range []ledger.Policy{ledger.ReviewerPolicy{}, ledger.DuplicatePolicy{}} {
		l := ledger.New(p)
		_, _ = l.TryAppend(review("U1", "P1", "fine"))

		_, d := l.Submit(review("", "P1", "fine"))
		if d != ledger.RejectedInvalid {
			t.Errorf("%s: empty User_ID: got %v, want invalid", p.Name(), d)
		}
		if l.IsNewReviewer("") {
			t.Errorf("%s: empty User_ID must never be a new reviewer", p.Name())
		}
		if n := l.Len(); n != 2 {
			t.Errorf("%s: chain changed on invalid submission: %d records", p.Name(), n)
		}
	}
}

func TestDuplicatePolicy_missingFieldsRejected(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})
	for _, p := range []ledger.Payload{
		{UserID: "U1", Review: "no product"},
		{UserID: "U1", ProductID: "P1"},
	} {
		if _, d := l.Submit(p); d != ledger.RejectedInvalid {
			t.Errorf("%+v: got %v, want invalid", p, d)
		}
	}
}

func TestTryAppend_chainsAndOrders(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})

	prevLen := l.Len()
	inputs := []ledger.Payload{
		review("U1", "P1", "a"),
		review("U1", "P1", "a"), // rejected
		review("U2", "P1", "b"),
		review("U3", "P2", "c"),
		review("U2", "P1", "b"), // rejected
	}
	for _, p := range inputs {
		rec, ok := l.TryAppend(p)
		n := l.Len()
		switch {
		case ok && n != prevLen+1:
			t.Errorf("accepted append grew chain by %d", n-prevLen)
		case !ok && n != prevLen:
			t.Errorf("rejected append changed chain length by %d", n-prevLen)
		}
		if ok && rec.Sequence != n-1 {
			t.Errorf("record sequence: got %d, want %d", rec.Sequence, n-1)
		}
		prevLen = n
	}

	records := l.Records()
	for i := 1; i < len(records); i++ {
		if records[i].PreviousSeal != records[i-1].Seal {
			t.Errorf("record %d not linked to record %d", i, i-1)
		}
		if records[i].Sequence <= records[i-1].Sequence {
			t.Errorf("sequence not increasing at %d", i)
		}
	}
	if l.Root() != records[len(records)-1].Seal {
		t.Error("Root() should equal the tail seal")
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify() on valid chain: %v", err)
	}
}

func TestSubmit_clockSkewKeepsTimestampsMonotonic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New(ledger.ReviewerPolicy{}, ledger.WithClock(fixedClock(start, -time.Second)))

	a, _ := l.TryAppend(ledger.Payload{UserID: "U1"})
	b, _ := l.TryAppend(ledger.Payload{UserID: "U2"})
	if b.CreatedAt.Before(a.CreatedAt) {
		t.Errorf("timestamps went backwards: %v then %v", a.CreatedAt, b.CreatedAt)
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify(): %v", err)
	}
}

func TestVerifyChain_detectsTampering(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})
	_, _ = l.TryAppend(review("U1", "P1", "a"))
	_, _ = l.TryAppend(review("U2", "P1", "b"))

	records := l.Records()
	records[1].Payload.Review = "tampered"
	if err := ledger.VerifyChain(records); !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for edited payload, got %v", err)
	}

	records = l.Records()
	records[2] = ledger.NewRecord(2, records[2].CreatedAt, records[2].Payload, "bogus")
	if err := ledger.VerifyChain(records); !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for broken link, got %v", err)
	}

	// The ledger's own copy is untouched.
	if err := l.Verify(); err != nil {
		t.Errorf("ledger state changed through a returned copy: %v", err)
	}
}

func TestGet_outOfRange(t *testing.T) {
	l := ledger.New(ledger.ReviewerPolicy{})
	if _, err := l.Get(5); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.Get(-1); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{ledger.PolicyReviewer, ledger.PolicyDuplicate} {
		p, err := ledger.PolicyByName(name)
		if err != nil {
			t.Fatalf("PolicyByName(%q): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("Name(): got %q, want %q", p.Name(), name)
		}
	}
	if _, err := ledger.PolicyByName("majority"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestSubmit_nonFiniteTimestampRejected(t *testing.T) {
	for _, policy := range []ledger.Policy{ledger.ReviewerPolicy{}, ledger.DuplicatePolicy{}} {
		for _, ts := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			l := ledger.New(policy)
			p := review("U1", "P1", "good")
			p.Timestamp = ts

			if _, d := l.Submit(p); d != ledger.RejectedInvalid {
				t.Errorf("%s/%v: decision %v, want invalid", policy.Name(), ts, d)
			}
			if _, ok := l.TryAppend(p); ok {
				t.Errorf("%s/%v: TryAppend accepted", policy.Name(), ts)
			}
			if l.Len() != 1 {
				t.Errorf("%s/%v: chain grew to %d", policy.Name(), ts, l.Len())
			}
			if !l.IsNewReviewer("U1") {
				t.Errorf("%s/%v: rejected user recorded as reviewer", policy.Name(), ts)
			}
		}
	}
}

func TestEvaluate_matchesSubmitWithoutAppending(t *testing.T) {
	l := ledger.New(ledger.ReviewerPolicy{})
	first := review("U1", "", "works fine")
	repeat := review("U1", "", "another one")

	if d := l.Evaluate(first); d != ledger.Accepted {
		t.Fatalf("fresh ledger: got %v, want accepted", d)
	}
	if l.Len() != 1 {
		t.Fatalf("Evaluate appended: len %d", l.Len())
	}
	if _, d := l.Submit(first); d != ledger.Accepted {
		t.Fatalf("submit: got %v", d)
	}

	want := ledger.RejectedDuplicate
	if d := l.Evaluate(repeat); d != want {
		t.Errorf("repeat reviewer: Evaluate got %v, want %v", d, want)
	}
	if _, d := l.Submit(repeat); d != want {
		t.Errorf("repeat reviewer: Submit got %v, want %v", d, want)
	}
	if d := l.Evaluate(review("", "", "x")); d != ledger.RejectedInvalid {
		t.Errorf("empty user: got %v, want invalid", d)
	}
}

func TestSubmit_concurrentSameTripleAcceptedOnce(t *testing.T) {
	l := ledger.New(ledger.DuplicatePolicy{})
	p := review("U1", "P1", "same text")

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, d := l.Submit(p); d == ledger.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			_ = l.IsDuplicate(p.UserID, p.ProductID, p.Review)
			_ = l.Root()
		}()
	}
	close(start)
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted %d times, want exactly 1", accepted)
	}
	if l.Len() != 2 {
		t.Errorf("len: got %d, want 2", l.Len())
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify after concurrent submits: %v", err)
	}
}

func TestSubmit_concurrentDistinctReviewersAllAccepted(t *testing.T) {
	l := ledger.New(ledger.ReviewerPolicy{})

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Submit(review(string(rune('A'+i)), "", "fine"))
		}(i)
	}
	wg.Wait()

	if l.Len() != workers+1 {
		t.Errorf("len: got %d, want %d", l.Len(), workers+1)
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
