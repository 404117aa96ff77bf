// Package session owns the lifetime of ledgers. A ledger lives either for a
// whole client session (accumulating every accepted submission) or for a
// single request, depending on the configured Retention.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"go.uber.org/zap"
)

// Retention selects how long a ledger survives.
type Retention string

const (
	// RetentionSession keeps one ledger per session until it ends or idles out.
	RetentionSession Retention = "session"
	// RetentionRequest creates a fresh ledger for every request.
	RetentionRequest Retention = "request"
)

// ParseRetention validates a configured retention mode.
func ParseRetention(s string) (Retention, error) {
	switch Retention(s) {
	case RetentionSession, RetentionRequest:
		return Retention(s), nil
	default:
		return "", fmt.Errorf("unknown retention %q (want session or request)", s)
	}
}

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

type entry struct {
	ledger   *ledger.Ledger
	lastSeen time.Time
}

// Store holds the ledgers of active sessions. Sessions share no state with
// each other; each owns exactly one ledger.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	policy   ledger.Policy
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewStore creates a Store whose ledgers use policy. idleTTL of zero
// defaults to 30 minutes.
func NewStore(policy ledger.Policy, idleTTL time.Duration, logger *zap.Logger) *Store {
	if idleTTL == 0 {
		idleTTL = 30 * time.Minute
	}
	return &Store{
		sessions: make(map[uuid.UUID]*entry),
		policy:   policy,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// Policy returns the policy new ledgers are created with.
func (s *Store) Policy() ledger.Policy { return s.policy }

// NewLedger returns a standalone ledger that belongs to no session.
func (s *Store) NewLedger() *ledger.Ledger {
	return ledger.New(s.policy)
}

// Create starts a session with a fresh ledger.
func (s *Store) Create() uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.sessions[id] = &entry{ledger: ledger.New(s.policy), lastSeen: s.now()}
	s.mu.Unlock()
	s.logger.Debug("session created", zap.String("session_id", id.String()))
	return id
}

// Ledger returns the ledger of a live session and refreshes its idle timer.
func (s *Store) Ledger(id uuid.UUID) (*ledger.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || s.expired(e) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.lastSeen = s.now()
	return e.ledger, nil
}

// End discards a session and its ledger.
func (s *Store) End(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of tracked sessions, including idle ones not yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict removes idle sessions and returns how many were dropped.
func (s *Store) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// StartEviction runs Evict every interval until ctx is cancelled.
func (s *Store) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Evict(); n > 0 {
					s.logger.Info("evicted idle sessions", zap.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Store) expired(e *entry) bool {
	return s.now().Sub(e.lastSeen) > s.idleTTL
}
