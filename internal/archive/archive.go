// Package archive mirrors accepted ledger records to durable storage for
// audit. The archive is write-only from the service's point of view: ledgers
// are never rebuilt from it.
package archive

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
)

// Archive stores accepted records.
type Archive interface {
	// Store persists one record. sessionID is uuid.Nil for request-scoped ledgers.
	Store(ctx context.Context, sessionID uuid.UUID, policy string, rec ledger.Record) error

	// Count returns the number of archived records.
	Count(ctx context.Context) (int, error)
}

// Nop is an Archive that discards everything.
type Nop struct{}

// Store implements Archive.
func (Nop) Store(context.Context, uuid.UUID, string, ledger.Record) error { return nil }

// Count implements Archive.
func (Nop) Count(context.Context) (int, error) { return 0, nil }
