// Package store defines the record store interface contract records are
// persisted through. The store is the system of record; every adapter
// enforces status monotonicity on its own writes.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// ErrEnvelopeIndexUnsupported is returned by GetByEnvelope when the backend
// cannot look records up by envelope id. Callers fall back to Get by email.
var ErrEnvelopeIndexUnsupported = errors.New("store: envelope index unsupported")

// Store is the record store backend interface.
type Store interface {
	// Get returns the record for email, or nil when none exists.
	Get(ctx context.Context, email string) (*types.ContractRecord, error)

	// GetByEnvelope returns the record currently bound to envelopeID, or nil.
	GetByEnvelope(ctx context.Context, envelopeID string) (*types.ContractRecord, error)

	// Upsert creates or replaces the record keyed by rec.Email. It fails with
	// failure.ErrConflictingTerminalState when the stored record is terminal.
	Upsert(ctx context.Context, rec types.ContractRecord) error

	// CompareAndSwap replaces the record for email with next only if its
	// stored status still equals expected and it is still bound to
	// next.EnvelopeID. A missing record, a changed status or a re-bound
	// envelope reports false with a nil error.
	CompareAndSwap(ctx context.Context, email string, expected types.ContractStatus, next types.ContractRecord) (bool, error)

	// ListByStatus returns up to limit records in status, oldest update first.
	ListByStatus(ctx context.Context, status types.ContractStatus, limit int) ([]types.ContractRecord, error)

	Ping(ctx context.Context) error
}

// NormalizeEmail returns the canonical record key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
