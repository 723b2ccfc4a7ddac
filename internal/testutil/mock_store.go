// Package testutil provides shared test doubles for contractsync.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory store.Store with error injection for testing.
type MockStore struct {
	mu      sync.Mutex
	records map[string]types.ContractRecord

	// NoEnvelopeIndex makes GetByEnvelope report store.ErrEnvelopeIndexUnsupported.
	NoEnvelopeIndex bool
	// StaleIndex answers GetByEnvelope before the live records, the way a
	// lagging secondary index can.
	StaleIndex map[string]types.ContractRecord
	// GetErr, UpsertErr and CASErr are returned by the matching operation when set.
	GetErr    error
	UpsertErr error
	CASErr    error
	// BeforeCAS runs before each CompareAndSwap is evaluated, outside the
	// lock, so a test can interleave a competing write.
	BeforeCAS func(email string)

	upserts int
	swaps   int
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]types.ContractRecord)}
}

// Put writes rec unconditionally, bypassing monotonicity checks.
func (m *MockStore) Put(rec types.ContractRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Email = store.NormalizeEmail(rec.Email)
	m.records[rec.Email] = rec
}

// Record returns the stored record for email.
func (m *MockStore) Record(email string) (types.ContractRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[store.NormalizeEmail(email)]
	return rec, ok
}

// UpsertCalls returns how many times Upsert was called.
func (m *MockStore) UpsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// CASCalls returns how many times CompareAndSwap was called.
func (m *MockStore) CASCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swaps
}

func (m *MockStore) Get(_ context.Context, email string) (*types.ContractRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	rec, ok := m.records[store.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockStore) GetByEnvelope(_ context.Context, envelopeID string) (*types.ContractRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoEnvelopeIndex {
		return nil, store.ErrEnvelopeIndexUnsupported
	}
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if rec, ok := m.StaleIndex[envelopeID]; ok {
		return &rec, nil
	}
	for _, rec := range m.records {
		if rec.EnvelopeID == envelopeID {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MockStore) Upsert(_ context.Context, rec types.ContractRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	rec.Email = store.NormalizeEmail(rec.Email)
	if cur, ok := m.records[rec.Email]; ok && lifecycle.IsTerminal(cur.Status) {
		return fmt.Errorf("%w: contract %q is already terminal", failure.ErrConflictingTerminalState, rec.Email)
	}
	m.records[rec.Email] = rec
	return nil
}

func (m *MockStore) CompareAndSwap(_ context.Context, email string, expected types.ContractStatus, next types.ContractRecord) (bool, error) {
	email = store.NormalizeEmail(email)
	if m.BeforeCAS != nil {
		m.BeforeCAS(email)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps++
	if m.CASErr != nil {
		return false, m.CASErr
	}
	cur, ok := m.records[email]
	if !ok || cur.Status != expected || cur.EnvelopeID != next.EnvelopeID {
		return false, nil
	}
	next.Email = email
	m.records[email] = next
	return true, nil
}

func (m *MockStore) ListByStatus(_ context.Context, status types.ContractStatus, limit int) ([]types.ContractRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var out []types.ContractRecord
	for _, rec := range m.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetErr
}
