// Package storetest provides shared conformance tests for store.Store
// implementations. Call RunAll from a test function to verify a backend
// satisfies the full behavioral contract.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// RunAll runs the complete store conformance suite as subtests.
func RunAll(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) { TestGetMissing(t, s) })
	t.Run("UpsertGet", func(t *testing.T) { TestUpsertGet(t, s) })
	t.Run("UpsertReplacesNonTerminal", func(t *testing.T) { TestUpsertReplacesNonTerminal(t, s) })
	t.Run("UpsertRejectsTerminal", func(t *testing.T) { TestUpsertRejectsTerminal(t, s) })
	t.Run("GetByEnvelope", func(t *testing.T) { TestGetByEnvelope(t, s) })
	t.Run("CompareAndSwap", func(t *testing.T) { TestCompareAndSwap(t, s) })
	t.Run("CASRaceCondition", func(t *testing.T) { TestCASRaceCondition(t, s) })
	t.Run("ListByStatus", func(t *testing.T) { TestListByStatus(t, s) })
}

// Record returns a SENT record for a conformance test.
func Record(email, envelopeID string) types.ContractRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return types.ContractRecord{
		Email:       email,
		Name:        "Conformance Signer",
		SigningLink: "https://sign.example/" + envelopeID,
		EnvelopeID:  envelopeID,
		DocumentKey: "contratos-gerados/conformance-signer-" + email + ".pdf",
		Status:      types.ContractSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TestGetMissing verifies that an unknown email yields no record and no error.
func TestGetMissing(t *testing.T, s store.Store) {
	got, err := s.Get(context.Background(), "ct-missing@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestUpsertGet verifies a write is readable by its lower-cased email.
func TestUpsertGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("CT-Upsert@Example.com", "env-ct-upsert")

	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "ct-upsert@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-upsert@example.com", got.Email)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.EnvelopeID, got.EnvelopeID)
	assert.Equal(t, rec.SigningLink, got.SigningLink)
	assert.Equal(t, types.ContractSent, got.Status)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", rec.CreatedAt, got.CreatedAt)
	assert.Nil(t, got.CompletedAt)
}

// TestUpsertReplacesNonTerminal verifies re-ingestion replaces the envelope.
func TestUpsertReplacesNonTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record("ct-replace@example.com", "env-ct-replace-1")))
	require.NoError(t, s.Upsert(ctx, Record("ct-replace@example.com", "env-ct-replace-2")))

	got, err := s.Get(ctx, "ct-replace@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "env-ct-replace-2", got.EnvelopeID)
}

// TestUpsertRejectsTerminal verifies a terminal record is never overwritten.
func TestUpsertRejectsTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("ct-terminal@example.com", "env-ct-terminal")
	require.NoError(t, s.Upsert(ctx, rec))

	signed := rec
	signed.Status = types.ContractSigned
	done := time.Now().UTC().Truncate(time.Second)
	signed.CompletedAt = &done
	ok, err := s.CompareAndSwap(ctx, rec.Email, types.ContractSent, signed)
	require.NoError(t, err)
	require.True(t, ok)

	err = s.Upsert(ctx, Record("ct-terminal@example.com", "env-ct-terminal-2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrConflictingTerminalState), "got %v", err)

	got, err := s.Get(ctx, rec.Email)
	require.NoError(t, err)
	assert.Equal(t, types.ContractSigned, got.Status)
	assert.Equal(t, "env-ct-terminal", got.EnvelopeID)
	require.NotNil(t, got.CompletedAt)
}

// TestGetByEnvelope verifies envelope lookups, including stale envelopes
// left behind by a replaced ingestion.
func TestGetByEnvelope(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record("ct-env@example.com", "env-ct-env-1")))

	got, err := s.GetByEnvelope(ctx, "env-ct-env-1")
	if errors.Is(err, store.ErrEnvelopeIndexUnsupported) {
		t.Skip("backend has no envelope index")
	}
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-env@example.com", got.Email)

	require.NoError(t, s.Upsert(ctx, Record("ct-env@example.com", "env-ct-env-2")))
	stale, err := s.GetByEnvelope(ctx, "env-ct-env-1")
	require.NoError(t, err)
	assert.Nil(t, stale)

	missing, err := s.GetByEnvelope(ctx, "env-ct-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestCompareAndSwap verifies swap success, status and envelope mismatches
// and missing records.
func TestCompareAndSwap(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("ct-cas@example.com", "env-ct-cas")
	require.NoError(t, s.Upsert(ctx, rec))

	declined := rec
	declined.Status = types.ContractDeclined

	ok, err := s.CompareAndSwap(ctx, rec.Email, types.ContractPending, declined)
	require.NoError(t, err)
	assert.False(t, ok, "swap with wrong expected status must fail")

	replaced := declined
	replaced.EnvelopeID = "env-ct-cas-replaced"
	ok, err = s.CompareAndSwap(ctx, rec.Email, types.ContractSent, replaced)
	require.NoError(t, err)
	assert.False(t, ok, "swap for a record bound to another envelope must fail")
	got, err := s.Get(ctx, rec.Email)
	require.NoError(t, err)
	assert.Equal(t, types.ContractSent, got.Status)
	assert.Equal(t, "env-ct-cas", got.EnvelopeID)

	ok, err = s.CompareAndSwap(ctx, rec.Email, types.ContractSent, declined)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.Get(ctx, rec.Email)
	require.NoError(t, err)
	assert.Equal(t, types.ContractDeclined, got.Status)

	ok, err = s.CompareAndSwap(ctx, rec.Email, types.ContractSent, declined)
	require.NoError(t, err)
	assert.False(t, ok, "second swap from SENT must fail")

	ok, err = s.CompareAndSwap(ctx, "ct-cas-missing@example.com", types.ContractSent, Record("ct-cas-missing@example.com", "x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCASRaceCondition verifies exactly one of many concurrent swaps wins.
func TestCASRaceCondition(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("ct-race@example.com", "env-ct-race")
	require.NoError(t, s.Upsert(ctx, rec))

	const workers = 8
	statuses := []types.ContractStatus{types.ContractSigned, types.ContractDeclined, types.ContractVoided}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := rec
			next.Status = statuses[i%len(statuses)]
			ok, err := s.CompareAndSwap(ctx, rec.Email, types.ContractSent, next)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := s.Get(ctx, rec.Email)
	require.NoError(t, err)
	assert.NotEqual(t, types.ContractSent, got.Status)
}

// TestListByStatus verifies status listing with a limit.
func TestListByStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := Record(fmt.Sprintf("ct-list-%d@example.com", i), fmt.Sprintf("env-ct-list-%d", i))
		rec.Status = types.ContractPending
		rec.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Upsert(ctx, rec))
	}

	all, err := s.ListByStatus(ctx, types.ContractPending, 10)
	require.NoError(t, err)
	emails := make(map[string]bool)
	for _, r := range all {
		assert.Equal(t, types.ContractPending, r.Status)
		emails[r.Email] = true
	}
	for i := 0; i < 3; i++ {
		assert.True(t, emails[fmt.Sprintf("ct-list-%d@example.com", i)])
	}

	limited, err := s.ListByStatus(ctx, types.ContractPending, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
