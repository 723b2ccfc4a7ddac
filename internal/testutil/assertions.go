package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// RequireStatus fails the test unless the stored record for email has status.
func RequireStatus(t *testing.T, s *MockStore, email string, status types.ContractStatus) types.ContractRecord {
	t.Helper()
	rec, ok := s.Record(email)
	if !ok {
		t.Fatalf("no record for %s", email)
	}
	if rec.Status != status {
		t.Fatalf("record %s status = %s, want %s", email, rec.Status, status)
	}
	return rec
}

// SentRecord returns a SENT record for email bound to envelopeID.
func SentRecord(name, email, envelopeID string, at time.Time) types.ContractRecord {
	return types.ContractRecord{
		Email:       email,
		Name:        name,
		SigningLink: "https://sign.example/" + envelopeID,
		EnvelopeID:  envelopeID,
		Status:      types.ContractSent,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}
