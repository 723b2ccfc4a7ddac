package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dwsmith1983/contractsync/internal/envelope"
)

// Compile-time interface satisfaction check.
var _ envelope.Gateway = (*MockGateway)(nil)

// MockGateway is an envelope.Gateway that hands out sequential envelope ids.
type MockGateway struct {
	mu       sync.Mutex
	requests []envelope.Request
	seq      int

	// Err is returned by CreateEnvelope when set.
	Err error
	// Reports answers EnvelopeStatus by envelope id.
	Reports   map[string]envelope.StatusReport
	StatusErr error
}

// NewMockGateway creates a gateway with no scripted failures.
func NewMockGateway() *MockGateway {
	return &MockGateway{Reports: make(map[string]envelope.StatusReport)}
}

func (g *MockGateway) CreateEnvelope(_ context.Context, req envelope.Request) (envelope.Envelope, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return envelope.Envelope{}, g.Err
	}
	g.seq++
	id := fmt.Sprintf("env-%d", g.seq)
	return envelope.Envelope{EnvelopeID: id, SigningURL: "https://sign.example/" + id}, nil
}

func (g *MockGateway) EnvelopeStatus(_ context.Context, envelopeID string) (envelope.StatusReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StatusErr != nil {
		return envelope.StatusReport{}, g.StatusErr
	}
	rep, ok := g.Reports[envelopeID]
	if !ok {
		return envelope.StatusReport{EnvelopeID: envelopeID, Status: "sent"}, nil
	}
	return rep, nil
}

// Requests returns the create requests received so far.
func (g *MockGateway) Requests() []envelope.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]envelope.Request(nil), g.requests...)
}
