// Package envelope creates and inspects signing envelopes at the e-signature
// provider.
package envelope

import (
	"context"
	"time"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Request describes the envelope to create for one signer.
type Request struct {
	Name     string
	Email    string
	Document types.DocumentRef
}

// Envelope is the provider's answer to a create request.
type Envelope struct {
	EnvelopeID string
	SigningURL string
}

// StatusReport is the provider-side view of an envelope.
type StatusReport struct {
	EnvelopeID string
	// Status is the provider's raw envelope status, e.g. "completed".
	Status    string
	ChangedAt time.Time
	Signers   []types.Signer
}

// Gateway is the envelope provider interface. Errors wrap
// failure.ErrAuthentication, failure.ErrRateLimited,
// failure.ErrProviderUnavailable or failure.ErrProviderRejected.
type Gateway interface {
	CreateEnvelope(ctx context.Context, req Request) (Envelope, error)
	EnvelopeStatus(ctx context.Context, envelopeID string) (StatusReport, error)
}

// DocumentSource loads the document bytes for an envelope.
type DocumentSource interface {
	Fetch(ctx context.Context, ref types.DocumentRef) ([]byte, error)
}
