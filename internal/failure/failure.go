// Package failure defines the error taxonomy shared by the ingestion and
// reconciliation handlers and maps it to retry and HTTP semantics.
package failure

import (
	"errors"
	"net/http"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Bad input: never retried.
var (
	ErrMalformedKey        = errors.New("malformed object key")
	ErrUnrecognizedPayload = errors.New("unrecognized webhook payload")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// Envelope gateway faults. Gateway errors are wrapped in
// ErrEnvelopeCreationFailed by the ingestion handler and keep their cause.
var (
	ErrEnvelopeCreationFailed = errors.New("envelope creation failed")
	ErrAuthentication         = errors.New("provider authentication failed")
	ErrRateLimited            = errors.New("provider rate limited")
	ErrProviderUnavailable    = errors.New("provider unavailable")
	ErrProviderRejected       = errors.New("provider rejected request")
)

// Store and reconciliation outcomes.
var (
	ErrStoreUnavailable         = errors.New("record store unavailable")
	ErrRecordNotFound           = errors.New("record not found")
	ErrConflictingTerminalState = errors.New("conflicting terminal state")
	// ErrInvalidTransition marks a stored record whose status cannot move to
	// the requested one, including statuses the state machine does not know.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Classify returns the retry category for err. Unknown errors are transient.
func Classify(err error) types.FailureCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedKey),
		errors.Is(err, ErrUnrecognizedPayload),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrProviderRejected):
		return types.FailurePermanent
	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrConflictingTerminalState),
		errors.Is(err, ErrInvalidTransition):
		return types.FailureTerminal
	default:
		return types.FailureTransient
	}
}

// Retryable reports whether the transport should redeliver the event.
func Retryable(err error) bool {
	return Classify(err) == types.FailureTransient
}

// HTTPStatus maps a webhook handling error to the response code returned to
// the provider. RecordNotFound, ConflictingTerminalState and InvalidTransition
// answer 200 so the provider does not enter a retry storm for an outcome that
// cannot change.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMalformedKey), errors.Is(err, ErrUnrecognizedPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrConflictingTerminalState),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code for err, used in response bodies
// and dead-letter message attributes.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedKey):
		return "MalformedKey"
	case errors.Is(err, ErrUnrecognizedPayload):
		return "UnrecognizedPayload"
	case errors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ErrAuthentication):
		return "AuthenticationError"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrProviderUnavailable):
		return "ProviderUnavailable"
	case errors.Is(err, ErrProviderRejected):
		return "ProviderRejected"
	case errors.Is(err, ErrEnvelopeCreationFailed):
		return "EnvelopeCreationFailed"
	case errors.Is(err, ErrRecordNotFound):
		return "RecordNotFound"
	case errors.Is(err, ErrConflictingTerminalState):
		return "ConflictingTerminalState"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	default:
		return "InternalError"
	}
}
