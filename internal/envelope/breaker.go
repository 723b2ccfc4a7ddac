package envelope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/contractsync/internal/failure"
)

// Compile-time interface satisfaction check.
var _ Gateway = (*BreakerGateway)(nil)

// BreakerGateway stops calling an unavailable provider for a cool-down
// period. Only provider availability failures trip it; bad requests and
// credential errors pass through without counting.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// NewBreakerGateway wraps next with a circuit breaker.
func NewBreakerGateway(next Gateway, s BreakerSettings, logger *slog.Logger) *BreakerGateway {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerGateway{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "envelope-provider",
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !(errors.Is(err, failure.ErrProviderUnavailable) || errors.Is(err, failure.ErrRateLimited))
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// CreateEnvelope calls through the breaker.
func (b *BreakerGateway) CreateEnvelope(ctx context.Context, req Request) (Envelope, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CreateEnvelope(ctx, req)
	})
	if err != nil {
		return Envelope{}, breakerErr(err)
	}
	return res.(Envelope), nil
}

// EnvelopeStatus calls through the breaker.
func (b *BreakerGateway) EnvelopeStatus(ctx context.Context, envelopeID string) (StatusReport, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.EnvelopeStatus(ctx, envelopeID)
	})
	if err != nil {
		return StatusReport{}, breakerErr(err)
	}
	return res.(StatusReport), nil
}

// State reports the breaker state for health output.
func (b *BreakerGateway) State() string { return b.cb.State().String() }

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", failure.ErrProviderUnavailable, err)
	}
	return err
}
