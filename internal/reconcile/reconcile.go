// Package reconcile applies provider envelope status changes to contract
// records. Every write is a compare-and-swap against a freshly read record,
// so duplicate and concurrent deliveries converge on a single terminal state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/internal/notify"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/internal/telemetry"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// DefaultMaxAttempts bounds how often a lost compare-and-swap is re-evaluated.
const DefaultMaxAttempts = 3

// Result describes a successfully handled event.
type Result struct {
	Outcome    types.Outcome        `json:"outcome"`
	EnvelopeID string               `json:"envelopeId"`
	Email      string               `json:"email,omitempty"`
	Status     types.ContractStatus `json:"status,omitempty"`
	Previous   types.ContractStatus `json:"previousStatus,omitempty"`
}

// Handler reconciles provider events against the record store.
type Handler struct {
	store       store.Store
	notifier    notify.Notifier
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
	tracer      trace.Tracer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// New creates a reconciliation handler. notifier may be nil.
func New(s store.Store, notifier notify.Notifier, opts ...Option) *Handler {
	h := &Handler{
		store:       s,
		notifier:    notifier,
		logger:      slog.Default(),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		tracer:      otel.Tracer("contractsync/reconcile"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle decodes a webhook body and applies it.
func (h *Handler) Handle(ctx context.Context, body []byte) (Result, error) {
	ev, err := ParseEvent(body)
	if err != nil {
		h.logger.Warn("unrecognized webhook payload", "error", err)
		return Result{}, err
	}
	return h.Apply(ctx, ev)
}

// Apply runs the transition rule for ev:
//   - a record already in the implied terminal status is a duplicate and is not written;
//   - a record in another terminal status is never overwritten (ErrConflictingTerminalState);
//   - a SENT or PENDING record moves to the terminal status.
func (h *Handler) Apply(ctx context.Context, ev Event) (res Result, err error) {
	ctx, span := h.tracer.Start(ctx, "reconcile.Apply", trace.WithAttributes(
		attribute.String("contract.envelope_id", ev.EnvelopeID),
		attribute.String("provider.status", ev.Status),
		attribute.String("provider.event", ev.EventName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, failure.Code(err))
			telemetry.RecordOutcome(ctx, "reconcile", failure.Code(err))
		} else {
			span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
			telemetry.RecordOutcome(ctx, "reconcile", string(res.Outcome))
		}
		span.End()
	}()

	logger := h.logger.With("envelopeId", ev.EnvelopeID)
	res = Result{EnvelopeID: ev.EnvelopeID}

	target, ok := ev.Terminal()
	if !ok {
		metrics.ReconcileIgnored.Add(1)
		logger.Info("ignoring non-terminal event", "event", ev.EventName, "status", ev.Status)
		res.Outcome = types.OutcomeIgnored
		return res, nil
	}
	res.Status = target

	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		rec, err := h.resolve(ctx, ev)
		if err != nil {
			if errors.Is(err, failure.ErrRecordNotFound) {
				metrics.ReconcileNotFound.Add(1)
				logger.Warn("no contract for envelope", "signers", len(ev.Signers))
			}
			return res, err
		}
		res.Email = rec.Email
		res.Previous = rec.Status

		switch {
		case rec.Status == target:
			metrics.ReconcileDuplicate.Add(1)
			logger.Info("duplicate event, record already terminal", "email", rec.Email, "status", rec.Status)
			res.Outcome = types.OutcomeDuplicate
			return res, nil
		case lifecycle.IsTerminal(rec.Status):
			metrics.ReconcileConflicts.Add(1)
			logger.Warn("conflicting terminal event left unapplied", "email", rec.Email, "status", rec.Status, "event", target)
			return res, fmt.Errorf("%w: contract %q is %s, event says %s",
				failure.ErrConflictingTerminalState, rec.Email, rec.Status, target)
		}
		if err := lifecycle.Transition(rec.Status, target); err != nil {
			return res, fmt.Errorf("contract %q: %w", rec.Email, err)
		}

		now := h.now().UTC()
		completedAt := ev.OccurredAt
		if completedAt.IsZero() {
			completedAt = now
		}
		next := *rec
		next.Status = target
		next.CompletedAt = &completedAt
		next.UpdatedAt = now

		swapped, err := h.store.CompareAndSwap(ctx, rec.Email, rec.Status, next)
		if err != nil {
			return res, fmt.Errorf("%w: updating %s: %w", failure.ErrStoreUnavailable, rec.Email, err)
		}
		if !swapped {
			metrics.CASRetries.Add(1)
			logger.Debug("record changed under us, re-reading", "email", rec.Email, "attempt", attempt)
			continue
		}

		metrics.ReconcileApplied.Add(1)
		logger.Info("contract status updated", "email", rec.Email, "from", rec.Status, "to", target)
		res.Outcome = types.OutcomeApplied
		h.notify(ctx, next, rec.Status, now)
		return res, nil
	}

	return res, fmt.Errorf("%w: envelope %s still contended after %d attempts",
		failure.ErrStoreUnavailable, ev.EnvelopeID, h.maxAttempts)
}

// resolve finds the record bound to the event's envelope, falling back to the
// signers' emails. The envelope index only names the email; the record
// itself is always read by email so the write below is based on the current
// row. A record bound to a different envelope belongs to a replaced
// ingestion and does not match.
func (h *Handler) resolve(ctx context.Context, ev Event) (*types.ContractRecord, error) {
	emails := make([]string, 0, len(ev.Signers)+1)
	indexed, err := h.store.GetByEnvelope(ctx, ev.EnvelopeID)
	switch {
	case errors.Is(err, store.ErrEnvelopeIndexUnsupported):
	case err != nil:
		return nil, fmt.Errorf("%w: looking up envelope %s: %w", failure.ErrStoreUnavailable, ev.EnvelopeID, err)
	case indexed != nil:
		emails = append(emails, indexed.Email)
	}
	for _, s := range ev.Signers {
		emails = append(emails, s.Email)
	}

	for _, email := range emails {
		rec, err := h.store.Get(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", failure.ErrStoreUnavailable, email, err)
		}
		if rec != nil && (rec.EnvelopeID == "" || rec.EnvelopeID == ev.EnvelopeID) {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: envelope %s", failure.ErrRecordNotFound, ev.EnvelopeID)
}

func (h *Handler) notify(ctx context.Context, rec types.ContractRecord, prev types.ContractStatus, now time.Time) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, notify.NewNotification(rec, prev, now)); err != nil {
		h.logger.Warn("notification failed", "email", rec.Email, "envelopeId", rec.EnvelopeID, "error", err)
	}
}
