// Package ingest turns an uploaded contract document into a signing envelope
// and a SENT contract record.
package ingest

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

	"github.com/dwsmith1983/contractsync/internal/envelope"
	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/internal/objectkey"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/internal/telemetry"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Scheduler arranges a later status check for a freshly sent envelope.
type Scheduler interface {
	Schedule(ctx context.Context, rec types.ContractRecord) error
}

// Result describes a successful ingestion.
type Result struct {
	Outcome types.Outcome        `json:"outcome"`
	Record  types.ContractRecord `json:"record"`
}

// Handler processes upload events.
type Handler struct {
	store    store.Store
	gateway  envelope.Gateway
	prefix   string
	followup Scheduler
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures a Handler.
type Option func(*Handler)

// WithPrefix sets the object-storage folder contracts are expected under.
func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.prefix = prefix }
}

// WithFollowup schedules a status check after each successful ingestion.
func WithFollowup(s Scheduler) Option {
	return func(h *Handler) { h.followup = s }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates an ingestion handler.
func New(s store.Store, gw envelope.Gateway, opts ...Option) *Handler {
	h := &Handler{
		store:   s,
		gateway: gw,
		prefix:  types.DefaultKeyPrefix,
		logger:  slog.Default(),
		now:     time.Now,
		tracer:  otel.Tracer("contractsync/ingest"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle ingests one uploaded document. It does not retry; the transport
// redelivers events whose error failure.Retryable reports as transient.
func (h *Handler) Handle(ctx context.Context, ev types.UploadEvent) (res Result, err error) {
	ctx, span := h.tracer.Start(ctx, "ingest.Handle", trace.WithAttributes(
		attribute.String("s3.bucket", ev.Bucket),
		attribute.String("s3.key", ev.Key),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, failure.Code(err))
			metrics.IngestionsFailed.Add(1)
			telemetry.RecordOutcome(ctx, "ingest", failure.Code(err))
		} else {
			telemetry.RecordOutcome(ctx, "ingest", string(res.Outcome))
		}
		span.End()
	}()
	metrics.IngestionsTotal.Add(1)

	signer, err := objectkey.Parse(ev.Key, h.prefix)
	if err != nil {
		h.logger.Warn("rejecting upload", "key", ev.Key, "error", err)
		return Result{}, err
	}
	logger := h.logger.With("email", signer.Email)
	span.SetAttributes(attribute.String("contract.email", signer.Email))

	current, err := h.store.Get(ctx, signer.Email)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading %s: %w", failure.ErrStoreUnavailable, signer.Email, err)
	}
	if current != nil && lifecycle.IsTerminal(current.Status) {
		logger.Warn("contract already terminal, not re-sending", "status", current.Status, "envelopeId", current.EnvelopeID)
		return Result{}, fmt.Errorf("%w: contract %q is %s", failure.ErrConflictingTerminalState, signer.Email, current.Status)
	}

	env, err := h.gateway.CreateEnvelope(ctx, envelope.Request{
		Name:     signer.Name,
		Email:    signer.Email,
		Document: types.DocumentRef{Bucket: ev.Bucket, Key: ev.Key},
	})
	if err != nil {
		metrics.EnvelopesFailed.Add(1)
		logger.Error("envelope creation failed", "code", failure.Code(err), "error", err)
		return Result{}, fmt.Errorf("%w: %w", failure.ErrEnvelopeCreationFailed, err)
	}

	now := h.now().UTC()
	rec := types.ContractRecord{
		Email:       signer.Email,
		Name:        signer.Name,
		SigningLink: env.SigningURL,
		EnvelopeID:  env.EnvelopeID,
		DocumentKey: ev.Key,
		Status:      types.ContractSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.Upsert(ctx, rec); err != nil {
		if errors.Is(err, failure.ErrConflictingTerminalState) {
			logger.Warn("contract reached a terminal state while sending", "envelopeId", env.EnvelopeID)
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: writing %s: %w", failure.ErrStoreUnavailable, signer.Email, err)
	}

	outcome := types.OutcomeCreated
	if current != nil {
		outcome = types.OutcomeReplaced
	}
	span.SetAttributes(attribute.String("contract.envelope_id", env.EnvelopeID), attribute.String("outcome", string(outcome)))
	logger.Info("contract sent", "envelopeId", env.EnvelopeID, "outcome", outcome)

	if h.followup != nil {
		if err := h.followup.Schedule(ctx, rec); err != nil {
			logger.Warn("scheduling follow-up failed", "envelopeId", env.EnvelopeID, "error", err)
		} else {
			metrics.FollowupsScheduled.Add(1)
		}
	}

	return Result{Outcome: outcome, Record: rec}, nil
}
