// Package sweeper recovers work the event-driven path missed: uploads that
// were never ingested and envelopes whose completion webhook never arrived.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/contractsync/internal/envelope"
	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/ingest"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/internal/objectkey"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultStaleAfter  = 24 * time.Hour
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

// Ingester ingests one upload.
type Ingester interface {
	Handle(ctx context.Context, ev types.UploadEvent) (ingest.Result, error)
}

// Reconciler applies one provider event.
type Reconciler interface {
	Apply(ctx context.Context, ev reconcile.Event) (reconcile.Result, error)
}

// Config controls a sweep.
type Config struct {
	// Bucket and Prefix locate uploaded contracts. Backfill is skipped when
	// Bucket is empty.
	Bucket string
	Prefix string
	// StaleAfter is how long a record may stay SENT before the provider is polled.
	StaleAfter  time.Duration
	BatchSize   int
	Concurrency int
}

// Report summarizes a sweep.
type Report struct {
	Scanned    int `json:"scanned"`
	Backfilled int `json:"backfilled"`
	Checked    int `json:"checked"`
	Recovered  int `json:"recovered"`
	Failed     int `json:"failed"`
}

func (r *Report) add(o Report) {
	r.Scanned += o.Scanned
	r.Backfilled += o.Backfilled
	r.Checked += o.Checked
	r.Recovered += o.Recovered
	r.Failed += o.Failed
}

// Sweeper runs backfill and stale-envelope recovery.
type Sweeper struct {
	cfg        Config
	store      store.Store
	gateway    envelope.Gateway
	ingester   Ingester
	reconciler Reconciler
	lister     s3.ListObjectsV2APIClient
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLister sets the S3 client used to list uploads.
func WithLister(l s3.ListObjectsV2APIClient) Option {
	return func(s *Sweeper) { s.lister = l }
}

// WithLogger sets the sweeper logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a Sweeper.
func New(cfg Config, st store.Store, gw envelope.Gateway, ing Ingester, rec Reconciler, opts ...Option) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Prefix == "" {
		cfg.Prefix = types.DefaultKeyPrefix
	}
	s := &Sweeper{
		cfg:        cfg,
		store:      st,
		gateway:    gw,
		ingester:   ing,
		reconciler: rec,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a backfill followed by stale-envelope recovery.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var total Report
	backfill, err := s.Backfill(ctx)
	total.add(backfill)
	if err != nil {
		return total, err
	}
	stale, err := s.RecoverStale(ctx)
	total.add(stale)
	if err != nil {
		return total, err
	}
	s.logger.Info("sweep complete", "scanned", total.Scanned, "backfilled", total.Backfilled,
		"checked", total.Checked, "recovered", total.Recovered, "failed", total.Failed)
	return total, nil
}

// Backfill ingests uploaded contracts that have no record.
func (s *Sweeper) Backfill(ctx context.Context) (Report, error) {
	var rep Report
	if s.cfg.Bucket == "" || s.lister == nil {
		return rep, nil
	}

	var (
		mu      sync.Mutex
		pending []types.UploadEvent
	)
	prefix := strings.Trim(s.cfg.Prefix, "/") + "/"
	pager := s3.NewListObjectsV2Paginator(s.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return rep, fmt.Errorf("listing s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			signer, err := objectkey.Parse(key, s.cfg.Prefix)
			if err != nil {
				continue
			}
			rep.Scanned++
			rec, err := s.store.Get(ctx, signer.Email)
			if err != nil {
				return rep, fmt.Errorf("%w: reading %s: %w", failure.ErrStoreUnavailable, signer.Email, err)
			}
			if rec == nil {
				pending = append(pending, types.UploadEvent{Bucket: s.cfg.Bucket, Key: key, Size: aws.ToInt64(obj.Size)})
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, ev := range pending {
		g.Go(func() error {
			_, err := s.ingester.Handle(gctx, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				s.logger.Warn("backfill ingestion failed", "key", ev.Key, "code", failure.Code(err), "error", err)
				return nil
			}
			rep.Backfilled++
			metrics.SweepBackfilled.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return rep, nil
}

// RecoverStale polls the provider for records that have been SENT longer
// than StaleAfter and applies any terminal status found. A record the
// provider still reports as pending has its UpdatedAt advanced, which moves
// it behind the other stale records so the next sweep reaches them.
func (s *Sweeper) RecoverStale(ctx context.Context) (Report, error) {
	var rep Report
	recs, err := s.store.ListByStatus(ctx, types.ContractSent, s.cfg.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("%w: listing SENT records: %w", failure.ErrStoreUnavailable, err)
	}

	cutoff := s.now().Add(-s.cfg.StaleAfter)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, rec := range recs {
		if !rec.UpdatedAt.Before(cutoff) {
			break
		}
		if rec.EnvelopeID == "" {
			continue
		}
		g.Go(func() error {
			res, err := s.Check(gctx, types.SweepRequest{EnvelopeID: rec.EnvelopeID, Email: rec.Email})
			mu.Lock()
			defer mu.Unlock()
			rep.Checked++
			if err != nil {
				rep.Failed++
				s.logger.Warn("stale envelope check failed", "envelopeId", rec.EnvelopeID, "email", rec.Email,
					"code", failure.Code(err), "error", err)
				return nil
			}
			switch res.Outcome {
			case types.OutcomeApplied:
				rep.Recovered++
				metrics.SweepRecovered.Add(1)
			case types.OutcomeIgnored:
				s.markPolled(gctx, rec)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep, nil
}

// Check asks the provider for the envelope's status and reconciles it. A
// non-terminal provider status yields an ignored outcome.
func (s *Sweeper) Check(ctx context.Context, req types.SweepRequest) (reconcile.Result, error) {
	if req.EnvelopeID == "" {
		return reconcile.Result{}, errors.New("envelope id required")
	}
	report, err := s.gateway.EnvelopeStatus(ctx, req.EnvelopeID)
	if err != nil {
		return reconcile.Result{EnvelopeID: req.EnvelopeID}, err
	}

	ev := reconcile.Event{
		EnvelopeID: req.EnvelopeID,
		Status:     strings.ToLower(report.Status),
		Signers:    report.Signers,
		OccurredAt: report.ChangedAt,
	}
	if req.Email != "" {
		ev.Signers = append(ev.Signers, types.Signer{Email: store.NormalizeEmail(req.Email)})
	}
	if _, terminal := lifecycle.ProviderStatus(ev.Status); terminal {
		s.logger.Info("provider reports terminal envelope", "envelopeId", req.EnvelopeID, "status", ev.Status)
	}
	return s.reconciler.Apply(ctx, ev)
}

// markPolled rotates a still-pending record to the back of the SENT listing.
// The swap is conditioned on the record being unchanged since it was listed.
func (s *Sweeper) markPolled(ctx context.Context, rec types.ContractRecord) {
	next := rec
	next.UpdatedAt = s.now().UTC()
	if _, err := s.store.CompareAndSwap(ctx, rec.Email, types.ContractSent, next); err != nil {
		s.logger.Warn("recording poll failed", "envelopeId", rec.EnvelopeID, "email", rec.Email, "error", err)
	}
}
