// Package notify delivers terminal-status notifications to configured sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Notifier receives a notification after a record reaches a terminal status.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, n types.Notification) error
	Name() string
}

// Dispatcher routes notifications to every configured sink.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// Compile-time interface satisfaction check.
var _ Notifier = (*Dispatcher)(nil)

// New creates a dispatcher over already constructed sinks.
func New(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// NewDispatcher creates a dispatcher from notify configs.
func NewDispatcher(configs []types.NotifyConfig) (*Dispatcher, error) {
	d := New(slog.Default())
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// Notify sends n to all sinks. A failing sink does not stop the others; the
// joined sink errors are returned for the caller to log.
func (d *Dispatcher) Notify(ctx context.Context, n types.Notification) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, n); err != nil {
			metrics.NotificationsFailed.Add(1)
			d.logger.Warn("notification sink failed", "sink", sink.Name(), "email", n.Email, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.NotificationsSent.Add(1)
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// NewNotification builds the notification for a record that just left prev.
func NewNotification(rec types.ContractRecord, prev types.ContractStatus, now time.Time) types.Notification {
	n := types.Notification{
		ID:             ulid.Make().String(),
		Email:          rec.Email,
		Name:           rec.Name,
		EnvelopeID:     rec.EnvelopeID,
		Status:         rec.Status,
		PreviousStatus: prev,
		Timestamp:      now.UTC(),
	}
	if rec.CompletedAt != nil {
		n.CompletedAt = rec.CompletedAt.UTC()
	}
	return n
}

// Subject is the one-line summary used by sinks with a subject field.
func Subject(n types.Notification) string {
	return fmt.Sprintf("[%s] %s <%s>", n.Status.DisplayName(), n.Name, n.Email)
}

func newSink(cfg types.NotifyConfig) (Sink, error) {
	switch cfg.Type {
	case types.NotifyConsole:
		return NewConsoleSink(), nil
	case types.NotifyWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.NotifySNS:
		return NewSNSSink(cfg.TopicARN)
	case types.NotifyEmail:
		return NewEmailSink(cfg.From, cfg.To)
	case types.NotifyEventBridge:
		return NewEventBridgeSink(cfg.EventBus)
	case types.NotifyS3:
		return NewS3Sink(cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown notify type %q", cfg.Type)
	}
}
