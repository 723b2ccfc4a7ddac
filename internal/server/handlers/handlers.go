// Package handlers implements HTTP request handlers for the contractsync API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwsmith1983/contractsync/internal/connectsig"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/store"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "contractsync-webhook"

// Reconciler applies a raw webhook body.
type Reconciler interface {
	Handle(ctx context.Context, body []byte) (reconcile.Result, error)
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	store      store.Store
	reconciler Reconciler
	verifier   *connectsig.Verifier
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new Handlers instance. verifier may be nil to accept unsigned
// webhook deliveries.
func New(s store.Store, rec Reconciler, verifier *connectsig.Verifier) *Handlers {
	return &Handlers{
		store:      s,
		reconciler: rec,
		verifier:   verifier,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// SetClock overrides the time source.
func (h *Handlers) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
