package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
)

// Webhook verifies and reconciles a Connect delivery.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	if h.verifier.Enabled() {
		if err := h.verifier.Verify(r.Header, body); err != nil {
			metrics.InvalidSignatures.Add(1)
			h.logger.Warn("rejecting webhook", "error", err)
			code, resp := reconcile.Reply(reconcile.Result{}, err)
			writeJSON(w, code, resp)
			return
		}
	}

	res, err := h.reconciler.Handle(r.Context(), body)
	code, resp := reconcile.Reply(res, err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("webhook handling failed", "envelopeId", res.EnvelopeID, "code", failure.Code(err), "error", err)
	}
	writeJSON(w, code, resp)
}
