package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/contractsync/internal/store"
)

// GetContract returns the record for the email in the path.
func (h *Handlers) GetContract(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid email", nil)
		return
	}
	email := store.NormalizeEmail(raw)
	if email == "" {
		h.writeError(w, http.StatusBadRequest, "email is required", nil)
		return
	}

	rec, err := h.store.Get(r.Context(), email)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read contract", err)
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "contract not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
