package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opencontainers/go-digest"

	"github.com/eargollo/hashscan/internal/cache"
)

// EntriesHandler serves cache entries by fingerprint.
type EntriesHandler struct {
	Store cache.Store
}

// Get handles GET /api/entries/{fingerprint}.
func (h *EntriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	fp, err := digest.Parse(chi.URLParam(r, "fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FINGERPRINT", err.Error())
		return
	}

	entry, err := h.Store.Lookup(r.Context(), fp)
	if err != nil {
		slog.Error("entries: lookup", "fingerprint", fp, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read cache")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No cache entry for "+fp.String())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
