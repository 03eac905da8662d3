package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/blob"
)

// OpsHandler serves health checks and locally stored blobs.
type OpsHandler struct {
	DB    *sql.DB
	Blobs *blob.DBStore
}

// Health handles GET /healthz.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		writeError(w, r, apperr.Unavailable(err))
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Blob handles GET /blobs/{key...}.
func (h *OpsHandler) Blob(w http.ResponseWriter, r *http.Request) {
	data, mime, err := h.Blobs.Get(r.Context(), r.PathValue("key"))
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, r, apperr.NotFound("blob"))
		return
	}
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Write(data)
}
