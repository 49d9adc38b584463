package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/sipauth/internal/logger"
)

// Purger removes the outstanding vectors of an identity.
type Purger interface {
	Purge(ctx context.Context, impi string) (int, error)
}

// PurgeResponse is the body of DELETE /api/v1/vectors/{impi}.
type PurgeResponse struct {
	IMPI   string `json:"impi"`
	Purged int    `json:"purged"`
}

// VectorsHandler serves the admin vector endpoints.
type VectorsHandler struct {
	store Purger
}

// NewVectorsHandler creates the vector admin handler.
func NewVectorsHandler(store Purger) *VectorsHandler {
	return &VectorsHandler{store: store}
}

// Purge handles DELETE /api/v1/vectors/{impi}. Every challenge outstanding
// for the identity becomes unanswerable.
func (h *VectorsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	impi := chi.URLParam(r, "impi")
	if impi == "" {
		BadRequest(w, "impi is required")
		return
	}

	n, err := h.store.Purge(r.Context(), impi)
	if err != nil {
		logger.Error("Failed to purge vectors", logger.KeyIMPI, impi, logger.Err(err))
		InternalServerError(w, "Failed to purge vectors")
		return
	}

	logger.Info("Purged vectors", logger.KeyIMPI, impi, logger.KeyEvicted, n)
	WriteJSONOK(w, PurgeResponse{IMPI: impi, Purged: n})
}
