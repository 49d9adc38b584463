package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the readiness dependency: the vector store.
type Pinger interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler serves the unauthenticated probes.
type HealthHandler struct {
	store     Pinger
	storeType string
	realm     string
}

// NewHealthHandler creates a health handler. store may be nil, in which case
// readiness fails.
func NewHealthHandler(store Pinger, storeType, realm string) *HealthHandler {
	return &HealthHandler{store: store, storeType: storeType, realm: realm}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "sipauth",
	}))
}

// Readiness handles GET /health/ready. It answers 503 when the vector store
// does not respond, since no challenge could be issued or verified.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("vector store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.store.Healthcheck(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("vector store: "+err.Error()))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"realm":        h.realm,
		"vector_store": h.storeType,
		"latency":      time.Since(start).String(),
	}))
}
