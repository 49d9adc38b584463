package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/api/auth"
	"github.com/marmos91/sipauth/pkg/api/handlers"
	apimw "github.com/marmos91/sipauth/pkg/api/middleware"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/metrics"
)

// Dependencies are what the routes serve.
type Dependencies struct {
	Engine    handlers.Decider
	Store     avstore.Store
	StoreType string
	Realm     string

	// JWT guards the admin routes. Nil leaves them unmounted.
	JWT *auth.JWTService
}

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET /metrics
//   - POST /api/v1/authenticate
//   - DELETE /api/v1/vectors/{impi} (admin token)
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	var pinger handlers.Pinger
	if deps.Store != nil {
		pinger = deps.Store
	}
	healthHandler := handlers.NewHealthHandler(pinger, deps.StoreType, deps.Realm)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Engine != nil {
			r.Post("/authenticate", handlers.NewAuthenticateHandler(deps.Engine).Authenticate)
		}

		if deps.JWT != nil && deps.Store != nil {
			vectors := handlers.NewVectorsHandler(deps.Store)
			r.Group(func(r chi.Router) {
				r.Use(apimw.JWTAuth(deps.JWT))
				r.Use(apimw.RequireAdmin())
				r.Delete("/vectors/{impi}", vectors.Purge)
			})
		}
	})

	return r
}

// requestLogger logs requests using the internal logger. Completed decision
// calls are logged at DEBUG since they arrive at signaling rate.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if r.URL.Path == "/api/v1/authenticate" || r.URL.Path == "/metrics" {
			logger.Debug("API request completed", args...)
			return
		}
		logger.Info("API request completed", args...)
	})
}
