package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/metrics"
	"github.com/atinyakov/cortexvault/internal/middleware"
)

// RouterOptions tunes the middleware chain.
type RouterOptions struct {
	// RatePerSecond is the per-IP request rate; zero disables limiting.
	RatePerSecond float64
	// Burst is the per-IP burst size.
	Burst int
	// TrustProxy takes the client IP from X-Real-IP or X-Forwarded-For.
	// Enable it only behind a proxy that sets those headers.
	TrustProxy bool
}

// NewRouter constructs and returns an HTTP handler that serves the vault
// API.
//
// Routes:
//
//	PUT    /api/v1/vault/{accountId}       → vault.Upload
//	GET    /api/v1/vault/{accountId}       → vault.Download
//	HEAD   /api/v1/vault/{accountId}       → vault.Exists
//	DELETE /api/v1/vault/{accountId}       → vault.Delete
//	GET    /api/v1/vault/{accountId}/info  → vault.Info
//	GET    /metrics                        → Prometheus
//
// Middleware chain (applied in order):
//  0. RealIP when opts.TrustProxy is set
//  1. WithRequestLogging(log)
//  2. metrics.Middleware
//  3. RateLimit
//  4. BearerAuth on the vault routes
//  5. AllowContentType("application/octet-stream") on uploads
func NewRouter(vault *VaultHandler, log *zap.Logger, opts RouterOptions) http.Handler {
	metrics.InitMetrics()

	r := chi.NewRouter()
	if opts.TrustProxy {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger.OrNop(log)))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1/vault/{accountId}", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RatePerSecond, opts.Burst))
		r.Use(middleware.BearerAuth)

		r.With(chiMiddleware.AllowContentType("application/octet-stream")).Put("/", vault.Upload)
		r.Get("/", vault.Download)
		r.Head("/", vault.Exists)
		r.Delete("/", vault.Delete)
		r.Get("/info", vault.Info)
	})

	return r
}
