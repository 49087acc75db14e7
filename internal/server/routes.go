package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/server/handlers"
	servermw "github.com/tollgate/tollgate/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Standard health endpoints
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	// Rate-limited API surface. The limiter middleware is mounted inline
	// with With() so chi has resolved the route pattern before the
	// decision is made.
	limited := s.router.With(servermw.RateLimit(s.limiter, s.identify))
	limited.Get("/api/v1/data", handlers.DataHandler)
	limited.Get("/api/v1/data/{key}", handlers.DataItemHandler)
	limited.Post("/api/v1/data", handlers.DataWriteHandler)

	// Admin signal endpoint (optional, requires TOLLGATE_ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	adminToken := os.Getenv("TOLLGATE_ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no TOLLGATE_ADMIN_TOKEN set)")
		}
		return
	}

	// Create HTTP signal handler with bearer token auth and rate limiting
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	// Register admin endpoint
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
