package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// System endpoints
		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.handleSystemHealth)
			r.Get("/info", s.handleSystemInfo)
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/command", s.handleDeviceCommand)
				r.Get("/status", s.handleDeviceStatus)
				r.Post("/detect", s.handleDetectDevice)
				r.Get("/history", s.handleDeviceHistory)
			})
		})

		// Ad-hoc connectivity test against an arbitrary address
		r.Post("/connectivity/test", s.handleConnectivityTest)

		// Network discovery
		r.Post("/discovery/scan", s.handleDiscoveryScan)

		// Audit trail
		r.Get("/audit", s.handleListAudit)

		// WebSocket event stream
		r.Get("/events/ws", s.handleWebSocket)
	})

	return r
}
