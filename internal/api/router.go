package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency probes of /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a ticket inside the handler
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/machines", func(r chi.Router) {
				r.Get("/", s.handleListMachines)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMachine)
					r.Put("/state", s.handleSetMachineState)
					r.Get("/history", s.handleMachineHistory)
				})
			})

			r.Post("/transitions", s.handleTransition)

			r.Get("/debug", s.handleGetDebug)
			r.Put("/debug", s.handleSetDebug)
		})
	})

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// handleHealth reports server health plus the result of every registered
// dependency check. Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
