package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/newsdesk/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/password", s.handleChangePassword)
			r.With(s.requireRole(auth.RoleAdmin)).Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/users", func(r chi.Router) {
				r.With(s.requireRole(auth.RoleAdmin)).Get("/", s.handleListUsers)
				r.With(s.requireRole(auth.RoleAdmin)).Post("/", s.handleCreateUser)
				r.Patch("/{id}", s.handleUpdateUser)
				r.With(s.requireRole(auth.RoleAdmin)).Delete("/{id}/sessions", s.handleForceLogout)
			})

			r.With(s.requireRole(auth.RoleAdmin)).Get("/audit", s.handleListAuditLogs)

			r.Route("/content/{kind}", func(r chi.Router) {
				r.Get("/", s.handleListContent)
				r.Post("/", s.handleCreateContent)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetContent)
					r.Put("/", s.handleUpdateContent)
					r.Delete("/", s.handleDeleteContent)
					r.Put("/shared", s.handleSetShared)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
