package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-auth/internal/web/handlers"
	"github.com/kozaktomas/face-auth/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.DB)
	authHandler := handlers.NewAuthHandler(s.deps.Backend, s.sessionManager, s.config.Web.SuccessURL, s.logger)
	profileHandler := handlers.NewProfileHandler(s.deps.Profiles)

	// Pages reached from the emailed sign-in link
	s.router.Get("/finish-signin", authHandler.FinishSignIn)
	s.router.Get("/success", authHandler.Success)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Get("/auth/status", authHandler.Status)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))
			r.Get("/profile", profileHandler.Get)
		})
	})
}
