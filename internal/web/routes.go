package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	controlHandler := handlers.NewControlHandler(s.opts.Loop, s.opts.Delivery, s.opts.Presence, s.opts.Frames)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", controlHandler.Status)
		r.Get("/frame", controlHandler.Frame)

		if s.opts.Config != nil {
			r.Get("/config", handlers.NewConfigHandler(s.opts.Config).Get)
		}
		if s.opts.History != nil {
			r.Get("/attendance", handlers.NewAttendanceHandler(s.opts.History).List)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.opts.Token))
			r.Post("/stop", controlHandler.Stop)
		})
	})
}
