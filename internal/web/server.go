// Package web serves the operator control surface of a running capture loop.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

// Options wires the control server to the running components. Loop is
// required; the rest enable their endpoints when set.
type Options struct {
	Addr     string
	Token    string
	Config   *config.Config
	Loop     handlers.LoopController
	Delivery handlers.DeliveryStatser
	Presence handlers.PresenceCounter
	Frames   handlers.FrameSource
	History  handlers.AttendanceLister
}

// Server represents the control server
type Server struct {
	opts       Options
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new control server
func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		opts:   opts,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	log.Printf("Starting control server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down control server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
