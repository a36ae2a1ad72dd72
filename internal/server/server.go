package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/groundworks/groundpool/internal/metrics"
	"github.com/groundworks/groundpool/internal/tracing"
)

// Server is the HTTP server for the groundpool router. It binds the chi
// router to the configured address and provides graceful shutdown support.
type Server struct {
	router  chi.Router
	handler *Handler
	addr    string
	httpSrv *http.Server
}

// NewServer creates a new Server with the given Handler, listen address,
// and HTTP timeout durations. Zero-value timeouts leave the corresponding
// http.Server field at its default (no timeout). If tracingEnabled is true,
// the OpenTelemetry HTTP middleware is added to extract/inject trace
// context. authToken, when non-empty, protects the /admin routes.
func NewServer(handler *Handler, addr string, readTimeout, writeTimeout, idleTimeout time.Duration, tracingEnabled bool, authToken string) *Server {
	r := chi.NewRouter()

	// Standard chi middleware.
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// OpenTelemetry trace context extraction/injection.
	if tracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}

	// Public routes.
	r.Get("/health", handler.HandleHealth)
	r.Get("/agents", handler.HandleAgents)
	r.Post("/bing-grounding", handler.HandleGrounding)
	r.Post("/bing-grounding/{agent}", handler.HandleGroundingPinned)
	r.Get("/metrics", metrics.PrometheusHandler(handler.collector))

	// Admin routes, optionally behind bearer auth.
	r.Route("/admin", func(ar chi.Router) {
		if authToken != "" {
			ar.Use(AuthMiddleware(authToken))
		}
		ar.Put("/agents/{name}/weight", handler.HandleUpdateWeight)
		ar.Post("/refresh", handler.HandleRefresh)
		ar.Get("/requests", handler.HandleRequests)
		ar.Get("/stats", handler.HandleStats)
	})

	srv := &Server{
		router:  r,
		handler: handler,
		addr:    addr,
	}

	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return srv
}

// Router returns the underlying chi.Router, useful for testing or additional
// route mounting by the caller.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP connections on the configured address.
// It blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

// StartTLS begins listening for HTTPS connections using the given
// certificate and key files.
func (s *Server) StartTLS(certFile, keyFile string) error {
	if err := s.httpSrv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server (TLS): %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
