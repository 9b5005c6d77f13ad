// Package server exposes the chatd HTTP surface: the chat endpoint, the
// liveness root, health probes, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atendai/chatd/internal/chat"
	"github.com/atendai/chatd/pkg/observability"
	"github.com/atendai/chatd/pkg/security"
)

// Options configures the HTTP server.
type Options struct {
	// Port is the listening port.
	Port int
	// CORSOrigins lists allowed origins; empty allows any origin.
	CORSOrigins []string
	// RateLimiter rejects excess requests when set.
	RateLimiter *security.RateLimiter
	// Health serves the readiness and liveness probes.
	Health *observability.HealthChecker
}

// Server wraps the http.Server and its routes.
type Server struct {
	httpServer *http.Server
}

// New builds the route table and middleware chain.
func New(service *chat.Service, opts Options) *Server {
	health := opts.Health
	if health == nil {
		health = observability.NewHealthChecker()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("POST /chat", handleChat(service))
	mux.HandleFunc("GET /health/live", health.LivenessHandler())
	mux.HandleFunc("GET /health/ready", health.ReadinessHandler())
	mux.Handle("GET /metrics", observability.MetricsHandler())

	var handler http.Handler = mux
	if opts.RateLimiter != nil {
		handler = rateLimitMiddleware(opts.RateLimiter, handler)
	}
	handler = corsMiddleware(opts.CORSOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = metricsMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.Port),
			Handler: handler,
			// The write timeout must cover a full provider round trip.
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown or failure.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
