// Package api provides the conversion REST API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/jobs"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
	"github.com/FocuswithJustin/hwpxreport/internal/server"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string          // CORS and WebSocket allowed origins (empty = allow all)
	APIKey         string            // Required in X-API-Key when set
	RateLimit      RateLimiterConfig // Job submission limit (0 = disabled)
	// BaseStyles sit between the built-in defaults and template styles.
	BaseStyles report.Fragment
}

// Server serves the job, template, and authoring endpoints.
type Server struct {
	cfg         Config
	jobs        *jobs.Manager
	templates   *templates.Store
	hub         *Hub
	limiter     *RateLimiter
	transformer *report.Transformer
	started     time.Time
}

// New creates a server over an existing job manager and template store.
func New(cfg Config, jm *jobs.Manager, ts *templates.Store) (*Server, error) {
	if err := ValidateAuthConfig(cfg.APIKey); err != nil {
		return nil, err
	}
	if _, err := report.Resolve(nil, cfg.BaseStyles); err != nil {
		return nil, errors.Wrap(err, "invalid base styles")
	}

	s := &Server{
		cfg:         cfg,
		jobs:        jm,
		templates:   ts,
		hub:         NewHub(cfg.AllowedOrigins),
		transformer: report.NewTransformer(),
		started:     time.Now(),
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit)
	}
	jm.Subscribe(s.hub.PublishJob)
	return s, nil
}

// Hub returns the event hub. It must be running for /v1/events clients to
// receive messages.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := s.setupRoutes()

	var handler http.Handler = server.SecurityHeaders(server.APICSPConfig(), mux)

	if s.cfg.APIKey != "" {
		handler = AuthMiddleware(s.cfg.APIKey, handler)
	}

	// CORS is outermost so preflight requests never need an API key.
	handler = server.CORSMiddleware(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)

	return logging.CombinedMiddleware(handler)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/v1/jobs", s.limit(http.HandlerFunc(s.handleJobs)))
	mux.HandleFunc("/v1/jobs/", s.handleJobByID)
	mux.Handle("/v1/templates", s.limit(http.HandlerFunc(s.handleTemplates)))
	mux.HandleFunc("/v1/templates/", s.handleTemplateByID)
	mux.HandleFunc("/v1/styles", s.handleStyles)
	mux.HandleFunc("/v1/guide", s.handleGuide)
	mux.HandleFunc("/v1/prompt", s.handlePrompt)
	mux.HandleFunc("/v1/markup", s.handleMarkup)
	mux.HandleFunc("/v1/markup/source", s.handleMarkupSource)
	mux.HandleFunc("/v1/events", s.handleEvents)

	return mux
}

// limit applies the submission rate limit to POST requests.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	limited := s.limiter.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the event hub and the HTTP listener until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logSecurity()
	logging.ServerStartup("rest_api", "http", s.cfg.Port, "websocket_protocol", "ws")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logging.Info("server stopped")
	return nil
}

func (s *Server) logSecurity() {
	if s.cfg.APIKey != "" {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", true,
			"note", "API key required")
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimit.RequestsPerMinute,
			"burst_size", s.limiter.config.BurstSize)
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}
}
