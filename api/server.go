// Package api provides the HTTP API for quoting and booking checks against
// service templates.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"template-rules/db/clickhouse"
	"template-rules/decision/availability"
	"template-rules/decision/pricing"
	"template-rules/decision/rules"
	"template-rules/decision/template"
	apperrors "template-rules/pkg/errors"
)

// Evaluator is the subset of the service the handlers need
type Evaluator interface {
	Quote(ctx context.Context, businessID, templateID string, pctx rules.PricingContext, hours decimal.Decimal) (*pricing.Quote, error)
	CheckAvailability(ctx context.Context, businessID, templateID string, req availability.Request) (*availability.Verdict, error)
	PreviewQuote(tmpl *template.ServiceTemplate, pctx rules.PricingContext, hours decimal.Decimal) (*pricing.Quote, error)
	PreviewAvailability(tmpl *template.ServiceTemplate, req availability.Request) (*availability.Verdict, error)
	SaveTemplate(ctx context.Context, tmpl *template.ServiceTemplate) error
	ListTemplates(ctx context.Context, businessID string) ([]*template.ServiceTemplate, error)
}

// AuditReader lists recent evaluations of a business's template
type AuditReader interface {
	ListRecent(ctx context.Context, businessID, templateID string, limit int) ([]*clickhouse.EvaluationRecord, error)
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	evaluator  Evaluator
	audit      AuditReader
	deps       map[string]Pinger
	limiter    *ipRateLimiter
	logger     *zap.Logger
	config     *Config
	now        func() time.Time
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRequestSize  int64
	CORSOrigins     []string
	RateLimitPerMin int
	Location        *time.Location
	Version         string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		MaxRequestSize:  1 * 1024 * 1024, // 1MB
		CORSOrigins:     []string{"*"},
		RateLimitPerMin: 120,
		Location:        time.UTC,
		Version:         "dev",
	}
}

// NewServer creates a new API server
func NewServer(evaluator Evaluator, config *Config, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		evaluator: evaluator,
		deps:      map[string]Pinger{},
		limiter:   newIPRateLimiter(config.RateLimitPerMin),
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// WithAudit enables the evaluations endpoint
func (s *Server) WithAudit(audit AuditReader) *Server {
	s.audit = audit
	return s
}

// WithDependency adds a readiness check
func (s *Server) WithDependency(name string, dep Pinger) *Server {
	s.deps[name] = dep
	return s
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Route("/businesses/{businessID}/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Put("/", s.handleSaveTemplate)
			r.Post("/{templateID}/quote", s.handleQuote)
			r.Post("/{templateID}/availability", s.handleAvailability)
			r.Get("/{templateID}/evaluations", s.handleEvaluations)
		})

		r.Post("/preview/quote", s.handlePreviewQuote)
		r.Post("/preview/availability", s.handlePreviewAvailability)

		r.Post("/templates/validate", s.handleValidate)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			s.logger.Warn("rate limit exceeded", zap.String("ip", ip))
			s.jsonError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.config.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logger.Warn("dependency not ready", zap.String("dependency", name), zap.Error(err))
			s.jsonError(w, http.StatusServiceUnavailable, name+" not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

// writeError maps engine errors onto status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	ee, ok := apperrors.As(err)
	if !ok {
		s.logger.Error("request failed", zap.Error(err))
		s.jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch ee.Class {
	case apperrors.ClassInput:
		status = http.StatusBadRequest
	case apperrors.ClassNotFound:
		status = http.StatusNotFound
	case apperrors.ClassConfiguration:
		status = http.StatusUnprocessableEntity
	}
	s.jsonResponse(w, status, map[string]interface{}{
		"error": ee,
	})
}
