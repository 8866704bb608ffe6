package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"payments/internal/checkout"
	"payments/internal/metrics"
)

const (
	RoutePaymentIntents = "/v1/payment-intents"
	RouteWebhook        = "/v1/webhooks/stripe"
	RouteHealth         = "/health"
	RouteMetrics        = "/metrics"

	healthTimeout = 2 * time.Second
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	// RateLimit is per client address, in requests per second. Zero disables it.
	RateLimit float64
	RateBurst int
}

type Server struct {
	handlers *checkout.Handlers
	health   HealthChecker
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	opts     Options
	logger   *slog.Logger
}

func New(handlers *checkout.Handlers, health HealthChecker, m *metrics.Metrics, gatherer prometheus.Gatherer, opts Options, logger *slog.Logger) *Server {
	return &Server{
		handlers: handlers,
		health:   health,
		metrics:  m,
		gatherer: gatherer,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.observe)

	intents := r.With()
	if s.opts.RateLimit > 0 {
		intents = r.With(newClientLimiter(s.opts.RateLimit, s.opts.RateBurst).middleware)
	}
	intents.Post(RoutePaymentIntents, s.handlers.IssuePaymentIntent)

	r.Post(RouteWebhook, s.handlers.Webhook)
	r.Get(RouteHealth, s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, RouteMetrics, metrics.Handler(s.gatherer))
	}
	return r
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln and shuts down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
