package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"bibliocli/internal/config"
	apperrors "bibliocli/internal/errors"
	"bibliocli/internal/exporter"
	"bibliocli/internal/infrastructure"
)

// Server wires the data API router over the persisted pipeline outputs
type Server struct {
	cfg     config.ServerConfig
	router  chi.Router
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewServer assembles the router and middleware chain
func NewServer(cfg config.ServerConfig, store *exporter.SnapshotStore, paths *config.PathsConfig, version, appVersion string, metrics *infrastructure.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, metrics: metrics}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(metrics.Middleware)
	r.Use(rateLimit(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))

	health := NewHealthHandler(appVersion)
	r.Get("/healthz", health.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	data := NewDataHandler(store, paths, version, logger)
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/", data.Routes())
	})

	s.router = r
	return s
}

// Router exposes the assembled handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the data API
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
	}

	s.logger.Info("data api listening", slog.String("addr", addr))
	return srv.ListenAndServe()
}

// requestLogger logs one line per served request
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.InfoContext(r.Context(), "request served",
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// rateLimit applies a server-wide token bucket. The API serves one
// in-house frontend, so a single bucket is enough.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				render.Render(w, r, apperrors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
