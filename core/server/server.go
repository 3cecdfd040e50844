// Package server exposes the webhook ingress, health check and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// HealthText is the fixed health check body.
const HealthText = "The bot is still running fine :)"

// Enqueuer accepts decoded updates.
type Enqueuer interface {
	Enqueue(ctx context.Context, u tele.Update) error
}

// Config holds listener settings.
type Config struct {
	Listen          string
	Port            int
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	// EnqueueTimeout bounds the wait on a full queue before the update is dropped.
	EnqueueTimeout time.Duration
}

// Server is the HTTP front door.
type Server struct {
	cfg      Config
	ingest   Enqueuer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	router   chi.Router
}

// New builds the router. registry may be nil to disable /metrics.
func New(cfg Config, ingest Enqueuer, registry *prometheus.Registry, m *metrics.Metrics) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = time.Second
	}
	s := &Server{cfg: cfg, ingest: ingest, registry: registry, metrics: m}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Post(telegram.WebhookPath, s.handleWebhook)
	r.Get("/healthcheck", handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, HealthText)
}

// handleWebhook always answers 200 so Telegram never redelivers. A full queue
// delays the answer by at most EnqueueTimeout.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err == nil {
		var u tele.Update
		u, err = update.Unmarshal(body)
		if err == nil {
			qctx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout)
			qerr := s.ingest.Enqueue(qctx, u)
			cancel()
			if qerr != nil {
				logger.Warn(ctx, logger.CompHTTP, "webhook.enqueue",
					slog.String("status", "drop"),
					slog.Int("update_id", u.ID),
					slog.String("err", qerr.Error()),
				)
			}
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	s.metrics.RecordDecodeError()
	logger.Warn(ctx, logger.CompHTTP, "webhook.decode_failed",
		slog.String("status", "skip"),
		slog.Int("bytes", len(body)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	w.WriteHeader(http.StatusOK)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug(r.Context(), logger.CompHTTP, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.String("remote", r.RemoteAddr),
			slog.String("req_id", middleware.GetReqID(r.Context())),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Listen, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	logger.Info(ctx, logger.CompHTTP, "http.listen",
		slog.String("status", "ok"),
		slog.String("addr", ln.Addr().String()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, logger.CompHTTP, "http.shutdown",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(ctx, logger.CompHTTP, "http.shutdown", slog.String("status", "ok"))
	return nil
}
