package main

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/kissfft/config"
	"github.com/wippyai/kissfft/engine"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/fft"
	"github.com/wippyai/kissfft/plancache"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	maxRequestBytes   = 64 << 20
)

const defaultServeAddr = ":9100"

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [addr]",
		Short: "Serve metrics, stats and a transform endpoint",
		Long: `The serve command acquires the engine once and serves:

  GET  /healthz        engine variant
  GET  /metrics        Prometheus metrics
  GET  /stats          engine, plan cache and arena state
  POST /v1/transform   {"kind":"r","shape":"16","input":[...]}
  POST /v1/cleanup     free every cached plan

The address defaults to ` + config.EnvMetricsAddr + `, then ` + defaultServeAddr + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			c, logger, err := setup(cmd.Context(), reg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close(context.Background())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr := cfg.MetricsAddr
			if len(args) == 1 {
				addr = args[0]
			}
			if addr == "" {
				addr = defaultServeAddr
			}
			return newServer(addr, c, reg, logger).run()
		},
	}
}

// server exposes engine diagnostics and a transform endpoint.
type server struct {
	router *chi.Mux
	fft    *fft.Context
	gather prometheus.Gatherer
	logger *zap.Logger
	addr   string
}

type statsResponse struct {
	Engine engine.Stats    `json:"engine"`
	Cache  plancache.Stats `json:"plan_cache"`
	Arena  int             `json:"arena_outstanding"`
}

func newServer(addr string, c *fft.Context, g prometheus.Gatherer, logger *zap.Logger) *server {
	s := &server{
		router: chi.NewRouter(),
		fft:    c,
		gather: g,
		logger: logger,
		addr:   addr,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.routes()
	return s
}

func (s *server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	s.router.Get("/stats", s.handleStats)
	s.router.Post("/v1/transform", s.handleTransform)
	s.router.Post("/v1/cleanup", s.handleCleanup)
}

// run serves until SIGINT or SIGTERM.
func (s *server) run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"variant": s.fft.Engine().Variant().String(),
	})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Engine: s.fft.Engine().Stats(),
		Cache:  s.fft.CacheStats(),
		Arena:  s.fft.Arena().Outstanding(),
	})
}

func (s *server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	resp, err := runTransform(s.fft, req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleCleanup(w http.ResponseWriter, _ *http.Request) {
	if err := s.fft.Cleanup(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInvalidArgument:
		return http.StatusBadRequest
	case errors.KindAllocation, errors.KindPlanAllocation:
		return http.StatusInsufficientStorage
	case errors.KindEngineUnavailable, errors.KindAssetNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
