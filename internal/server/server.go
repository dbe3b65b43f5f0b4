// Package server exposes the daemon's operational HTTP surface: health,
// metrics and a manual reconciliation trigger. The client-facing wallet API
// lives in a separate service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chriszackpinto/galoy/internal/config"
	"github.com/chriszackpinto/galoy/internal/health"
	"github.com/chriszackpinto/galoy/internal/logging"
	"github.com/chriszackpinto/galoy/internal/reconciliation"
)

// Server wraps the ops HTTP server.
type Server struct {
	cfg        *config.Config
	reconciler *reconciliation.Reconciler
	timer      *reconciliation.Timer
	checks     *health.Registry
	router     *gin.Engine
	httpSrv    *http.Server
	logger     *slog.Logger
	healthy    atomic.Bool

	cancelRunCtx context.CancelFunc
}

// New creates the ops server.
func New(cfg *config.Config, reconciler *reconciliation.Reconciler, timer *reconciliation.Timer, checks *health.Registry, logger *slog.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if checks == nil {
		checks = health.NewRegistry()
	}

	s := &Server{
		cfg:        cfg,
		reconciler: reconciler,
		timer:      timer,
		checks:     checks,
		logger:     logger,
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	s.healthy.Store(true)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.FromContext(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}))
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), s.logger))
		c.Next()

		s.logger.Info("request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.POST("/admin/reconcile", s.triggerReconcileHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	ok, statuses := s.checks.CheckAll(c.Request.Context())
	code := http.StatusOK
	status := "healthy"
	if !ok {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
	}
	c.JSON(code, gin.H{
		"status":        status,
		"checks":        statuses,
		"timer_running": s.timer != nil && s.timer.Running(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// triggerReconcileHandler runs a full pass outside the schedule, for
// operators chasing a stuck payment.
func (s *Server) triggerReconcileHandler(c *gin.Context) {
	s.reconciler.ReconcileAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// Run starts the HTTP server and the reconciliation timer, blocking until a
// shutdown signal or a server error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting ops server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.timer != nil {
		go s.timer.Start(runCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and the timer.
func (s *Server) Shutdown() error {
	s.healthy.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.logger.Info("shutdown complete")
	return nil
}
