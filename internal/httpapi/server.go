// Package httpapi serves the lifecycle operations over HTTP with gin.
//
// Every response uses the same envelope: {"ok":true,"data":...} on success
// and {"ok":false,"error":{"kind":...,"message":...}} on failure, with the
// status code derived from the error kind.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jbweber/anvil/internal/lifecycle"
	"github.com/jbweber/anvil/internal/resource"
)

// Options configures a Server.
type Options struct {
	Listen       string
	Token        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Metrics is mounted at MetricsPath without authentication when set.
	Metrics     http.Handler
	MetricsPath string
	// Health receives the outcome of every /healthz check when set.
	Health HealthRecorder
	Logger *slog.Logger
}

// HealthRecorder is satisfied by *metrics.Recorder.
type HealthRecorder interface {
	SetBackendUp(kind resource.Kind, up bool)
}

// Server is the HTTP front of a lifecycle.Service.
type Server struct {
	http   *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(svc lifecycle.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	logger := opts.Logger.With("component", "http")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(recoveryWithLog(logger)))
	router.Use(requestLogger(logger))

	api := &API{svc: svc, health: opts.Health, logger: logger}
	router.GET("/healthz", api.healthz)
	if opts.Metrics != nil {
		router.GET(opts.MetricsPath, gin.WrapH(opts.Metrics))
	}

	protected := router.Group("/")
	protected.Use(authMiddleware(opts.Token))
	api.RegisterRoutes(protected)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: resource.NotFoundf("no route for %s %s", c.Request.Method, c.Request.URL.Path)})
	})

	s := &http.Server{
		Addr:              opts.Listen,
		Handler:           router,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{http: s, router: router, logger: logger}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then drains in-flight requests for up to
// ten seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
