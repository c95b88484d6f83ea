// Package api serves the job hunt workflow over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/services/jobs"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
)

const shutdownTimeout = 10 * time.Second

// LockInspector reports the remote lock state.
type LockInspector interface {
	Status(ctx context.Context) (*lock.Status, error)
}

// Options wires the server. Gatherer defaults to the global registry.
type Options struct {
	Jobs     *jobs.Service
	Strategy *strategy.Service
	Lock     LockInspector
	Gatherer prometheus.Gatherer
	Logger   *events.Logger
}

// Server is the HTTP surface.
type Server struct {
	jobs     *jobs.Service
	strategy *strategy.Service
	lock     LockInspector
	logger   *events.Logger
	engine   *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = events.Discard()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		jobs:     opts.Jobs,
		strategy: opts.Strategy,
		lock:     opts.Lock,
		logger:   logger.WithField("component", "api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/lock", s.lockStatus)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.POST("/jobs", s.addJob)
	r.GET("/jobs", s.listJobs)
	r.GET("/jobs/:id", s.getJob)
	r.POST("/jobs/analyze", s.analyzeJobs)

	r.POST("/strategy/publish", s.publishStrategy)
	r.GET("/strategy", s.listStrategies)

	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		ctx := events.WithLogger(c.Request.Context(), s.logger)
		c.Request = c.Request.WithContext(events.WithRequestID(ctx, id))

		c.Next()

		events.FromContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
