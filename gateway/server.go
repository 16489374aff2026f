// Package gateway serves the public routes and forwards entity calls to the
// downstream service through the authenticated client.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/udhos/tokenproxy/downstream"
	"github.com/udhos/tokenproxy/metrics"
	"github.com/udhos/tokenproxy/ratelimit"
)

// DefaultShutdownTimeout bounds graceful shutdown in Run.
const DefaultShutdownTimeout = 10 * time.Second

// Options define server options.
type Options struct {
	// Addr is the listen address, like ":8080".
	Addr string

	// Downstream is the downstream service client. Required.
	Downstream *downstream.Client

	// Limiter guards the entity route. If nil, requests are not limited.
	Limiter ratelimit.Limiter

	// Logger is the request logger. If nil, logrus.StandardLogger() is used.
	Logger *logrus.Logger

	// Gatherer is exposed at /metrics. If nil, the route is not registered.
	Gatherer prometheus.Gatherer

	// Metrics is optional.
	Metrics *metrics.Metrics

	// ShutdownTimeout defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Server is the gateway HTTP server.
type Server struct {
	router  *gin.Engine
	options Options
}

// NewServer creates a server with all routes registered.
func NewServer(options Options) *Server {
	if options.Downstream == nil {
		panic("gateway.NewServer: Downstream is required")
	}
	if options.Limiter == nil {
		options.Limiter = ratelimit.Unlimited{}
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}

	router := gin.New()
	router.Use(Recovery(options.Logger))
	router.Use(CorrelationID())
	router.Use(RequestLogger(options.Logger))

	s := &Server{
		router:  router,
		options: options,
	}
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	proxy := s.router.Group("/proxy")
	{
		proxy.GET("/health", s.handleHealth())
		proxy.GET("/entity/action",
			RateLimit(s.options.Limiter, s.options.Metrics),
			s.handleEntityAction())
	}

	if s.options.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.options.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.options.Logger.WithField("addr", s.options.Addr).Info("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.options.Logger.Info("gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
