// Package api exposes the browser control HTTP API: the control surfaces of
// an actor's browser, manual takeover and resume, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var apiLog = logging.MustLogger("api")

// Server serves the control API for the actors of a registry.
type Server struct {
	actors   *actor.Registry
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// NewServer builds the router. A nil gatherer uses the default registry.
func NewServer(actors *actor.Registry, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{actors: actors, gatherer: gatherer}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	browserAPI := router.Group("/api/browser")
	browserAPI.GET("/control", s.Control)
	browserAPI.POST("/takeover", s.Takeover)
	browserAPI.POST("/resume", s.Resume)

	router.GET("/api/contexts", s.Contexts)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		apiLog.Infof("Control API listening on %s", addr)
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
	apiLog.Infof("Control API stopped")
	return nil
}

// requestLogger logs each request as "[method] path?query - status (latency)".
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		apiLog.Debugf("[%s] %s - %d (%v)", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
