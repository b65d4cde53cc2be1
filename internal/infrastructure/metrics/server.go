package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
)

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// NewRouter serves /metrics from gatherer and /healthz from health.
func NewRouter(gatherer prometheus.Gatherer, health HealthFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return router
}

// Serve runs handler on addr until ctx ends.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.metrics"), slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info(logCtx, "ops http server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(err, "ops http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "shutdown ops http server")
	}
	logging.Info(logCtx, "ops http server stopped")
	return nil
}
