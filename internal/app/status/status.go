package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/internal/monitor"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

// Monitor is what the status API reads from.
type Monitor interface {
	Statuses() []monitor.DeviceStatus
	Status(key string) (monitor.DeviceStatus, bool)
	CheckNow(ctx context.Context, key string) (probe.Result, error)
	Stats() monitor.StatsSnapshot
}

func NewRouter(m Monitor, logger logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": m.Stats()})
	})

	router.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Statuses())
	})

	router.GET("/devices/:name", func(c *gin.Context) {
		st, ok := m.Status(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device", "name": c.Param("name")})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	router.POST("/devices/:name/ping", func(c *gin.Context) {
		res, err := m.CheckNow(c.Request.Context(), c.Param("name"))
		if errors.Is(err, monitor.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device", "name": c.Param("name")})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
			"available_endpoints": []string{
				"GET /healthz",
				"GET /devices",
				"GET /devices/:name",
				"POST /devices/:name/ping",
			},
		})
	})

	return router
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("status api request")
	}
}

// Start serves the status API on 127.0.0.1:port until ctx ends.
func Start(ctx context.Context, port int, m Monitor, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Handler:           NewRouter(m, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting status API on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
