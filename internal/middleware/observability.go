package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"anoa.com/challengescore/pkg/metrics"
	"github.com/gin-gonic/gin"
)

type Observability struct {
	logger    *slog.Logger
	metrics   *metrics.Scoring
	skipPaths map[string]bool
}

// NewObservability logs and counts every request except those on skipPaths.
func NewObservability(logger *slog.Logger, m *metrics.Scoring, skipPaths ...string) *Observability {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Observability{logger: logger, metrics: m, skipPaths: skip}
}

func (o *Observability) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if o.skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		o.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		o.metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		o.logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", elapsed),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}
