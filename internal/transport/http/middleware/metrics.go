package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/metrics"
)

// Metrics records request count and latency per method, route and status.
// Unmatched routes share one label so 404 scans cannot blow up cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}
