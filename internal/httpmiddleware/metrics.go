package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"churchattend/internal/metrics"
)

// Metrics records request count and latency per route. The route template
// (not the raw URL) is the label, so /v1/attendance/:id stays one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
