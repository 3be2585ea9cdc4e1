package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"prescription-analytics-api/internal/monitoring"
)

// Metrics records request counts and latency per route
func Metrics(metrics monitoring.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
