package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

// MetricsMiddleware records request count, latency and error counts per route template.
func MetricsMiddleware(recorder awspkg.Recorder, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		dimensions := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    path,
			"Status":  statusCodeToRange(statusCode),
		}

		ctx := c.Request.Context()
		_ = recorder.RecordCount(ctx, awspkg.MetricHTTPRequests, dimensions)
		_ = recorder.RecordLatency(ctx, awspkg.MetricHTTPLatency, duration, dimensions)
		if statusCode >= 400 {
			_ = recorder.RecordCount(ctx, awspkg.MetricHTTPErrors, dimensions)
		}
		switch {
		case statusCode >= 500:
			_ = recorder.RecordCount(ctx, awspkg.MetricHTTP5xx, dimensions)
		case statusCode >= 400:
			_ = recorder.RecordCount(ctx, awspkg.MetricHTTP4xx, dimensions)
		}
	}
}

func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
