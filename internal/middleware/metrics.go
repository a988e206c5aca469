// Package middleware holds the Gin middleware of the user management API: request IDs,
// request logging, metrics, CORS, security headers, rate limiting, and the audit
// interceptor that records every successful write. internal/api/router.go installs them.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usermanagement/usermanagement/internal/telemetry"
)

// noRoute labels requests that matched no route (404/405)
const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for
// every request, labelled with the route template from c.FullPath() so that entity IDs
// in URLs do not create new series.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
