package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contract-factory/contract-factory/internal/telemetry"
)

// unmatchedRoute labels requests that hit no registered route, keeping
// arbitrary URLs out of the label set.
const unmatchedRoute = "<no-route>"

// MetricsMiddleware counts requests and observes their latency, labelled by
// the gin route template (/api/v1/contracts/:address, not the concrete
// address). Register it after Recovery so a recovered panic is counted as 500.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.
			WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
		telemetry.HTTPRequestDuration.
			WithLabelValues(method, route).
			Observe(time.Since(start).Seconds())
	}
}
