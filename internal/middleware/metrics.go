package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-fee-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route. Using the
// raw path there would let arbitrary URLs mint new label values.
const unmatchedRoute = "unmatched"

// Metrics records duration and status for every request. Labels use the
// route template ("/api/students/:id") so path parameters do not blow up
// label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
