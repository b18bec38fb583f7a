package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/service"
)

// Metrics records per-request duration and status against the matched route
// template so path parameters do not explode label cardinality.
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
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
