package middleware

import (
	"strconv"
	"time"

	"future-self-go/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 以路由模板为 path 标签记录请求数与耗时，未匹配的路由统一记为 unknown。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
