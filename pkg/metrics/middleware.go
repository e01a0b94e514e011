package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitorMiddleware 记录HTTP请求次数与耗时；path 使用路由模板避免高基数
func MonitorMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
