package middleware

import (
	"time"

	"Resilix/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
)

// RequestLogMiddleware 访问日志，附带解析后的客户端信息
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ua := user_agent.New(c.Request.UserAgent())
		browser, version := ua.Browser()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("browser", browser+" "+version),
			zap.String("os", ua.OS()),
			zap.Bool("mobile", ua.Mobile()),
			zap.Bool("bot", ua.Bot()),
		}
		if user := c.GetString(ContextUserKey); user != "" {
			fields = append(fields, zap.String("user", user))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
