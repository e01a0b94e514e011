package handlers

import (
	"net/http"

	"Resilix/pkg/middleware"
	"Resilix/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
)

// UpdateRateLimiterConfig 更新限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.Fail(c, "rate limiter disabled", nil)
		return
	}
	var config middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if config.Rate != "" {
		if _, err := limiter.NewRateFromFormatted(config.Rate); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"rate": []string{err.Error()}})
			return
		}
	}

	// 更新限流配置
	h.limiter.UpdateConfig(config)
	response.Success(c, "rate limiter config updated", h.limiter.Config())
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	status := gin.H{"status": "healthy"}
	if h.hub != nil {
		status["websocket_connections"] = h.hub.GetConnectionCount()
	}
	if h.system != nil {
		if stats := h.system.Latest(); stats != nil {
			status["system"] = stats
		}
	}
	c.JSON(http.StatusOK, status)
}
