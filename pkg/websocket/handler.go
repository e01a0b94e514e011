package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 统一注册路由
func RegisterRoutes(r gin.IRoutes, handler *Handler) {
	r.GET(RouteAlerts, handler.HandleAlerts)
	r.GET(RouteStats, handler.GetStats)
	r.GET(RouteHealth, handler.HealthCheck)
}

// HandleAlerts 匿名订阅告警组
func (h *Handler) HandleAlerts(c *gin.Context) {
	_ = ServeWebSocket(h.hub, c.Writer, c.Request, GroupAlerts)
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_connections":   h.hub.GetConnectionCount(),
		"alerts_subscribers":  h.hub.GetGroupConnections(GroupAlerts),
		"max_connections":     h.hub.config.MaxConnections,
		"heartbeat_interval":  h.hub.config.HeartbeatInterval.String(),
		"connection_timeout":  h.hub.config.ConnectionTimeout.String(),
		"message_buffer_size": h.hub.config.MessageBufferSize,
		"message_queue_size":  h.hub.config.MessageQueueSize,
		"enable_compression":  h.hub.config.EnableCompression,
		"close_on_backpress":  h.hub.config.CloseOnBackpressure,
	})
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.hub.ctx.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	total := h.hub.GetConnectionCount()
	maxConns := h.hub.config.MaxConnections
	status := "healthy"
	if total >= maxConns*9/10 {
		status = "warning"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": total,
		"max_connections":   maxConns,
		"timestamp":         time.Now().Unix(),
	})
}
