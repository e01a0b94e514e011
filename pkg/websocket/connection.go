package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       originChecker(cfg.AllowedOrigins),
	}
}

// originChecker 未配置白名单时放行所有来源
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.TrimRight(strings.ToLower(origin), "/")]
	}
}

// ServeWebSocket 升级连接并加入给定的组
func ServeWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, groups ...string) error {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return err
	}

	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
		if hub.config.CompressionLevel != 0 {
			_ = conn.SetCompressionLevel(hub.config.CompressionLevel)
		}
	}

	c := newConnection(hub, uuid.NewString(), conn, groups...)
	select {
	case hub.register <- c:
	case <-hub.ctx.Done():
		_ = conn.Close()
		return ErrHubClosed
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump 读取并丢弃客户端消息，仅用于维持心跳与感知断开
func (c *Connection) readPump() {
	defer func() {
		// 先标记失效，注销先于注册被处理时注册会被拒绝
		c.close()
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.ctx.Done():
		}
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			return
		}
		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		logrus.Debugf("忽略客户端消息: conn=%s bytes=%d", c.ID, len(message))
	}
}

// writePump 发送消息的协程，每条消息单独一帧
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Hub.ctx.Done():
			return
		}
	}
}
