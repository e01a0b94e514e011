package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrHubClosed  = errors.New("websocket hub closed")
	ErrQueueFull  = errors.New("websocket publish queue full")
	ErrEmptyGroup = errors.New("group name required")
)

// Frame 推送给客户端的消息体
type Frame struct {
	Message string `json:"message"`
}

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	Groups   map[string]bool // 仅在注册前设置，之后只读
	lastPing atomic.Int64
	alive    atomic.Bool
}

func newConnection(hub *Hub, id string, conn *websocket.Conn, groups ...string) *Connection {
	c := &Connection{
		ID:     id,
		Conn:   conn,
		Send:   make(chan []byte, hub.config.MessageBufferSize),
		Hub:    hub,
		Groups: make(map[string]bool, len(groups)),
	}
	for _, g := range groups {
		c.Groups[g] = true
	}
	c.touch()
	c.alive.Store(true)
	return c
}

func (c *Connection) touch() { c.lastPing.Store(time.Now().UnixNano()) }

func (c *Connection) LastPing() time.Time { return time.Unix(0, c.lastPing.Load()) }

func (c *Connection) IsAlive() bool { return c.alive.Load() }

func (c *Connection) close() {
	c.alive.Store(false)
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

type publishJob struct {
	group string
	data  []byte
	done  chan int
}

// Hub 管理所有WebSocket连接；成员变更与发布都经由 run 循环串行处理
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 组到连接ID的映射
	groupConnections map[string]map[string]bool
	// 读锁仅供统计接口使用，写入只发生在 run 循环
	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	publish    chan publishJob

	connectionCount int64
	config          *Config
	ctx             context.Context
	cancel          context.CancelFunc
	onCountChange   func(int)
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections:      make(map[string]*Connection),
		groupConnections: make(map[string]map[string]bool),
		register:         make(chan *Connection, 256),
		unregister:       make(chan *Connection, 256),
		publish:          make(chan publishJob, config.MessageQueueSize),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
	}
	go hub.run()
	return hub
}

// OnConnectionCountChange 连接数变化回调（用于指标）
func (h *Hub) OnConnectionCountChange(fn func(int)) {
	h.mu.Lock()
	h.onCountChange = fn
	h.mu.Unlock()
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case job := <-h.publish:
			job.done <- h.sendToGroup(job.group, job.data)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	if !conn.IsAlive() {
		close(conn.Send)
		return
	}
	h.mu.Lock()
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		h.mu.Unlock()
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		conn.close()
		close(conn.Send)
		return
	}

	h.connections[conn.ID] = conn
	for group := range conn.Groups {
		if h.groupConnections[group] == nil {
			h.groupConnections[group] = make(map[string]bool)
		}
		h.groupConnections[group][conn.ID] = true
	}
	n := atomic.AddInt64(&h.connectionCount, 1)
	notify := h.onCountChange
	h.mu.Unlock()

	if notify != nil {
		notify(int(n))
	}
	logrus.Infof("WebSocket连接已注册: %s, 当前连接数: %d", conn.ID, n)
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, exists := h.connections[conn.ID]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	for group := range conn.Groups {
		if members := h.groupConnections[group]; members != nil {
			delete(members, conn.ID)
			if len(members) == 0 {
				delete(h.groupConnections, group)
			}
		}
	}
	n := atomic.AddInt64(&h.connectionCount, -1)
	notify := h.onCountChange
	h.mu.Unlock()

	conn.alive.Store(false)
	close(conn.Send)
	if notify != nil {
		notify(int(n))
	}
	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d", conn.ID, n)
}

// Publish 将 payload 序列化后投递给发布时刻组内的全部连接，返回成功入队的连接数
func (h *Hub) Publish(group string, payload any) (int, error) {
	if group == "" {
		return 0, ErrEmptyGroup
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	job := publishJob{group: group, data: data, done: make(chan int, 1)}

	select {
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	case h.publish <- job:
	default:
		return 0, ErrQueueFull
	}

	select {
	case n := <-job.done:
		return n, nil
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	}
}

// PublishMessage 以 {"message": text} 格式发布
func (h *Hub) PublishMessage(group, text string) (int, error) {
	return h.Publish(group, Frame{Message: text})
}

// sendToGroup 发送消息给特定组，只做非阻塞投递
func (h *Hub) sendToGroup(group string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for connID := range h.groupConnections[group] {
		conn, ok := h.connections[connID]
		if !ok || !conn.IsAlive() {
			continue
		}
		if h.trySend(conn, data) {
			delivered++
		} else {
			logrus.Warnf("组 %s 的连接 %s 发送缓冲区已满，消息被丢弃", group, connID)
		}
	}
	return delivered
}

// trySend 背压策略：缓冲区满则丢弃，可配置为直接断开慢消费者
func (h *Hub) trySend(conn *Connection, data []byte) bool {
	select {
	case conn.Send <- data:
		return true
	default:
		if h.config.CloseOnBackpressure {
			conn.close()
		}
		return false
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.LastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.close()
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetGroupConnections 获取组的连接数
func (h *Hub) GetGroupConnections(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupConnections[group])
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	h.mu.RLock()
	for _, conn := range h.connections {
		conn.close()
	}
	h.mu.RUnlock()

	logrus.Info("WebSocket Hub已关闭")
}
