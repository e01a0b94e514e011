package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Client struct {
	id     string
	groups map[string]bool
	ch     chan string
	done   chan struct{}
}

// Hub SSE 推送，作为 WebSocket 不可用时的只读告警流
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	groups   map[string]map[string]bool // group -> clientID set
	interval time.Duration
	retryMs  int
	buffer   int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]bool),
		interval: interval,
		retryMs:  5000,
		buffer:   64,
	}
}

func (h *Hub) AddClient(id string, groups ...string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: id, groups: make(map[string]bool), ch: make(chan string, h.buffer), done: make(chan struct{})}
	h.clients[id] = c
	for _, g := range groups {
		c.groups[g] = true
		if h.groups[g] == nil {
			h.groups[g] = make(map[string]bool)
		}
		h.groups[g][id] = true
	}
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	close(c.done)
	for g := range c.groups {
		delete(h.groups[g], id)
		if len(h.groups[g]) == 0 {
			delete(h.groups, g)
		}
	}
	delete(h.clients, id)
}

// Publish 与 websocket.Hub 相同的签名；缓冲区满的客户端本条消息被丢弃
func (h *Hub) Publish(group string, payload any) (int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	msg := formatData(string(b))

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id := range h.groups[group] {
		c := h.clients[id]
		if c == nil {
			continue
		}
		select {
		case c.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered, nil
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func formatData(s string) string { return fmt.Sprintf("data: %s\n\n", s) }

// Serve 阻塞直到客户端断开
func (h *Hub) Serve(c *gin.Context, groups ...string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	id := uuid.NewString()
	client := h.AddClient(id, groups...)
	defer h.RemoveClient(id)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			_, _ = c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
