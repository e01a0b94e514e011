package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"Resilix/pkg/cache"
	"Resilix/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	idemPending     = "pending"
	idemKeyPrefix   = "idem:"
	HeaderReplayed  = "Idempotent-Replayed"
	defaultIdemName = "Idempotency-Key"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 结果保留时长
	Store      cache.Cache
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware 仅在请求携带幂等键时生效：
// 首次请求占位执行，2xx 结果被缓存并在重复请求时原样回放；
// 处理中的重复请求返回 409；失败结果不缓存，允许客户端重试。
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultIdemName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" || cfg.Store == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		storeKey := idemKeyPrefix + c.FullPath() + ":" + key

		claimed, err := cfg.Store.SetNX(ctx, storeKey, []byte(idemPending), cfg.TTL)
		if err != nil {
			logger.Warn("idempotency store failed", zap.Error(err))
			c.Next()
			return
		}
		if !claimed {
			raw, ok := cfg.Store.Get(ctx, storeKey)
			var prev storedResponse
			if ok && string(raw) != idemPending && json.Unmarshal(raw, &prev) == nil {
				c.Header(HeaderReplayed, "true")
				c.Data(prev.Status, prev.ContentType, prev.Body)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"detail": "A request with this idempotency key is already in progress."})
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			_ = cfg.Store.Delete(ctx, storeKey)
			return
		}
		b, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		})
		if err == nil {
			_ = cfg.Store.Set(ctx, storeKey, b, cfg.TTL)
		}
	}
}
