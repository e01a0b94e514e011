package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"Resilix/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	req.RemoteAddr = "10.1.2.3:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterDeniesAfterLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)
	rl := NewRateLimiter(RateLimiterConfig{Rate: "2-M", AddHeaders: true}, nil).WithObserver(obs)

	r := gin.New()
	r.POST("/alerts/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	assert.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/alerts/", nil).Code)
	w := doRequest(r, http.MethodPost, "/alerts/", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = doRequest(r, http.MethodPost, "/alerts/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, 2.0, testutil.ToFloat64(obs.allow.WithLabelValues("/alerts/")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.deny.WithLabelValues("/alerts/")))
}

func TestRateLimiterPerRouteAndWhitelist(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:          "100-M",
		PerRouteRates: map[string]string{"/chatbot/": "1-M"},
	}, nil)
	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/chatbot/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/alerts/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/chatbot/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodPost, "/chatbot/", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/alerts/", nil).Code)

	white := NewRateLimiter(RateLimiterConfig{Rate: "1-M", WhitelistCIDRs: []string{"10.0.0.0/8"}}, nil)
	r2 := gin.New()
	r2.POST("/alerts/", white.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r2, http.MethodPost, "/alerts/", nil).Code)
	}
}

func TestRoutePathMatchesGroupFullPath(t *testing.T) {
	assert.Equal(t, "/alerts/", RoutePath("", "/alerts/"))
	assert.Equal(t, "/api/alerts/", RoutePath("/api", "/alerts/"))
	assert.Equal(t, "/api/v1/chatbot/", RoutePath("api/v1/", "/chatbot/"))
	assert.Equal(t, "/system/health", RoutePath("", "/system/health"))

	rl := NewRateLimiter(RateLimiterConfig{
		Rate:          "100-M",
		PerRouteRates: map[string]string{RoutePath("/api", "/alerts/"): "1-M"},
	}, nil)
	r := gin.New()
	g := r.Group("/api")
	g.Use(rl.Middleware())
	g.POST("/alerts/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/api/alerts/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodPost, "/api/alerts/", nil).Code)
}

func newIdemRouter(t *testing.T, status int, calls *atomic.Int32, block chan struct{}) (*gin.Engine, cache.Cache) {
	t.Helper()
	store := cache.NewGoCache(cache.LocalConfig{})
	t.Cleanup(func() { _ = store.Close() })

	r := gin.New()
	r.POST("/alerts/", IdempotencyMiddleware(IdempotencyConfig{Store: store, TTL: time.Minute}), func(c *gin.Context) {
		n := calls.Add(1)
		if block != nil {
			<-block
		}
		c.JSON(status, gin.H{"id": n})
	})
	return r, store
}

func TestIdempotencyReplaysSuccess(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdemRouter(t, http.StatusCreated, &calls, nil)
	h := map[string]string{"Idempotency-Key": "abc"}

	first := doRequest(r, http.MethodPost, "/alerts/", h)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(HeaderReplayed))

	second := doRequest(r, http.MethodPost, "/alerts/", h)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	// 无幂等键时不缓存
	doRequest(r, http.MethodPost, "/alerts/", nil)
	doRequest(r, http.MethodPost, "/alerts/", nil)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencyFailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdemRouter(t, http.StatusBadRequest, &calls, nil)
	h := map[string]string{"Idempotency-Key": "k1"}

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, "/alerts/", h).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, "/alerts/", h).Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyConflictWhilePending(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	r, _ := newIdemRouter(t, http.StatusCreated, &calls, block)
	h := map[string]string{"Idempotency-Key": "slow"}

	done := make(chan int)
	go func() {
		done <- doRequest(r, http.MethodPost, "/alerts/", h).Code
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusConflict, doRequest(r, http.MethodPost, "/alerts/", h).Code)
	close(block)
	assert.Equal(t, http.StatusCreated, <-done)
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	token, err := IssueToken(secret, 7, "amina", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "amina", claims.Username)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken(secret, 7, "amina", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	r := gin.New()
	r.GET("/optional", JWTAuth(secret, false), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserKey))
	})
	r.GET("/required", JWTAuth(secret, true), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserKey))
	})

	w := doRequest(r, http.MethodGet, "/optional", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = doRequest(r, http.MethodGet, "/optional", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, "amina", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/required", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/required", map[string]string{"Authorization": "Bearer junk"}).Code)
	w = doRequest(r, http.MethodGet, "/required", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLogPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := doRequest(r, http.MethodGet, "/ping", map[string]string{"User-Agent": "Mozilla/5.0 (Linux; Android 10) Mobile"})
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRateLimiterUpdateConfigResetsLimiters(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: "1-M"}, nil)
	r := gin.New()
	r.POST("/alerts/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/alerts/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodPost, "/alerts/", nil).Code)

	rl.UpdateConfig(RateLimiterConfig{Rate: "5-M"})
	assert.Equal(t, "5-M", rl.Config().Rate)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/alerts/", nil).Code)
}
