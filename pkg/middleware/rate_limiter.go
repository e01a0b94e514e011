package middleware

import (
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"Resilix/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimiterConfig 限流配置
//
// Rate 形如 "30-M"；PerRouteRates 以路由模板为键覆盖默认速率，
// 例如 {"/alerts/": "30-M", "/chatbot/": "10-M"}。
// Identifier: ip | user | header（header 时读取 HeaderName）。
type RateLimiterConfig struct {
	Rate           string            `json:"rate"`
	PerRouteRates  map[string]string `json:"per_route_rates"`
	Identifier     string            `json:"identifier"`
	HeaderName     string            `json:"header_name"`
	WhitelistCIDRs []string          `json:"whitelist_cidrs"`
	AddHeaders     bool              `json:"add_headers"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter 按速率字符串缓存 limiter 实例
type RateLimiter struct {
	store    limiter.Store
	observer MetricsObserver

	mu       sync.Mutex // 保护以下字段
	cfg      RateLimiterConfig
	white    []*net.IPNet
	limiters map[string]*limiter.Limiter
}

// NewRateLimiter store 为空时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	l := &RateLimiter{store: store}
	l.UpdateConfig(cfg)
	return l
}

// UpdateConfig 运行时替换配置，已缓存的 limiter 一并丢弃
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	if cfg.Rate == "" {
		cfg.Rate = "30-M"
	}
	var white []*net.IPNet
	for _, c := range cfg.WhitelistCIDRs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			white = append(white, n)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.white = white
	l.limiters = make(map[string]*limiter.Limiter)
}

func (l *RateLimiter) Config() RateLimiterConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

// Middleware 返回 Gin 中间件；存储出错时放行
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		lim, cfg, white := l.snapshot(route)
		if ipListed(ip, white) {
			c.Next()
			return
		}

		lctx, err := lim.Get(c.Request.Context(), key(c, cfg, ip, route))
		if err != nil {
			logger.Warn("rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}
		if cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		}
		if lctx.Reached {
			if l.observer != nil {
				l.observer.OnDeny(route)
			}
			retry := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Request was throttled."})
			return
		}
		if l.observer != nil {
			l.observer.OnAllow(route)
		}
		c.Next()
	}
}

// RoutePath 按 gin 分组的拼接规则得到 FullPath，用作 PerRouteRates 的键
func RoutePath(prefix, route string) string {
	p := path.Join("/", prefix, route)
	if strings.HasSuffix(route, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (l *RateLimiter) snapshot(route string) (*limiter.Limiter, RateLimiterConfig, []*net.IPNet) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rateStr := l.cfg.Rate
	if r, ok := l.cfg.PerRouteRates[route]; ok && r != "" {
		rateStr = r
	}
	if lim, ok := l.limiters[rateStr]; ok {
		return lim, l.cfg, l.white
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		logger.Warn("invalid rate, falling back to 30-M", zap.String("rate", rateStr), zap.Error(err))
		rate = limiter.Rate{Period: time.Minute, Limit: 30}
	}
	lim := limiter.New(l.store, rate)
	l.limiters[rateStr] = lim
	return lim, l.cfg, l.white
}

// key 各路由独立计数
func key(c *gin.Context, cfg RateLimiterConfig, ip, route string) string {
	switch cfg.Identifier {
	case "user":
		if user := c.GetString(ContextUserKey); user != "" {
			return "user:" + user + ":" + route
		}
	case "header":
		if hv := strings.TrimSpace(c.GetHeader(cfg.HeaderName)); hv != "" {
			return "hdr:" + hv + ":" + route
		}
	}
	return "ip:" + ip + ":" + route
}

func ipListed(ip string, nets []*net.IPNet) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}
