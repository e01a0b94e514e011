package handlers

import (
	"sync"
	"time"

	"Resilix/internal/alerting"
	"Resilix/internal/listeners"
	"Resilix/pkg/cache"
	"Resilix/pkg/config"
	"Resilix/pkg/llm"
	"Resilix/pkg/metrics"
	"Resilix/pkg/middleware"
	"Resilix/pkg/sse"
	"Resilix/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps 由 main 显式构造后注入；Hub、LLM、Cache、Metrics、System 可为空
type Deps struct {
	DB          *gorm.DB
	Config      *config.Config
	Alerts      *alerting.Orchestrator
	Users       *listeners.UserListener
	Hub         *websocket.Hub
	SSE         *sse.Hub
	LLM         llm.LLM
	RateLimiter *middleware.RateLimiter
	Cache       cache.Cache
	Metrics     *metrics.Metrics
	System      *metrics.SystemMonitor
}

type Handlers struct {
	db      *gorm.DB
	cfg     *config.Config
	alerts  *alerting.Orchestrator
	users   *listeners.UserListener
	hub     *websocket.Hub
	sse     *sse.Hub
	llm     llm.LLM
	limiter *middleware.RateLimiter
	cache   cache.Cache
	metrics *metrics.Metrics
	system  *metrics.SystemMonitor
}

var bindingOnce sync.Once

func NewHandlers(d Deps) *Handlers {
	bindingOnce.Do(useJSONFieldNames)
	return &Handlers{
		db:      d.DB,
		cfg:     d.Config,
		alerts:  d.Alerts,
		users:   d.Users,
		hub:     d.Hub,
		sse:     d.SSE,
		llm:     d.LLM,
		limiter: d.RateLimiter,
		cache:   d.Cache,
		metrics: d.Metrics,
		system:  d.System,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.Use(metrics.MonitorMiddleware(h.metrics))
		engine.GET(h.cfg.MetricsPath, metrics.Handler(h.metrics))
	}
	engine.Use(middleware.RequestLogMiddleware())

	// 实时通道不带 API 前缀
	if h.hub != nil {
		websocket.RegisterRoutes(engine, websocket.NewHandler(h.hub))
	}
	if h.sse != nil {
		engine.GET("/sse/alerts/", func(c *gin.Context) { h.sse.Serve(c, alerting.BroadcastGroup) })
	}

	r := engine.Group(h.cfg.APIPrefix)
	r.Use(middleware.JWTAuth(h.cfg.JWTSecret, false))

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerAuthRoutes(r)
	h.registerAlertRoutes(r)
	h.registerResourceRoutes(r)
	h.registerChatbotRoutes(r)
}

// throttle 未配置限流器时为空操作
func (h *Handlers) throttle() gin.HandlerFunc {
	if h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.limiter.Middleware()
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.POST("/rate-limiter/config", middleware.JWTAuth(h.cfg.JWTSecret, true), h.UpdateRateLimiterConfig)
	}
}

// User Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	r.POST("/user/signup/", h.handleUserSignup)

	r.POST("/login/", h.handleUserLogin)

	r.POST("/verify_phone/", h.handleVerifyPhone)
}

func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	r.GET("/alerts/", h.handleListAlerts)

	r.POST("/alerts/", h.throttle(), middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
		Store: h.cache,
		TTL:   10 * time.Minute,
	}), h.handleCreateAlert)
}

func (h *Handlers) registerResourceRoutes(r *gin.RouterGroup) {
	r.GET("/emergency/choices/", h.handleListAlertChoices)
	r.POST("/emergency/choices/", h.handleCreateAlertChoice)

	r.GET("/resilix/locations/", h.handleListLocations)
	r.POST("/resilix/locations/", h.handleCreateLocation)

	r.GET("/resilix/disaster/feedbacks/", h.handleListFeedbacks)
	r.POST("/resilix/disaster/feedbacks/", h.handleCreateFeedback)
}

func (h *Handlers) registerChatbotRoutes(r *gin.RouterGroup) {
	r.POST("/chatbot/", h.throttle(), h.handleChatbot)
}
