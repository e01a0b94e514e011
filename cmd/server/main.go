package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Resilix/internal/alerting"
	"Resilix/internal/guidance"
	handlers "Resilix/internal/handler"
	"Resilix/internal/listeners"
	"Resilix/internal/models"
	"Resilix/pkg/backup"
	"Resilix/pkg/cache"
	"Resilix/pkg/config"
	"Resilix/pkg/llm"
	"Resilix/pkg/logger"
	"Resilix/pkg/metrics"
	"Resilix/pkg/middleware"
	"Resilix/pkg/notification"
	"Resilix/pkg/scheduler"
	"Resilix/pkg/sse"
	"Resilix/pkg/util"
	"Resilix/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

const systemPrompt = "You are a calm, precise first-aid assistant for emergency responders and the public."

func main() {
	if err := run(); err != nil {
		logger.Error("application error", zap.Error(err))
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	switch cfg.Mode {
	case "release", "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	m := metrics.NewMetrics()
	metrics.SetDefault(m)
	sys := metrics.NewSystemMonitor(m.Registry(), 15*time.Second)
	sys.Start()
	defer sys.Stop()

	db, err := util.InitDatabase(os.Stdout, cfg.DBDriver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.Use(metrics.NewGormPlugin(m)); err != nil {
		return fmt.Errorf("register gorm metrics: %w", err)
	}
	if err := models.Migrate(context.Background(), db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	c, err := cache.NewCache(cache.Config{
		Type: cfg.Cache.Type,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   "resilix:",
		},
	})
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer c.Close()

	wsCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsCfg); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}
	hub := websocket.NewHub(wsCfg)
	hub.OnConnectionCountChange(m.SetWebsocketConnections)
	defer hub.Close()
	sseHub := sse.NewHub(wsCfg.HeartbeatInterval)

	llmLogger := logrus.StandardLogger()
	provider := llm.New(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL, systemPrompt, llmLogger)
	guide := guidance.New(provider, guidance.Config{
		Model:     cfg.LLM.Model,
		Region:    cfg.LLM.Region,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})

	gateway := newGateway(cfg)
	orch := alerting.New(db, guide, gateway, alerting.Broadcasters{hub, sseHub}, c, alerting.Options{
		Workers:   cfg.Fanout.Workers,
		BatchSize: cfg.Fanout.BatchSize,
		Timeout:   cfg.Fanout.Timeout,
	})

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		logger.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:          "120-M",
		PerRouteRates: map[string]string{
			middleware.RoutePath(cfg.APIPrefix, "/alerts/"):  cfg.RateLimit,
			middleware.RoutePath(cfg.APIPrefix, "/chatbot/"): "10-M",
		},
		AddHeaders:    true,
	}, nil).WithObserver(middleware.NewPrometheusObserver(m.Registry()))

	engine := gin.New()
	engine.Use(gin.Recovery())
	handlers.NewHandlers(handlers.Deps{
		DB:          db,
		Config:      cfg,
		Alerts:      orch,
		Users:       listeners.NewUserListener(gateway),
		Hub:         hub,
		SSE:         sseHub,
		LLM:         provider,
		RateLimiter: limiter,
		Cache:       c,
		Metrics:     m,
		System:      sys,
	}).Register(engine)

	var cron *scheduler.Cron
	if cfg.BackupEnabled {
		cron = scheduler.NewCron(nil)
		job := backup.New(db, cfg.DBDriver, cfg.BackupPath, cfg.BackupKeep)
		if _, err := cron.Add(cfg.BackupSchedule, job); err != nil {
			return fmt.Errorf("schedule backup: %w", err)
		}
		cron.Start()
		logger.Info("backup scheduled", zap.String("schedule", cfg.BackupSchedule), zap.String("path", cfg.BackupPath))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// 等待后台扇出结束再关闭 hub 与数据库
	orch.Wait()
	if cron != nil {
		cron.Stop()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

// newGateway 未配置的通道保持为 nil，由 Gateway 记为失败
func newGateway(cfg *config.Config) *notification.Gateway {
	var (
		push notification.PushSender
		sms  notification.SMSSender
	)

	fcm, err := notification.NewFCMPushFromConfig(context.Background(), notification.FCMConfig{
		ProjectID:          cfg.FCM.ProjectID,
		CredentialsFile:    cfg.FCM.CredentialsFile,
		ServiceAccountURL:  cfg.FCM.ServiceAccountURL,
		ServiceAccountJSON: cfg.FCM.ServiceAccountJSON,
	})
	switch {
	case err == nil:
		push = fcm
	case errors.Is(err, notification.ErrNotConfigured):
		logger.Warn("push notifications disabled: FCM credentials not configured")
	default:
		logger.Error("init FCM failed, push notifications disabled", zap.Error(err))
	}

	twilio, err := notification.NewTwilioSMSFromConfig(notification.TwilioConfig{
		AccountSID:  cfg.Twilio.AccountSID,
		AuthToken:   cfg.Twilio.AuthToken,
		PhoneNumber: cfg.Twilio.PhoneNumber,
	})
	switch {
	case err == nil:
		sms = twilio
	case errors.Is(err, notification.ErrNotConfigured):
		logger.Warn("SMS disabled: Twilio credentials not configured")
	default:
		logger.Error("init Twilio failed, SMS disabled", zap.Error(err))
	}

	return notification.NewGateway(push, sms)
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
