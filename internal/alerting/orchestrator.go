package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Resilix/internal/models"
	"Resilix/pkg/cache"
	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/logger"
	"Resilix/pkg/metrics"
	"Resilix/pkg/notification"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	BroadcastGroup = "alerts"
	NotifyTitle    = "New Alert"

	listCacheKey = "alerts:list"
	listCacheTTL = 30 * time.Second
)

// Broadcaster 实时广播，由 websocket.Hub 实现
type Broadcaster interface {
	Publish(group string, payload any) (int, error)
}

// Broadcasters 依次向多个实时通道发布，返回送达总数
type Broadcasters []Broadcaster

func (bs Broadcasters) Publish(group string, payload any) (int, error) {
	total := 0
	var errs []error
	for _, b := range bs {
		n, err := b.Publish(group, payload)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Notifier 单用户通知，由 notification.Gateway 实现
type Notifier interface {
	Send(ctx context.Context, to notification.Recipient, title, body string) notification.Result
}

// GuidanceGenerator 急救建议生成，不返回错误
type GuidanceGenerator interface {
	Generate(ctx context.Context, description string) string
}

type Options struct {
	Workers   int
	BatchSize int
	Timeout   time.Duration
	// OnReport 每次扇出结束后回调
	OnReport func(FanoutReport)
}

// FanoutReport 一次扇出的汇总结果
type FanoutReport struct {
	AlertID        uint                  `json:"alert_id"`
	Broadcast      int                   `json:"broadcast"`
	BroadcastError string                `json:"broadcast_error,omitempty"`
	Attempted      int                   `json:"attempted"`
	Succeeded      int                   `json:"succeeded"`
	Failed         int                   `json:"failed"`
	Skipped        int                   `json:"skipped"`
	Push           int                   `json:"push"`
	SMS            int                   `json:"sms"`
	Results        []notification.Result `json:"results"`
	Duration       time.Duration         `json:"duration"`
}

type Orchestrator struct {
	db       *gorm.DB
	guide    GuidanceGenerator
	notifier Notifier
	hub      Broadcaster
	cache    cache.Cache
	opts     Options

	wg sync.WaitGroup
	// listGen 每次失效加一，List 读库期间若有变化则不回填缓存
	listGen atomic.Uint64
}

// New hub、notifier、c 均可为 nil
func New(db *gorm.DB, guide GuidanceGenerator, notifier Notifier, hub Broadcaster, c cache.Cache, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 32
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Orchestrator{db: db, guide: guide, notifier: notifier, hub: hub, cache: c, opts: opts}
}

// Create 校验、持久化、生成建议，按需启动后台扇出。
// 前三步失败直接返回错误；建议与扇出失败只记录日志。
func (o *Orchestrator) Create(ctx context.Context, in CreateAlertInput) (*models.Alert, error) {
	valid, err := Validate(in)
	if err != nil {
		return nil, err
	}

	alert := &models.Alert{
		AlertType:   valid.AlertType,
		Description: valid.Description,
		Location:    valid.Location,
	}
	if err := models.CreateAlert(ctx, o.db, alert); err != nil {
		return nil, apperrors.Storage(err, "save alert")
	}
	o.invalidateList(ctx)
	metrics.ObserveAlertCreated(alert.AlertType)

	// 持久化之后不再受请求取消影响，只由建议生成自身的超时约束
	detached := context.WithoutCancel(ctx)
	text := o.guide.Generate(detached, alert.Description)
	if err := models.SetFirstAidResponse(detached, o.db, alert, text); err != nil {
		logger.Error("save first aid response failed", zap.Uint("alert_id", alert.ID), zap.Error(err))
		alert.FirstAidResponse = &text
	}
	o.invalidateList(ctx)

	if valid.BroadcastToAll {
		o.startFanout(ctx, *alert)
	}
	return alert, nil
}

// startFanout 扇出脱离请求上下文运行，只受自身超时限制
func (o *Orchestrator) startFanout(ctx context.Context, alert models.Alert) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.Timeout)
		defer cancel()
		o.Fanout(fctx, &alert)
	}()
}

// Wait 等待所有后台扇出结束
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Fanout 广播并逐个通知全部用户，每次尝试相互独立
func (o *Orchestrator) Fanout(ctx context.Context, alert *models.Alert) FanoutReport {
	start := time.Now()
	report := FanoutReport{AlertID: alert.ID}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.opts.Workers)

	g.Go(func() error {
		n, err := o.broadcast(alert)
		mu.Lock()
		report.Broadcast = n
		if err != nil {
			report.BroadcastError = err.Error()
		}
		mu.Unlock()
		return nil
	})

	record := func(res notification.Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results = append(report.Results, res)
	}

	iterErr := models.EachUserBatch(ctx, o.db, o.opts.BatchSize, func(users []models.CustomUser) error {
		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return err
			}
			to := notification.Recipient{UserID: u.ID, FCMToken: u.FCMToken, PhoneNumber: u.PhoneNumber}
			g.Go(func() error {
				record(o.notify(ctx, to, alert.Description))
				return nil
			})
		}
		return nil
	})
	_ = g.Wait()
	if iterErr != nil {
		logger.Error("iterate users for fanout failed", zap.Uint("alert_id", alert.ID), zap.Error(iterErr))
	}

	for _, res := range report.Results {
		report.Attempted++
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Success:
			report.Succeeded++
		default:
			report.Failed++
		}
		switch res.Channel {
		case notification.ChannelPush:
			report.Push++
		case notification.ChannelSMS:
			report.SMS++
		}
	}
	report.Duration = time.Since(start)

	metrics.ObserveFanout(report.Attempted, report.Duration)
	logger.Info("alert fanout finished",
		zap.Uint("alert_id", report.AlertID),
		zap.Int("broadcast", report.Broadcast),
		zap.String("broadcast_error", report.BroadcastError),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration))

	if o.opts.OnReport != nil {
		o.opts.OnReport(report)
	}
	return report
}

func (o *Orchestrator) broadcast(alert *models.Alert) (n int, err error) {
	if o.hub == nil {
		metrics.ObserveBroadcast("skipped")
		return 0, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast panic: %v", r)
		}
		if err != nil {
			logger.Warn("alert broadcast failed", zap.Uint("alert_id", alert.ID), zap.Error(err))
			metrics.ObserveBroadcast("error")
			return
		}
		metrics.ObserveBroadcast("ok")
	}()
	msg := fmt.Sprintf("New alert: %s - %s", alert.AlertType, alert.Description)
	return o.hub.Publish(BroadcastGroup, map[string]string{"message": msg})
}

func (o *Orchestrator) notify(ctx context.Context, to notification.Recipient, body string) notification.Result {
	var res notification.Result
	if o.notifier == nil {
		res = notification.Result{UserID: to.UserID, Channel: notification.ChannelNone, Skipped: true}
	} else {
		res = o.notifier.Send(ctx, to, NotifyTitle, body)
	}

	outcome := "failed"
	switch {
	case res.Skipped:
		outcome = "skipped"
	case res.Success:
		outcome = "success"
	}
	metrics.ObserveNotification(string(res.Channel), outcome)
	return res
}

// List 返回全部告警，结果短暂缓存，新建告警及写入急救建议时失效
func (o *Orchestrator) List(ctx context.Context) ([]models.Alert, error) {
	gen := o.listGen.Load()
	if o.cache != nil {
		if raw, ok := o.cache.Get(ctx, listCacheKey); ok {
			var alerts []models.Alert
			if err := json.Unmarshal(raw, &alerts); err == nil {
				return alerts, nil
			}
		}
	}

	alerts, err := models.ListAlerts(ctx, o.db)
	if err != nil {
		return nil, apperrors.Storage(err, "list alerts")
	}
	if o.cache != nil && o.listGen.Load() == gen {
		if raw, err := json.Marshal(alerts); err == nil {
			_ = o.cache.Set(ctx, listCacheKey, raw, listCacheTTL)
			// 写入与失效交错时撤回
			if o.listGen.Load() != gen {
				_ = o.cache.Delete(context.WithoutCancel(ctx), listCacheKey)
			}
		}
	}
	return alerts, nil
}

func (o *Orchestrator) invalidateList(ctx context.Context) {
	o.listGen.Add(1)
	if o.cache == nil {
		return
	}
	if err := o.cache.Delete(context.WithoutCancel(ctx), listCacheKey); err != nil {
		logger.Warn("invalidate alert list cache failed", zap.Error(err))
	}
}
