package scheduler

import (
	"context"
	"time"

	"Resilix/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	l := zapCronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(l),
		cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop 取消运行中任务的 ctx 并等待其退出
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) AddWithCtx(expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(expr, FuncJob(fn))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }

// zapCronLogger 把 cron 内部日志转到 zap
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...any) {
	logger.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, zap.Error(err))...)
}
