package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronRunsJobAndCancelsOnStop(t *testing.T) {
	cr := NewCron(time.UTC)
	var runs atomic.Int32
	var cancelled atomic.Bool

	_, err := cr.AddWithCtx("@every 1s", func(ctx context.Context) {
		runs.Add(1)
		<-ctx.Done()
		cancelled.Store(true)
	})
	require.NoError(t, err)
	require.Len(t, cr.Entries(), 1)

	cr.Start()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	cr.Stop()

	assert.True(t, cancelled.Load())
}

func TestCronRejectsBadExpression(t *testing.T) {
	_, err := NewCron(nil).Add("not a schedule", FuncJob(func(context.Context) {}))
	assert.Error(t, err)
}

func TestCronRecoversPanics(t *testing.T) {
	cr := NewCron(time.UTC)
	var runs atomic.Int32
	_, err := cr.Add("@every 1s", FuncJob(func(context.Context) {
		runs.Add(1)
		panic("boom")
	}))
	require.NoError(t, err)

	cr.Start()
	defer cr.Stop()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
}
