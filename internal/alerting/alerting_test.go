package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Resilix/internal/geo"
	"Resilix/internal/guidance"
	"Resilix/internal/models"
	"Resilix/pkg/cache"
	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/notification"
	"Resilix/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase(nil, "sqlite", "file::memory:")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func addUser(t *testing.T, db *gorm.DB, name, token, phone string) {
	t.Helper()
	require.NoError(t, models.CreateUser(context.Background(), db, &models.CustomUser{
		Username:    name,
		FCMToken:    token,
		PhoneNumber: phone,
	}))
}

type fakeGuide struct{ text string }

func (f fakeGuide) Generate(context.Context, string) string { return f.text }

type fakeHub struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func (h *fakeHub) Publish(group string, payload any) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	if h.err != nil {
		return 0, h.err
	}
	return 1, nil
}

type fakePush struct {
	calls atomic.Int32
	err   error
}

func (p *fakePush) SendPush(_ context.Context, tokens []string, _, _ string) error {
	p.calls.Add(1)
	return p.err
}

type fakeSMS struct {
	calls atomic.Int32
	err   error
}

func (s *fakeSMS) SendSMS(context.Context, string, string) error {
	s.calls.Add(1)
	return s.err
}

// slowNotifier 记录并发峰值
type slowNotifier struct {
	delay   time.Duration
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (n *slowNotifier) Send(_ context.Context, to notification.Recipient, _, _ string) notification.Result {
	n.calls.Add(1)
	cur := n.active.Add(1)
	for {
		prev := n.maxSeen.Load()
		if cur <= prev || n.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(n.delay)
	n.active.Add(-1)
	return notification.Result{UserID: to.UserID, Channel: notification.ChannelPush, Success: true}
}

func TestValidateRejectsBlankFields(t *testing.T) {
	_, err := Validate(CreateAlertInput{AlertType: "", Description: "   "})
	require.Error(t, err)
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRejectedInput, e.Code)
	assert.Equal(t, []string{"This field is required."}, e.Fields["alert_type"])
	assert.Equal(t, []string{"This field may not be blank."}, e.Fields["description"])
}

func TestValidateMergesLocationErrors(t *testing.T) {
	_, err := Validate(CreateAlertInput{
		AlertType:   "Flood",
		Description: "River overflow",
		Location:    geo.NewLocationInput(200, 4),
	})
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Fields, "location")
	assert.NotContains(t, e.Fields, "alert_type")
}

func TestValidateAcceptsLegacyUserLocation(t *testing.T) {
	v, err := Validate(CreateAlertInput{
		AlertType:    "Flood",
		Description:  "River overflow",
		UserLocation: geo.NewLocationInput(9.7, 4.05),
	})
	require.NoError(t, err)
	require.NotNil(t, v.Location)
	assert.Equal(t, 9.7, v.Location.Longitude)
	assert.Equal(t, 4.05, v.Location.Latitude)
}

func TestCreateRejectedHasNoSideEffects(t *testing.T) {
	db := newTestDB(t)
	hub := &fakeHub{}
	o := New(db, fakeGuide{"x"}, nil, hub, nil, Options{})

	_, err := o.Create(context.Background(), CreateAlertInput{Description: "no type", BroadcastToAll: true})
	assert.True(t, apperrors.IsRejected(err))
	o.Wait()

	var n int64
	require.NoError(t, db.Model(&models.Alert{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, hub.payloads)
}

func TestCreatePersistsEvenWhenProvidersFail(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "a", "tok-a", "")
	addUser(t, db, "b", "", "+237600000001")

	push := &fakePush{err: errors.New("fcm down")}
	sms := &fakeSMS{err: errors.New("twilio down")}
	hub := &fakeHub{err: errors.New("hub closed")}
	var report FanoutReport
	o := New(db, guidance.New(nil, guidance.Config{}), notification.NewGateway(push, sms), hub, nil, Options{
		OnReport: func(r FanoutReport) { report = r },
	})

	alert, err := o.Create(context.Background(), CreateAlertInput{
		AlertType:      "Flood",
		Description:    "Water rising fast",
		BroadcastToAll: true,
	})
	require.NoError(t, err)
	o.Wait()

	require.NotNil(t, alert.FirstAidResponse)
	assert.Equal(t, guidance.Fallback, *alert.FirstAidResponse)

	stored, err := models.GetAlert(context.Background(), db, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FirstAidResponse)
	assert.Equal(t, guidance.Fallback, *stored.FirstAidResponse)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, "hub closed", report.BroadcastError)
}

func TestCreateWithoutBroadcastSendsNothing(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "a", "tok-a", "")

	push := &fakePush{}
	hub := &fakeHub{}
	o := New(db, fakeGuide{"> ok"}, notification.NewGateway(push, nil), hub, nil, Options{})

	alert, err := o.Create(context.Background(), CreateAlertInput{AlertType: "Fire", Description: "Small fire"})
	require.NoError(t, err)
	o.Wait()

	assert.Equal(t, "> ok", *alert.FirstAidResponse)
	assert.Empty(t, hub.payloads)
	assert.Zero(t, push.calls.Load())
}

func TestFireExample(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "u1", "tok-1", "+237600000001")
	addUser(t, db, "u2", "tok-2", "")
	addUser(t, db, "u3", "", "+237600000003")

	push := &fakePush{}
	sms := &fakeSMS{}
	hub := &fakeHub{}
	reports := make(chan FanoutReport, 1)
	o := New(db, fakeGuide{"> stay low"}, notification.NewGateway(push, sms), hub, nil, Options{
		OnReport: func(r FanoutReport) { reports <- r },
	})

	alert, err := o.Create(context.Background(), CreateAlertInput{
		AlertType:      "Fire",
		Description:    "Building fire downtown",
		BroadcastToAll: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, alert.ID)
	o.Wait()

	require.Len(t, hub.payloads, 1)
	assert.Equal(t, map[string]string{"message": "New alert: Fire - Building fire downtown"}, hub.payloads[0])
	assert.Equal(t, int32(2), push.calls.Load())
	assert.Equal(t, int32(1), sms.calls.Load())

	report := <-reports
	assert.Equal(t, alert.ID, report.AlertID)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Push)
	assert.Equal(t, 1, report.SMS)
}

func TestFanoutAttemptsEveryUserConcurrently(t *testing.T) {
	db := newTestDB(t)
	const users = 20
	for i := 0; i < users; i++ {
		addUser(t, db, fmt.Sprintf("user%02d", i), fmt.Sprintf("tok-%d", i), "")
	}

	n := &slowNotifier{delay: 50 * time.Millisecond}
	o := New(db, fakeGuide{"x"}, n, nil, nil, Options{Workers: 8, BatchSize: 6})

	start := time.Now()
	report := o.Fanout(context.Background(), &models.Alert{ID: 1, AlertType: "Tornado", Description: "Funnel sighted"})
	elapsed := time.Since(start)

	assert.Equal(t, int32(users), n.calls.Load())
	assert.Equal(t, users, report.Attempted)
	assert.Greater(t, n.maxSeen.Load(), int32(1))
	assert.LessOrEqual(t, n.maxSeen.Load(), int32(8))
	assert.Less(t, elapsed, users*50*time.Millisecond/2)
}

func TestFanoutSurvivesRequestCancellation(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "a", "tok-a", "")

	push := &fakePush{}
	o := New(db, fakeGuide{"x"}, notification.NewGateway(push, nil), &fakeHub{}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := o.Create(ctx, CreateAlertInput{AlertType: "Fire", Description: "d", BroadcastToAll: true})
	require.NoError(t, err)
	cancel()
	o.Wait()

	assert.Equal(t, int32(1), push.calls.Load())
}

func TestLocationRoundTrip(t *testing.T) {
	db := newTestDB(t)
	o := New(db, fakeGuide{"x"}, nil, nil, nil, Options{})

	alert, err := o.Create(context.Background(), CreateAlertInput{
		AlertType:   "Earthquake",
		Description: "Walls cracked",
		Location:    geo.NewLocationInput(9.7, 4.05),
	})
	require.NoError(t, err)

	stored, err := models.GetAlert(context.Background(), db, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Location)
	assert.Equal(t, 9.7, stored.Location.Longitude)
	assert.Equal(t, 4.05, stored.Location.Latitude)
}

func TestListUsesCacheAndInvalidatesOnCreate(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewGoCache(cache.LocalConfig{})
	t.Cleanup(func() { _ = c.Close() })
	o := New(db, fakeGuide{"x"}, nil, nil, c, Options{})
	ctx := context.Background()

	alerts, err := o.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	_, ok := c.Get(ctx, listCacheKey)
	assert.True(t, ok)

	_, err = o.Create(ctx, CreateAlertInput{AlertType: "Fire", Description: "first"})
	require.NoError(t, err)
	_, err = o.Create(ctx, CreateAlertInput{AlertType: "Flood", Description: "second"})
	require.NoError(t, err)

	alerts, err = o.List(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "second", alerts[0].Description)
}

func TestBroadcastersJoinsResults(t *testing.T) {
	ok := &fakeHub{}
	bad := &fakeHub{err: errors.New("closed")}
	n, err := Broadcasters{ok, bad, ok}.Publish(BroadcastGroup, "x")
	assert.Equal(t, 2, n)
	assert.EqualError(t, err, "closed")
	assert.Len(t, ok.payloads, 2)
}

func TestCreateStorageFailureSendsNothing(t *testing.T) {
	db := newTestDB(t)
	addUser(t, db, "a", "tok-a", "+237600000001")

	push := &fakePush{}
	sms := &fakeSMS{}
	hub := &fakeHub{}
	o := New(db, fakeGuide{"x"}, notification.NewGateway(push, sms), hub, nil, Options{})

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	alert, err := o.Create(context.Background(), CreateAlertInput{
		AlertType:      "Fire",
		Description:    "Warehouse fire",
		BroadcastToAll: true,
	})
	o.Wait()

	assert.Nil(t, alert)
	assert.True(t, apperrors.IsStorage(err))
	assert.Zero(t, push.calls.Load())
	assert.Zero(t, sms.calls.Load())
	assert.Empty(t, hub.payloads)
}

// cancellingGuide 模拟生成期间客户端断开
type cancellingGuide struct {
	cancel context.CancelFunc
	seen   error
}

func (g *cancellingGuide) Generate(ctx context.Context, _ string) string {
	g.cancel()
	g.seen = ctx.Err()
	if g.seen != nil {
		return guidance.Fallback
	}
	return "> move to higher ground"
}

func TestGuidanceIgnoresRequestCancellation(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	g := &cancellingGuide{cancel: cancel}
	o := New(db, g, nil, nil, nil, Options{})

	alert, err := o.Create(ctx, CreateAlertInput{AlertType: "Flood", Description: "River overflow"})
	require.NoError(t, err)
	assert.NoError(t, g.seen)

	stored, err := models.GetAlert(context.Background(), db, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FirstAidResponse)
	assert.Equal(t, "> move to higher ground", *stored.FirstAidResponse)
}

// racingCache 在 List 读缓存时插入一次失效，模拟并发创建
type racingCache struct {
	cache.Cache
	onGet func()
}

func (c *racingCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.onGet != nil {
		c.onGet()
	}
	return c.Cache.Get(ctx, key)
}

func TestListDoesNotCacheAcrossInvalidation(t *testing.T) {
	db := newTestDB(t)
	inner := cache.NewGoCache(cache.LocalConfig{})
	t.Cleanup(func() { _ = inner.Close() })
	rc := &racingCache{Cache: inner}
	o := New(db, fakeGuide{"x"}, nil, nil, rc, Options{})
	ctx := context.Background()

	rc.onGet = func() { o.invalidateList(ctx) }
	_, err := o.List(ctx)
	require.NoError(t, err)
	_, ok := inner.Get(ctx, listCacheKey)
	assert.False(t, ok)

	rc.onGet = nil
	_, err = o.List(ctx)
	require.NoError(t, err)
	_, ok = inner.Get(ctx, listCacheKey)
	assert.True(t, ok)
}
