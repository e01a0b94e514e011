package listeners

import (
	"context"
	"strings"
	"testing"
	"time"

	"Resilix/internal/models"
	"Resilix/pkg/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	sent    []string
	sms     []string
	smsFail bool
}

func (f *fakeNotifier) Send(_ context.Context, to notification.Recipient, title, _ string) notification.Result {
	f.sent = append(f.sent, title)
	return notification.Result{UserID: to.UserID, Channel: notification.ChannelPush, Success: true}
}

func (f *fakeNotifier) SendSMS(_ context.Context, to notification.Recipient, body string) notification.Result {
	f.sms = append(f.sms, body)
	if f.smsFail || to.PhoneNumber == "" {
		return notification.Result{UserID: to.UserID, Channel: notification.ChannelSMS, Error: "sms down"}
	}
	return notification.Result{UserID: to.UserID, Channel: notification.ChannelSMS, Success: true}
}

func TestOnUserCreatedSendsWelcomeAndCode(t *testing.T) {
	n := &fakeNotifier{}
	l := NewUserListener(n)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }

	user := &models.CustomUser{ID: 3, PhoneNumber: "+237600000000", FCMToken: "tok", OTP: "JBSWY3DPEHPK3PXP"}
	require.NoError(t, l.OnUserCreated(context.Background(), user))

	assert.Equal(t, []string{WelcomeTitle}, n.sent)
	require.Len(t, n.sms, 1)
	code := strings.TrimPrefix(n.sms[0], "Your verification code is ")
	assert.True(t, user.VerifyOTP(code, at))
}

func TestOnUserCreatedReportsSMSFailure(t *testing.T) {
	n := &fakeNotifier{smsFail: true}
	err := NewUserListener(n).OnUserCreated(context.Background(), &models.CustomUser{ID: 1, PhoneNumber: "+1", OTP: "JBSWY3DPEHPK3PXP"})
	assert.EqualError(t, err, "sms down")
}

func TestOnUserCreatedWithoutNotifier(t *testing.T) {
	err := NewUserListener(nil).OnUserCreated(context.Background(), &models.CustomUser{OTP: "JBSWY3DPEHPK3PXP"})
	assert.ErrorIs(t, err, notification.ErrNotConfigured)
}
