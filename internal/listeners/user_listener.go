package listeners

import (
	"context"
	"errors"
	"time"

	"Resilix/internal/models"
	"Resilix/pkg/logger"
	"Resilix/pkg/notification"

	"go.uber.org/zap"
)

const (
	WelcomeTitle = "Welcome!"
	WelcomeBody  = "Thanks for registering with our app."
)

// Notifier 由 notification.Gateway 实现
type Notifier interface {
	Send(ctx context.Context, to notification.Recipient, title, body string) notification.Result
	SendSMS(ctx context.Context, to notification.Recipient, body string) notification.Result
}

// UserListener 用户注册后的通知：欢迎消息 + 短信验证码
type UserListener struct {
	notifier Notifier
	now      func() time.Time
}

func NewUserListener(notifier Notifier) *UserListener {
	return &UserListener{notifier: notifier, now: time.Now}
}

// OnUserCreated 欢迎消息失败只记日志；验证码短信失败返回错误，由调用方提示手动验证
func (l *UserListener) OnUserCreated(ctx context.Context, user *models.CustomUser) error {
	if l.notifier == nil {
		return notification.ErrNotConfigured
	}
	to := notification.Recipient{UserID: user.ID, FCMToken: user.FCMToken, PhoneNumber: user.PhoneNumber}

	if res := l.notifier.Send(ctx, to, WelcomeTitle, WelcomeBody); !res.Success && !res.Skipped {
		logger.Warn("send welcome notification failed", zap.Uint("user_id", user.ID), zap.String("error", res.Error))
	}

	code, err := user.OTPCode(l.now())
	if err != nil {
		return err
	}
	res := l.notifier.SendSMS(ctx, to, "Your verification code is "+code)
	if !res.Success {
		if res.Error == "" {
			return errors.New("no phone number to send the verification code to")
		}
		return errors.New(res.Error)
	}
	return nil
}
