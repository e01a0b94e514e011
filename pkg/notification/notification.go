package notification

import (
	"context"
	"errors"
	"fmt"

	"Resilix/pkg/logger"

	"go.uber.org/zap"
)

type Channel string

const (
	ChannelPush Channel = "push"
	ChannelSMS  Channel = "sms"
	ChannelNone Channel = "none"
)

var ErrNotConfigured = errors.New("notification provider not configured")

// Recipient 通知对象；FCMToken 非空时优先走推送
type Recipient struct {
	UserID      uint
	FCMToken    string
	PhoneNumber string
}

// Result 单次发送结果，失败只记录不返回 error
type Result struct {
	UserID  uint    `json:"user_id"`
	Channel Channel `json:"channel"`
	Success bool    `json:"success"`
	Skipped bool    `json:"skipped"`
	Error   string  `json:"error,omitempty"`
}

// PushSender 便于替换/注入的推送接口（适配 FCM SDK）
type PushSender interface {
	SendPush(ctx context.Context, tokens []string, title, body string) error
}

// SMSSender 便于替换/注入的短信接口（适配 Twilio SDK）
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type Gateway struct {
	push PushSender
	sms  SMSSender
}

func NewGateway(push PushSender, sms SMSSender) *Gateway {
	return &Gateway{push: push, sms: sms}
}

// Send 每次调用只发起一次外部请求，不重试
func (g *Gateway) Send(ctx context.Context, to Recipient, title, body string) (res Result) {
	res = Result{UserID: to.UserID, Channel: ChannelNone}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("provider panic: %v", r)
		}
		if res.Error != "" {
			logger.Warn("notification failed",
				zap.Uint("user_id", to.UserID),
				zap.String("channel", string(res.Channel)),
				zap.String("error", res.Error))
		}
	}()

	switch {
	case to.FCMToken != "":
		res.Channel = ChannelPush
		if g.push == nil {
			res.Error = ErrNotConfigured.Error()
			return res
		}
		if err := g.push.SendPush(ctx, []string{to.FCMToken}, title, body); err != nil {
			res.Error = err.Error()
			return res
		}
	case to.PhoneNumber != "":
		res.Channel = ChannelSMS
		if g.sms == nil {
			res.Error = ErrNotConfigured.Error()
			return res
		}
		if err := g.sms.SendSMS(ctx, to.PhoneNumber, body); err != nil {
			res.Error = err.Error()
			return res
		}
	default:
		res.Skipped = true
		return res
	}
	res.Success = true
	return res
}

// SendSMS 直接走短信通道，用于验证码等必须到达手机的消息
func (g *Gateway) SendSMS(ctx context.Context, to Recipient, body string) Result {
	return g.Send(ctx, Recipient{UserID: to.UserID, PhoneNumber: to.PhoneNumber}, "", body)
}
