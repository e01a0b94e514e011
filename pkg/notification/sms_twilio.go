package notification

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// TwilioClient 便于替换/注入的发送接口（适配 twilio-go）
type TwilioClient interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type TwilioSMS struct {
	cfg TwilioConfig
	cli TwilioClient
}

func NewTwilioSMS(cfg TwilioConfig, cli TwilioClient) *TwilioSMS {
	return &TwilioSMS{cfg: cfg, cli: cli}
}

// NewTwilioSMSFromConfig 凭据不全时返回 ErrNotConfigured
func NewTwilioSMSFromConfig(cfg TwilioConfig) (*TwilioSMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.PhoneNumber == "" {
		return nil, ErrNotConfigured
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioSMS(cfg, client.Api), nil
}

// SendSMS twilio-go 不接受 context，调用前检查是否已取消
func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) error {
	if t.cli == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.cfg.PhoneNumber)
	params.SetBody(body)
	msg, err := t.cli.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	if msg != nil && msg.ErrorMessage != nil && *msg.ErrorMessage != "" {
		return fmt.Errorf("twilio send: %s", *msg.ErrorMessage)
	}
	return nil
}
