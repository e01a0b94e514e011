package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMConfig struct {
	ProjectID          string
	CredentialsFile    string
	ServiceAccountURL  string // 凭据托管在外部时从该地址拉取
	ServiceAccountJSON string
}

// FCMClient 便于替换/注入的发送接口（适配 firebase messaging.Client）
type FCMClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMPush struct {
	cli FCMClient
}

func NewFCMPush(cli FCMClient) *FCMPush {
	return &FCMPush{cli: cli}
}

// NewFCMPushFromConfig 按 JSON > 文件 > URL 的顺序读取服务账号凭据
func NewFCMPushFromConfig(ctx context.Context, cfg FCMConfig) (*FCMPush, error) {
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNotConfigured
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	cli, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCMPush(cli), nil
}

func loadCredentials(ctx context.Context, cfg FCMConfig) ([]byte, error) {
	switch {
	case cfg.ServiceAccountJSON != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read fcm credentials: %w", err)
		}
		return b, nil
	case cfg.ServiceAccountURL != "":
		return fetchCredentials(ctx, cfg.ServiceAccountURL)
	}
	return nil, nil
}

func fetchCredentials(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch fcm credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch fcm credentials: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// SendPush 单个设备失败同样视为失败
func (f *FCMPush) SendPush(ctx context.Context, tokens []string, title, body string) error {
	if f.cli == nil {
		return ErrNotConfigured
	}
	resp, err := f.cli.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	})
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	if resp != nil && resp.FailureCount > 0 {
		for _, r := range resp.Responses {
			if r != nil && !r.Success && r.Error != nil {
				return fmt.Errorf("fcm device rejected: %w", r.Error)
			}
		}
		return fmt.Errorf("fcm: %d of %d devices failed", resp.FailureCount, len(tokens))
	}
	return nil
}
