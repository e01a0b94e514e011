package websocket

import (
	"fmt"
	"strings"
	"time"

	"Resilix/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 每个连接的发送缓冲区大小
	MessageBufferSize int
	// 发布队列大小
	MessageQueueSize int
	ReadBufferSize   int
	WriteBufferSize  int
	// 客户端消息最大字节数
	MaxMessageSize int
	// 是否启用压缩
	EnableCompression bool
	// 压缩等级（-2..9）
	CompressionLevel int
	// 慢消费者策略：缓冲区满时直接断开
	CloseOnBackpressure bool
	// 允许的 Origin，空表示不限制
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    DefaultMaxConnections,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout: DefaultConnectionTimeout * time.Second,
		MessageBufferSize: DefaultMessageBufferSize,
		MessageQueueSize:  DefaultMessageQueueSize,
		ReadBufferSize:    DefaultReadBufferSize,
		WriteBufferSize:   DefaultWriteBufferSize,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableCompression: false,
		CompressionLevel:  0,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if v := util.GetIntEnv(EnvWebSocketMaxConnections); v > 0 {
		config.MaxConnections = v
	}
	if v := util.GetIntEnv(EnvWebSocketHeartbeatInterval); v > 0 {
		config.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketConnectionTimeout); v > 0 {
		config.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketMessageBufferSize); v > 0 {
		config.MessageBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketMessageQueueSize); v > 0 {
		config.MessageQueueSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketReadBufferSize); v > 0 {
		config.ReadBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketWriteBufferSize); v > 0 {
		config.WriteBufferSize = int(v)
	}
	if v := util.GetIntEnv(EnvWebSocketMaxMessageSize); v > 0 {
		config.MaxMessageSize = int(v)
	}
	if util.GetEnv(EnvWebSocketEnableCompression) != "" {
		config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)
	}
	if v := util.GetIntEnv(EnvWebSocketCompressionLevel); v != 0 {
		config.CompressionLevel = int(v)
	}
	if util.GetEnv(EnvWebSocketCloseOnBackpressure) != "" {
		config.CloseOnBackpressure = util.GetBoolEnv(EnvWebSocketCloseOnBackpressure)
	}
	if v := util.GetEnv(EnvWebSocketAllowedOrigins); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}
	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("配置不能为空")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("心跳间隔必须大于0")
	}
	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("连接超时时间必须大于0")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("消息缓冲区大小必须大于0")
	}
	if config.MessageQueueSize <= 0 {
		return fmt.Errorf("消息队列大小必须大于0")
	}
	if config.CompressionLevel < -2 || config.CompressionLevel > 9 {
		return fmt.Errorf("压缩等级必须在-2到9之间")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("读/写缓冲区大小必须大于0")
	}
	if config.MaxMessageSize <= 0 {
		return fmt.Errorf("最大消息大小必须大于0")
	}
	// 心跳间隔应该小于连接超时时间
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("心跳间隔必须小于连接超时时间")
	}
	return nil
}
