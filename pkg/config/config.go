package config

import (
	"Resilix/pkg/logger"
	"Resilix/pkg/util"
	"log"
	"os"
	"time"
)

// FCMConfig Firebase Cloud Messaging 凭据
type FCMConfig struct {
	ProjectID          string `env:"FCM_PROJECT_ID"`
	CredentialsFile    string `env:"FCM_CREDENTIALS_FILE"`
	ServiceAccountURL  string `env:"FCM_SERVICE_ACCOUNT_URL"`
	ServiceAccountJSON string `env:"FCM_SERVICE_ACCOUNT_JSON"`
}

// TwilioConfig Twilio 短信凭据
type TwilioConfig struct {
	AccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	PhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
}

// LLMConfig 生成式文本服务配置（OpenAI 兼容接口）
type LLMConfig struct {
	Provider  string        `env:"LLM_PROVIDER"`
	APIKey    string        `env:"LLM_API_KEY"`
	BaseURL   string        `env:"LLM_BASE_URL"`
	Model     string        `env:"LLM_MODEL"`
	MaxTokens int           `env:"LLM_MAX_TOKENS"`
	Timeout   time.Duration `env:"LLM_TIMEOUT"`
	Region    string        `env:"GUIDANCE_REGION"`
}

// FanoutConfig 告警扇出配置
type FanoutConfig struct {
	Workers   int           `env:"FANOUT_WORKERS"`
	BatchSize int           `env:"FANOUT_BATCH_SIZE"`
	Timeout   time.Duration `env:"FANOUT_TIMEOUT"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type          string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
}

type Config struct {
	DBDriver       string `env:"DB_DRIVER"`
	DSN            string `env:"DSN"`
	Log            logger.LogConfig
	Addr           string `env:"ADDR"`
	Mode           string `env:"MODE"`
	APIPrefix      string `env:"API_PREFIX"`
	JWTSecret      string `env:"JWT_SECRET"`
	JWTExpireHours int    `env:"JWT_EXPIRE_HOURS"`
	RateLimit      string `env:"ALERT_RATE_LIMIT"`
	MetricsPath    string `env:"METRICS_PATH"`
	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupKeep     int    `env:"BACKUP_KEEP"`
	FCM            FCMConfig
	Twilio         TwilioConfig
	LLM            LLMConfig
	Fanout         FanoutConfig
	Cache          CacheConfig
}

// Load 读取 .env.<APP_ENV> 与环境变量，返回显式构造的配置
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfg := &Config{
		DBDriver:       util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:            util.GetEnvDefault("DSN", "resilix.db"),
		Addr:           util.GetEnvDefault("ADDR", ":8000"),
		Mode:           util.GetEnvDefault("MODE", "debug"),
		APIPrefix:      util.GetEnv("API_PREFIX"),
		JWTSecret:      util.GetEnv("JWT_SECRET"),
		JWTExpireHours: int(util.GetIntEnv("JWT_EXPIRE_HOURS")),
		RateLimit:      util.GetEnvDefault("ALERT_RATE_LIMIT", "30-M"),
		MetricsPath:    util.GetEnvDefault("METRICS_PATH", "/metrics"),
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvDefault("BACKUP_PATH", "backups"),
		BackupSchedule: util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
		BackupKeep:     int(util.GetIntEnv("BACKUP_KEEP")),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		FCM: FCMConfig{
			ProjectID:          util.GetEnv("FCM_PROJECT_ID"),
			CredentialsFile:    util.GetEnv("FCM_CREDENTIALS_FILE"),
			ServiceAccountURL:  util.GetEnv("FCM_SERVICE_ACCOUNT_URL"),
			ServiceAccountJSON: util.GetEnv("FCM_SERVICE_ACCOUNT_JSON"),
		},
		Twilio: TwilioConfig{
			AccountSID:  util.GetEnv("TWILIO_ACCOUNT_SID"),
			AuthToken:   util.GetEnv("TWILIO_AUTH_TOKEN"),
			PhoneNumber: util.GetEnv("TWILIO_PHONE_NUMBER"),
		},
		LLM: LLMConfig{
			Provider:  util.GetEnvDefault("LLM_PROVIDER", "openai"),
			APIKey:    util.GetEnv("LLM_API_KEY"),
			BaseURL:   util.GetEnv("LLM_BASE_URL"),
			Model:     util.GetEnvDefault("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: int(util.GetIntEnv("LLM_MAX_TOKENS")),
			Timeout:   util.GetDurationEnv("LLM_TIMEOUT", 15*time.Second),
			Region:    util.GetEnvDefault("GUIDANCE_REGION", "Cameroon"),
		},
		Fanout: FanoutConfig{
			Workers:   int(util.GetIntEnv("FANOUT_WORKERS")),
			BatchSize: int(util.GetIntEnv("FANOUT_BATCH_SIZE")),
			Timeout:   util.GetDurationEnv("FANOUT_TIMEOUT", 2*time.Minute),
		},
		Cache: CacheConfig{
			Type:          util.GetEnvDefault("CACHE_TYPE", "gocache"),
			RedisAddr:     util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword: util.GetEnv("REDIS_PASSWORD"),
			RedisDB:       int(util.GetIntEnv("REDIS_DB")),
		},
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 150
	}
	if cfg.Fanout.Workers <= 0 {
		cfg.Fanout.Workers = 32
	}
	if cfg.Fanout.BatchSize <= 0 {
		cfg.Fanout.BatchSize = 500
	}
	if cfg.BackupKeep <= 0 {
		cfg.BackupKeep = 7
	}
	if cfg.JWTExpireHours <= 0 {
		cfg.JWTExpireHours = 24 * 7
	}
	return cfg, nil
}
