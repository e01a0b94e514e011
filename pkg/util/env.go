package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 加载 .env 与 .env.<env>，已存在的环境变量不会被覆盖
func LoadEnv(env string) error {
	files := []string{}
	if env != "" {
		files = append(files, fmt.Sprintf(".env.%s", env))
	}
	files = append(files, ".env")

	var loaded int
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no env file found for %q", env)
	}
	return nil
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func GetEnvDefault(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetDurationEnv 支持 "15s" 形式，纯数字按秒处理
func GetDurationEnv(key string, def time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
