package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Resilix/pkg/metrics"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	var (
		c   Cache
		err error
	)
	kind := strings.ToLower(config.Type)
	switch kind {
	case "", "gocache":
		kind = "gocache"
		c = NewGoCache(config.Local)
	case "lru", "local":
		kind = "lru"
		c = NewLRUCache(config.Local)
	case "redis":
		c, err = NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c, kind), nil
}

// instrumented 记录命中率指标
type instrumented struct {
	Cache
	kind string
}

func Instrument(c Cache, kind string) Cache {
	return &instrumented{Cache: c, kind: kind}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := i.Cache.Get(ctx, key)
	metrics.ObserveCache(i.kind, "get", ok)
	return v, ok
}

func (i *instrumented) SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	ok, err := i.Cache.SetNX(ctx, key, value, expiration)
	// 抢占失败说明键已存在，记为命中
	metrics.ObserveCache(i.kind, "setnx", !ok && err == nil)
	return ok, err
}
