package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	config = config.withDefaults()
	return &goCacheWrapper{
		cache: gocache.New(config.DefaultExpiration, config.CleanupInterval),
	}
}

func ttlOrDefault(expiration time.Duration) time.Duration {
	if expiration <= 0 {
		return gocache.DefaultExpiration
	}
	return expiration
}

// Get 获取缓存值
func (gc *goCacheWrapper) Get(_ context.Context, key string) ([]byte, bool) {
	value, found := gc.cache.Get(key)
	if !found {
		return nil, false
	}
	b, ok := value.([]byte)
	return b, ok
}

// Set 设置缓存值
func (gc *goCacheWrapper) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	gc.cache.Set(key, value, ttlOrDefault(expiration))
	return nil
}

// SetNX go-cache 的 Add 在键存在时返回错误
func (gc *goCacheWrapper) SetNX(_ context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	if err := gc.cache.Add(key, value, ttlOrDefault(expiration)); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete 删除缓存
func (gc *goCacheWrapper) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		gc.cache.Delete(key)
	}
	return nil
}

// Close go-cache不需要关闭连接
func (gc *goCacheWrapper) Close() error {
	return nil
}
