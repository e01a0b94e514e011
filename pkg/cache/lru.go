package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// lruCache 基于 golang-lru 的有界本地缓存
type lruCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, lruEntry]
	ttl   time.Duration
}

// NewLRUCache 容量满时淘汰最久未使用的键
func NewLRUCache(config LocalConfig) Cache {
	config = config.withDefaults()
	return &lruCache{
		cache: expirable.NewLRU[string, lruEntry](config.MaxSize, nil, config.DefaultExpiration),
		ttl:   config.DefaultExpiration,
	}
}

func (lc *lruCache) entry(value []byte, expiration time.Duration) lruEntry {
	if expiration <= 0 {
		expiration = lc.ttl
	}
	return lruEntry{value: value, expiresAt: time.Now().Add(expiration)}
}

// Get 单条过期时间短于整体 TTL 时在读取时判断
func (lc *lruCache) Get(_ context.Context, key string) ([]byte, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	e, ok := lc.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		lc.cache.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (lc *lruCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.cache.Add(key, lc.entry(value, expiration))
	return nil
}

func (lc *lruCache) SetNX(_ context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if e, ok := lc.cache.Peek(key); ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	lc.cache.Add(key, lc.entry(value, expiration))
	return true, nil
}

func (lc *lruCache) Delete(_ context.Context, keys ...string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for _, key := range keys {
		lc.cache.Remove(key)
	}
	return nil
}

func (lc *lruCache) Close() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.cache.Purge()
	return nil
}
