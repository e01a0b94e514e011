package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis缓存实现
type redisCache struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisCache 创建Redis缓存，启动时 Ping 一次
func NewRedisCache(config RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache{client: client, config: config}, nil
}

func (rc *redisCache) key(k string) string { return rc.config.Prefix + k }

// Get 获取缓存值
func (rc *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Set 设置缓存值
func (rc *redisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return rc.client.Set(ctx, rc.key(key), value, expiration).Err()
}

func (rc *redisCache) SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	ok, err := rc.client.SetNX(ctx, rc.key(key), value, expiration).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return ok, nil
}

// Delete 删除缓存
func (rc *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rc.key(k)
	}
	return rc.client.Del(ctx, full...).Err()
}

// Close 关闭缓存连接
func (rc *redisCache) Close() error {
	return rc.client.Close()
}
