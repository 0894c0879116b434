package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache 缓存抽象：get-or-compute + 按模式失效
// 用于工作流目录等读多写少的参照数据
type Cache interface {
	GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) ([]byte, error)
	Delete(key string) error
	DeletePattern(pattern string) error
	Close() error
}

// RedisCache Redis缓存实现
type RedisCache struct {
	client *redis.Client
	prefix string
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache 创建Redis缓存实例
func NewRedisCache(config *Config) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "salesflow:cache"
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 测试Redis连接
func (c *RedisCache) Ping() error {
	ctx := context.Background()
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// GetOrCompute 读取缓存，未命中时执行compute并以ttl写回
// compute结果以JSON序列化存储；Redis不可用时降级为直接计算
func (c *RedisCache) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) ([]byte, error) {
	ctx := context.Background()
	fullKey := c.fullKey(key)

	cached, err := c.client.Get(ctx, fullKey).Bytes()
	if err == nil {
		return cached, nil
	}
	if err != redis.Nil {
		// Redis故障不阻塞读取，直接回源
		value, computeErr := compute()
		if computeErr != nil {
			return nil, computeErr
		}
		return json.Marshal(value)
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		// 写缓存失败只影响下次命中率
		return data, nil
	}

	return data, nil
}

// Delete 删除单个缓存键
func (c *RedisCache) Delete(key string) error {
	ctx := context.Background()
	return c.client.Del(ctx, c.fullKey(key)).Err()
}

// DeletePattern 按模式批量失效（SCAN避免阻塞Redis）
func (c *RedisCache) DeletePattern(pattern string) error {
	ctx := context.Background()
	fullPattern := c.fullKey(pattern)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, fullPattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
