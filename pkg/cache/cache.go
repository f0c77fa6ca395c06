// Package cache 比价结果缓存
// 提供Redis实现和不做任何缓存的Noop实现
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// 缓存后端名称
const (
	BackendRedis = "redis"
	BackendNoop  = "disabled"
)

// CacheManager 缓存管理器接口
type CacheManager interface {
	// Get 读取缓存并解码到dest，未命中返回false
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set 写入缓存
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Ping 检查后端连接
	Ping(ctx context.Context) error
	// Close 关闭连接
	Close() error
	// Backend 后端名称
	Backend() string
}

// NewCacheManager 根据配置创建缓存管理器
// Redis未启用或连接失败时退化为NoopCache，服务仍可运行
func NewCacheManager(cfg types.RedisConfig, logger *logrus.Logger) CacheManager {
	if !cfg.Enabled {
		logger.Info("缓存未启用，使用NoopCache")
		return NewNoopCache()
	}

	c, err := NewRedisCache(cfg, logger)
	if err != nil {
		logger.Warnf("⚠️ Redis连接失败，缓存已禁用: %v", err)
		return NewNoopCache()
	}
	return c
}

// ========================================
// Redis实现
// ========================================

// RedisCache 基于Redis的缓存
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisCache 创建Redis缓存并检查连接
func NewRedisCache(cfg types.RedisConfig, logger *logrus.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	c := NewRedisCacheFromClient(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Infof("✅ Redis连接成功: %s:%d db=%d", cfg.Host, cfg.Port, cfg.DB)
	return c, nil
}

// NewRedisCacheFromClient 使用已有的Redis客户端创建缓存
func NewRedisCacheFromClient(client *redis.Client, logger *logrus.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// Get 读取缓存
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get失败: %w", err)
	}

	if err := sonic.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("缓存解码失败: %w", err)
	}
	return true, nil
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("缓存编码失败: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set失败: %w", err)
	}
	return nil
}

// Ping 检查Redis连接
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Backend 后端名称
func (c *RedisCache) Backend() string {
	return BackendRedis
}

// ========================================
// Noop实现
// ========================================

// NoopCache 不缓存任何数据
type NoopCache struct{}

// NewNoopCache 创建Noop缓存
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (NoopCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (NoopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }

func (NoopCache) Close() error { return nil }

func (NoopCache) Backend() string { return BackendNoop }
