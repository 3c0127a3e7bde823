package framecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/internal/cache"
	"github.com/BaSui01/videoflow/types"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache 帧分析缓存接口
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Key(sessionID string, frame types.Frame, prompt string) string
}

// Entry 缓存条目：一次 (帧, 提示词) 推理的结果
type Entry struct {
	Analysis  types.FrameAnalysis `json:"analysis"`
	Model     string              `json:"model,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
	HitCount  int                 `json:"hit_count"`
}

// Config 缓存配置
type Config struct {
	LocalMaxSize int           // 本地缓存最大条目数
	LocalTTL     time.Duration // 本地缓存 TTL
	RedisTTL     time.Duration // Redis 缓存 TTL
	EnableLocal  bool          // 是否启用本地缓存
	EnableRedis  bool          // 是否启用 Redis 缓存
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     1 * time.Hour,
		EnableLocal:  true,
		EnableRedis:  false,
	}
}

// MultiLevel 多级缓存实现：本地 LRU + 可选 Redis 二级。
// 进程内全局共享，跨会话并发安全；相同帧内容 + 相同提示词
// 在不同会话间命中同一条目。远端层建在 internal/cache 的连接
// 管理器上，本包只做键派生与层间回填。
type MultiLevel struct {
	local  *LRUCache
	remote *cache.Manager
	config *Config
	logger *zap.Logger
}

var _ Cache = (*MultiLevel)(nil)

// NewMultiLevel 创建多级缓存。remote 为 nil 时仅本地层生效。
func NewMultiLevel(remote *cache.Manager, config *Config, logger *zap.Logger) *MultiLevel {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var local *LRUCache
	if config.EnableLocal {
		local = NewLRUCache(config.LocalMaxSize, config.LocalTTL)
	}

	return &MultiLevel{
		local:  local,
		remote: remote,
		config: config,
		logger: logger.With(zap.String("component", "framecache")),
	}
}

// Key 生成缓存键：帧内容指纹 + 提示词。
// 有图像时以图像字节为身份（跨会话可共享命中）；
// 无图像时退回 会话ID+帧号+时间戳 的会话内身份，避免空图像互相碰撞。
func (c *MultiLevel) Key(sessionID string, frame types.Frame, prompt string) string {
	h := sha256.New()
	if len(frame.Image) > 0 {
		h.Write(frame.Image)
	} else {
		ts := float64(-1)
		if frame.Timestamp != nil {
			ts = *frame.Timestamp
		}
		fmt.Fprintf(h, "%s:%d:%.3f:%s", sessionID, frame.Number, ts, frame.Context)
	}
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Get 获取缓存
func (c *MultiLevel) Get(ctx context.Context, key string) (*Entry, error) {
	// 1. 查本地缓存
	if c.config.EnableLocal && c.local != nil {
		if entry, ok := c.local.Get(key); ok {
			c.logger.Debug("local cache hit", zap.String("key", key))
			return entry, nil
		}
	}

	// 2. 查 Redis 缓存
	if c.config.EnableRedis && c.remote != nil {
		var entry Entry
		err := c.remote.GetJSON(ctx, c.redisKey(key), &entry)
		if err == nil {
			// 命中计数随回填累加,下次写入时落回远端
			entry.HitCount++
			if c.config.EnableLocal && c.local != nil {
				c.local.Set(key, &entry)
			}
			c.logger.Debug("redis cache hit", zap.String("key", key))
			return &entry, nil
		}
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("redis get error", zap.Error(err))
		}
	}

	return nil, ErrCacheMiss
}

// Set 设置缓存
func (c *MultiLevel) Set(ctx context.Context, key string, entry *Entry) error {
	entry.CreatedAt = time.Now()
	entry.ExpiresAt = time.Now().Add(c.config.RedisTTL)

	// 1. 写本地缓存
	if c.config.EnableLocal && c.local != nil {
		c.local.Set(key, entry)
	}

	// 2. 写 Redis 缓存
	if c.config.EnableRedis && c.remote != nil {
		if err := c.remote.SetJSON(ctx, c.redisKey(key), entry, c.config.RedisTTL); err != nil {
			c.logger.Warn("redis set error", zap.Error(err))
			return err
		}
	}

	c.logger.Debug("cache set", zap.String("key", key))
	return nil
}

// Delete 删除缓存
func (c *MultiLevel) Delete(ctx context.Context, key string) error {
	// 删除本地缓存
	if c.config.EnableLocal && c.local != nil {
		c.local.Delete(key)
	}

	// 删除 Redis 缓存
	if c.config.EnableRedis && c.remote != nil {
		if err := c.remote.Delete(ctx, c.redisKey(key)); err != nil {
			return err
		}
	}

	return nil
}

// Clear 清空缓存：本地全清，Redis 按键前缀批量删除。
func (c *MultiLevel) Clear(ctx context.Context) error {
	if c.local != nil {
		c.local.Clear()
	}

	if c.config.EnableRedis && c.remote != nil {
		if err := c.remote.DeleteByPrefix(ctx, redisKeyPrefix); err != nil {
			return err
		}
	}

	c.logger.Info("frame cache cleared")
	return nil
}

const redisKeyPrefix = "videoflow:framecache:"

func (c *MultiLevel) redisKey(key string) string {
	return redisKeyPrefix + key
}

// Stats 返回本地缓存统计
func (c *MultiLevel) Stats() (size int, capacity int) {
	if c.local == nil {
		return 0, 0
	}
	return c.local.Stats()
}
