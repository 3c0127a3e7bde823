// Package cache manages the shared Redis connection and a typed KV
// surface over it. This package is internal and should not be imported
// by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// ErrClosed 管理器已关闭,所有操作拒绝
var ErrClosed = errors.New("cache manager is closed")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Manager 持有进程内唯一的 Redis 客户端:负责建连、健康检查与关闭,
// 并提供带 TTL 的字符串/JSON 读写。帧缓存的远端层建在它之上。
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}

	// 只在健康检查循环里读写
	lastTimeouts uint32
}

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 默认过期时间,Set 的 ttl 为零时生效
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 命令重试次数,-1 为不重试
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔,0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// withDefaults 把零值字段补成默认值。三处刻意留白:MaxRetries 的 -1
// 是 go-redis 的"不重试",MinIdleConns 为 0 表示不预热空闲连接,
// HealthCheckInterval 为 0 表示关闭健康检查。
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	// 不补的话 ttl 为零的写入会落成永不过期,帧条目一条几百 KB,
	// 留在 Redis 里只进不出
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	return c
}

// NewManager 建连并创建缓存管理器,配置里的零值字段按默认值补齐。
// 连不上 Redis 直接失败,缓存降级与否由调用方决定。
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	config = config.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stopCh: make(chan struct{}),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// client 在锁内做关闭检查并取出句柄。网络往返不占锁,
// Close 不会被慢命令(比如整页 SCAN)按在锁上等。
func (m *Manager) client() (*redis.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.redis, nil
}

// Get 获取缓存值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	client, err := m.client()
	if err != nil {
		return "", err
	}

	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	return val, nil
}

// Set 设置缓存值,ttl 为零时用配置的默认 TTL
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.set(ctx, key, value, ttl)
}

// set 统一写入口。value 原样透传给驱动,SetJSON 的字节串
// 不用绕道 string 再复制一遍。
func (m *Manager) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	client, err := m.client()
	if err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := client.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// GetJSON 获取并解码 JSON 值。帧条目连图带文可达数百 KB,
// 直接按字节读出来解码,不经过字符串中转。
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	client, err := m.client()
	if err != nil {
		return err
	}

	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return nil
}

// SetJSON 编码并写入 JSON 值
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.set(ctx, key, data, ttl)
}

// Delete 删除缓存值
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	client, err := m.client()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// DeleteByPrefix 按前缀批量删除。SCAN 游标分批推进,不会一次
// 锁住整个键空间;帧缓存清空走这里。
func (m *Manager) DeleteByPrefix(ctx context.Context, prefix string) error {
	client, err := m.client()
	if err != nil {
		return err
	}

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete failed: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		m.logger.Debug("cache prefix cleared",
			zap.String("prefix", prefix),
			zap.Int("keys", deleted),
		)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// Close 关闭缓存管理器并记录连接池终态
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.stopCh)

	stats := m.redis.PoolStats()
	m.logger.Info("closing cache manager",
		zap.Uint32("pool_hits", stats.Hits),
		zap.Uint32("pool_misses", stats.Misses),
		zap.Uint32("pool_timeouts", stats.Timeouts),
		zap.Uint32("pool_total_conns", stats.TotalConns),
	)

	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 周期探测连接,并盯住连接池的取连超时:
// Timeouts 在涨说明取连接要排队,池子扛不住当前并发了。
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.Ping(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			m.logger.Error("cache health check failed", zap.Error(err))
			continue
		}

		stats := m.GetStats()
		m.logger.Debug("cache health check passed",
			zap.Uint32("pool_total_conns", stats.TotalConns),
			zap.Uint32("pool_idle_conns", stats.IdleConns),
		)
		if delta := stats.Timeouts - m.lastTimeouts; delta > 0 {
			m.logger.Warn("redis pool wait timeouts since last check",
				zap.Uint32("new_timeouts", delta),
				zap.Int("pool_size", m.config.PoolSize),
			)
		}
		m.lastTimeouts = stats.Timeouts
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存连接池统计
type Stats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

// GetStats 读取客户端侧连接池统计
func (m *Manager) GetStats() Stats {
	s := m.redis.PoolStats()
	return Stats{
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		StaleConns: s.StaleConns,
	}
}
