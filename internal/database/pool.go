package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/videoflow/internal/metrics"
)

// =============================================================================
// 🗄️ 数据库连接池管理器
// =============================================================================

// ErrPoolClosed 对已关闭的连接池发起操作
var ErrPoolClosed = errors.New("database pool is closed")

// PoolManager 数据库连接池管理器
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}

	// 可选的指标采集,由 SetMetricsCollector 挂接
	collector *metrics.Collector
	dbName    string

	// 上次健康检查时的累计等待数,只在检查循环里读写
	lastWaitCount int64
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 健康检查间隔,0 表示不开健康检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 返回默认连接池配置。
// 归档库的负载形状是每个会话收尾一次突发写入,外加归档 API 的分页读,
// 25 个连接扛几十路并发会话没有压力。
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// withDefaults 把零值字段补成默认值。
// HealthCheckInterval 不补:0 是"关闭健康检查"的合法取值。
func (c PoolConfig) withDefaults() PoolConfig {
	def := DefaultPoolConfig()
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = def.MaxIdleConns
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = def.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
	return c
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) cannot exceed max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// NewPoolManager 创建连接池管理器。配置里的零值字段按默认值补齐。
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		stopCh: make(chan struct{}),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	}

	logger.Info("database pool initialized",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return pm, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// DB 返回 GORM 数据库实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// SetMetricsCollector 挂接 Prometheus 采集器。挂接后健康检查循环
// 与 PublishStats 会更新连接数仪表,事务耗时进入查询直方图。
func (pm *PoolManager) SetMetricsCollector(c *metrics.Collector, database string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.collector = c
	pm.dbName = database
}

// PublishStats 把当前连接池状态推送到采集器;未挂接时为空操作。
func (pm *PoolManager) PublishStats() {
	pm.mu.RLock()
	c, name := pm.collector, pm.dbName
	pm.mu.RUnlock()
	if c == nil {
		return
	}

	stats := pm.Stats()
	c.RecordDBConnections(name, stats.OpenConnections, stats.Idle)
}

// Ping 检查数据库连接。锁只护住状态读取,不按着锁等网络往返。
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.sqlDB
	pm.mu.RUnlock()

	return db.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (pm *PoolManager) Stats() sql.DBStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.sqlDB.Stats()
}

// Close 关闭连接池并停掉健康检查循环
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stopCh)

	// 整个进程生命周期里的排队情况,关停时归档一条,便于事后定容
	stats := pm.sqlDB.Stats()
	pm.logger.Info("closing database pool",
		zap.Int64("lifetime_waits", stats.WaitCount),
		zap.Duration("lifetime_wait_total", stats.WaitDuration),
	)

	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环。Close 关掉 stopCh 后立即退出,
// 不等下一个 tick。
func (pm *PoolManager) healthCheckLoop() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := pm.Ping(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, ErrPoolClosed) {
				return
			}
			pm.logger.Error("database health check failed", zap.Error(err))
			continue
		}

		stats := pm.Stats()
		pm.logger.Debug("database health check passed",
			zap.Int("open_connections", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle),
		)

		// 会话收尾的归档写入是突发的:两次检查之间有连接在排队,
		// 说明 max_open_conns 顶不住当前的会话并发
		if delta := stats.WaitCount - pm.lastWaitCount; delta > 0 {
			pm.logger.Warn("connections queued for the pool since last check",
				zap.Int64("waited", delta),
				zap.Duration("lifetime_wait_total", stats.WaitDuration),
				zap.Int("max_open_conns", stats.MaxOpenConnections),
			)
		}
		pm.lastWaitCount = stats.WaitCount

		pm.PublishStats()
	}
}

// =============================================================================
// 🔄 事务管理
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在事务中执行函数
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.db
	collector, dbName := pm.collector, pm.dbName
	pm.mu.RUnlock()

	start := time.Now()
	err := db.WithContext(ctx).Transaction(fn)
	if collector != nil {
		collector.RecordDBQuery(dbName, "transaction", time.Since(start))
	}
	return err
}

// WithTransactionRetry 在事务中执行函数,对可重试错误做指数退避重试。
// maxRetries 是首次执行之外的重试次数,0 等价于 WithTransaction。
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// 退避放在重试之前而不是失败之后:最后一次失败直接返回,
		// 不用白等一段最长的退避
		if attempt > 0 {
			delay := transactionBackoff(attempt)
			pm.logger.Warn("retrying transaction",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("transaction retry interrupted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = pm.WithTransaction(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

// transactionBackoff 第 attempt 次重试前的退避时长:100ms 起步逐次翻倍,
// 封顶 2s,叠加 ±25% 抖动。并发会话同时收尾时归档写入会撞锁,
// 不加抖动它们会在同一拍重试再撞一次。
func transactionBackoff(attempt int) time.Duration {
	const (
		initialDelay = 100 * time.Millisecond
		maxDelay     = 2 * time.Second
	)

	delay := float64(initialDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	delay += (rand.Float64()*2 - 1) * delay * 0.25
	if delay < float64(initialDelay) {
		delay = float64(initialDelay)
	}
	return time.Duration(delay)
}

// 可重试错误的特征串。glebarez sqlite 在并发写时报 database/table is
// locked,PostgreSQL 序列化冲突报 SQLSTATE 40001,MySQL 报 deadlock;
// 连接类错误换一条连接重跑就有机会成功。
var retryableErrorFragments = []string{
	"deadlock",
	"serialization failure",
	"40001",
	"database is locked",
	"table is locked",
	"lock timeout",
	"lock wait timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
}

// isRetryableError 判断事务错误换个时机重跑有没有意义
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
