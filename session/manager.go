package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/analysis"
	"github.com/BaSui01/videoflow/broadcast"
	"github.com/BaSui01/videoflow/capture"
	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/internal/metrics"
	"github.com/BaSui01/videoflow/synthesis"
	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

// Config 汇总会话层与各阶段组件的配置。
type Config struct {
	// Timeout 是单个会话的总时限,超时会话转入 failed(SESSION_TIMEOUT)
	Timeout time.Duration
	// Retention 是终态会话在内存中的保留时长,过期后被清理
	Retention time.Duration
	// MaxConcurrent 是同时运行的会话上限,0 表示不限制
	MaxConcurrent int
	// SweepInterval 是保留期清理循环的扫描间隔
	SweepInterval time.Duration
	// Capture、Analysis、Synthesis 是各阶段组件配置
	Capture   capture.Config
	Analysis  analysis.Config
	Synthesis synthesis.Config
}

// DefaultConfig 返回会话管理默认配置。
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Minute,
		Retention:     time.Hour,
		SweepInterval: time.Minute,
		Capture:       capture.DefaultConfig(),
		Analysis:      analysis.DefaultConfig(),
		Synthesis:     synthesis.DefaultConfig(),
	}
}

// Archiver 在会话进入终态后把记录写入持久层,由 store 包实现。
type Archiver interface {
	ArchiveSession(ctx context.Context, sess *types.Session) error
}

// Components 汇总 Manager 依赖的协作方。
type Components struct {
	// Navigators 为每个会话创建独立的浏览器导航器,必填
	Navigators NavigatorFactory
	// Provider 是视觉推理提供方,必填
	Provider vision.Provider
	// Cache 是帧分析缓存,nil 表示禁用缓存
	Cache framecache.Cache
	// Hub 是事件广播中枢,nil 时由 Manager 自建
	Hub *broadcast.Hub
	// Archiver 归档终态会话,nil 表示不归档
	Archiver Archiver
	// Metrics 指标采集器,可为 nil
	Metrics *metrics.Collector
}

// Manager 维护会话注册表并对外提供生命周期操作。
// 会话一旦启动便独立于调用方上下文运行,只受会话时限约束。
type Manager struct {
	orch    *orchestrator
	hub     *broadcast.Hub
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	sessions map[string]*handle
	closed   bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	sweepStop  chan struct{}
	sweepDone  chan struct{}
}

// NewManager 创建会话管理器并启动保留期清理循环。
func NewManager(c Components, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if c.Hub == nil {
		c.Hub = broadcast.NewHub(0, logger)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	m := &Manager{
		orch:       newOrchestrator(c, cfg, logger),
		hub:        c.Hub,
		config:     cfg,
		logger:     logger.With(zap.String("component", "session_manager")),
		metrics:    c.Metrics,
		sessions:   make(map[string]*handle),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Hub 返回事件广播中枢,调用方用它订阅会话事件流。
func (m *Manager) Hub() *broadcast.Hub {
	return m.hub
}

// Start 校验请求并启动新会话,立即返回会话快照。
// 输入校验只拒绝空 prompt;URL 的有效性在导航阶段才见分晓。
func (m *Manager) Start(ctx context.Context, req types.AnalysisRequest) (*types.Session, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt must not be empty")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, types.NewError(types.ErrServiceUnavailable, "session manager is shut down")
	}
	if m.config.MaxConcurrent > 0 && m.activeLocked() >= m.config.MaxConcurrent {
		m.mu.Unlock()
		return nil, types.NewError(types.ErrRateLimited, "too many concurrent sessions").WithRetryable(true)
	}

	now := time.Now()
	sess := &types.Session{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Prompt:    req.Prompt,
		Status:    types.StatusInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// 会话生命周期独立于调用方 ctx,仅受会话时限约束
	runCtx, cancel := context.WithTimeout(m.baseCtx, m.config.Timeout)
	// 下游的推理 span 从 ctx 取会话标签,不用层层传参
	runCtx = types.WithSessionID(runCtx, sess.ID)
	h := &handle{
		session: sess,
		opts:    req.Options,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.sessions[sess.ID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncActiveSessions()
	}
	m.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("url", req.URL),
	)

	// 快照先于流水线启动,调用方拿到的总是 initializing 状态
	snap := h.snapshot()
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.orch.run(runCtx, h)
		if m.metrics != nil {
			m.metrics.DecActiveSessions()
		}
	}()

	return snap, nil
}

// GetStatus 返回会话快照(状态、进度与已记录的错误)。
func (m *Manager) GetStatus(id string) (*types.Session, error) {
	h, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return h.snapshot(), nil
}

// GetResult 返回已完成会话的结果。未终态返回 RESULT_NOT_READY;
// 失败与取消的会话原样返回其记录的错误。
func (m *Manager) GetResult(id string) (*types.SessionResult, error) {
	h, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	sess := h.snapshot()
	switch {
	case !sess.Status.IsTerminal():
		return nil, types.NewError(types.ErrResultNotReady,
			fmt.Sprintf("session is still %s", sess.Status)).WithRetryable(true)
	case sess.Status == types.StatusCompleted:
		return sess.Result, nil
	default:
		if sess.Error != nil {
			return nil, sess.Error
		}
		return nil, types.NewError(types.ErrInternalError, "terminal session has no recorded error")
	}
}

// Cancel 尽力取消会话:置取消标记并撤销会话上下文,流水线在
// 下一个暂停点停下。对终态会话是幂等空操作。
func (m *Manager) Cancel(id string) error {
	h, err := m.lookup(id)
	if err != nil {
		return err
	}
	if h.snapshot().Status.IsTerminal() {
		return nil
	}
	h.cancelFlag.Store(true)
	h.cancel()
	m.logger.Info("session cancel requested", zap.String("session_id", id))
	return nil
}

// Close 停止接收新会话,取消在运行的会话并等待它们落到终态。
// ctx 到期则放弃等待并返回其错误。
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handles := make([]*handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	close(m.sweepStop)
	for _, h := range handles {
		h.cancelFlag.Store(true)
		h.cancel()
	}
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-m.sweepDone
	m.hub.Close()
	m.logger.Info("session manager closed")
	return nil
}

func (m *Manager) lookup(id string) (*handle, error) {
	m.mu.RLock()
	h, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, fmt.Sprintf("session %s not found", id))
	}
	return h, nil
}

// activeLocked 统计未终态会话数,调用方需持有 m.mu。
func (m *Manager) activeLocked() int {
	n := 0
	for _, h := range m.sessions {
		if !h.snapshot().Status.IsTerminal() {
			n++
		}
	}
	return n
}

// sweep 周期清理超过保留期的终态会话。
func (m *Manager) sweep() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

// evictExpired 移除结束时间早于保留期的终态会话,返回清理数量。
func (m *Manager) evictExpired(now time.Time) int {
	m.mu.Lock()
	var expired []string
	for id, h := range m.sessions {
		s := h.snapshot()
		if s.Status.IsTerminal() && s.EndedAt != nil && now.Sub(*s.EndedAt) > m.config.Retention {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.hub.DropSession(id)
	}
	if len(expired) > 0 {
		m.logger.Debug("expired sessions evicted", zap.Int("count", len(expired)))
	}
	return len(expired)
}
