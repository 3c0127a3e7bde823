package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================
// 就绪语义按依赖的真实角色分层:归档库与 Redis 缓存层都是尽力而为的
// 旁路,挂了只降级;视觉推理端点是会话的硬前提,挂了就绪检查必须失败。

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	start  time.Time

	mu     sync.RWMutex
	checks []registeredCheck
}

type registeredCheck struct {
	check    HealthCheck
	optional bool
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // "pass", "fail"
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		start:  time.Now(),
	}
}

// RegisterCheck 注册硬依赖检查,失败时就绪检查返回 503
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check})
}

// RegisterOptionalCheck 注册旁路依赖检查,失败只把状态降为 degraded
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, optional: true})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Description 进程存活即健康,附带运行时长
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.start).Round(time.Second).String(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针）
// @Summary Kubernetes 活跃度探针
// @Description 只确认进程在跑,不看任何依赖
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 或 /readyz 请求（就绪检查）
// @Summary 准备情况检查
// @Description 并行探测全部依赖;硬依赖失败返回 503,旁路依赖失败降级为 degraded
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪（或降级运行）"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.start).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	// 5 秒预算是给整个就绪检查的,不是给单个依赖的:串行探测时一个
	// 卡住的视觉端点就能把归档库和帧缓存的探测一起拖超时,所以并行发。
	var (
		wg           sync.WaitGroup
		resultMu     sync.Mutex
		requiredDown bool
		optionalDown bool
	)
	for _, rc := range checks {
		wg.Add(1)
		go func(rc registeredCheck) {
			defer wg.Done()

			start := time.Now()
			err := rc.check.Check(ctx)
			latency := time.Since(start)

			result := CheckResult{
				Status:   "pass",
				Optional: rc.optional,
				Latency:  latency.String(),
			}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				h.logger.Warn("readiness check failed",
					zap.String("check", rc.check.Name()),
					zap.Bool("optional", rc.optional),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}

			resultMu.Lock()
			status.Checks[rc.check.Name()] = result
			if err != nil {
				if rc.optional {
					optionalDown = true
				} else {
					requiredDown = true
				}
			}
			resultMu.Unlock()
		}(rc)
	}
	wg.Wait()

	switch {
	case requiredDown:
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
	case optionalDown:
		status.Status = "degraded"
		WriteJSON(w, http.StatusOK, status)
	default:
		WriteJSON(w, http.StatusOK, status)
	}
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回构建与运行时版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
			"go_version": runtime.Version(),
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingHealthCheck 基于 ping 函数的依赖检查。
// 归档数据库、帧缓存 Redis 等凡是能 ping 的依赖都用它注册。
type PingHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingHealthCheck 创建依赖检查
func NewPingHealthCheck(name string, ping func(ctx context.Context) error) *PingHealthCheck {
	return &PingHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *PingHealthCheck) Name() string {
	return c.name
}

func (c *PingHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}
