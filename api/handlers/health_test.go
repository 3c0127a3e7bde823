package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// passingCheck 永远成功的依赖检查
func passingCheck(name string) *PingHealthCheck {
	return NewPingHealthCheck(name, func(ctx context.Context) error { return nil })
}

// failingCheck 以固定错误失败的依赖检查
func failingCheck(name, msg string) *PingHealthCheck {
	return NewPingHealthCheck(name, func(ctx context.Context) error { return errors.New(msg) })
}

// probeReady 发一次就绪探测,返回状态码和解析后的响应体
func probeReady(t *testing.T, h *HealthHandler) (int, *HealthStatus) {
	t.Helper()

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, &status
}

// =============================================================================
// 🧪 存活与就绪探针
// =============================================================================

func TestHealthHandler_Liveness(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	// /health 和 /healthz 只看进程本身,不碰任何依赖
	endpoints := map[string]http.HandlerFunc{
		"/health":  handler.HandleHealth,
		"/healthz": handler.HandleHealthz,
	}
	for path, fn := range endpoints {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, "healthy", status.Status)
			assert.False(t, status.Timestamp.IsZero())
			if path == "/health" {
				assert.NotEmpty(t, status.Uptime)
			}
		})
	}
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name        string
		setupChecks func(*HealthHandler)
		wantCode    int
		wantStatus  string
		verify      func(*testing.T, *HealthStatus)
	}{
		{
			name:        "no checks registered",
			setupChecks: func(h *HealthHandler) {},
			wantCode:    http.StatusOK,
			wantStatus:  "healthy",
		},
		{
			name: "all dependencies up",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(passingCheck("vision"))
				h.RegisterOptionalCheck(passingCheck("archive-db"))
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			verify: func(t *testing.T, status *HealthStatus) {
				require.Len(t, status.Checks, 2)
				assert.Equal(t, "pass", status.Checks["vision"].Status)
				assert.False(t, status.Checks["vision"].Optional)
				assert.NotEmpty(t, status.Checks["vision"].Latency)
				assert.Equal(t, "pass", status.Checks["archive-db"].Status)
				assert.True(t, status.Checks["archive-db"].Optional)
			},
		},
		{
			// 旁路依赖挂掉只降级,流量照常进来
			name: "optional dependency down degrades",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(passingCheck("vision"))
				h.RegisterOptionalCheck(failingCheck("frame-cache", "connection refused"))
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			verify: func(t *testing.T, status *HealthStatus) {
				assert.Equal(t, "fail", status.Checks["frame-cache"].Status)
				assert.Equal(t, "connection refused", status.Checks["frame-cache"].Message)
			},
		},
		{
			name: "required dependency down fails readiness",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(failingCheck("vision", "endpoint unreachable"))
				h.RegisterOptionalCheck(passingCheck("archive-db"))
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			verify: func(t *testing.T, status *HealthStatus) {
				assert.Equal(t, "fail", status.Checks["vision"].Status)
				assert.Equal(t, "endpoint unreachable", status.Checks["vision"].Message)
				assert.Equal(t, "pass", status.Checks["archive-db"].Status)
			},
		},
		{
			// 硬依赖失败优先于降级
			name: "required failure outranks degraded",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(failingCheck("vision", "endpoint unreachable"))
				h.RegisterOptionalCheck(failingCheck("frame-cache", "connection refused"))
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			tt.setupChecks(h)

			code, status := probeReady(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status.Status)
			if tt.verify != nil {
				tt.verify(t, status)
			}
		})
	}
}

func TestHealthHandler_HandleReady_ProbesInParallel(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	// 两个检查在同一个无缓冲通道上会合:只有并行探测时一方的发送才能
	// 配对另一方的接收;串行执行时先跑的那个等不到对方,耗尽 5 秒预算
	// 后以超时失败,就绪状态也就不再是 healthy。
	meet := make(chan struct{})
	rendezvous := func(ctx context.Context) error {
		select {
		case meet <- struct{}{}:
			return nil
		case <-meet:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.RegisterCheck(NewPingHealthCheck("vision", rendezvous))
	h.RegisterCheck(NewPingHealthCheck("archive-db", rendezvous))

	code, status := probeReady(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
}

func TestHealthHandler_RegisterDuringProbe(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(passingCheck("vision"))

	// 探测方拿注册表快照,注册方持写锁:两边并发跑不能有竞争
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.RegisterOptionalCheck(passingCheck(fmt.Sprintf("dep-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	code, status := probeReady(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, status.Checks, 9)
}

// =============================================================================
// 🧪 版本与注册
// =============================================================================

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	versionHandler := handler.HandleVersion("1.4.2", "2026-03-01T12:00:00Z", "9f8e7d6")
	versionHandler(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.4.2", data["version"])
	assert.Equal(t, "2026-03-01T12:00:00Z", data["build_time"])
	assert.Equal(t, "9f8e7d6", data["git_commit"])

	goVersion, _ := data["go_version"].(string)
	assert.True(t, strings.HasPrefix(goVersion, "go"))
}

func TestHealthHandler_RegisterCheck(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	handler.RegisterCheck(passingCheck("vision"))
	handler.RegisterOptionalCheck(passingCheck("archive-db"))

	require.Len(t, handler.checks, 2)
	assert.Equal(t, "vision", handler.checks[0].check.Name())
	assert.False(t, handler.checks[0].optional)
	assert.Equal(t, "archive-db", handler.checks[1].check.Name())
	assert.True(t, handler.checks[1].optional)
}

func TestPingHealthCheck(t *testing.T) {
	check := NewPingHealthCheck("frame-cache", func(ctx context.Context) error {
		return errors.New("redis unreachable")
	})
	assert.Equal(t, "frame-cache", check.Name())
	assert.EqualError(t, check.Check(context.Background()), "redis unreachable")

	assert.NoError(t, passingCheck("archive-db").Check(context.Background()))
}
