// MockVisionProvider 是视觉推理端点的测试模拟实现。
//
// 支持固定响应、响应序列、自定义函数与错误注入场景,
// 并发安全,可直接用于批量分析的并发测试。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/videoflow/vision"
)

// MockVisionProvider 是 vision.Provider 的模拟实现
type MockVisionProvider struct {
	mu sync.Mutex

	// 响应配置
	response  string
	responses []string
	err       error
	inferFunc func(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 第 N 次调用之后开始失败,0 表示不启用

	// 调用记录
	calls     []*vision.InferRequest
	callCount int
}

var _ vision.Provider = (*MockVisionProvider)(nil)

// NewMockVisionProvider 创建新的 MockVisionProvider
func NewMockVisionProvider() *MockVisionProvider {
	return &MockVisionProvider{
		response: "Mock analysis response",
	}
}

// WithResponse 设置固定响应内容
func (m *MockVisionProvider) WithResponse(response string) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponses 设置按调用顺序消费的响应序列,
// 用尽后回到固定响应
func (m *MockVisionProvider) WithResponses(responses ...string) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError 设置返回错误
func (m *MockVisionProvider) WithError(err error) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithInferFunc 设置自定义推理函数,优先级最高
func (m *MockVisionProvider) WithInferFunc(fn func(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error)) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inferFunc = fn
	return m
}

// WithDelay 设置每次调用的模拟延迟
func (m *MockVisionProvider) WithDelay(d time.Duration) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置第 N 次调用之后开始返回错误
func (m *MockVisionProvider) WithFailAfter(n int, err error) *MockVisionProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
	return m
}

// Name 实现 vision.Provider
func (m *MockVisionProvider) Name() string { return "mock" }

// Infer 实现 vision.Provider
func (m *MockVisionProvider) Infer(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	m.calls = append(m.calls, req)
	fn := m.inferFunc
	delay := m.delay
	failAfter := m.failAfter
	injectedErr := m.err
	text := m.response
	if len(m.responses) > 0 {
		text = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fn != nil {
		return fn(ctx, req)
	}
	if injectedErr != nil && (failAfter == 0 || count > failAfter) {
		return nil, injectedErr
	}

	return &vision.InferResponse{
		Text:  text,
		Model: "mock-model",
		Usage: vision.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

// HealthCheck 实现 vision.Provider
func (m *MockVisionProvider) HealthCheck(ctx context.Context) (*vision.HealthStatus, error) {
	return &vision.HealthStatus{Healthy: true}, nil
}

// Calls 返回全部调用记录的副本
func (m *MockVisionProvider) Calls() []*vision.InferRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*vision.InferRequest{}, m.calls...)
}

// CallCount 返回调用次数
func (m *MockVisionProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset 清空调用记录与行为配置
func (m *MockVisionProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
	m.inferFunc = nil
	m.responses = nil
	m.failAfter = 0
}
