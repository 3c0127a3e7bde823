// MockNavigator 是浏览器自动化协作方的测试模拟实现。
//
// 按调用记录导航、寻址、截图与指令执行,支持错误注入与
// 事件/幻灯片脚本,用于采集执行器与会话编排器的测试。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/types"
)

// MockNavigator 是 browser.Navigator 的模拟实现
type MockNavigator struct {
	mu sync.Mutex

	// 播放器状态
	metadata types.VideoMetadata
	handle   *browser.PlayerHandle

	// 错误注入
	navigateErr   error
	detectErr     error
	seekErr       error
	seekErrAt     map[int]error // 按第 N 次寻址注入(从 1 开始)
	waitStableErr error
	screenshotErr error

	// 响应脚本
	screenshot  []byte
	eventScript []bool // DetectEvent 按顺序消费,耗尽后 false
	slideScript []SlideStep

	// 调用记录
	navigatedURLs []string
	seeks         []float64
	waitCalls     int
	shotCalls     int
	eventCalls    []string
	instructions  []string
	closeCount    int
}

// SlideStep 是一次幻灯片分类的脚本化结果
type SlideStep struct {
	IsNew       bool
	Description string
}

var _ browser.Navigator = (*MockNavigator)(nil)

// NewMockNavigator 创建新的 MockNavigator,默认带 300 秒视频
func NewMockNavigator() *MockNavigator {
	return &MockNavigator{
		metadata:   types.VideoMetadata{Duration: 300, ReadyState: 4, Width: 1280, Height: 720},
		handle:     &browser.PlayerHandle{Index: 0, Selector: "video"},
		screenshot: []byte("\xff\xd8\xffmock-frame"),
		seekErrAt:  map[int]error{},
	}
}

// WithMetadata 设置播放器元数据
func (m *MockNavigator) WithMetadata(meta types.VideoMetadata) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata = meta
	return m
}

// WithDuration 设置视频时长
func (m *MockNavigator) WithDuration(d float64) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata.Duration = d
	return m
}

// WithNavigateErr 注入导航错误
func (m *MockNavigator) WithNavigateErr(err error) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigateErr = err
	return m
}

// WithDetectErr 注入播放器检测错误
func (m *MockNavigator) WithDetectErr(err error) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectErr = err
	return m
}

// WithSeekErr 注入全部寻址错误
func (m *MockNavigator) WithSeekErr(err error) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekErr = err
	return m
}

// WithSeekErrAt 只在第 n 次寻址时注入错误(从 1 开始)
func (m *MockNavigator) WithSeekErrAt(n int, err error) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekErrAt[n] = err
	return m
}

// WithScreenshotErr 注入截图错误
func (m *MockNavigator) WithScreenshotErr(err error) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshotErr = err
	return m
}

// WithScreenshot 设置返回的截图字节
func (m *MockNavigator) WithScreenshot(data []byte) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshot = data
	return m
}

// WithEventScript 设置事件检测结果序列,耗尽后恒为 false
func (m *MockNavigator) WithEventScript(results ...bool) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventScript = results
	return m
}

// WithSlideScript 设置幻灯片分类结果序列
func (m *MockNavigator) WithSlideScript(steps ...SlideStep) *MockNavigator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slideScript = steps
	return m
}

// Navigate 实现 browser.Navigator
func (m *MockNavigator) Navigate(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigatedURLs = append(m.navigatedURLs, url)
	return m.navigateErr
}

// DetectPlayer 实现 browser.Navigator
func (m *MockNavigator) DetectPlayer(ctx context.Context) (*browser.PlayerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return m.handle, nil
}

// Seek 实现 browser.Navigator
func (m *MockNavigator) Seek(ctx context.Context, handle *browser.PlayerHandle, percentage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, percentage)
	if err, ok := m.seekErrAt[len(m.seeks)]; ok {
		return err
	}
	return m.seekErr
}

// WaitStable 实现 browser.Navigator
func (m *MockNavigator) WaitStable(ctx context.Context, handle *browser.PlayerHandle, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitCalls++
	return m.waitStableErr
}

// Screenshot 实现 browser.Navigator
func (m *MockNavigator) Screenshot(ctx context.Context, handle *browser.PlayerHandle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shotCalls++
	if m.screenshotErr != nil {
		return nil, m.screenshotErr
	}
	// 每张截图内容不同,避免内容寻址缓存在测试里串键
	return append(append([]byte{}, m.screenshot...), []byte(fmt.Sprintf("-%d", m.shotCalls))...), nil
}

// CurrentTime 实现 browser.Navigator
func (m *MockNavigator) CurrentTime(ctx context.Context, handle *browser.PlayerHandle) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.seeks) == 0 {
		return 0, nil
	}
	return m.seeks[len(m.seeks)-1] * m.metadata.Duration / 100, nil
}

// Duration 实现 browser.Navigator
func (m *MockNavigator) Duration(ctx context.Context, handle *browser.PlayerHandle) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata.Duration, nil
}

// Metadata 实现 browser.Navigator
func (m *MockNavigator) Metadata(ctx context.Context, handle *browser.PlayerHandle) (types.VideoMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata, nil
}

// DetectEvent 实现 browser.Navigator
func (m *MockNavigator) DetectEvent(ctx context.Context, description string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCalls = append(m.eventCalls, description)
	if len(m.eventScript) == 0 {
		return false, nil
	}
	result := m.eventScript[0]
	m.eventScript = m.eventScript[1:]
	return result, nil
}

// ClassifySlide 实现 browser.Navigator
func (m *MockNavigator) ClassifySlide(ctx context.Context, image []byte, prevDescription string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slideScript) == 0 {
		return false, prevDescription, nil
	}
	step := m.slideScript[0]
	m.slideScript = m.slideScript[1:]
	return step.IsNew, step.Description, nil
}

// ExecuteInstruction 实现 browser.Navigator
func (m *MockNavigator) ExecuteInstruction(ctx context.Context, instruction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = append(m.instructions, instruction)
	return nil
}

// Close 实现 browser.Navigator
func (m *MockNavigator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

// NavigatedURLs 返回导航记录
func (m *MockNavigator) NavigatedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.navigatedURLs...)
}

// Seeks 返回寻址百分比记录
func (m *MockNavigator) Seeks() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64{}, m.seeks...)
}

// EventCalls 返回事件检测的描述记录
func (m *MockNavigator) EventCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.eventCalls...)
}

// Instructions 返回执行过的自然语言指令
func (m *MockNavigator) Instructions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.instructions...)
}

// ScreenshotCalls 返回截图次数
func (m *MockNavigator) ScreenshotCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shotCalls
}

// WaitStableCalls 返回稳定等待次数
func (m *MockNavigator) WaitStableCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitCalls
}

// CloseCount 返回 Close 调用次数,用于验证资源恰好释放一次
func (m *MockNavigator) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}
