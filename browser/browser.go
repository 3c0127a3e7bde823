package browser

import (
	"context"
	"time"

	"github.com/BaSui01/videoflow/types"
)

// Navigator 是采集流水线对浏览器自动化的全部依赖。
// 所有方法都是尽力而为:调用方负责重试与降级策略。
type Navigator interface {
	// Navigate 导航到目标 URL 并等待页面就绪。
	Navigate(ctx context.Context, url string) error

	// DetectPlayer 在页面上定位视频播放器。
	DetectPlayer(ctx context.Context) (*PlayerHandle, error)

	// Seek 将播放位置移动到时长的百分比处(0-100)。
	Seek(ctx context.Context, handle *PlayerHandle, percentage float64) error

	// WaitStable 等待播放器完成缓冲与寻址,超时后返回错误。
	WaitStable(ctx context.Context, handle *PlayerHandle, timeout time.Duration) error

	// Screenshot 截取播放器画面,失败时退回整页截图。
	Screenshot(ctx context.Context, handle *PlayerHandle) ([]byte, error)

	// CurrentTime 返回当前播放位置(秒)。
	CurrentTime(ctx context.Context, handle *PlayerHandle) (float64, error)

	// Duration 返回视频时长(秒),播放器未上报时为 0。
	Duration(ctx context.Context, handle *PlayerHandle) (float64, error)

	// Metadata 返回播放器状态快照。
	Metadata(ctx context.Context, handle *PlayerHandle) (types.VideoMetadata, error)

	// DetectEvent 判断描述的视觉事件当前是否出现在画面中。
	DetectEvent(ctx context.Context, description string) (bool, error)

	// ClassifySlide 判断画面相对上一张幻灯片是否换页。
	// prevDescription 为空表示首张采样,总是视为新幻灯片。
	ClassifySlide(ctx context.Context, image []byte, prevDescription string) (isNew bool, description string, err error)

	// ExecuteInstruction 执行自然语言指令,用于关闭 Cookie 弹窗等
	// 无法用选择器表达的交互。
	ExecuteInstruction(ctx context.Context, instruction string) error

	// Close 释放浏览器资源,可安全多次调用。
	Close() error
}

// Controller 底层浏览器原子操作接口,由 chromedp 驱动实现。
type Controller interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	Click(ctx context.Context, x, y int) error
	Evaluate(ctx context.Context, expression string, out any) error
	Close() error
}

// PlayerHandle 标识页面上被选中的视频元素。
type PlayerHandle struct {
	// Index 是 document.querySelectorAll('video') 中的下标。
	Index int `json:"index"`
	// Selector 用于元素级截图。
	Selector string `json:"selector"`
}

// Config 浏览器自动化配置。
type Config struct {
	Headless             bool          `json:"headless"`
	ExecPath             string        `json:"exec_path"`
	UserAgent            string        `json:"user_agent"`
	ProxyURL             string        `json:"proxy_url"`
	WindowWidth          int           `json:"window_width"`
	WindowHeight         int           `json:"window_height"`
	NavigationTimeout    time.Duration `json:"navigation_timeout"`
	StabilizeTimeout     time.Duration `json:"stabilize_timeout"`
	ScreenshotQuality    int           `json:"screenshot_quality"`
	PlayerDetectTimeout  time.Duration `json:"player_detect_timeout"`
	PlayerDetectInterval time.Duration `json:"player_detect_interval"`
	// InstructionMaxActions 限制单条自然语言指令的动作数。
	InstructionMaxActions int           `json:"instruction_max_actions"`
	ActionDelay           time.Duration `json:"action_delay"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Headless:              true,
		WindowWidth:           1920,
		WindowHeight:          1080,
		NavigationTimeout:     30 * time.Second,
		StabilizeTimeout:      3 * time.Second,
		ScreenshotQuality:     85,
		PlayerDetectTimeout:   15 * time.Second,
		PlayerDetectInterval:  500 * time.Millisecond,
		InstructionMaxActions: 3,
		ActionDelay:           500 * time.Millisecond,
	}
}
