package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

// Agent 在 Controller 原子操作之上实现 Navigator:视频元素的
// JS 级操作,加上由视觉模型驱动的自然语言能力(事件检测、
// 幻灯片换页判断、指令执行)。
type Agent struct {
	ctrl      Controller
	vision    vision.Provider
	config    Config
	logger    *zap.Logger
	closeOnce sync.Once
}

var _ Navigator = (*Agent)(nil)

// NewAgent 创建 Agent。provider 为空时自然语言能力不可用,
// 对应方法返回错误。
func NewAgent(ctrl Controller, provider vision.Provider, config Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		ctrl:   ctrl,
		vision: provider,
		config: config,
		logger: logger.With(zap.String("component", "browser_agent")),
	}
}

// NewChromeAgent 启动 Headless Chrome 并返回就绪的 Agent。
func NewChromeAgent(config Config, provider vision.Provider, logger *zap.Logger) (*Agent, error) {
	driver, err := NewDriver(config, logger)
	if err != nil {
		return nil, err
	}
	return NewAgent(driver, provider, config, logger), nil
}

// Navigate 导航到目标 URL。
func (a *Agent) Navigate(ctx context.Context, url string) error {
	if err := a.ctrl.Navigate(ctx, url); err != nil {
		return types.NewError(types.ErrNavigationFailed,
			fmt.Sprintf("navigate to %s", url)).WithCause(err)
	}
	return nil
}

// DetectPlayer 轮询页面直到找到可用的视频元素或超时。
// 多个视频时取画面面积最大且已就绪的那个。
func (a *Agent) DetectPlayer(ctx context.Context) (*PlayerHandle, error) {
	interval := a.config.PlayerDetectInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := a.config.PlayerDetectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var probe struct {
			Found bool `json:"found"`
			Index int  `json:"index"`
		}
		if err := a.ctrl.Evaluate(ctx, jsDetectPlayer, &probe); err != nil {
			a.logger.Debug("player probe failed", zap.Error(err))
		} else if probe.Found {
			a.logger.Info("player detected", zap.Int("index", probe.Index))
			return &PlayerHandle{Index: probe.Index, Selector: "video"}, nil
		}

		if time.Now().After(deadline) {
			return nil, types.NewError(types.ErrPlayerNotFound,
				fmt.Sprintf("no usable video element after %s", timeout))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Seek 暂停播放并将位置移动到时长的百分比处。
func (a *Agent) Seek(ctx context.Context, handle *PlayerHandle, percentage float64) error {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	var ok bool
	expr := fmt.Sprintf(jsSeek, handle.Index, percentage)
	if err := a.ctrl.Evaluate(ctx, expr, &ok); err != nil {
		return fmt.Errorf("seek to %.1f%%: %w", percentage, err)
	}
	if !ok {
		return fmt.Errorf("seek to %.1f%%: player has no usable duration", percentage)
	}
	return nil
}

// WaitStable 轮询直到播放器完成寻址与缓冲,超时后返回错误。
func (a *Agent) WaitStable(ctx context.Context, handle *PlayerHandle, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = a.config.StabilizeTimeout
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	deadline := time.Now().Add(timeout)
	for {
		var stable bool
		expr := fmt.Sprintf(jsIsStable, handle.Index)
		if err := a.ctrl.Evaluate(ctx, expr, &stable); err == nil && stable {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("player not stable after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Screenshot 截取播放器画面。元素截图失败时退回整页截图,
// 多视频页面的元素级截图按第一个匹配元素处理。
func (a *Agent) Screenshot(ctx context.Context, handle *PlayerHandle) ([]byte, error) {
	data, err := a.ctrl.ElementScreenshot(ctx, handle.Selector)
	if err == nil {
		return data, nil
	}
	a.logger.Debug("element screenshot failed, falling back to viewport", zap.Error(err))

	data, err = a.ctrl.Screenshot(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrCaptureFailed, "screenshot").WithCause(err)
	}
	return data, nil
}

// CurrentTime 返回当前播放位置(秒)。
func (a *Agent) CurrentTime(ctx context.Context, handle *PlayerHandle) (float64, error) {
	var t float64
	expr := fmt.Sprintf(jsCurrentTime, handle.Index)
	if err := a.ctrl.Evaluate(ctx, expr, &t); err != nil {
		return 0, err
	}
	return t, nil
}

// Duration 返回视频时长(秒),未上报时为 0。
func (a *Agent) Duration(ctx context.Context, handle *PlayerHandle) (float64, error) {
	var d float64
	expr := fmt.Sprintf(jsDuration, handle.Index)
	if err := a.ctrl.Evaluate(ctx, expr, &d); err != nil {
		return 0, err
	}
	return d, nil
}

// Metadata 返回播放器状态快照。
func (a *Agent) Metadata(ctx context.Context, handle *PlayerHandle) (types.VideoMetadata, error) {
	var meta types.VideoMetadata
	expr := fmt.Sprintf(jsMetadata, handle.Index)
	if err := a.ctrl.Evaluate(ctx, expr, &meta); err != nil {
		return types.VideoMetadata{}, err
	}
	return meta, nil
}

// DetectEvent 截图后询问视觉模型,判断描述的事件是否可见。
func (a *Agent) DetectEvent(ctx context.Context, description string) (bool, error) {
	if a.vision == nil {
		return false, fmt.Errorf("event detection requires a vision provider")
	}

	image, err := a.ctrl.Screenshot(ctx)
	if err != nil {
		return false, fmt.Errorf("event detection screenshot: %w", err)
	}

	prompt := fmt.Sprintf(
		"This is a screenshot of a web page playing a video. Answer strictly YES or NO: is the following currently visible on screen: %s",
		description)
	resp, err := a.vision.Infer(ctx, &vision.InferRequest{
		Prompt:    prompt,
		Image:     image,
		MaxTokens: 16,
	})
	if err != nil {
		return false, err
	}

	detected := parseYesNo(resp.Text)
	a.logger.Debug("event detection",
		zap.String("event", description),
		zap.Bool("detected", detected))
	return detected, nil
}

// ClassifySlide 判断画面相对上一张幻灯片是否换页。
// 首张采样(prevDescription 为空)总是视为新幻灯片。
func (a *Agent) ClassifySlide(ctx context.Context, image []byte, prevDescription string) (bool, string, error) {
	if a.vision == nil {
		return false, "", fmt.Errorf("slide classification requires a vision provider")
	}

	if prevDescription == "" {
		resp, err := a.vision.Infer(ctx, &vision.InferRequest{
			Prompt:    "Describe the presentation slide in this image in one short line.",
			Image:     image,
			MaxTokens: 64,
		})
		if err != nil {
			return false, "", err
		}
		return true, firstLine(resp.Text), nil
	}

	prompt := fmt.Sprintf(
		"The previous presentation slide was described as: %q. Does this image show a DIFFERENT slide? Answer YES or NO on the first line, then describe the current slide in one short line on the second line.",
		prevDescription)
	resp, err := a.vision.Infer(ctx, &vision.InferRequest{
		Prompt:    prompt,
		Image:     image,
		MaxTokens: 96,
	})
	if err != nil {
		return false, "", err
	}

	isNew := parseYesNo(resp.Text)
	desc := secondLine(resp.Text)
	if desc == "" {
		desc = prevDescription
	}
	return isNew, desc, nil
}

// ExecuteInstruction 用截图-推理-点击的循环执行自然语言指令,
// 动作数达到上限后静默结束。尽力而为:页面上无事可做不算失败。
func (a *Agent) ExecuteInstruction(ctx context.Context, instruction string) error {
	if a.vision == nil {
		return fmt.Errorf("instruction execution requires a vision provider")
	}

	maxActions := a.config.InstructionMaxActions
	if maxActions <= 0 {
		maxActions = 3
	}

	for i := 0; i < maxActions; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		image, err := a.ctrl.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("instruction screenshot: %w", err)
		}

		prompt := fmt.Sprintf(
			"You control a web browser showing this screenshot. Goal: %s. If a click is needed, reply exactly: CLICK x,y (viewport pixel coordinates). If the goal is already satisfied or nothing on screen applies, reply exactly: DONE.",
			instruction)
		resp, err := a.vision.Infer(ctx, &vision.InferRequest{
			Prompt:    prompt,
			Image:     image,
			MaxTokens: 32,
		})
		if err != nil {
			return err
		}

		x, y, isClick := parseClick(resp.Text)
		if !isClick {
			a.logger.Debug("instruction finished",
				zap.String("instruction", instruction),
				zap.Int("actions", i))
			return nil
		}

		if err := a.ctrl.Click(ctx, x, y); err != nil {
			return fmt.Errorf("instruction click: %w", err)
		}
		a.logger.Debug("instruction click",
			zap.String("instruction", instruction),
			zap.Int("x", x), zap.Int("y", y))

		if a.config.ActionDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.config.ActionDelay):
			}
		}
	}
	return nil
}

// Close 释放浏览器资源,可安全多次调用。
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.ctrl.Close()
	})
	return err
}

// parseYesNo 从回复首行判断 YES。
func parseYesNo(text string) bool {
	line := strings.ToUpper(firstLine(text))
	return strings.Contains(line, "YES")
}

// parseClick 解析 "CLICK x,y" 形式的回复。
func parseClick(text string) (x, y int, ok bool) {
	line := strings.TrimSpace(firstLine(text))
	upper := strings.ToUpper(line)
	if !strings.HasPrefix(upper, "CLICK") {
		return 0, 0, false
	}
	rest := strings.TrimSpace(line[len("CLICK"):])
	if _, err := fmt.Sscanf(rest, "%d,%d", &x, &y); err != nil {
		return 0, 0, false
	}
	if x < 0 || y < 0 {
		return 0, 0, false
	}
	return x, y, true
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func secondLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for _, line := range lines[1:] {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
