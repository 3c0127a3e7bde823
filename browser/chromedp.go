package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Driver 基于 chromedp 的 Controller 实现。每个 Driver 独占一个
// Headless Chrome 实例,会话结束后必须 Close。
type Driver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	config      Config
	logger      *zap.Logger
	mu          sync.Mutex
	closeOnce   sync.Once
}

var _ Controller = (*Driver)(nil)

// NewDriver 启动浏览器并返回驱动。
func NewDriver(config Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.WindowSize(config.WindowWidth, config.WindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		// 视频必须在无用户手势的情况下自动播放
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)

	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(config.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	driver := &Driver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
		logger:      logger.With(zap.String("component", "browser_driver")),
	}

	// 启动浏览器
	if err := chromedp.Run(ctx); err != nil {
		allocCancel()
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	driver.logger.Info("browser started",
		zap.Bool("headless", config.Headless),
		zap.Int("window_w", config.WindowWidth),
		zap.Int("window_h", config.WindowHeight))

	return driver, nil
}

// Navigate 导航到 URL 并等待 body 就绪。
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	navCtx := d.ctx
	if d.config.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(d.ctx, d.config.NavigationTimeout)
		defer cancel()
	}

	d.logger.Debug("navigating", zap.String("url", url))
	return chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Screenshot 截取整页截图。
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf []byte
	if err := chromedp.Run(d.ctx, chromedp.FullScreenshot(&buf, d.quality())); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// ElementScreenshot 截取指定元素的 JPEG 截图,质量由配置控制。
func (d *Driver) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rect struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return {x: 0, y: 0, width: 0, height: 0};
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, selector)

	var buf []byte
	err := chromedp.Run(d.ctx,
		chromedp.Evaluate(expr, &rect),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if rect.Width <= 0 || rect.Height <= 0 {
				return fmt.Errorf("element %q not visible", selector)
			}
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(int64(d.quality())).
				WithClip(&page.Viewport{
					X:      rect.X,
					Y:      rect.Y,
					Width:  rect.Width,
					Height: rect.Height,
					Scale:  1,
				}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("element screenshot failed: %w", err)
	}
	return buf, nil
}

// Click 点击指定坐标。
func (d *Driver) Click(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	d.logger.Debug("clicking", zap.Int("x", x), zap.Int("y", y))
	return chromedp.Run(d.ctx, chromedp.MouseClickXY(float64(x), float64(y)))
}

// Evaluate 在页面上执行 JS 表达式并反序列化结果到 out。
// out 必须是非空指针。
func (d *Driver) Evaluate(ctx context.Context, expression string, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	return chromedp.Run(d.ctx, chromedp.Evaluate(expression, out))
}

// Close 关闭浏览器,可安全多次调用。
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Info("closing browser")
		d.cancel()
		d.allocCancel()
	})
	return nil
}

func (d *Driver) quality() int {
	if d.config.ScreenshotQuality > 0 {
		return d.config.ScreenshotQuality
	}
	return 85
}
