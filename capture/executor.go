package capture

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/internal/pool"
	"github.com/BaSui01/videoflow/types"
)

// optimizeWorkers bounds re-encode concurrency process-wide. Frame
// optimization is the one CPU-heavy stage; concurrent sessions share
// this budget instead of each fanning out to every core.
var optimizeWorkers = pool.NewWorkerPool(pool.WorkerPoolOptions{
	Workers:    runtime.GOMAXPROCS(0),
	QueueDepth: 64,
})

// Config bounds the executor's polling and sampling behavior.
type Config struct {
	// StabilizeTimeout bounds the wait after each seek.
	StabilizeTimeout time.Duration
	// EventPollAttempts is how many times an event point is probed
	// before being skipped.
	EventPollAttempts int
	// EventPollInterval is the pause between event probes.
	EventPollInterval time.Duration
	// SlideSampleInterval is the spacing, in video seconds, between
	// slide-transition samples.
	SlideSampleInterval float64
	// MaxFrames caps total captures per session; zero means no cap.
	MaxFrames int
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		StabilizeTimeout:    3 * time.Second,
		EventPollAttempts:   3,
		EventPollInterval:   2 * time.Second,
		SlideSampleInterval: 10,
		MaxFrames:           20,
	}
}

// Executor walks a capture plan against a live player and accumulates
// whatever frames it can. It never fails outright: a point that errors
// is logged and skipped, and an empty result is the caller's signal to
// treat the session as failed.
type Executor struct {
	nav    browser.Navigator
	config Config
	logger *zap.Logger
}

// NewExecutor creates a capture executor.
func NewExecutor(nav browser.Navigator, config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.EventPollAttempts <= 0 {
		config.EventPollAttempts = 3
	}
	if config.EventPollInterval <= 0 {
		config.EventPollInterval = 2 * time.Second
	}
	if config.SlideSampleInterval <= 0 {
		config.SlideSampleInterval = 10
	}
	if config.StabilizeTimeout <= 0 {
		config.StabilizeTimeout = 3 * time.Second
	}
	return &Executor{
		nav:    nav,
		config: config,
		logger: logger.With(zap.String("component", "capture_executor")),
	}
}

// Execute captures frames for every point in the plan, in plan order.
// Frame numbers are assigned 1-based in capture order. Cancellation is
// honored between points; the partial result is returned as-is.
func (e *Executor) Execute(ctx context.Context, plan *types.CapturePlan, handle *browser.PlayerHandle) []types.Frame {
	if plan == nil || len(plan.Points) == 0 {
		return nil
	}

	if plan.Strategy == types.StrategySlideTransitions {
		frames := e.captureSlides(ctx, handle)
		e.optimizeFrames(ctx, frames, plan.OptimizeFor)
		return frames
	}

	duration, err := e.nav.Duration(ctx, handle)
	if err != nil {
		e.logger.Warn("duration unavailable at capture time", zap.Error(err))
		duration = 0
	}

	frames := make([]types.Frame, 0, len(plan.Points))
	for i, pt := range plan.Points {
		if ctx.Err() != nil {
			e.logger.Info("capture cancelled",
				zap.Int("captured", len(frames)),
				zap.Int("remaining", len(plan.Points)-i))
			break
		}
		if e.config.MaxFrames > 0 && len(frames) >= e.config.MaxFrames {
			e.logger.Warn("frame cap reached", zap.Int("max_frames", e.config.MaxFrames))
			break
		}

		var (
			frame types.Frame
			ok    bool
		)
		switch pt.Kind {
		case types.PointEvent:
			frame, ok = e.captureEvent(ctx, handle, pt, len(frames)+1)
		default:
			frame, ok = e.captureTimestamp(ctx, handle, pt, duration, plan.PercentBased, len(frames)+1)
		}
		if ok {
			frames = append(frames, frame)
		}
	}

	e.optimizeFrames(ctx, frames, plan.OptimizeFor)

	e.logger.Info("capture finished",
		zap.String("strategy", string(plan.Strategy)),
		zap.Int("planned", len(plan.Points)),
		zap.Int("captured", len(frames)))
	return frames
}

// captureTimestamp seeks to the point, waits for the player to settle,
// and screenshots. Errors skip the point; there is no retry because
// each point is cheap and independent.
func (e *Executor) captureTimestamp(ctx context.Context, handle *browser.PlayerHandle, pt types.CapturePoint, duration float64, percentBased bool, number int) (types.Frame, bool) {
	pct, seekable := seekPercentage(pt.Seconds, duration, percentBased)

	if seekable {
		if err := e.nav.Seek(ctx, handle, pct); err != nil {
			// Percent plans exist precisely because the duration was
			// missing; capture the current frame rather than nothing.
			if !percentBased {
				e.logger.Warn("seek failed, skipping point",
					zap.Float64("seconds", pt.Seconds), zap.Error(err))
				return types.Frame{}, false
			}
			e.logger.Debug("seek unavailable, capturing current frame", zap.Error(err))
		}
	}

	if err := e.nav.WaitStable(ctx, handle, e.config.StabilizeTimeout); err != nil {
		e.logger.Debug("player did not stabilize, capturing anyway", zap.Error(err))
	}

	image, err := e.nav.Screenshot(ctx, handle)
	if err != nil {
		e.logger.Warn("screenshot failed, skipping point",
			zap.Float64("seconds", pt.Seconds), zap.Error(err))
		return types.Frame{}, false
	}

	var ts *float64
	if t, err := e.nav.CurrentTime(ctx, handle); err == nil {
		ts = &t
	}

	return types.Frame{
		Number:        number,
		Timestamp:     ts,
		Image:         image,
		Context:       "video_frame",
		CaptureReason: pt.Reason,
	}, true
}

// captureEvent polls the collaborator's event detection a fixed number
// of times. Exhausting the attempts without a detection is expected,
// not an error, and skips the point silently.
func (e *Executor) captureEvent(ctx context.Context, handle *browser.PlayerHandle, pt types.CapturePoint, number int) (types.Frame, bool) {
	for attempt := 1; attempt <= e.config.EventPollAttempts; attempt++ {
		if ctx.Err() != nil {
			return types.Frame{}, false
		}

		detected, err := e.nav.DetectEvent(ctx, pt.Event)
		if err != nil {
			e.logger.Debug("event probe failed",
				zap.String("event", pt.Event),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		if detected {
			image, err := e.nav.Screenshot(ctx, handle)
			if err != nil {
				e.logger.Warn("event screenshot failed, skipping point",
					zap.String("event", pt.Event), zap.Error(err))
				return types.Frame{}, false
			}

			var ts *float64
			if t, err := e.nav.CurrentTime(ctx, handle); err == nil {
				ts = &t
			}

			return types.Frame{
				Number:        number,
				Timestamp:     ts,
				Image:         image,
				Context:       eventContext(pt.Event),
				CaptureReason: pt.Reason,
			}, true
		}

		if attempt < e.config.EventPollAttempts {
			select {
			case <-ctx.Done():
				return types.Frame{}, false
			case <-time.After(e.config.EventPollInterval):
			}
		}
	}

	e.logger.Debug("event not observed, skipping point", zap.String("event", pt.Event))
	return types.Frame{}, false
}

// captureSlides samples the video at a fixed interval and keeps only
// the samples the collaborator classifies as a new slide. This is the
// one capture path whose frame count is data-dependent; slides are
// numbered from 1 in detection order.
func (e *Executor) captureSlides(ctx context.Context, handle *browser.PlayerHandle) []types.Frame {
	duration, err := e.nav.Duration(ctx, handle)
	if err != nil || duration <= 0 {
		e.logger.Warn("slide capture needs a duration", zap.Error(err))
		return nil
	}

	var frames []types.Frame
	prevDescription := ""
	for t := 0.0; t < duration; t += e.config.SlideSampleInterval {
		if ctx.Err() != nil {
			break
		}
		if e.config.MaxFrames > 0 && len(frames) >= e.config.MaxFrames {
			e.logger.Warn("frame cap reached during slide capture",
				zap.Int("max_frames", e.config.MaxFrames))
			break
		}

		if err := e.nav.Seek(ctx, handle, t/duration*100); err != nil {
			e.logger.Debug("slide seek failed", zap.Float64("seconds", t), zap.Error(err))
			continue
		}
		if err := e.nav.WaitStable(ctx, handle, e.config.StabilizeTimeout); err != nil {
			e.logger.Debug("slide sample not stable", zap.Float64("seconds", t), zap.Error(err))
		}

		image, err := e.nav.Screenshot(ctx, handle)
		if err != nil {
			e.logger.Debug("slide screenshot failed", zap.Float64("seconds", t), zap.Error(err))
			continue
		}

		isNew, description, err := e.nav.ClassifySlide(ctx, image, prevDescription)
		if err != nil {
			e.logger.Debug("slide classification failed", zap.Float64("seconds", t), zap.Error(err))
			continue
		}
		prevDescription = description

		if isNew {
			ts := t
			frames = append(frames, types.Frame{
				Number:        len(frames) + 1,
				Timestamp:     &ts,
				Image:         image,
				Context:       "slide",
				CaptureReason: fmt.Sprintf("slide %d: %s", len(frames)+1, description),
			})
		}
	}

	e.logger.Info("slide capture finished",
		zap.Int("slides", len(frames)),
		zap.Float64("duration", duration))
	return frames
}

// optimizeFrames recompresses each frame in place using the parameters
// selected by the plan's optimize tag. Frames are independent, so the
// work fans out over the shared worker pool; a rejected submission
// runs inline rather than skip the frame. A frame whose optimization
// fails keeps its original bytes. Returns only after every frame is
// settled.
func (e *Executor) optimizeFrames(ctx context.Context, frames []types.Frame, optimizeFor types.CaptureStrategy) {
	params := ParamsFor(optimizeFor)
	var wg sync.WaitGroup
	for i := range frames {
		wg.Add(1)
		task := func(tctx context.Context) error {
			defer wg.Done()
			if tctx.Err() != nil {
				// 会话已取消,原始字节原样保留
				return nil
			}
			optimized, err := Optimize(frames[i].Image, params)
			if err != nil {
				e.logger.Debug("frame optimization failed, keeping original",
					zap.Int("frame", frames[i].Number), zap.Error(err))
				return nil
			}
			frames[i].Image = optimized
			return nil
		}
		if err := optimizeWorkers.Submit(ctx, task); err != nil {
			task(ctx)
		}
	}
	wg.Wait()
}

// seekPercentage converts a plan value into a seek percentage.
// Percent-based plans carry the percentage directly; otherwise the
// value is seconds against the known duration. The second return is
// false when no seek makes sense.
func seekPercentage(seconds, duration float64, percentBased bool) (float64, bool) {
	if percentBased {
		pct := seconds
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return pct, true
	}
	if duration <= 0 {
		return 0, false
	}
	pct := seconds / duration * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

func eventContext(event string) string {
	lower := strings.ToLower(event)
	switch {
	case strings.Contains(lower, "code") || strings.Contains(lower, "editor"):
		return "code_example"
	case strings.Contains(lower, "terminal") || strings.Contains(lower, "console"):
		return "terminal_output"
	case strings.Contains(lower, "slide"):
		return "slide"
	default:
		return "video_event"
	}
}
