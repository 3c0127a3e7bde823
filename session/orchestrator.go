// =============================================================================
// 🎬 VideoFlow 会话编排器
// =============================================================================
// 驱动单个分析会话按 初始化 → 导航 → 播放器检测 → 帧捕获 → 批量分析 →
// 合成 的顺序推进,每次状态迁移广播事件,终态时发布结果或错误。
// 导航器在所有退出路径上恰好释放一次。
// =============================================================================

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/analysis"
	"github.com/BaSui01/videoflow/broadcast"
	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/capture"
	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/internal/metrics"
	"github.com/BaSui01/videoflow/planner"
	"github.com/BaSui01/videoflow/synthesis"
	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

const instrumentationName = "videoflow/session"

// archiveTimeout 限制终态归档写库的耗时,归档不能拖住会话收尾。
const archiveTimeout = 10 * time.Second

// NavigatorFactory 为每个会话创建独立的浏览器导航器。
// 返回的导航器归会话独占,由编排器负责释放。
type NavigatorFactory func(ctx context.Context) (browser.Navigator, error)

// progressFloor 是进入各阶段时的进度下限。进度只会向上对齐到
// 所在阶段的下限,绝不回退;失败与取消停在当前值。
var progressFloor = map[types.SessionStatus]float64{
	types.StatusInitializing:    0,
	types.StatusNavigating:      5,
	types.StatusDetectingPlayer: 25,
	types.StatusCapturing:       40,
	types.StatusAnalyzing:       70,
	types.StatusSynthesizing:    90,
	types.StatusCompleted:       100,
}

// handle 是一个运行中会话的内部句柄。session 字段由 mu 保护;
// ID/URL/Prompt/opts 创建后不再改写,可以无锁读取。
type handle struct {
	mu      sync.RWMutex
	session *types.Session
	opts    *types.SessionOptions

	cancel     context.CancelFunc
	cancelFlag atomic.Bool
	done       chan struct{}
}

// snapshot 返回会话记录的浅拷贝,Status/Progress 读取一致。
func (h *handle) snapshot() *types.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := *h.session
	return &s
}

// orchestrator 执行单个会话的完整流水线。组件配置来自 Config,
// 每次运行按会话级 SessionOptions 做覆盖。
type orchestrator struct {
	navigators NavigatorFactory
	provider   vision.Provider
	cache      framecache.Cache
	hub        *broadcast.Hub
	archiver   Archiver
	metrics    *metrics.Collector
	planner    *planner.Planner
	config     Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

func newOrchestrator(c Components, cfg Config, logger *zap.Logger) *orchestrator {
	return &orchestrator{
		navigators: c.Navigators,
		provider:   c.Provider,
		cache:      c.Cache,
		hub:        c.Hub,
		archiver:   c.Archiver,
		metrics:    c.Metrics,
		planner:    planner.New(logger),
		config:     cfg,
		logger:     logger.With(zap.String("component", "session")),
		tracer:     otel.Tracer(instrumentationName),
	}
}

// run 在独立 goroutine 中执行整条流水线,并保证句柄落到终态。
// 终态判定次序:成功 → 取消 → 超时 → 失败。取消与完成赛跑时,
// 已经跑完的流水线按完成记录,取消请求只是空操作。
func (o *orchestrator) run(ctx context.Context, h *handle) {
	defer close(h.done)

	sess := h.snapshot()
	ctx, span := o.tracer.Start(ctx, "session.run",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("session.url", sess.URL),
		))
	defer span.End()

	start := time.Now()
	o.publishState(h)

	result, err := o.pipeline(ctx, h)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		o.complete(h, result)
	case h.cancelFlag.Load() || errors.Is(err, context.Canceled):
		o.markCancelled(h)
	case errors.Is(err, context.DeadlineExceeded):
		o.fail(h, types.NewError(types.ErrSessionTimeout, "session exceeded its deadline").WithCause(err))
	default:
		o.fail(h, asSessionError(err))
	}

	final := h.snapshot()
	span.SetAttributes(
		attribute.String("session.status", string(final.Status)),
		attribute.Float64("session.progress", final.Progress),
	)
	if o.metrics != nil {
		o.metrics.RecordSession(string(final.Status), elapsed)
	}
	o.logger.Info("session finished",
		zap.String("session_id", final.ID),
		zap.String("status", string(final.Status)),
		zap.Duration("elapsed", elapsed),
	)

	o.archive(final)
}

// pipeline 顺序执行各阶段,返回完整结果或第一个致命错误。
// 帧级与捕获点级的失败在各阶段内部消化,不会走到这里。
func (o *orchestrator) pipeline(ctx context.Context, h *handle) (*types.SessionResult, error) {
	sess := h.snapshot()
	start := time.Now()

	nav, err := o.navigators(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrNavigationFailed, "failed to launch navigator").WithCause(err)
	}

	// 导航器恰好释放一次:捕获完成后主动归还,defer 兜底其余退出路径。
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if cerr := nav.Close(); cerr != nil {
				o.logger.Warn("navigator close failed",
					zap.String("session_id", sess.ID), zap.Error(cerr))
			}
		})
	}
	defer release()

	o.transition(h, types.StatusNavigating)
	if err := o.navigate(ctx, nav, sess.URL); err != nil {
		return nil, err
	}

	o.transition(h, types.StatusDetectingPlayer)
	player, meta, err := o.detect(ctx, nav)
	if err != nil {
		return nil, err
	}

	o.transition(h, types.StatusCapturing)
	plan, frames, err := o.captureFrames(ctx, nav, player, meta, h)
	if err != nil {
		return nil, err
	}
	// 后续阶段纯靠推理端点,浏览器可以提前归还
	release()

	o.transition(h, types.StatusAnalyzing)
	analyses, err := o.analyze(ctx, sess, frames, h.opts)
	if err != nil {
		return nil, err
	}

	o.transition(h, types.StatusSynthesizing)
	synth, err := o.synthesize(ctx, sess, analyses, h.opts)
	if err != nil {
		return nil, err
	}

	return &types.SessionResult{
		Synthesis:      synth,
		FrameAnalyses:  analyses,
		FramesCaptured: len(frames),
		Strategy:       plan.Strategy,
		VideoDuration:  meta.Duration,
		Elapsed:        time.Since(start),
	}, nil
}

// navigate 打开目标页面。失败对会话是致命的。
func (o *orchestrator) navigate(ctx context.Context, nav browser.Navigator, url string) error {
	ctx, span := o.tracer.Start(ctx, "session.navigate",
		trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	stageStart := time.Now()
	if err := nav.Navigate(ctx, url); err != nil {
		return types.NewError(types.ErrNavigationFailed, "failed to navigate to target URL").WithCause(err)
	}
	o.observeStage("navigate", stageStart)
	return nil
}

// detect 定位页面上的视频播放器并读取元数据。找不到播放器是
// 致命错误;元数据读不到则退化为空元数据,交给规划器兜底。
func (o *orchestrator) detect(ctx context.Context, nav browser.Navigator) (*browser.PlayerHandle, types.VideoMetadata, error) {
	ctx, span := o.tracer.Start(ctx, "session.detect_player")
	defer span.End()

	stageStart := time.Now()
	player, err := nav.DetectPlayer(ctx)
	if err != nil {
		return nil, types.VideoMetadata{}, types.NewError(types.ErrPlayerNotFound, "no video player found on page").WithCause(err)
	}

	meta, err := nav.Metadata(ctx, player)
	if err != nil {
		o.logger.Warn("player metadata unavailable", zap.Error(err))
		meta = types.VideoMetadata{}
	}
	span.SetAttributes(attribute.Float64("video.duration", meta.Duration))
	o.observeStage("detect_player", stageStart)
	return player, meta, nil
}

// captureFrames 规划并执行帧捕获。单点失败已由执行器就地消化,
// 这里只把「一帧都没拿到」升级为致命错误。
func (o *orchestrator) captureFrames(ctx context.Context, nav browser.Navigator, player *browser.PlayerHandle, meta types.VideoMetadata, h *handle) (*types.CapturePlan, []types.Frame, error) {
	sess := h.snapshot()
	ctx, span := o.tracer.Start(ctx, "session.capture")
	defer span.End()

	stageStart := time.Now()
	plan := o.planner.Plan(meta, sess.Prompt)
	span.SetAttributes(
		attribute.String("capture.strategy", string(plan.Strategy)),
		attribute.Int("capture.points", len(plan.Points)),
	)

	executor := capture.NewExecutor(nav, o.captureConfig(h.opts), o.logger)
	frames := executor.Execute(ctx, plan, player)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, types.NewError(types.ErrCaptureFailed, "no frames captured from video")
	}
	span.SetAttributes(attribute.Int("capture.frames", len(frames)))
	if o.metrics != nil {
		o.metrics.RecordFrames(string(plan.Strategy), len(frames))
		// 幻灯片策略的帧数由内容决定,没有"计划点落空"的概念
		if plan.Strategy != types.StrategySlideTransitions {
			o.metrics.RecordFramesSkipped(string(plan.Strategy), len(plan.Points)-len(frames))
		}
	}
	o.observeStage("capture", stageStart)
	return plan, frames, nil
}

// analyze 批量分析全部帧。帧级失败降级为带错误的记录,这里只
// 识别会话级取消/超时。
func (o *orchestrator) analyze(ctx context.Context, sess *types.Session, frames []types.Frame, opts *types.SessionOptions) ([]types.FrameAnalysis, error) {
	ctx, span := o.tracer.Start(ctx, "session.analyze",
		trace.WithAttributes(attribute.Int("frames", len(frames))))
	defer span.End()

	stageStart := time.Now()
	analyzer := analysis.NewAnalyzer(o.provider, o.cache, o.analysisConfig(opts), o.logger)
	analyses := analyzer.AnalyzeBatch(ctx, sess.ID, frames, sess.Prompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.observeStage("analyze", stageStart)
	return analyses, nil
}

// synthesize 把全部帧分析聚合成最终回答。零有效输入或推理失败
// 对会话是致命的。
func (o *orchestrator) synthesize(ctx context.Context, sess *types.Session, analyses []types.FrameAnalysis, opts *types.SessionOptions) (*types.SynthesizedResult, error) {
	ctx, span := o.tracer.Start(ctx, "session.synthesize")
	defer span.End()

	stageStart := time.Now()
	engine := synthesis.NewEngine(o.provider, o.synthesisConfig(opts), o.logger)
	result, err := engine.Synthesize(ctx, analyses, sess.Prompt)
	if err != nil {
		return nil, err
	}
	o.observeStage("synthesize", stageStart)
	return result, nil
}

// captureConfig 应用会话级捕获覆盖。
func (o *orchestrator) captureConfig(opts *types.SessionOptions) capture.Config {
	cfg := o.config.Capture
	if opts != nil && opts.MaxFrames > 0 {
		cfg.MaxFrames = opts.MaxFrames
	}
	return cfg
}

// analysisConfig 应用会话级分析覆盖。
func (o *orchestrator) analysisConfig(opts *types.SessionOptions) analysis.Config {
	cfg := o.config.Analysis
	if opts == nil {
		return cfg
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.BatchDelayMs > 0 {
		cfg.BatchDelay = time.Duration(opts.BatchDelayMs) * time.Millisecond
	}
	if opts.VisionModel != "" {
		cfg.Model = opts.VisionModel
	}
	return cfg
}

// synthesisConfig 应用会话级合成覆盖。
func (o *orchestrator) synthesisConfig(opts *types.SessionOptions) synthesis.Config {
	cfg := o.config.Synthesis
	if opts != nil && opts.VisionModel != "" {
		cfg.Model = opts.VisionModel
	}
	return cfg
}

// transition 推进状态机并广播 status 与 progress 事件。
// 只有 run goroutine 会调用,因此迁移总是合法的;校验仅作兜底。
func (o *orchestrator) transition(h *handle, next types.SessionStatus) {
	h.mu.Lock()
	from := h.session.Status
	if !from.CanTransitionTo(next) {
		h.mu.Unlock()
		o.logger.Error("illegal status transition",
			zap.String("session_id", h.session.ID),
			zap.String("from", string(from)),
			zap.String("to", string(next)),
		)
		return
	}
	h.session.Status = next
	if floor, ok := progressFloor[next]; ok && floor > h.session.Progress {
		h.session.Progress = floor
	}
	h.session.UpdatedAt = time.Now()
	h.mu.Unlock()

	o.publishState(h)
}

// complete 记录成功终态并发布结果事件。
func (o *orchestrator) complete(h *handle, result *types.SessionResult) {
	now := time.Now()
	h.mu.Lock()
	h.session.Status = types.StatusCompleted
	h.session.Progress = 100
	h.session.Result = result
	h.session.UpdatedAt = now
	h.session.EndedAt = &now
	h.mu.Unlock()

	o.publishState(h)
	o.publish(h.session.ID, broadcast.Event{
		Type:     broadcast.EventResult,
		Status:   types.StatusCompleted,
		Progress: 100,
		Result:   result,
	})
}

// fail 记录失败终态并发布错误事件。进度停在当前值。
func (o *orchestrator) fail(h *handle, serr *types.Error) {
	now := time.Now()
	h.mu.Lock()
	h.session.Status = types.StatusFailed
	h.session.Error = serr
	h.session.UpdatedAt = now
	h.session.EndedAt = &now
	progress := h.session.Progress
	h.mu.Unlock()

	o.publishState(h)
	o.publish(h.session.ID, broadcast.Event{
		Type:     broadcast.EventError,
		Status:   types.StatusFailed,
		Progress: progress,
		Message:  serr.Message,
		Error:    serr,
	})
}

// markCancelled 记录取消终态。取消是正常终止,不发布错误事件。
func (o *orchestrator) markCancelled(h *handle) {
	now := time.Now()
	h.mu.Lock()
	h.session.Status = types.StatusCancelled
	h.session.Error = types.NewError(types.ErrSessionCancelled, "session cancelled")
	h.session.UpdatedAt = now
	h.session.EndedAt = &now
	h.mu.Unlock()

	o.publishState(h)
}

// publishState 按当前快照广播一对 status/progress 事件。
func (o *orchestrator) publishState(h *handle) {
	s := h.snapshot()
	o.publish(s.ID, broadcast.Event{Type: broadcast.EventStatus, Status: s.Status, Progress: s.Progress})
	o.publish(s.ID, broadcast.Event{Type: broadcast.EventProgress, Status: s.Status, Progress: s.Progress})
}

func (o *orchestrator) publish(sessionID string, ev broadcast.Event) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(sessionID, ev)
}

// archive 把终态会话写入持久层,尽力而为。
func (o *orchestrator) archive(sess *types.Session) {
	if o.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := o.archiver.ArchiveSession(ctx, sess); err != nil {
		o.logger.Warn("session archive failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (o *orchestrator) observeStage(stage string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStage(stage, time.Since(start))
	}
}

// asSessionError 把任意错误规整为带错误码的结构化错误。
func asSessionError(err error) *types.Error {
	if e := types.AsError(err); e != nil {
		return e
	}
	return types.NewError(types.ErrInternalError, "session pipeline failed").WithCause(err)
}
