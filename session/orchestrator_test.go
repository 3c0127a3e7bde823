package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/broadcast"
	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/testutil"
	"github.com/BaSui01/videoflow/testutil/mocks"
	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

func TestSessionSummaryPipelineCompletes(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	require.Equal(t, types.StatusCompleted, final.Status)
	assert.InDelta(t, 100, final.Progress, 1e-9)
	assert.Nil(t, final.Error)
	require.NotNil(t, final.EndedAt)

	result, err := m.GetResult(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Synthesis)
	assert.Equal(t, types.SynthesisSummary, result.Synthesis.Type)
	assert.Equal(t, synthesisNarrative, result.Synthesis.Response)
	assert.Equal(t, []string{"Data visualization", "User onboarding"}, result.Synthesis.KeyThemes)

	// 摘要策略对 120s 视频规划 5 个点
	assert.Equal(t, types.StrategySummary, result.Strategy)
	assert.Equal(t, 5, result.FramesCaptured)
	require.Len(t, result.FrameAnalyses, 5)
	for i, fa := range result.FrameAnalyses {
		assert.Equal(t, i+1, fa.FrameNumber)
		assert.False(t, fa.Failed())
		assert.InDelta(t, 90, fa.Confidence, 1e-9)
	}
	assert.InDelta(t, 120, result.VideoDuration, 1e-9)
	assert.Greater(t, result.Elapsed, time.Duration(0))

	// 0%/20%/50%/80%/95% 寻址,浏览器恰好释放一次
	assert.InDeltaSlice(t, []float64{0, 20, 50, 80, 95}, nav.Seeks(), 1e-9)
	assert.Equal(t, 1, nav.CloseCount())
	// 5 次帧分析 + 1 次合成
	assert.Equal(t, 6, provider.CallCount())
}

func TestSessionPublishesOrderedMonotonicEvents(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := okProvider().WithDelay(30 * time.Millisecond)
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	sub, err := m.Hub().Subscribe(sess.ID)
	require.NoError(t, err)
	defer m.Hub().Unsubscribe(sub)

	var events []broadcast.Event
	deadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				break drain
			}
			events = append(events, ev)
			if ev.Type == broadcast.EventResult {
				break drain
			}
		case <-deadline:
			t.Fatal("no result event before deadline")
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, broadcast.EventResult, last.Type)
	require.NotNil(t, last.Result)
	assert.InDelta(t, 100, last.Progress, 1e-9)

	// 进度单调不减,事件都归属本会话
	prev := -1.0
	for _, ev := range events {
		assert.Equal(t, sess.ID, ev.SessionID)
		assert.False(t, ev.Timestamp.IsZero())
		assert.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
	}

	// 状态事件构成标准流水线顺序的子序列
	canonical := []types.SessionStatus{
		types.StatusInitializing,
		types.StatusNavigating,
		types.StatusDetectingPlayer,
		types.StatusCapturing,
		types.StatusAnalyzing,
		types.StatusSynthesizing,
		types.StatusCompleted,
	}
	idx := 0
	for _, ev := range events {
		if ev.Type != broadcast.EventStatus {
			continue
		}
		for idx < len(canonical) && canonical[idx] != ev.Status {
			idx++
		}
		require.Less(t, idx, len(canonical), "status %s out of pipeline order", ev.Status)
	}
}

func TestSessionNavigationFailureIsFatal(t *testing.T) {
	nav := mocks.NewMockNavigator().WithNavigateErr(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://no-such-host.example/v",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrNavigationFailed, final.Error.Code)
	// 失败冻结在导航阶段的进度
	assert.InDelta(t, 5, final.Progress, 1e-9)
	assert.Equal(t, 1, nav.CloseCount())
	assert.Zero(t, provider.CallCount())
}

func TestSessionPlayerDetectionFailureIsFatal(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDetectErr(errors.New("no <video> element"))
	m := newTestManager(t, nav, okProvider(), nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/article",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrPlayerNotFound, final.Error.Code)
	assert.InDelta(t, 25, final.Progress, 1e-9)
	assert.Equal(t, 1, nav.CloseCount())
}

func TestSessionNoFramesCapturedIsFatal(t *testing.T) {
	nav := mocks.NewMockNavigator().
		WithDuration(120).
		WithScreenshotErr(errors.New("tab crashed"))
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrCaptureFailed, final.Error.Code)
	assert.InDelta(t, 40, final.Progress, 1e-9)
	assert.Equal(t, 1, nav.CloseCount())
	// 一帧都没拿到,推理端点不应被触碰
	assert.Zero(t, provider.CallCount())
}

func TestSessionAllAnalysesFailedFailsSynthesis(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := mocks.NewMockVisionProvider().
		WithError(types.NewError(types.ErrInferenceFailed, "upstream 500"))
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrSynthesisNoInput, final.Error.Code)
	assert.InDelta(t, 90, final.Progress, 1e-9)
	assert.Equal(t, 1, nav.CloseCount())
	// 5 帧各试了一次,合成一次都没发起
	assert.Equal(t, 5, provider.CallCount())
}

func TestSessionPartialAnalysisFailureStillCompletes(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := mocks.NewMockVisionProvider()
	provider.WithInferFunc(func(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error) {
		if req.Image == nil {
			return &vision.InferResponse{Text: synthesisNarrative, Model: "mock-model"}, nil
		}
		if strings.Contains(req.Prompt, "frame 2 of") {
			return nil, types.NewError(types.ErrRateLimited, "429")
		}
		return &vision.InferResponse{
			Text:  "The frame shows a dashboard.\nconfidence: 85%",
			Model: "mock-model",
		}, nil
	})
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	require.Equal(t, types.StatusCompleted, final.Status)

	result, err := m.GetResult(sess.ID)
	require.NoError(t, err)
	require.Len(t, result.FrameAnalyses, 5)

	failed := 0
	for _, fa := range result.FrameAnalyses {
		if fa.Failed() {
			failed++
			assert.Equal(t, 2, fa.FrameNumber)
			assert.Contains(t, fa.Error, "429")
		}
	}
	assert.Equal(t, 1, failed)
	require.NotNil(t, result.Synthesis)
	assert.Equal(t, synthesisNarrative, result.Synthesis.Response)
	assert.Equal(t, 6, provider.CallCount())
}

func TestSessionUnknownDurationFallsBackToPercentPlan(t *testing.T) {
	// 元数据没有时长时退化为 3 点百分比方案
	nav := mocks.NewMockNavigator().WithDuration(0)
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/live",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	require.Equal(t, types.StatusCompleted, final.Status)

	result, err := m.GetResult(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyFallback, result.Strategy)
	assert.Equal(t, 3, result.FramesCaptured)
	assert.Zero(t, result.VideoDuration)
	assert.InDeltaSlice(t, []float64{0, 50, 95}, nav.Seeks(), 1e-9)
}

func TestSessionCancelDuringAnalysisReleasesNavigatorOnce(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := okProvider().WithDelay(5 * time.Second)
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	require.True(t, testutil.WaitFor(func() bool {
		s, gerr := m.GetStatus(sess.ID)
		return gerr == nil && s.Status == types.StatusAnalyzing
	}, 3*time.Second), "session never reached analysis")

	cancelAt := time.Now()
	require.NoError(t, m.Cancel(sess.ID))

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusCancelled, final.Status)
	// 取消要在暂停点立即生效,而不是等推理调用自然返回
	assert.Less(t, time.Since(cancelAt), 2*time.Second)
	assert.InDelta(t, 70, final.Progress, 1e-9)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrSessionCancelled, final.Error.Code)
	assert.Equal(t, 1, nav.CloseCount())

	_, err = m.GetResult(sess.ID)
	assert.True(t, types.IsCode(err, types.ErrSessionCancelled))

	// 重复取消幂等,导航器不会二次释放
	require.NoError(t, m.Cancel(sess.ID))
	assert.Equal(t, 1, nav.CloseCount())
}

// slowStableNavigator 把稳定等待拖长,给取消一个落在捕获阶段的窗口。
type slowStableNavigator struct {
	*mocks.MockNavigator
	delay time.Duration
}

func (s *slowStableNavigator) WaitStable(ctx context.Context, handle *browser.PlayerHandle, timeout time.Duration) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MockNavigator.WaitStable(ctx, handle, timeout)
}

func TestSessionCancelDuringCaptureReleasesNavigatorOnce(t *testing.T) {
	inner := mocks.NewMockNavigator().WithDuration(300)
	nav := &slowStableNavigator{MockNavigator: inner, delay: 500 * time.Millisecond}
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	require.True(t, testutil.WaitFor(func() bool {
		s, gerr := m.GetStatus(sess.ID)
		return gerr == nil && s.Status == types.StatusCapturing
	}, 3*time.Second), "session never reached capture")
	require.NoError(t, m.Cancel(sess.ID))

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusCancelled, final.Status)
	assert.Equal(t, 1, inner.CloseCount())
	// 半途取消不把「没有帧」误报成捕获失败
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrSessionCancelled, final.Error.Code)
	assert.Zero(t, provider.CallCount())
}

func TestSessionTimeoutFailsWithSessionTimeout(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(120)
	provider := okProvider().WithDelay(5 * time.Second)
	m := newTestManager(t, nav, provider, func(cfg *Config) {
		cfg.Timeout = 150 * time.Millisecond
	})

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrSessionTimeout, final.Error.Code)
	assert.Equal(t, 1, nav.CloseCount())
}

func TestSessionOptionsOverrideModelAndFrameCap(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	provider := okProvider()
	m := newTestManager(t, nav, provider, nil)

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
		Options: &types.SessionOptions{
			Concurrency:  1,
			BatchDelayMs: 1,
			MaxFrames:    2,
			VisionModel:  "gpt-4o-mini",
		},
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	require.Equal(t, types.StatusCompleted, final.Status)

	result, err := m.GetResult(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FramesCaptured)
	require.Len(t, result.FrameAnalyses, 2)

	// 帧分析与合成请求都走会话指定的模型
	calls := provider.Calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, "gpt-4o-mini", call.Model)
	}
}

func TestNavigatorFactoryFailureFailsSession(t *testing.T) {
	m := NewManager(Components{
		Navigators: func(ctx context.Context) (browser.Navigator, error) {
			return nil, errors.New("chrome executable not found")
		},
		Provider: okProvider(),
	}, DefaultConfig(), zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})

	sess, err := m.Start(context.Background(), types.AnalysisRequest{
		URL:    "https://example.com/talk",
		Prompt: "summarize this video",
	})
	require.NoError(t, err)

	final := waitTerminal(t, m, sess.ID)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, types.ErrNavigationFailed, final.Error.Code)
	assert.Contains(t, final.Error.Error(), "chrome executable not found")
}
