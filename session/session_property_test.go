package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/testutil/mocks"
	"github.com/BaSui01/videoflow/types"
)

// 幻灯片策略的帧数依赖脚本化的分类器,由捕获执行器的测试覆盖,
// 这里只取帧数确定的策略。
var sessionPropertyPrompts = []string{
	"summarize this video",
	"show me the timeline of changes",
	"explain the code on screen",
	"teach me the main lesson",
	"what happens in this video",
}

// Whatever the collaborators do, a session lands in exactly one terminal
// state, its observed progress never decreases and never dips below the
// floor of the stage it is in, and the navigator is released exactly once.
func TestSessionPropertyTerminalInvariants(t *testing.T) {
	scenarios := []string{"ok", "nav_err", "detect_err", "shot_err", "infer_err", "cancel"}

	rapid.Check(t, func(rt *rapid.T) {
		scenario := rapid.SampledFrom(scenarios).Draw(rt, "scenario")
		duration := rapid.Float64Range(0, 600).Draw(rt, "duration")
		prompt := rapid.SampledFrom(sessionPropertyPrompts).Draw(rt, "prompt")

		nav := mocks.NewMockNavigator().WithDuration(duration)
		provider := okProvider()
		switch scenario {
		case "nav_err":
			nav.WithNavigateErr(errors.New("navigate refused"))
		case "detect_err":
			nav.WithDetectErr(errors.New("player missing"))
		case "shot_err":
			nav.WithScreenshotErr(errors.New("screenshot refused"))
		case "infer_err":
			provider = mocks.NewMockVisionProvider().
				WithError(types.NewError(types.ErrInferenceFailed, "upstream unavailable"))
		case "cancel":
			// 给取消一个落在分析阶段的窗口
			provider = okProvider().WithDelay(20 * time.Millisecond)
		}

		cfg := DefaultConfig()
		cfg.Analysis.BatchDelay = time.Millisecond
		cfg.Capture.StabilizeTimeout = time.Millisecond
		cfg.Capture.EventPollInterval = time.Millisecond
		cfg.SweepInterval = time.Hour
		m := NewManager(Components{
			Navigators: func(ctx context.Context) (browser.Navigator, error) { return nav, nil },
			Provider:   provider,
		}, cfg, zap.NewNop())
		defer func() {
			closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = m.Close(closeCtx)
		}()

		sess, err := m.Start(context.Background(), types.AnalysisRequest{
			URL:    "https://example.com/watch",
			Prompt: prompt,
		})
		require.NoError(rt, err)

		if scenario == "cancel" {
			require.NoError(rt, m.Cancel(sess.ID))
		}

		var observed []*types.Session
		deadline := time.Now().Add(5 * time.Second)
		for {
			s, gerr := m.GetStatus(sess.ID)
			require.NoError(rt, gerr)
			observed = append(observed, s)
			if s.Status.IsTerminal() {
				break
			}
			require.True(rt, time.Now().Before(deadline), "session stuck in %s", s.Status)
			time.Sleep(time.Millisecond)
		}
		final := observed[len(observed)-1]

		prev := -1.0
		for _, s := range observed {
			require.GreaterOrEqual(rt, s.Progress, prev)
			prev = s.Progress
			require.GreaterOrEqual(rt, s.Progress, progressFloor[s.Status])
			require.LessOrEqual(rt, s.Progress, 100.0)
		}

		switch scenario {
		case "ok":
			require.Equal(rt, types.StatusCompleted, final.Status)
		case "nav_err":
			require.Equal(rt, types.StatusFailed, final.Status)
			require.Equal(rt, types.ErrNavigationFailed, final.Error.Code)
		case "detect_err":
			require.Equal(rt, types.StatusFailed, final.Status)
			require.Equal(rt, types.ErrPlayerNotFound, final.Error.Code)
		case "shot_err":
			require.Equal(rt, types.StatusFailed, final.Status)
			require.Equal(rt, types.ErrCaptureFailed, final.Error.Code)
		case "infer_err":
			require.Equal(rt, types.StatusFailed, final.Status)
			require.Equal(rt, types.ErrSynthesisNoInput, final.Error.Code)
		case "cancel":
			// 取消与自然完成赛跑,两种终态都合法
			require.Contains(rt,
				[]types.SessionStatus{types.StatusCancelled, types.StatusCompleted},
				final.Status)
		}

		// 终态完备性:完成必有结果,失败与取消必有错误,二者互斥
		switch final.Status {
		case types.StatusCompleted:
			require.NotNil(rt, final.Result)
			require.Nil(rt, final.Error)
			require.Equal(rt, 100.0, final.Progress)
		default:
			require.NotNil(rt, final.Error)
			require.Nil(rt, final.Result)
		}
		require.NotNil(rt, final.EndedAt)

		require.Equal(rt, 1, nav.CloseCount())
	})
}
