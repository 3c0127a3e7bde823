package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/testutil/mocks"
	"github.com/BaSui01/videoflow/types"
)

func fastExecConfig() Config {
	return Config{
		StabilizeTimeout:    10 * time.Millisecond,
		EventPollAttempts:   3,
		EventPollInterval:   time.Millisecond,
		SlideSampleInterval: 10,
		MaxFrames:           20,
	}
}

func tsPoint(seconds float64, reason string) types.CapturePoint {
	return types.CapturePoint{Kind: types.PointTimestamp, Seconds: seconds, Reason: reason}
}

func summaryTestPlan() *types.CapturePlan {
	return &types.CapturePlan{
		Strategy: types.StrategySummary,
		Points: []types.CapturePoint{
			tsPoint(0, "opening frame"),
			tsPoint(60, "early content"),
			tsPoint(150, "midpoint"),
			tsPoint(240, "late content"),
			tsPoint(285, "closing content"),
		},
		OptimizeFor: types.StrategySummary,
	}
}

func TestExecuteTimestampPlan(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	frames := ex.Execute(context.Background(), summaryTestPlan(), nil)

	require.Len(t, frames, 5)
	assert.Equal(t, []float64{0, 20, 50, 80, 95}, nav.Seeks())
	assert.Equal(t, 5, nav.WaitStableCalls())

	for i, f := range frames {
		assert.Equal(t, i+1, f.Number)
		assert.Equal(t, "video_frame", f.Context)
		assert.NotEmpty(t, f.Image)
		require.NotNil(t, f.Timestamp)
	}
	assert.Equal(t, "opening frame", frames[0].CaptureReason)
	assert.Equal(t, "closing content", frames[4].CaptureReason)
}

func TestExecuteSkipsFailedSeekPoint(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300).
		WithSeekErrAt(2, errors.New("player detached"))
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	frames := ex.Execute(context.Background(), summaryTestPlan(), nil)

	// One point is lost; numbering of kept frames stays consecutive.
	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, i+1, f.Number)
	}
	assert.Len(t, nav.Seeks(), 5)
}

func TestExecuteScreenshotFailureNeverFailsOutright(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300).
		WithScreenshotErr(errors.New("tab crashed"))
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	frames := ex.Execute(context.Background(), summaryTestPlan(), nil)
	assert.Empty(t, frames)
}

func TestExecuteEventDetectedOnSecondAttempt(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300).
		WithEventScript(false, true)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy: types.StrategyCodeFocused,
		Points: []types.CapturePoint{
			{Kind: types.PointEvent, Event: "code editor visible", Reason: "capture the first code example"},
		},
		OptimizeFor: types.StrategyCodeFocused,
	}
	frames := ex.Execute(context.Background(), plan, nil)

	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Number)
	assert.Equal(t, "code_example", frames[0].Context)
	assert.Len(t, nav.EventCalls(), 2)
}

func TestExecuteEventNeverDetectedSkipsSilently(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy: types.StrategyCodeFocused,
		Points: []types.CapturePoint{
			{Kind: types.PointEvent, Event: "terminal or console output"},
			tsPoint(150, "midpoint checkpoint"),
		},
		OptimizeFor: types.StrategyCodeFocused,
	}
	frames := ex.Execute(context.Background(), plan, nil)

	// The undetected event is skipped; the timestamp point still lands.
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Number)
	assert.Equal(t, "video_frame", frames[0].Context)
	assert.Len(t, nav.EventCalls(), 3)
}

func TestExecuteSlideTransitions(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(30).
		WithSlideScript(
			mocks.SlideStep{IsNew: true, Description: "Intro"},
			mocks.SlideStep{IsNew: false, Description: "Intro"},
			mocks.SlideStep{IsNew: true, Description: "Chapter 2"},
		)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy: types.StrategySlideTransitions,
		Points: []types.CapturePoint{
			{Kind: types.PointEvent, Event: "slide transition detected"},
		},
		OptimizeFor: types.StrategySlideTransitions,
	}
	frames := ex.Execute(context.Background(), plan, nil)

	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].Number)
	assert.Equal(t, 2, frames[1].Number)
	assert.Equal(t, "slide", frames[0].Context)
	assert.Contains(t, frames[0].CaptureReason, "slide 1: Intro")
	assert.Contains(t, frames[1].CaptureReason, "slide 2: Chapter 2")

	require.NotNil(t, frames[0].Timestamp)
	require.NotNil(t, frames[1].Timestamp)
	assert.Equal(t, 0.0, *frames[0].Timestamp)
	assert.Equal(t, 20.0, *frames[1].Timestamp)
}

func TestExecuteSlidesWithoutDuration(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(0)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy:    types.StrategySlideTransitions,
		Points:      []types.CapturePoint{{Kind: types.PointEvent, Event: "slide transition detected"}},
		OptimizeFor: types.StrategySlideTransitions,
	}
	assert.Empty(t, ex.Execute(context.Background(), plan, nil))
}

func TestExecuteHonorsCancellation(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := ex.Execute(ctx, summaryTestPlan(), nil)
	assert.Empty(t, frames)
	assert.Empty(t, nav.Seeks())
}

func TestExecuteRespectsFrameCap(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	cfg := fastExecConfig()
	cfg.MaxFrames = 2
	ex := NewExecutor(nav, cfg, zap.NewNop())

	frames := ex.Execute(context.Background(), summaryTestPlan(), nil)
	assert.Len(t, frames, 2)
}

func TestExecutePercentBasedPlan(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(300)
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy: types.StrategyFallback,
		Points: []types.CapturePoint{
			tsPoint(0, "start of video"),
			tsPoint(50, "middle of video"),
			tsPoint(95, "near the end"),
		},
		OptimizeFor:  types.StrategyFallback,
		PercentBased: true,
	}
	frames := ex.Execute(context.Background(), plan, nil)

	require.Len(t, frames, 3)
	// Values are used as percentages directly, not converted.
	assert.Equal(t, []float64{0, 50, 95}, nav.Seeks())
}

func TestExecutePercentBasedCapturesDespiteSeekFailure(t *testing.T) {
	nav := mocks.NewMockNavigator().WithDuration(0).
		WithSeekErr(errors.New("no duration"))
	ex := NewExecutor(nav, fastExecConfig(), zap.NewNop())

	plan := &types.CapturePlan{
		Strategy: types.StrategyFallback,
		Points: []types.CapturePoint{
			tsPoint(0, "start of video"),
			tsPoint(50, "middle of video"),
			tsPoint(95, "near the end"),
		},
		OptimizeFor:  types.StrategyFallback,
		PercentBased: true,
	}
	frames := ex.Execute(context.Background(), plan, nil)

	// A video with no seekable duration still yields current-frame
	// captures instead of nothing.
	require.Len(t, frames, 3)
}

func TestExecuteNilOrEmptyPlan(t *testing.T) {
	ex := NewExecutor(mocks.NewMockNavigator(), fastExecConfig(), zap.NewNop())

	assert.Nil(t, ex.Execute(context.Background(), nil, nil))
	assert.Nil(t, ex.Execute(context.Background(), &types.CapturePlan{}, nil))
}
