package planner

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

// Planner turns video metadata plus a user prompt into a CapturePlan.
// Planning is a pure computation: it never touches the network and
// never fails. When the prompt gives no usable intent or the player
// reported no duration, the planner degrades to a minimal fallback
// plan instead of returning an error.
type Planner struct {
	logger *zap.Logger
}

// New creates a capture planner.
func New(logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		logger: logger.With(zap.String("component", "planner")),
	}
}

// Plan builds a capture plan for the given video and prompt. Point
// counts are fixed per strategy (slide transitions excepted, which the
// executor expands dynamically), so inference call volume stays bounded
// no matter how long the video runs.
//
// When the player did not report a duration, timestamp points carry
// percentages of the full length instead of seconds; the executor
// detects this from the player state at seek time.
func (p *Planner) Plan(meta types.VideoMetadata, prompt string) *types.CapturePlan {
	strategy := Classify(prompt)
	duration := meta.Duration

	// Slide sampling and every fixed formula need a real duration.
	if !meta.HasDuration() {
		strategy = types.StrategyFallback
	}

	var points []types.CapturePoint
	switch strategy {
	case types.StrategySummary:
		points = summaryPoints(duration)
	case types.StrategyTimeline:
		points = timelinePoints(duration)
	case types.StrategyCodeFocused:
		points = codeFocusedPoints(duration)
	case types.StrategySlideTransitions:
		points = slideTransitionPoints()
	case types.StrategyEducational:
		points = educationalPoints(duration)
	case types.StrategyFallback:
		points = fallbackPoints(duration)
	default:
		points = comprehensivePoints(duration)
	}

	plan := &types.CapturePlan{
		Strategy:     strategy,
		Points:       points,
		OptimizeFor:  strategy,
		PercentBased: !meta.HasDuration(),
	}

	p.logger.Debug("capture plan built",
		zap.String("strategy", string(strategy)),
		zap.Int("points", len(points)),
		zap.Float64("duration", duration),
	)

	return plan
}

// Classify maps a prompt onto a capture strategy by keyword family.
// Families are checked in a fixed order, so a prompt matching several
// resolves deterministically. A blank prompt yields the fallback
// strategy.
func Classify(prompt string) types.CaptureStrategy {
	text := strings.ToLower(strings.TrimSpace(prompt))
	if text == "" {
		return types.StrategyFallback
	}

	switch {
	case containsAny(text, "summar", "overview", "tl;dr", "gist", "main points"):
		return types.StrategySummary
	case containsAny(text, "timeline", "chronolog", "progression", "over time", "step by step"):
		return types.StrategyTimeline
	case containsAny(text, "code", "programming", "function", "terminal", "syntax", "snippet"):
		return types.StrategyCodeFocused
	case containsAny(text, "slide", "presentation", "deck"):
		return types.StrategySlideTransitions
	case containsAny(text, "teach", "educational", "tutorial", "lesson", "lecture", "course", "learn"):
		return types.StrategyEducational
	default:
		return types.StrategyComprehensive
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// summaryPoints spreads five captures across the video, with the last
// one pushed toward the end: max(95%, duration-30s) catches closing
// remarks on long videos without landing on the end card.
func summaryPoints(duration float64) []types.CapturePoint {
	last := math.Max(0.95*duration, duration-30)
	secs := []float64{0, 0.20 * duration, 0.50 * duration, 0.80 * duration, last}
	reasons := []string{
		"opening frame",
		"early content",
		"midpoint",
		"late content",
		"closing content",
	}

	points := make([]types.CapturePoint, 0, len(secs))
	for i, s := range secs {
		points = append(points, timestampPoint(clamp(s, duration), reasons[i]))
	}
	return points
}

// timelinePoints samples every max(30s, duration/10), which caps the
// plan at roughly ten points regardless of length.
func timelinePoints(duration float64) []types.CapturePoint {
	step := math.Max(30, duration/10)
	count := int(math.Ceil(duration / step))
	if count < 1 {
		count = 1
	}

	points := make([]types.CapturePoint, 0, count)
	for i := 0; i < count; i++ {
		s := float64(i) * step
		if s >= duration && i > 0 {
			break
		}
		points = append(points, timestampPoint(clamp(s, duration),
			fmt.Sprintf("timeline position %d of %d", i+1, count)))
	}
	return points
}

// codeFocusedPoints interleaves event-triggered captures (editor and
// terminal visibility) with fixed checkpoints at 25/50/75%.
func codeFocusedPoints(duration float64) []types.CapturePoint {
	return []types.CapturePoint{
		eventPoint("code editor visible", "code shown on screen", "capture the first code example"),
		timestampPoint(clamp(0.25*duration, duration), "first quarter checkpoint"),
		eventPoint("terminal or console output", "command output on screen", "capture execution results"),
		timestampPoint(clamp(0.50*duration, duration), "midpoint checkpoint"),
		timestampPoint(clamp(0.75*duration, duration), "final quarter checkpoint"),
	}
}

// slideTransitionPoints emits a single repeating event point. The
// executor expands it by sampling the video and capturing each detected
// slide change, so the final frame count is data-dependent.
func slideTransitionPoints() []types.CapturePoint {
	return []types.CapturePoint{
		eventPoint("slide transition detected", "new slide on screen", "capture each slide change"),
	}
}

// educationalPoints follows a typical lesson arc from introduction to
// wrap-up.
func educationalPoints(duration float64) []types.CapturePoint {
	fracs := []float64{0, 0.15, 0.35, 0.55, 0.75, 0.90}
	reasons := []string{
		"introduction",
		"first core concept",
		"concept development",
		"worked example",
		"advanced material",
		"summary and conclusions",
	}

	points := make([]types.CapturePoint, 0, len(fracs))
	for i, f := range fracs {
		points = append(points, timestampPoint(clamp(f*duration, duration), reasons[i]))
	}
	return points
}

// comprehensivePoints spreads six captures evenly, stopping short of
// the very end of the video.
func comprehensivePoints(duration float64) []types.CapturePoint {
	const count = 6
	points := make([]types.CapturePoint, 0, count)
	for i := 0; i < count; i++ {
		s := float64(i) * duration / count
		points = append(points, timestampPoint(clamp(s, duration),
			fmt.Sprintf("even coverage %d of %d", i+1, count)))
	}
	return points
}

// fallbackPoints is the minimal start/middle/end plan used when intent
// or duration is unavailable. Without a duration the Seconds values are
// percentages (0, 50, 95) for the executor to resolve against whatever
// length the player reports at seek time.
func fallbackPoints(duration float64) []types.CapturePoint {
	secs := []float64{0, 50, 95}
	if duration > 0 {
		secs = []float64{0, 0.50 * duration, 0.95 * duration}
	}
	reasons := []string{"start of video", "middle of video", "near the end"}

	points := make([]types.CapturePoint, 0, len(secs))
	for i, s := range secs {
		points = append(points, timestampPoint(s, reasons[i]))
	}
	return points
}

func timestampPoint(seconds float64, reason string) types.CapturePoint {
	// Millisecond precision; anything finer is float noise the player
	// cannot seek to anyway.
	seconds = math.Round(seconds*1000) / 1000
	return types.CapturePoint{
		Kind:        types.PointTimestamp,
		Seconds:     seconds,
		Description: fmt.Sprintf("frame at %.0fs", seconds),
		Reason:      reason,
	}
}

func eventPoint(event, description, reason string) types.CapturePoint {
	return types.CapturePoint{
		Kind:        types.PointEvent,
		Event:       event,
		Description: description,
		Reason:      reason,
	}
}

// clamp bounds a timestamp to [0, duration]. With no known duration the
// caller passes percentage values, which are bounded elsewhere.
func clamp(seconds, duration float64) float64 {
	if seconds < 0 {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}
