package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/videoflow/types"
)

var propertyPrompts = []string{
	"summarize this video",
	"give me an overview of the content",
	"show me the timeline",
	"how does it progress over time",
	"explain the code being written",
	"capture every slide",
	"teach me the key lessons",
	"what is this video about",
}

// Plans must stay bounded and inside the video no matter the duration.
func TestPlanPropertyPointsBoundedAndOrdered(t *testing.T) {
	p := New(zap.NewNop())

	rapid.Check(t, func(rt *rapid.T) {
		duration := rapid.Float64Range(1, 36000).Draw(rt, "duration")
		prompt := rapid.SampledFrom(propertyPrompts).Draw(rt, "prompt")

		plan := p.Plan(metaWithDuration(duration), prompt)
		require.NotNil(rt, plan)
		require.NotEmpty(rt, plan.Points)
		require.LessOrEqual(rt, len(plan.Points), 10)
		require.Equal(rt, plan.Strategy, plan.OptimizeFor)
		require.Equal(rt, Classify(prompt), plan.Strategy)

		prev := 0.0
		for _, s := range plan.TimestampSeconds() {
			require.GreaterOrEqual(rt, s, 0.0)
			require.LessOrEqual(rt, s, duration)
			require.GreaterOrEqual(rt, s, prev)
			prev = s
		}
	})
}

// Without a duration every prompt degrades to the three-point fallback
// whose values are percentages.
func TestPlanPropertyUnknownDurationFallsBack(t *testing.T) {
	p := New(zap.NewNop())

	rapid.Check(t, func(rt *rapid.T) {
		prompt := rapid.SampledFrom(propertyPrompts).Draw(rt, "prompt")

		plan := p.Plan(types.VideoMetadata{}, prompt)
		require.Equal(rt, types.StrategyFallback, plan.Strategy)
		require.True(rt, plan.PercentBased)
		require.Len(rt, plan.Points, 3)
		for _, s := range plan.TimestampSeconds() {
			require.GreaterOrEqual(rt, s, 0.0)
			require.LessOrEqual(rt, s, 100.0)
		}
	})
}
