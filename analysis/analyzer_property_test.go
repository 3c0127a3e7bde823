package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/videoflow/testutil/mocks"
	"github.com/BaSui01/videoflow/vision"
)

var framePromptNumber = regexp.MustCompile(`frame (\d+) of a video`)

// Whatever the frame count, batch size, or failure pattern, the result
// slice mirrors the input 1:1 and failures stay confined to their frame.
func TestAnalyzePropertyResultsMirrorInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "frames")
		concurrency := rapid.IntRange(1, 5).Draw(rt, "concurrency")

		failing := map[int]bool{}
		for i := 1; i <= n; i++ {
			if rapid.Bool().Draw(rt, fmt.Sprintf("fail-%d", i)) {
				failing[i] = true
			}
		}

		provider := mocks.NewMockVisionProvider().WithInferFunc(
			func(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error) {
				m := framePromptNumber.FindStringSubmatch(req.Prompt)
				require.NotNil(rt, m)
				num, err := strconv.Atoi(m[1])
				require.NoError(rt, err)
				if failing[num] {
					return nil, errors.New("injected failure")
				}
				return &vision.InferResponse{Text: fmt.Sprintf("analysis of frame %d", num)}, nil
			})

		a := NewAnalyzer(provider, nil, Config{Concurrency: concurrency}, zap.NewNop())
		results := a.AnalyzeBatch(context.Background(), "sess", makeFrames(n), "summarize this video")

		require.Len(rt, results, n)
		for i, res := range results {
			require.Equal(rt, i+1, res.FrameNumber)
			if failing[res.FrameNumber] {
				require.True(rt, res.Failed())
				require.Empty(rt, res.Analysis)
			} else {
				require.False(rt, res.Failed())
				require.Equal(rt, fmt.Sprintf("analysis of frame %d", res.FrameNumber), res.Analysis)
			}
		}
		if n > 0 {
			require.Equal(rt, n, provider.CallCount())
		}
	})
}

// Confidence always lands in [0, 100] regardless of the response text.
func TestAnalyzePropertyConfidenceBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		c := deriveConfidence(text)
		require.GreaterOrEqual(rt, c, 0.0)
		require.LessOrEqual(rt, c, 100.0)
	})
}
