package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/testutil"
	"github.com/BaSui01/videoflow/testutil/mocks"
	"github.com/BaSui01/videoflow/types"
)

func makeFrames(n int) []types.Frame {
	frames := make([]types.Frame, n)
	for i := 0; i < n; i++ {
		ts := float64(i * 30)
		frames[i] = types.Frame{
			Number:    i + 1,
			Timestamp: &ts,
			Image:     []byte(fmt.Sprintf("jpeg-bytes-%d", i)),
		}
	}
	return frames
}

func newLocalCache() framecache.Cache {
	return framecache.NewMultiLevel(nil, &framecache.Config{
		LocalMaxSize: 128,
		LocalTTL:     time.Minute,
		RedisTTL:     time.Hour,
		EnableLocal:  true,
	}, zap.NewNop())
}

func fastConfig(concurrency int) Config {
	cfg := DefaultConfig()
	cfg.Concurrency = concurrency
	cfg.BatchDelay = 0
	return cfg
}

func TestAnalyzeBatchPreservesOrderAndLength(t *testing.T) {
	provider := mocks.NewMockVisionProvider().WithResponse("The frame shows a terminal window.")
	a := NewAnalyzer(provider, nil, fastConfig(3), zap.NewNop())

	frames := makeFrames(7)
	results := a.AnalyzeBatch(context.Background(), "sess-1", frames, "summarize this video")

	require.Len(t, results, 7)
	for i, res := range results {
		assert.Equal(t, frames[i].Number, res.FrameNumber)
		assert.False(t, res.Failed())
		assert.Equal(t, "The frame shows a terminal window.", res.Analysis)
	}
	assert.Equal(t, 7, provider.CallCount())
}

func TestAnalyzeBatchEmptyInput(t *testing.T) {
	a := NewAnalyzer(mocks.NewMockVisionProvider(), nil, fastConfig(3), zap.NewNop())

	assert.Nil(t, a.AnalyzeBatch(context.Background(), "sess-1", nil, "summarize"))
	assert.Nil(t, a.AnalyzeBatch(context.Background(), "sess-1", []types.Frame{}, "summarize"))
}

func TestAnalyzeBatchSleepsBetweenBatches(t *testing.T) {
	provider := mocks.NewMockVisionProvider()
	cfg := fastConfig(2)
	cfg.BatchDelay = 40 * time.Millisecond
	a := NewAnalyzer(provider, nil, cfg, zap.NewNop())

	// 5 frames at concurrency 2 is three batches, so two inter-batch
	// sleeps.
	start := time.Now()
	results := a.AnalyzeBatch(context.Background(), "sess-1", makeFrames(5), "summarize")
	elapsed := time.Since(start)

	require.Len(t, results, 5)
	assert.Equal(t, 5, provider.CallCount())
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestAnalyzeBatchDowngradesFailedFrames(t *testing.T) {
	provider := mocks.NewMockVisionProvider().
		WithFailAfter(2, errors.New("upstream rejected the request"))
	// Concurrency 1 keeps call order deterministic.
	a := NewAnalyzer(provider, nil, fastConfig(1), zap.NewNop())

	frames := makeFrames(4)
	results := a.AnalyzeBatch(context.Background(), "sess-1", frames, "summarize")

	require.Len(t, results, 4)
	assert.False(t, results[0].Failed())
	assert.False(t, results[1].Failed())
	assert.True(t, results[2].Failed())
	assert.True(t, results[3].Failed())
	assert.Contains(t, results[2].Error, "upstream rejected")
	assert.Empty(t, results[2].Analysis)

	// A failed frame costs exactly one call: no retries.
	assert.Equal(t, 4, provider.CallCount())
}

func TestAnalyzeBatchCacheHitSkipsProvider(t *testing.T) {
	provider := mocks.NewMockVisionProvider()
	cache := newLocalCache()
	a := NewAnalyzer(provider, cache, fastConfig(3), zap.NewNop())

	frames := makeFrames(3)
	first := a.AnalyzeBatch(context.Background(), "sess-1", frames, "summarize")
	require.Len(t, first, 3)
	require.Equal(t, 3, provider.CallCount())

	// Same frames, same prompt: everything resolves from cache, even in
	// a different session.
	second := a.AnalyzeBatch(context.Background(), "sess-2", frames, "summarize")
	require.Len(t, second, 3)
	assert.Equal(t, 3, provider.CallCount())
	for i := range second {
		assert.Equal(t, first[i].Analysis, second[i].Analysis)
		assert.Equal(t, frames[i].Number, second[i].FrameNumber)
	}

	// A different prompt is a different cache identity.
	a.AnalyzeBatch(context.Background(), "sess-1", frames, "explain the code")
	assert.Equal(t, 6, provider.CallCount())
}

func TestAnalyzeBatchFailedFramesAreNotCached(t *testing.T) {
	provider := mocks.NewMockVisionProvider().WithError(errors.New("boom"))
	cache := newLocalCache()
	a := NewAnalyzer(provider, cache, fastConfig(1), zap.NewNop())

	frames := makeFrames(1)
	first := a.AnalyzeBatch(context.Background(), "sess-1", frames, "summarize")
	require.True(t, first[0].Failed())

	// After the fault clears, the same frame goes upstream again instead
	// of replaying the failure from cache.
	provider.Reset()
	second := a.AnalyzeBatch(context.Background(), "sess-1", frames, "summarize")
	require.False(t, second[0].Failed())
	assert.Equal(t, 1, provider.CallCount())
}

func TestAnalyzeBatchSingleflightCollapsesConcurrentMisses(t *testing.T) {
	provider := mocks.NewMockVisionProvider().WithDelay(60 * time.Millisecond)
	cache := newLocalCache()
	a := NewAnalyzer(provider, cache, fastConfig(3), zap.NewNop())

	frames := makeFrames(1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			res := a.AnalyzeBatch(context.Background(), session, frames, "summarize")
			assert.False(t, res[0].Failed())
		}(fmt.Sprintf("sess-%d", i))
	}
	wg.Wait()

	// Four concurrent sessions asking about the same frame share one
	// upstream call.
	assert.Equal(t, 1, provider.CallCount())
}

func TestAnalyzeBatchCancelledBeforeStart(t *testing.T) {
	provider := mocks.NewMockVisionProvider()
	a := NewAnalyzer(provider, nil, fastConfig(2), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := a.AnalyzeBatch(ctx, "sess-1", makeFrames(5), "summarize")

	require.Len(t, results, 5)
	for _, res := range results {
		assert.True(t, res.Failed())
	}
}

func TestAnalyzeBatchCancelMidRunKeepsCompletedWork(t *testing.T) {
	provider := mocks.NewMockVisionProvider()
	cfg := fastConfig(2)
	cfg.BatchDelay = 10 * time.Second
	a := NewAnalyzer(provider, nil, cfg, zap.NewNop())

	ctx := testutil.TestContextWithTimeout(t, 80*time.Millisecond)

	// The first batch finishes instantly; cancellation lands during the
	// inter-batch sleep and the remaining frames are abandoned without
	// waiting out the delay.
	start := time.Now()
	results := a.AnalyzeBatch(ctx, "sess-1", makeFrames(4), "summarize")

	require.Len(t, results, 4)
	assert.False(t, results[0].Failed())
	assert.False(t, results[1].Failed())
	assert.True(t, results[2].Failed())
	assert.True(t, results[3].Failed())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 2, provider.CallCount())
}

func TestAnalyzeBatchPromptCarriesProvenanceAndGuidance(t *testing.T) {
	provider := mocks.NewMockVisionProvider()
	a := NewAnalyzer(provider, nil, fastConfig(1), zap.NewNop())

	ts := 12.0
	frames := []types.Frame{{
		Number:        1,
		Timestamp:     &ts,
		Image:         []byte("img"),
		Context:       "slide 2",
		CaptureReason: "slide transition detected",
	}}
	a.AnalyzeBatch(context.Background(), "sess-1", frames, "explain the code shown")

	calls := provider.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Prompt
	assert.Contains(t, prompt, "frame 1")
	assert.Contains(t, prompt, "at 12.0s")
	assert.Contains(t, prompt, "slide 2")
	assert.Contains(t, prompt, "slide transition detected")
	assert.Contains(t, prompt, "User request: explain the code shown")
	assert.Contains(t, prompt, "For code analysis")
	assert.Equal(t, []byte("img"), calls[0].Image)
}

func TestDeriveConfidence(t *testing.T) {
	long := strings.Repeat("The screen shows a detailed dashboard. ", 12) // > 400 chars
	medium := strings.Repeat("Shows a chart. ", 12)                       // 150..400 chars

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"explicit percentage", "Contains a login form.\nconfidence: 92%", 92},
		{"explicit percentage is case-insensitive", "Confidence: 45 %", 45},
		{"explicit percentage clamps at 100", "confidence: 250%", 100},
		{"long unhedged answer", long, 85},
		{"medium answer", medium, 70},
		{"short answer", "A chart.", 60},
		{"hedged long answer drops a tier", long + " It might be a staging environment.", 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveConfidence(tt.text))
		})
	}
}

func TestExtractFindings(t *testing.T) {
	text := strings.Join([]string{
		"The frame shows an IDE.",
		"- main.go is open",
		"* a test is failing",
		"• the terminal shows a stack trace",
		"not a bullet",
		"- fourth finding",
		"- fifth finding",
		"- sixth finding is dropped",
	}, "\n")

	findings := extractFindings(text)
	require.Len(t, findings, 5)
	assert.Equal(t, "main.go is open", findings[0])
	assert.Equal(t, "a test is failing", findings[1])
	assert.Equal(t, "the terminal shows a stack trace", findings[2])

	assert.Nil(t, extractFindings("prose without any bullets"))
}

func TestNewAnalyzerDefaults(t *testing.T) {
	a := NewAnalyzer(mocks.NewMockVisionProvider(), nil, Config{Concurrency: -1, BatchDelay: -time.Second}, nil)
	assert.Equal(t, 3, a.config.Concurrency)
	assert.Equal(t, time.Duration(0), a.config.BatchDelay)
	assert.Equal(t, 1024, a.config.MaxTokens)
	require.NotNil(t, a.logger)
}
