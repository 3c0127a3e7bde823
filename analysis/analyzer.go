package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/planner"
	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

// Config tunes batching and the upstream inference calls.
type Config struct {
	// Concurrency is the batch size; calls within a batch run
	// concurrently.
	Concurrency int
	// BatchDelay is the fixed pause between batches, purely to respect
	// the upstream rate limit. Not adaptive.
	BatchDelay  time.Duration
	MaxTokens   int
	Temperature float64
	Model       string
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
		BatchDelay:  2 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Analyzer sends captured frames to the vision endpoint in rate-paced
// batches. Results always match the input 1:1 in length and order; a
// frame whose call fails is downgraded to an errored FrameAnalysis and
// never aborts its batch.
type Analyzer struct {
	provider vision.Provider
	cache    framecache.Cache
	config   Config
	logger   *zap.Logger
	sf       singleflight.Group
}

// NewAnalyzer creates a frame analyzer. cache may be nil to disable
// caching entirely.
func NewAnalyzer(provider vision.Provider, cache framecache.Cache, config Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = 0
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	return &Analyzer{
		provider: provider,
		cache:    cache,
		config:   config,
		logger:   logger.With(zap.String("component", "analyzer")),
	}
}

// AnalyzeBatch analyzes every frame and returns exactly len(frames)
// results in input order. Frames are partitioned into batches of the
// configured concurrency; between batches the analyzer sleeps the
// fixed batch delay. Cancellation marks all unprocessed frames as
// errored rather than shortening the result.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, sessionID string, frames []types.Frame, prompt string) []types.FrameAnalysis {
	if len(frames) == 0 {
		return nil
	}

	guidance := guidanceFor(planner.Classify(prompt))
	results := make([]types.FrameAnalysis, len(frames))

	var cacheHits atomic.Int64
	start := time.Now()

	for batchStart := 0; batchStart < len(frames); batchStart += a.config.Concurrency {
		if batchStart > 0 && a.config.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				a.fillCancelled(results, frames, batchStart, ctx.Err())
				return results
			case <-time.After(a.config.BatchDelay):
			}
		}

		batchEnd := batchStart + a.config.Concurrency
		if batchEnd > len(frames) {
			batchEnd = len(frames)
		}

		g, gctx := errgroup.WithContext(ctx)
		for idx := batchStart; idx < batchEnd; idx++ {
			frame := frames[idx]
			g.Go(func() error {
				res, hit := a.analyzeFrame(gctx, sessionID, frame, prompt, guidance)
				if hit {
					cacheHits.Add(1)
				}
				results[idx] = res
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			a.fillCancelled(results, frames, batchEnd, err)
			return results
		}
	}

	errored := 0
	for _, r := range results {
		if r.Failed() {
			errored++
		}
	}
	a.logger.Info("frame analysis complete",
		zap.String("session_id", sessionID),
		zap.Int("frames", len(frames)),
		zap.Int("errored", errored),
		zap.Int64("cache_hits", cacheHits.Load()),
		zap.Duration("elapsed", time.Since(start)))

	return results
}

// analyzeFrame resolves one frame through the cache or the provider.
// The second return reports a cache hit.
func (a *Analyzer) analyzeFrame(ctx context.Context, sessionID string, frame types.Frame, prompt, guidance string) (types.FrameAnalysis, bool) {
	var key string
	if a.cache != nil {
		key = a.cache.Key(sessionID, frame, prompt)
		if entry, err := a.cache.Get(ctx, key); err == nil {
			res := entry.Analysis
			res.FrameNumber = frame.Number
			return res, true
		}
	}

	call := func() (any, error) {
		temp := a.config.Temperature
		resp, err := a.provider.Infer(ctx, &vision.InferRequest{
			Prompt:      buildFramePrompt(frame, prompt, guidance),
			Image:       frame.Image,
			Model:       a.config.Model,
			MaxTokens:   a.config.MaxTokens,
			Temperature: &temp,
		})
		if err != nil {
			return nil, err
		}

		res := types.FrameAnalysis{
			FrameNumber: frame.Number,
			Analysis:    resp.Text,
			Confidence:  deriveConfidence(resp.Text),
			KeyFindings: extractFindings(resp.Text),
		}
		if a.cache != nil {
			if err := a.cache.Set(ctx, key, &framecache.Entry{Analysis: res, Model: resp.Model}); err != nil {
				a.logger.Debug("cache write failed", zap.Error(err))
			}
		}
		return res, nil
	}

	var (
		v   any
		err error
	)
	if a.cache != nil {
		// Concurrent misses on the same key collapse into one upstream
		// call; the at-most-once guarantee holds across sessions too.
		v, err, _ = a.sf.Do(key, call)
	} else {
		v, err = call()
	}
	if err != nil {
		a.logger.Warn("frame analysis failed",
			zap.String("session_id", sessionID),
			zap.Int("frame", frame.Number),
			zap.Error(err))
		return types.NewErroredAnalysis(frame.Number, err), false
	}

	res := v.(types.FrameAnalysis)
	res.FrameNumber = frame.Number
	return res, false
}

func (a *Analyzer) fillCancelled(results []types.FrameAnalysis, frames []types.Frame, from int, err error) {
	for i := from; i < len(results); i++ {
		results[i] = types.NewErroredAnalysis(frames[i].Number, err)
	}
	a.logger.Info("analysis cancelled",
		zap.Int("completed", from),
		zap.Int("abandoned", len(results)-from))
}

// buildFramePrompt assembles the upstream prompt from the user request,
// the frame's provenance, and intent-specific guidance.
func buildFramePrompt(frame types.Frame, userPrompt, guidance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing frame %d of a video", frame.Number)
	if frame.Timestamp != nil {
		fmt.Fprintf(&b, " at %.1fs", *frame.Timestamp)
	}
	if frame.Context != "" {
		fmt.Fprintf(&b, " (%s)", frame.Context)
	}
	b.WriteString(".\n")
	if frame.CaptureReason != "" {
		fmt.Fprintf(&b, "It was captured because: %s.\n", frame.CaptureReason)
	}
	fmt.Fprintf(&b, "User request: %s\n", userPrompt)
	if guidance != "" {
		b.WriteString(guidance)
		b.WriteString("\n")
	}
	b.WriteString("Give your analysis, list key findings as '-' bullet lines, and end with 'confidence: N%' if you can estimate it.")
	return b.String()
}

// guidanceFor maps the prompt's intent family onto analysis guidance,
// mirroring the planner's keyword classification.
func guidanceFor(strategy types.CaptureStrategy) string {
	switch strategy {
	case types.StrategyCodeFocused:
		return "For code analysis: extract visible code snippets, identify the programming languages, and note any errors or warnings on screen."
	case types.StrategySummary:
		return "Focus on what this frame contributes to the video's overall story."
	case types.StrategyTimeline:
		return "Note what stage of the video this frame represents and any visible progress markers."
	case types.StrategySlideTransitions:
		return "Transcribe the slide title and its key bullet points."
	case types.StrategyEducational:
		return "Identify the concept being taught and any definitions, formulas, or worked examples shown."
	default:
		return "Describe everything notable: people, on-screen text, interface elements, and activity."
	}
}

var confidencePattern = regexp.MustCompile(`(?i)confidence:\s*(\d{1,3})\s*%`)

// deriveConfidence parses an explicit "confidence: N%" token, falling
// back to a coarse length/hedge-word heuristic. The upstream API has no
// calibrated score, so this is a proxy, not a guarantee.
func deriveConfidence(text string) float64 {
	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if n > 100 {
				n = 100
			}
			return float64(n)
		}
	}

	lower := strings.ToLower(text)
	hedged := false
	for _, w := range []string{"might", "maybe", "possibly", "unclear", "appears to", "seems to", "cannot tell", "not sure", "hard to say"} {
		if strings.Contains(lower, w) {
			hedged = true
			break
		}
	}

	switch {
	case !hedged && len(text) >= 400:
		return 85
	case len(text) >= 150:
		return 70
	default:
		return 60
	}
}

// extractFindings pulls bullet lines out of the response, bounded to 5.
func extractFindings(text string) []string {
	var findings []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		var finding string
		switch {
		case strings.HasPrefix(line, "- "):
			finding = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "* "):
			finding = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "• "):
			finding = strings.TrimSpace(strings.TrimPrefix(line, "• "))
		}
		if finding == "" {
			continue
		}
		findings = append(findings, finding)
		if len(findings) == 5 {
			break
		}
	}
	return findings
}
