// =============================================================================
// 📦 测试数据工厂 - 会话流水线测试数据
// =============================================================================
// 提供预定义的请求、元数据、采集计划与分析结果，用于测试
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 🎬 请求与元数据工厂
// =============================================================================

// AnalysisRequest 返回一个典型的讲座分析请求
func AnalysisRequest() types.AnalysisRequest {
	return types.AnalysisRequest{
		URL:    "https://videos.example/lectures/go-concurrency",
		Prompt: "Summarize the main points of this lecture",
	}
}

// AnalysisRequestWithOptions 返回带流水线调优覆盖的请求
func AnalysisRequestWithOptions(opts types.SessionOptions) types.AnalysisRequest {
	req := AnalysisRequest()
	req.Options = &opts
	return req
}

// LectureMetadata 返回一个 30 分钟讲座的播放器元数据
func LectureMetadata() types.VideoMetadata {
	return types.VideoMetadata{
		Duration:   1800,
		ReadyState: 4,
		Width:      1920,
		Height:     1080,
		Title:      "Go Concurrency Patterns",
	}
}

// ShortClipMetadata 返回一个 90 秒短片的播放器元数据
func ShortClipMetadata() types.VideoMetadata {
	return types.VideoMetadata{
		Duration:   90,
		ReadyState: 4,
		Width:      1280,
		Height:     720,
	}
}

// LiveStreamMetadata 返回一个未上报时长的播放器元数据（直播场景）
func LiveStreamMetadata() types.VideoMetadata {
	return types.VideoMetadata{
		Duration:   0,
		ReadyState: 4,
		Width:      1280,
		Height:     720,
	}
}

// =============================================================================
// 🗺️ 采集计划工厂
// =============================================================================

// TimestampPlan 从给定的秒数构造一个时间点采集计划
func TimestampPlan(strategy types.CaptureStrategy, seconds ...float64) *types.CapturePlan {
	points := make([]types.CapturePoint, 0, len(seconds))
	for i, s := range seconds {
		points = append(points, types.CapturePoint{
			Kind:        types.PointTimestamp,
			Seconds:     s,
			Description: fmt.Sprintf("capture point %d", i+1),
		})
	}
	return &types.CapturePlan{
		Strategy:    strategy,
		Points:      points,
		OptimizeFor: strategy,
	}
}

// =============================================================================
// 🖼️ 帧与分析结果工厂
// =============================================================================

// FrameImage 返回第 n 帧的伪 JPEG 字节,各帧内容互不相同,
// 避免内容寻址缓存在测试里串键
func FrameImage(n int) []byte {
	return append([]byte("\xff\xd8\xfftest-frame-"), []byte(fmt.Sprintf("%04d", n))...)
}

// Frames 返回 n 个带时间戳的帧,时间戳按 interval 秒递增
func Frames(n int, interval float64) []types.Frame {
	frames := make([]types.Frame, 0, n)
	for i := 0; i < n; i++ {
		ts := float64(i) * interval
		frames = append(frames, types.Frame{
			Number:        i + 1,
			Timestamp:     &ts,
			Image:         FrameImage(i + 1),
			CaptureReason: "planned capture",
		})
	}
	return frames
}

// FrameAnalyses 返回 n 个成功的逐帧分析结果
func FrameAnalyses(n int) []types.FrameAnalysis {
	analyses := make([]types.FrameAnalysis, 0, n)
	for i := 0; i < n; i++ {
		analyses = append(analyses, types.FrameAnalysis{
			FrameNumber: i + 1,
			Analysis:    fmt.Sprintf("Frame %d shows a slide about goroutines.", i+1),
			Confidence:  0.9,
			KeyFindings: []string{"goroutines", "channels"},
		})
	}
	return analyses
}

// CompletedResult 返回一个 n 帧全部分析成功的完整会话结果
func CompletedResult(n int) *types.SessionResult {
	return &types.SessionResult{
		Synthesis: &types.SynthesizedResult{
			Type:     types.SynthesisSummary,
			Response: "The lecture covers goroutines, channels, and select-based pipelines.",
		},
		FrameAnalyses:  FrameAnalyses(n),
		FramesCaptured: n,
		Strategy:       types.StrategySummary,
		VideoDuration:  1800,
		Elapsed:        42 * time.Second,
	}
}
