package api

import (
	"time"

	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 会话类型
// =============================================================================

// StartSessionRequest 启动视频分析会话的请求。
// @Description 会话创建请求结构
type StartSessionRequest struct {
	// 包含目标视频的页面 URL
	URL string `json:"url" example:"https://videos.example.com/walkthrough" binding:"required"`
	// 自然语言分析指令
	Prompt string `json:"prompt" example:"summarize this video" binding:"required"`
	// 可选的执行参数覆盖
	Options *SessionOptions `json:"options,omitempty"`
}

// SessionOptions 会话级执行参数覆盖。
// @Description 会话选项结构
type SessionOptions struct {
	// 单批并发推理数
	Concurrency int `json:"concurrency,omitempty" example:"3"`
	// 批间延迟（毫秒）
	BatchDelayMs int `json:"batch_delay_ms,omitempty" example:"2000"`
	// 最大截帧数
	MaxFrames int `json:"max_frames,omitempty" example:"8"`
	// 视觉模型覆盖（例如 gpt-4o、gpt-4o-mini）
	VisionModel string `json:"vision_model,omitempty" example:"gpt-4o"`
}

// ToTypes 转换为流水线内部的选项类型。
func (o *SessionOptions) ToTypes() *types.SessionOptions {
	if o == nil {
		return nil
	}
	return &types.SessionOptions{
		Concurrency:  o.Concurrency,
		BatchDelayMs: o.BatchDelayMs,
		MaxFrames:    o.MaxFrames,
		VisionModel:  o.VisionModel,
	}
}

// StartSessionResponse 表示会话创建响应。
// @Description 会话创建响应结构
type StartSessionResponse struct {
	// 会话ID
	SessionID string `json:"session_id" example:"3e9a1f2c-8d3b-4f6e-9a3b-1c2d3e4f5a6b"`
	// 初始状态
	Status string `json:"status" example:"initializing"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
}

// SessionStatusResponse 表示会话状态快照。
// @Description 会话状态响应结构
type SessionStatusResponse struct {
	// 会话ID
	ID string `json:"id" example:"3e9a1f2c-8d3b-4f6e-9a3b-1c2d3e4f5a6b"`
	// 目标页面 URL
	URL string `json:"url" example:"https://videos.example.com/walkthrough"`
	// 分析指令
	Prompt string `json:"prompt" example:"summarize this video"`
	// 当前状态
	Status string `json:"status" example:"analyzing"`
	// 进度百分比（0-100，单调不减）
	Progress float64 `json:"progress" example:"70"`
	// 终态错误（仅失败/取消时）
	Error *ErrorDetail `json:"error,omitempty"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
	// 最后更新时间戳
	UpdatedAt time.Time `json:"updated_at"`
	// 结束时间戳（仅终态）
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// NewSessionStatusResponse 从会话快照构建状态响应。
func NewSessionStatusResponse(sess *types.Session) *SessionStatusResponse {
	resp := &SessionStatusResponse{
		ID:        sess.ID,
		URL:       sess.URL,
		Prompt:    sess.Prompt,
		Status:    string(sess.Status),
		Progress:  sess.Progress,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		EndedAt:   sess.EndedAt,
	}
	if sess.Error != nil {
		resp.Error = &ErrorDetail{
			Code:      string(sess.Error.Code),
			Message:   sess.Error.Message,
			Retryable: sess.Error.Retryable,
		}
	}
	return resp
}

// =============================================================================
// 结果类型
// =============================================================================

// SessionResultResponse 表示已完成会话的结果。
// @Description 会话结果响应结构
type SessionResultResponse struct {
	// 合成结果
	Synthesis *SynthesisResult `json:"synthesis"`
	// 逐帧分析（含失败帧）
	FrameAnalyses []FrameAnalysis `json:"frame_analyses"`
	// 实际截帧数
	FramesCaptured int `json:"frames_captured" example:"5"`
	// 使用的截帧策略
	Strategy string `json:"strategy" example:"summary"`
	// 视频时长（秒，0 表示未知）
	VideoDurationSeconds float64 `json:"video_duration_seconds" example:"120"`
	// 会话耗时（毫秒）
	ElapsedMs int64 `json:"elapsed_ms" example:"95000"`
}

// SynthesisResult 表示跨帧合成的最终回答。
// @Description 合成结果结构
type SynthesisResult struct {
	// 合成类型（summary、extraction、evaluation、timeline、report、study_notes、comprehensive）
	Type string `json:"type" example:"summary"`
	// 合成回答正文
	Response string `json:"response"`
	// 关键主题（启发式抽取，可为空）
	KeyThemes []string `json:"key_themes,omitempty"`
	// 可执行建议（启发式抽取，可为空）
	ActionableInsights []string `json:"actionable_insights,omitempty"`
	// 执行摘要（启发式抽取，可为空）
	ExecutiveSummary string `json:"executive_summary,omitempty"`
}

// FrameAnalysis 表示单帧的推理结果。
// @Description 帧分析结构
type FrameAnalysis struct {
	// 帧号（从 1 开始）
	FrameNumber int `json:"frame_number" example:"1"`
	// 分析文本（失败帧为空）
	Analysis string `json:"analysis,omitempty"`
	// 置信度（0-100）
	Confidence float64 `json:"confidence" example:"85"`
	// 关键发现
	KeyFindings []string `json:"key_findings,omitempty"`
	// 失败原因（成功帧为空）
	Error string `json:"error,omitempty"`
}

// NewSessionResultResponse 从流水线结果构建 API 响应。
func NewSessionResultResponse(res *types.SessionResult) *SessionResultResponse {
	resp := &SessionResultResponse{
		FramesCaptured:       res.FramesCaptured,
		Strategy:             string(res.Strategy),
		VideoDurationSeconds: res.VideoDuration,
		ElapsedMs:            res.Elapsed.Milliseconds(),
	}

	if syn := res.Synthesis; syn != nil {
		resp.Synthesis = &SynthesisResult{
			Type:               string(syn.Type),
			Response:           syn.Response,
			KeyThemes:          syn.KeyThemes,
			ActionableInsights: syn.ActionableInsights,
			ExecutiveSummary:   syn.ExecutiveSummary,
		}
	}

	resp.FrameAnalyses = make([]FrameAnalysis, len(res.FrameAnalyses))
	for i, a := range res.FrameAnalyses {
		resp.FrameAnalyses[i] = FrameAnalysis{
			FrameNumber: a.FrameNumber,
			Analysis:    a.Analysis,
			Confidence:  a.Confidence,
			KeyFindings: a.KeyFindings,
			Error:       a.Error,
		}
	}

	return resp
}

// =============================================================================
// 归档类型
// =============================================================================

// ArchivedSessionSummary 表示归档列表中的一条会话记录。
// @Description 归档会话摘要结构
type ArchivedSessionSummary struct {
	// 会话ID
	SessionID string `json:"session_id" example:"3e9a1f2c-8d3b-4f6e-9a3b-1c2d3e4f5a6b"`
	// 目标页面 URL
	URL string `json:"url"`
	// 分析指令
	Prompt string `json:"prompt" example:"summarize this video"`
	// 终态
	Status string `json:"status" example:"completed"`
	// 截帧策略
	Strategy string `json:"strategy" example:"summary"`
	// 实际截帧数
	FramesCaptured int `json:"frames_captured" example:"5"`
	// 失败错误码（仅失败会话）
	ErrorCode string `json:"error_code,omitempty" example:"NAVIGATION_FAILED"`
	// 开始时间
	StartedAt time.Time `json:"started_at"`
	// 结束时间
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// ArchiveListResponse 表示归档查询结果。
// @Description 归档列表响应结构
type ArchiveListResponse struct {
	// 当前页的会话
	Sessions []ArchivedSessionSummary `json:"sessions"`
	// 过滤后的总条数
	Total int64 `json:"total" example:"42"`
}

// =============================================================================
// 预设类型
// =============================================================================

// AnalysisSettingsRequest 表示保存分析预设的请求。
// @Description 预设保存请求结构
type AnalysisSettingsRequest struct {
	// 预设名称（唯一）
	Name string `json:"name" example:"fast-preview" binding:"required"`
	// 单批并发推理数
	Concurrency int `json:"concurrency,omitempty" example:"2"`
	// 批间延迟（毫秒）
	BatchDelayMs int `json:"batch_delay_ms,omitempty" example:"500"`
	// 最大截帧数
	MaxFrames int `json:"max_frames,omitempty" example:"3"`
	// 视觉模型
	VisionModel string `json:"vision_model,omitempty" example:"gpt-4o-mini"`
	// 是否设为默认预设（互斥）
	IsDefault bool `json:"is_default,omitempty" example:"false"`
}

// AnalysisSettingsResponse 表示一条分析预设。
// @Description 预设响应结构
type AnalysisSettingsResponse struct {
	// 预设ID
	ID uint `json:"id" example:"1"`
	// 预设名称
	Name string `json:"name" example:"fast-preview"`
	// 单批并发推理数
	Concurrency int `json:"concurrency" example:"2"`
	// 批间延迟（毫秒）
	BatchDelayMs int `json:"batch_delay_ms" example:"500"`
	// 最大截帧数
	MaxFrames int `json:"max_frames" example:"3"`
	// 视觉模型
	VisionModel string `json:"vision_model" example:"gpt-4o-mini"`
	// 是否为默认预设
	IsDefault bool `json:"is_default" example:"false"`
	// 创建时间戳
	CreatedAt time.Time `json:"created_at"`
	// 最后更新时间戳
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"Invalid request parameters"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 返回错误的提供者
	Provider string `json:"provider,omitempty" example:"openai"`
}
