package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/videoflow/types"
)

// ============================================================
// 会话归档
// ============================================================

// ArchivedSession 终态会话的归档记录
// ResultJSON 保存完整结果快照;扁平列冗余常用查询维度
type ArchivedSession struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	SessionID string  `gorm:"size:36;uniqueIndex;not null" json:"session_id"` // 会话 UUID
	URL       string  `gorm:"size:2048" json:"url"`                           // 目标页面
	Prompt    string  `gorm:"type:text" json:"prompt"`                        // 用户提问
	Status    string  `gorm:"size:32;index:idx_archive_status" json:"status"` // 终态
	Progress  float64 `gorm:"default:0" json:"progress"`                      // 终止时进度

	// 结果维度(仅 completed 会话填充)
	Strategy             string  `gorm:"size:32" json:"strategy"`                 // 捕获策略
	FramesCaptured       int     `gorm:"default:0" json:"frames_captured"`       // 捕获帧数
	VideoDurationSeconds float64 `gorm:"default:0" json:"video_duration_seconds"` // 视频时长
	ElapsedMs            int64   `gorm:"default:0" json:"elapsed_ms"`            // 流水线耗时
	ResultJSON           string  `gorm:"type:text" json:"result_json"`           // 结果 JSON 快照

	// 错误维度(failed/cancelled 会话填充)
	ErrorCode    string `gorm:"size:64" json:"error_code"`
	ErrorMessage string `gorm:"type:text" json:"error_message"`

	StartedAt time.Time  `json:"started_at"` // 会话创建时间
	EndedAt   *time.Time `json:"ended_at"`   // 终态时间
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (ArchivedSession) TableName() string {
	return "vf_archived_sessions"
}

// Result 反序列化归档的结果快照；没有结果的归档返回 nil。
func (a *ArchivedSession) Result() (*types.SessionResult, error) {
	if a.ResultJSON == "" {
		return nil, nil
	}
	var result types.SessionResult
	if err := json.Unmarshal([]byte(a.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode archived result for %s: %w", a.SessionID, err)
	}
	return &result, nil
}

// ============================================================
// 分析预设
// ============================================================

// AnalysisSettings 命名的会话参数预设
// 零值字段表示「使用服务端默认」,与 SessionOptions 语义一致
type AnalysisSettings struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:100;uniqueIndex;not null" json:"name"` // 预设名
	Concurrency  int    `gorm:"default:0" json:"concurrency"`              // 批内并发
	BatchDelayMs int    `gorm:"default:0" json:"batch_delay_ms"`           // 批间延迟
	MaxFrames    int    `gorm:"default:0" json:"max_frames"`               // 帧数上限
	VisionModel  string `gorm:"size:100" json:"vision_model"`              // 视觉模型
	IsDefault    bool   `gorm:"default:false;index" json:"is_default"`     // 是否默认预设

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AnalysisSettings) TableName() string {
	return "vf_analysis_settings"
}

// Options 把预设转换为会话覆盖项。
func (s *AnalysisSettings) Options() *types.SessionOptions {
	return &types.SessionOptions{
		Concurrency:  s.Concurrency,
		BatchDelayMs: s.BatchDelayMs,
		MaxFrames:    s.MaxFrames,
		VisionModel:  s.VisionModel,
	}
}
