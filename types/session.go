// Package types provides core types used across the videoflow pipeline.
// This package has ZERO dependencies on other videoflow packages to avoid circular imports.
// All other packages should import types from here.
package types

import "time"

// SessionStatus represents the lifecycle state of an analysis session.
type SessionStatus string

const (
	StatusInitializing    SessionStatus = "initializing"
	StatusNavigating      SessionStatus = "navigating"
	StatusDetectingPlayer SessionStatus = "detecting_player"
	StatusCapturing       SessionStatus = "capturing"
	StatusAnalyzing       SessionStatus = "analyzing"
	StatusSynthesizing    SessionStatus = "synthesizing"
	StatusCompleted       SessionStatus = "completed"
	StatusFailed          SessionStatus = "failed"
	StatusCancelled       SessionStatus = "cancelled"
)

// pipelineOrder defines the linear happy path through the state machine.
var pipelineOrder = map[SessionStatus]SessionStatus{
	StatusInitializing:    StatusNavigating,
	StatusNavigating:      StatusDetectingPlayer,
	StatusDetectingPlayer: StatusCapturing,
	StatusCapturing:       StatusAnalyzing,
	StatusAnalyzing:       StatusSynthesizing,
	StatusSynthesizing:    StatusCompleted,
}

// IsTerminal reports whether the status admits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition. Any non-terminal state may move to failed
// or cancelled; otherwise only the next pipeline stage is allowed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed || next == StatusCancelled {
		return true
	}
	return pipelineOrder[s] == next
}

// Valid reports whether the status is one of the defined values.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusInitializing, StatusNavigating, StatusDetectingPlayer,
		StatusCapturing, StatusAnalyzing, StatusSynthesizing,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SessionOptions carries per-session overrides for pipeline tuning.
// Zero values mean "use the configured default".
type SessionOptions struct {
	Concurrency  int    `json:"concurrency,omitempty"`
	BatchDelayMs int    `json:"batch_delay_ms,omitempty"`
	MaxFrames    int    `json:"max_frames,omitempty"`
	VisionModel  string `json:"vision_model,omitempty"`
}

// AnalysisRequest is the input that starts a session: a target URL and
// a natural-language prompt describing what the caller wants to know.
type AnalysisRequest struct {
	URL     string          `json:"url"`
	Prompt  string          `json:"prompt"`
	Options *SessionOptions `json:"options,omitempty"`
}

// Session is the queryable record of one analysis run. Progress is a
// percentage in [0,100] and never decreases while the session is live.
// Exactly one of Result and Error is set once the session is terminal.
type Session struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Prompt    string         `json:"prompt"`
	Status    SessionStatus  `json:"status"`
	Progress  float64        `json:"progress"`
	Result    *SessionResult `json:"result,omitempty"`
	Error     *Error         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// SessionResult bundles everything a completed session produced: the
// synthesized answer plus every per-frame analysis, including the ones
// that errored.
type SessionResult struct {
	Synthesis      *SynthesizedResult `json:"synthesis"`
	FrameAnalyses  []FrameAnalysis    `json:"frame_analyses"`
	FramesCaptured int                `json:"frames_captured"`
	Strategy       CaptureStrategy    `json:"strategy"`
	VideoDuration  float64            `json:"video_duration_seconds"`
	Elapsed        time.Duration      `json:"elapsed_ns"`
}

// ValidAnalyses returns the analyses that carry text rather than an error.
func (r *SessionResult) ValidAnalyses() []FrameAnalysis {
	out := make([]FrameAnalysis, 0, len(r.FrameAnalyses))
	for _, a := range r.FrameAnalyses {
		if !a.Failed() {
			out = append(out, a)
		}
	}
	return out
}
