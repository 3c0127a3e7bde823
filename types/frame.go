package types

import "fmt"

// Frame is one captured screenshot. Frames are immutable once created:
// Number is unique and ascending within a session, Timestamp is nil for
// event-triggered captures whose video position is unknown.
type Frame struct {
	Number        int      `json:"number"`
	Timestamp     *float64 `json:"timestamp,omitempty"`
	Image         []byte   `json:"image,omitempty"`
	Context       string   `json:"context,omitempty"`
	CaptureReason string   `json:"capture_reason,omitempty"`
}

// Label renders a short human-readable identifier for prompts and logs,
// e.g. "frame 3 @ 150.0s" or "frame 7 (slide 2)".
func (f Frame) Label() string {
	if f.Timestamp != nil {
		return fmt.Sprintf("frame %d @ %.1fs", f.Number, *f.Timestamp)
	}
	if f.Context != "" {
		return fmt.Sprintf("frame %d (%s)", f.Number, f.Context)
	}
	return fmt.Sprintf("frame %d", f.Number)
}

// FrameAnalysis is the per-frame inference outcome. Analysis and Error
// are mutually exclusive: a failed call yields Error and no text, a
// successful one yields text and an empty Error.
type FrameAnalysis struct {
	FrameNumber int      `json:"frame_number"`
	Analysis    string   `json:"analysis,omitempty"`
	Confidence  float64  `json:"confidence"`
	KeyFindings []string `json:"key_findings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Failed reports whether this analysis carries an error instead of text.
func (a FrameAnalysis) Failed() bool {
	return a.Error != ""
}

// NewErroredAnalysis builds the placeholder analysis recorded when an
// inference call fails. The pipeline keeps going; the gap is visible in
// the final result.
func NewErroredAnalysis(frameNumber int, err error) FrameAnalysis {
	msg := "inference failed"
	if err != nil {
		msg = err.Error()
	}
	return FrameAnalysis{FrameNumber: frameNumber, Error: msg}
}
