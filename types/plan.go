package types

// CaptureStrategy names the frame-selection approach chosen for a prompt.
type CaptureStrategy string

const (
	StrategyComprehensive    CaptureStrategy = "comprehensive"
	StrategySummary          CaptureStrategy = "summary"
	StrategyTimeline         CaptureStrategy = "timeline"
	StrategyCodeFocused      CaptureStrategy = "code_focused"
	StrategySlideTransitions CaptureStrategy = "slide_transitions"
	StrategyEducational      CaptureStrategy = "educational"
	StrategyFallback         CaptureStrategy = "fallback"
)

// PointKind distinguishes time-anchored capture points from
// event-triggered ones.
type PointKind string

const (
	PointTimestamp PointKind = "timestamp"
	PointEvent     PointKind = "event"
)

// CapturePoint is a single planned capture. Timestamp points carry
// Seconds; event points carry Event, a description of the visual
// condition the executor waits for.
type CapturePoint struct {
	Kind        PointKind `json:"kind"`
	Seconds     float64   `json:"seconds,omitempty"`
	Event       string    `json:"event,omitempty"`
	Description string    `json:"description"`
	Reason      string    `json:"reason,omitempty"`
}

// CapturePlan is the ordered set of capture points the executor walks.
// Plans are advisory: the executor captures what it can and skips the rest.
// PercentBased marks plans built without a known duration; their
// timestamp Seconds are percentages of whatever length the player
// reports at seek time.
type CapturePlan struct {
	Strategy     CaptureStrategy `json:"strategy"`
	Points       []CapturePoint  `json:"points"`
	OptimizeFor  CaptureStrategy `json:"optimize_for"`
	PercentBased bool            `json:"percent_based,omitempty"`
}

// TimestampSeconds returns the Seconds of every timestamp point, in order.
func (p *CapturePlan) TimestampSeconds() []float64 {
	out := make([]float64, 0, len(p.Points))
	for _, pt := range p.Points {
		if pt.Kind == PointTimestamp {
			out = append(out, pt.Seconds)
		}
	}
	return out
}

// VideoMetadata is the snapshot of player state read from the page.
// A Duration of zero or less means the player did not report one.
type VideoMetadata struct {
	Duration    float64 `json:"duration"`
	CurrentTime float64 `json:"current_time"`
	Paused      bool    `json:"paused"`
	Ended       bool    `json:"ended"`
	ReadyState  int     `json:"ready_state"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// HasDuration reports whether the player exposed a usable duration.
func (m VideoMetadata) HasDuration() bool {
	return m.Duration > 0
}
