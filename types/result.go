package types

// SynthesisType labels what kind of answer the synthesis stage produced,
// derived from the user's prompt.
type SynthesisType string

const (
	SynthesisSummary       SynthesisType = "summary"
	SynthesisExtraction    SynthesisType = "extraction"
	SynthesisEvaluation    SynthesisType = "evaluation"
	SynthesisTimeline      SynthesisType = "timeline"
	SynthesisReport        SynthesisType = "report"
	SynthesisStudyNotes    SynthesisType = "study_notes"
	SynthesisComprehensive SynthesisType = "comprehensive"
)

// SynthesizedResult is the cross-frame answer assembled from all valid
// frame analyses. The derived fields (KeyThemes, ActionableInsights,
// ExecutiveSummary) are heuristic extractions from Response and may be
// empty; empty is a valid outcome, not an error.
type SynthesizedResult struct {
	Type               SynthesisType `json:"type"`
	Response           string        `json:"response"`
	KeyThemes          []string      `json:"key_themes,omitempty"`
	ActionableInsights []string      `json:"actionable_insights,omitempty"`
	ExecutiveSummary   string        `json:"executive_summary,omitempty"`
}
