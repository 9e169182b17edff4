package review

import "strings"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// ParseSeverity accepts any casing and surrounding whitespace.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// FlaggedCandidate is a classifier-reported section that is not yet time-located.
type FlaggedCandidate struct {
	Text     string   `json:"text"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`
}

type ClassificationResult struct {
	Flagged        bool               `json:"flagged"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Sections       []FlaggedCandidate `json:"sections"`
}

// FlaggedSegment is a candidate after alignment. Never mutated after assembly.
type FlaggedSegment struct {
	Text           string             `json:"text"`
	Reason         string             `json:"reason"`
	Severity       Severity           `json:"severity"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Alignment      AlignmentResult    `json:"alignment"`
	TextOffset     int                `json:"text_offset"`
}
