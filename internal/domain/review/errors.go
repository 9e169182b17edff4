package review

import (
	"fmt"
	"math"
	"strings"
)

// ProviderContractError reports a provider payload that is missing required
// fields or carries out-of-range values.
type ProviderContractError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ProviderContractError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s contract violation: %s: %s", e.Provider, e.Field, e.Reason)
}

// ValidateTranscription checks a transcriber payload and returns the timeline
// built from its tokens.
func ValidateTranscription(t Transcription) (WordTimeline, error) {
	if strings.TrimSpace(t.TranscriptText) == "" && len(t.Tokens) > 0 {
		return nil, &ProviderContractError{Provider: "transcriber", Field: "transcript_text", Reason: "empty while tokens are present"}
	}
	for i, tok := range t.Tokens {
		if strings.TrimSpace(tok.Text) == "" {
			return nil, &ProviderContractError{Provider: "transcriber", Field: fmt.Sprintf("tokens[%d].text", i), Reason: "empty"}
		}
		if !finite(tok.StartSec) || !finite(tok.EndSec) {
			return nil, &ProviderContractError{Provider: "transcriber", Field: fmt.Sprintf("tokens[%d]", i), Reason: "timestamp is not a finite number"}
		}
		if tok.StartSec < 0 || tok.EndSec < 0 {
			return nil, &ProviderContractError{Provider: "transcriber", Field: fmt.Sprintf("tokens[%d]", i), Reason: "negative timestamp"}
		}
		if math.IsNaN(tok.Confidence) || tok.Confidence < 0 || tok.Confidence > 1 {
			return nil, &ProviderContractError{Provider: "transcriber", Field: fmt.Sprintf("tokens[%d].confidence", i), Reason: "outside [0,1]"}
		}
	}
	return NewWordTimeline(t.Tokens)
}

// ValidateClassification checks a classifier payload.
func ValidateClassification(c ClassificationResult) error {
	if c.CategoryScores == nil {
		return &ProviderContractError{Provider: "classifier", Field: "category_scores", Reason: "missing"}
	}
	for k, v := range c.CategoryScores {
		if strings.TrimSpace(k) == "" {
			return &ProviderContractError{Provider: "classifier", Field: "category_scores", Reason: "empty category name"}
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return &ProviderContractError{Provider: "classifier", Field: "category_scores." + k, Reason: "outside [0,1]"}
		}
	}
	for i, s := range c.Sections {
		if strings.TrimSpace(s.Text) == "" {
			return &ProviderContractError{Provider: "classifier", Field: fmt.Sprintf("sections[%d].text", i), Reason: "empty"}
		}
		if !s.Severity.Valid() {
			return &ProviderContractError{Provider: "classifier", Field: fmt.Sprintf("sections[%d].severity", i), Reason: fmt.Sprintf("unknown severity %q", s.Severity)}
		}
	}
	return nil
}
