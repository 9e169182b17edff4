package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/openai"
)

var _ pipeline.Classifier = (*OpenAIClassifier)(nil)

const sectionsSystemPrompt = `You review video transcripts for a content moderation team.
The moderation model flagged this transcript for: %s.
Return every passage that justifies the flag. Each "text" must be copied verbatim from the transcript,
one sentence or phrase long, with no ellipses. Give a short reason and a severity of low, medium or high.
Return an empty list if no passage clearly qualifies.`

var sectionsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"sections"},
	"properties": map[string]any{
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"text", "reason", "severity"},
				"properties": map[string]any{
					"text":     map[string]any{"type": "string"},
					"reason":   map[string]any{"type": "string"},
					"severity": map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
				},
			},
		},
	},
}

type sectionsPayload struct {
	Sections []struct {
		Text     string `json:"text"`
		Reason   string `json:"reason"`
		Severity string `json:"severity"`
	} `json:"sections"`
}

// OpenAIClassifier scores a transcript with the moderation endpoint and, when
// it is flagged, asks a model to quote the offending passages.
type OpenAIClassifier struct {
	client openai.Client
}

func NewOpenAIClassifier(client openai.Client) *OpenAIClassifier {
	return &OpenAIClassifier{client: client}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, transcriptText string) (review.ClassificationResult, error) {
	out := review.ClassificationResult{CategoryScores: map[string]float64{}, Sections: []review.FlaggedCandidate{}}
	if strings.TrimSpace(transcriptText) == "" {
		return out, nil
	}

	mod, err := c.client.Moderate(ctx, []string{transcriptText})
	if err != nil {
		return review.ClassificationResult{}, fmt.Errorf("moderation: %w", err)
	}
	out.Flagged = mod.Flagged
	for k, v := range mod.CategoryScores {
		out.CategoryScores[k] = v
	}
	if !mod.Flagged {
		return out, nil
	}

	categories := "unspecified categories"
	if len(mod.Categories) > 0 {
		categories = strings.Join(mod.Categories, ", ")
	}
	var payload sectionsPayload
	err = c.client.GenerateJSON(ctx,
		fmt.Sprintf(sectionsSystemPrompt, categories),
		transcriptText,
		"flagged_sections",
		sectionsSchema,
		&payload,
	)
	if err != nil {
		return review.ClassificationResult{}, fmt.Errorf("section extraction: %w", err)
	}
	for i, s := range payload.Sections {
		sev, ok := review.ParseSeverity(s.Severity)
		if !ok {
			return review.ClassificationResult{}, &review.ProviderContractError{
				Provider: "classifier",
				Field:    fmt.Sprintf("sections[%d].severity", i),
				Reason:   fmt.Sprintf("unknown severity %q", s.Severity),
			}
		}
		out.Sections = append(out.Sections, review.FlaggedCandidate{
			Text:     strings.TrimSpace(s.Text),
			Reason:   strings.TrimSpace(s.Reason),
			Severity: sev,
		})
	}
	return out, nil
}
