package review

import (
	"time"

	"github.com/google/uuid"
)

type SourceInfo struct {
	Title      string `json:"title"`
	Streamable bool   `json:"streamable"`
}

type Transcription struct {
	TranscriptText string  `json:"transcript_text"`
	Tokens         []Token `json:"tokens"`
}

type MediaReference struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Result is what a finished run hands to the presentation layer.
type Result struct {
	RunID                   uuid.UUID          `json:"run_id"`
	TranscriptText          string             `json:"transcript_text"`
	Tokens                  []Token            `json:"tokens"`
	FlaggedSegments         []FlaggedSegment   `json:"flagged_segments"`
	Flagged                 bool               `json:"flagged"`
	CategoryScores          map[string]float64 `json:"category_scores,omitempty"`
	ClassificationAvailable bool               `json:"classification_available"`
	ClassificationError     string             `json:"classification_error,omitempty"`
	MediaReference          MediaReference     `json:"media_reference"`
}

// StageEvent is published on every pipeline state transition.
type StageEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	Stage     string    `json:"stage"`
	From      string    `json:"from"`
	FailedAt  string    `json:"failed_at,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
