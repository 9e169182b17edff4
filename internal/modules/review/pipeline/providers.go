package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

type Source interface {
	Resolve(ctx context.Context, url string) (review.SourceInfo, error)
	// DownloadAudioTo writes the audio track of url to dest, creating the file.
	DownloadAudioTo(ctx context.Context, url string, dest string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (review.Transcription, error)
}

type Classifier interface {
	Classify(ctx context.Context, transcriptText string) (review.ClassificationResult, error)
}

type Transition struct {
	RunID    uuid.UUID
	From     Stage
	To       Stage
	FailedAt Stage
	Err      error
	At       time.Time
}

// Observer receives every stage transition of a run, synchronously.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
}

type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }
