package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/gcp"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
	"github.com/yungbote/clipreview-backend/internal/platform/openai"
)

var (
	_ pipeline.Transcriber = (*GCPSpeechTranscriber)(nil)
	_ pipeline.Transcriber = (*OpenAITranscriber)(nil)
)

// inlineAudioLimit is the largest payload Speech accepts as request content.
const inlineAudioLimit = 10 << 20

type GCPSpeechTranscriber struct {
	log    *logger.Logger
	speech gcp.Speech
	stager gcp.AudioStager
	cfg    gcp.SpeechConfig
}

// NewGCPSpeechTranscriber sends small files inline. Larger files need a
// stager; without one they fail.
func NewGCPSpeechTranscriber(log *logger.Logger, speech gcp.Speech, stager gcp.AudioStager, cfg gcp.SpeechConfig) *GCPSpeechTranscriber {
	if log == nil {
		log = logger.Nop()
	}
	return &GCPSpeechTranscriber{
		log:    log.With("service", "GCPSpeechTranscriber"),
		speech: speech,
		stager: stager,
		cfg:    cfg,
	}
}

func (t *GCPSpeechTranscriber) Transcribe(ctx context.Context, audioPath string) (review.Transcription, error) {
	st, err := os.Stat(audioPath)
	if err != nil {
		return review.Transcription{}, fmt.Errorf("stat audio: %w", err)
	}

	var res *gcp.SpeechResult
	if st.Size() <= inlineAudioLimit && t.stager == nil {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return review.Transcription{}, fmt.Errorf("read audio: %w", err)
		}
		res, err = t.speech.RecognizeBytes(ctx, data, t.cfg)
		if err != nil {
			return review.Transcription{}, err
		}
	} else {
		if t.stager == nil {
			return review.Transcription{}, fmt.Errorf("audio is %d bytes; inline limit is %d and no staging bucket is configured", st.Size(), inlineAudioLimit)
		}
		key := t.stager.ObjectKey(audioPath)
		uri, err := t.stager.Upload(ctx, audioPath, key)
		if err != nil {
			return review.Transcription{}, fmt.Errorf("stage audio: %w", err)
		}
		defer func() {
			if err := t.stager.Delete(context.WithoutCancel(ctx), key); err != nil {
				t.log.Warn("staged audio delete failed", "key", key, "error", err)
			}
		}()
		res, err = t.speech.RecognizeGCS(ctx, uri, t.cfg)
		if err != nil {
			return review.Transcription{}, err
		}
	}
	return review.Transcription{TranscriptText: res.Text, Tokens: res.Words}, nil
}

type OpenAITranscriber struct {
	client openai.Client
}

func NewOpenAITranscriber(client openai.Client) *OpenAITranscriber {
	return &OpenAITranscriber{client: client}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (review.Transcription, error) {
	res, err := t.client.Transcribe(ctx, audioPath)
	if err != nil {
		return review.Transcription{}, err
	}
	tokens := make([]review.Token, 0, len(res.Words))
	for _, w := range res.Words {
		tokens = append(tokens, review.Token{
			Text:       w.Word,
			StartSec:   w.Start,
			EndSec:     w.End,
			Confidence: w.Confidence,
		})
	}
	return review.Transcription{TranscriptText: res.Text, Tokens: tokens}, nil
}
