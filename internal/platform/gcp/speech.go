package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/clipreview-backend/internal/platform/httpx"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

type Speech interface {
	RecognizeBytes(ctx context.Context, audio []byte, cfg SpeechConfig) (*SpeechResult, error)
	RecognizeGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string
	UseEnhanced  bool

	EnableAutomaticPunctuation bool

	SampleRateHertz   int
	AudioChannelCount int

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

// SpeechResult is the joined transcript plus one token per recognized word.
type SpeechResult struct {
	Text  string
	Words []review.Token
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewSpeech(ctx context.Context, log *logger.Logger, credentials string) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctx, ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{
		log:        log.With("service", "gcp.Speech"),
		client:     c,
		maxRetries: 3,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) RecognizeBytes(ctx context.Context, audio []byte, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{}, nil
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig("", cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := s.recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize(bytes): %w", err)
	}
	return parseSpeechResponse(resp), nil
}

func (s *speechService) RecognizeGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(gcsURI, cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI}},
	}
	resp, err := s.recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize(gcs): %w", err)
	}
	return parseSpeechResponse(resp), nil
}

func (s *speechService) recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	return s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
}

func buildRecognitionConfig(gcsURI string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	enc := cfg.Encoding
	if enc == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		enc = inferSpeechEncoding(gcsURI)
	}
	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		UseEnhanced:                cfg.UseEnhanced,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      true,
		EnableWordConfidence:       true,
		Encoding:                   enc,
		SampleRateHertz:            int32(max(cfg.SampleRateHertz, 0)),
		AudioChannelCount:          int32(max(cfg.AudioChannelCount, 0)),
	}
}

// inferSpeechEncoding defaults to FLAC, the format runs are transcoded to.
func inferSpeechEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_FLAC
	}
}

func parseSpeechResponse(resp *speechpb.LongRunningRecognizeResponse) *SpeechResult {
	out := &SpeechResult{Words: []review.Token{}}
	if resp == nil {
		return out
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)

		for _, w := range alt.Words {
			if w == nil || strings.TrimSpace(w.Word) == "" {
				continue
			}
			out.Words = append(out.Words, review.Token{
				Text:       strings.TrimSpace(w.Word),
				StartSec:   durToSec(w.StartTime),
				EndSec:     durToSec(w.EndTime),
				Confidence: clamp01(float64(w.Confidence)),
			})
		}
	}
	out.Text = full.String()
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func (s *speechService) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	var out *speechpb.LongRunningRecognizeResponse
	policy := httpx.RetryPolicy{
		MaxRetries: s.maxRetries,
		Base:       750 * time.Millisecond,
		Max:        10 * time.Second,
		Retryable:  func(err error) bool { return retryableSpeechCode(status.Code(err)) },
		OnRetry: func(attempt int, _ time.Duration, err error) {
			s.log.Warn("speech request failed, retrying", "attempt", attempt, "code", status.Code(err).String(), "error", err)
		},
	}
	err := policy.Do(ctx, func(context.Context) (time.Duration, error) {
		resp, err := fn()
		out = resp
		return 0, err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func retryableSpeechCode(c codes.Code) bool {
	return c == codes.Unavailable || c == codes.ResourceExhausted
}
