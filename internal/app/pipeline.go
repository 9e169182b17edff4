package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/modules/review/alignment"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/modules/review/providers"
	"github.com/yungbote/clipreview-backend/internal/platform/gcp"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

// wirePipeline builds the orchestrator from the configured providers.
func wirePipeline(log *logger.Logger, cfg *config.Config, clients Clients) (*pipeline.Orchestrator, error) {
	source := providers.NewSourceRouter(
		log,
		providers.NewHTTPSource(&http.Client{Timeout: cfg.Media.Timeout.Duration}, clients.Media),
		providers.NewYtDlpSource(clients.Media),
	)

	var transcriber pipeline.Transcriber
	switch cfg.Transcriber.Provider {
	case config.TranscriberGCP:
		transcriber = providers.NewGCPSpeechTranscriber(log, clients.GcpSpeech, clients.GcpStager, gcp.SpeechConfig{
			LanguageCode:               cfg.Transcriber.LanguageCode,
			Model:                      cfg.Transcriber.Model,
			EnableAutomaticPunctuation: cfg.Transcriber.Punctuation,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
		})
	default:
		transcriber = providers.NewOpenAITranscriber(clients.OpenAI)
	}

	media := clients.Media
	readiness := pipeline.NewReadiness(func(ctx context.Context) error {
		return media.AssertReady(ctx)
	})

	audioExt := strings.TrimPrefix(strings.TrimSpace(cfg.Pipeline.AudioExt), ".")

	return pipeline.New(pipeline.Deps{
		Log:         log,
		Readiness:   readiness,
		Source:      source,
		Transcriber: transcriber,
		Classifier:  providers.NewOpenAIClassifier(clients.OpenAI),
		Locator:     alignment.Engine{},
	}, pipeline.Config{
		TempDir:            cfg.Pipeline.TempDir,
		AudioExt:           audioExt,
		DistinctDuplicates: cfg.Pipeline.DistinctDuplicates,
	})
}

// sweepStaging removes stale staged audio until ctx is done.
func sweepStaging(ctx context.Context, log *logger.Logger, stager gcp.AudioStager, maxAge time.Duration) {
	if stager == nil || maxAge <= 0 {
		return
	}
	interval := maxAge / 2
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := stager.SweepPrefix(ctx, maxAge)
		if err != nil && ctx.Err() == nil {
			log.Warn("staging sweep failed", "error", err)
		} else if n > 0 {
			log.Info("staging sweep removed objects", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
