package app

import (
	"context"
	"fmt"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/platform/gcp"
	"github.com/yungbote/clipreview-backend/internal/platform/localmedia"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
	"github.com/yungbote/clipreview-backend/internal/platform/openai"
	"github.com/yungbote/clipreview-backend/internal/realtime/bus"
)

type Clients struct {
	Media     localmedia.Tools
	OpenAI    openai.Client
	GcpSpeech gcp.Speech
	GcpStager gcp.AudioStager
	Bus       bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config, withBus bool) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	out.Media = localmedia.New(log, localmedia.Options{
		YtDlpPath:      cfg.Media.YtDlpPath,
		FFmpegPath:     cfg.Media.FFmpegPath,
		DefaultTimeout: cfg.Media.Timeout.Duration,
	})

	// Openai
	oc, err := openai.NewClient(log, openai.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		Model:           cfg.OpenAI.Model,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		ModerationModel: cfg.OpenAI.ModerationModel,
		Timeout:         cfg.OpenAI.Timeout.Duration,
		MaxRetries:      cfg.OpenAI.MaxRetries,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	out.OpenAI = oc

	// Gcp
	if cfg.Transcriber.Provider == config.TranscriberGCP {
		speech, err := gcp.NewSpeech(ctx, log, cfg.GCP.Credentials)
		if err != nil {
			return Clients{}, fmt.Errorf("init speech client: %w", err)
		}
		out.GcpSpeech = speech

		if cfg.GCP.StagingBucket != "" {
			storageCfg, err := gcp.ResolveStagingStorage(cfg.GCP.StorageMode, cfg.GCP.EmulatorHost)
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("resolve staging storage config: %w", err)
			}
			stager, err := gcp.NewAudioStager(ctx, log, gcp.StagingConfig{
				Bucket:      cfg.GCP.StagingBucket,
				Prefix:      cfg.GCP.StagingPrefix,
				Credentials: cfg.GCP.Credentials,
				Storage:     storageCfg,
			})
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init staging bucket: %w", err)
			}
			out.GcpStager = stager
		}
	}

	// Redis
	if withBus {
		if cfg.Redis.Addr != "" {
			b, err := bus.NewRedisBus(ctx, log, cfg.Redis)
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init redis stage bus: %w", err)
			}
			out.Bus = b
		} else {
			out.Bus = bus.NewMemoryBus()
		}
	}

	return out, nil
}

func (c Clients) Close() {
	if c.GcpSpeech != nil {
		_ = c.GcpSpeech.Close()
	}
	if c.GcpStager != nil {
		_ = c.GcpStager.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
