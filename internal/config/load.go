package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/clipreview-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if dd, err := time.ParseDuration(s); err == nil {
		d.Duration = dd
		return nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or integer seconds, got %q", s)
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env:         "development",
		ServiceName: "clipreview",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{5 * time.Second},
			ShutdownTimeout:   Duration{15 * time.Second},
			MaxRequestBytes:   1 << 20,
			CORSOrigins:       []string{"http://localhost:3000"},
		},
		Pipeline: PipelineConfig{
			AudioExt:          "flac",
			RunTimeout:        Duration{45 * time.Minute},
			MaxConcurrentRuns: 4,
		},
		Media: MediaConfig{
			YtDlpPath:  "yt-dlp",
			FFmpegPath: "ffmpeg",
			Timeout:    Duration{30 * time.Minute},
		},
		Transcriber: TranscriberConfig{
			Provider:     TranscriberOpenAI,
			LanguageCode: "en-US",
			Punctuation:  true,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com",
			Timeout:    Duration{5 * time.Minute},
			MaxRetries: 3,
		},
		GCP: GCPConfig{
			StagingPrefix: "clipreview-staging",
			StagingMaxAge: Duration{24 * time.Hour},
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			DSN:         "clipreview.db",
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Channel: "clipreview:stage-events",
		},
		Telemetry: TelemetryConfig{
			SampleRatio: 0.1,
		},
	}
}

// Load builds the config from defaults, then the YAML file named by
// CLIPREVIEW_CONFIG (or ./config/config.yaml if present), then environment
// overrides, and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("CLIPREVIEW_CONFIG"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.Version = envutil.String("SERVICE_VERSION", cfg.Version)
	cfg.Log.Level = envutil.String("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.NoRedact = !envutil.Bool("LOG_REDACTION_ENABLED", !cfg.Log.NoRedact)
	cfg.Log.HashSalt = envutil.String("LOG_HASH_SALT", cfg.Log.HashSalt)

	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	if v := envutil.String("CORS_ALLOWED_ORIGINS", ""); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}

	cfg.Pipeline.TempDir = envutil.String("CLIPREVIEW_TEMP_DIR", cfg.Pipeline.TempDir)
	cfg.Pipeline.DistinctDuplicates = envutil.Bool("DISTINCT_DUPLICATES", cfg.Pipeline.DistinctDuplicates)
	cfg.Pipeline.RunTimeout.Duration = envutil.Duration("RUN_TIMEOUT", cfg.Pipeline.RunTimeout.Duration)
	cfg.Pipeline.MaxConcurrentRuns = envutil.Int("MAX_CONCURRENT_RUNS", cfg.Pipeline.MaxConcurrentRuns)

	cfg.Media.YtDlpPath = envutil.String("YTDLP_PATH", cfg.Media.YtDlpPath)
	cfg.Media.FFmpegPath = envutil.String("FFMPEG_PATH", cfg.Media.FFmpegPath)

	cfg.Transcriber.Provider = envutil.String("TRANSCRIBER_PROVIDER", cfg.Transcriber.Provider)
	cfg.Transcriber.LanguageCode = envutil.String("SPEECH_LANGUAGE_CODE", cfg.Transcriber.LanguageCode)
	cfg.Transcriber.Model = envutil.String("SPEECH_MODEL", cfg.Transcriber.Model)

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = envutil.String("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.TranscribeModel = envutil.String("OPENAI_TRANSCRIBE_MODEL", cfg.OpenAI.TranscribeModel)
	cfg.OpenAI.ModerationModel = envutil.String("OPENAI_MODERATION_MODEL", cfg.OpenAI.ModerationModel)
	cfg.OpenAI.Timeout.Duration = envutil.Duration("OPENAI_TIMEOUT", cfg.OpenAI.Timeout.Duration)
	cfg.OpenAI.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", cfg.OpenAI.MaxRetries)

	cfg.GCP.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", cfg.GCP.Credentials)
	cfg.GCP.StagingBucket = envutil.String("GCS_STAGING_BUCKET", cfg.GCP.StagingBucket)
	cfg.GCP.StorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.GCP.StorageMode)
	cfg.GCP.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.GCP.EmulatorHost)

	cfg.Database.Driver = envutil.String("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.AutoMigrate = envutil.Bool("DATABASE_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Telemetry.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.Insecure)
	if v := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); v != "" {
		cfg.Telemetry.Headers = parseHeaders(v)
	}
	if v := envutil.String("OTEL_SAMPLER_RATIO", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Telemetry.SampleRatio = f
		}
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 1 << 20
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_runs must be positive, got %d", c.Pipeline.MaxConcurrentRuns)
	}
	if c.Pipeline.RunTimeout.Duration < 0 {
		return errors.New("pipeline.run_timeout must not be negative")
	}

	c.Transcriber.Provider = strings.ToLower(strings.TrimSpace(c.Transcriber.Provider))
	switch c.Transcriber.Provider {
	case TranscriberOpenAI, TranscriberGCP:
	default:
		return fmt.Errorf("transcriber.provider must be %q or %q, got %q", TranscriberOpenAI, TranscriberGCP, c.Transcriber.Provider)
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return errors.New("openai.api_key is required (OPENAI_API_KEY)")
	}
	if c.OpenAI.MaxRetries < 0 {
		return errors.New("openai.max_retries must not be negative")
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Telemetry.SampleRatio < 0 {
		c.Telemetry.SampleRatio = 0
	}
	if c.Telemetry.SampleRatio > 1 {
		c.Telemetry.SampleRatio = 1
	}
	if c.Redis.Addr != "" && strings.TrimSpace(c.Redis.Channel) == "" {
		return errors.New("redis.channel is required when redis.addr is set")
	}
	return nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseHeaders reads "k1=v1,k2=v2" and skips malformed pairs.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range splitList(raw) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
