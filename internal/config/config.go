package config

import "time"

// Duration reads "5s"-style strings or bare integers (seconds) from YAML.
type Duration struct {
	time.Duration
}

type Config struct {
	Env         string `yaml:"env"`
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`

	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Media       MediaConfig       `yaml:"media"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	GCP         GCPConfig         `yaml:"gcp"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	NoRedact bool   `yaml:"no_redact"`
	HashSalt string `yaml:"hash_salt"`
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

type PipelineConfig struct {
	TempDir            string   `yaml:"temp_dir"`
	AudioExt           string   `yaml:"audio_ext"`
	DistinctDuplicates bool     `yaml:"distinct_duplicates"`
	RunTimeout         Duration `yaml:"run_timeout"`
	MaxConcurrentRuns  int      `yaml:"max_concurrent_runs"`
}

type MediaConfig struct {
	YtDlpPath  string   `yaml:"ytdlp_path"`
	FFmpegPath string   `yaml:"ffmpeg_path"`
	Timeout    Duration `yaml:"timeout"`
}

const (
	TranscriberOpenAI = "openai"
	TranscriberGCP    = "gcp"
)

type TranscriberConfig struct {
	Provider     string `yaml:"provider"`
	LanguageCode string `yaml:"language_code"`
	Model        string `yaml:"model"`
	Punctuation  bool   `yaml:"punctuation"`
}

type OpenAIConfig struct {
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	TranscribeModel string   `yaml:"transcribe_model"`
	ModerationModel string   `yaml:"moderation_model"`
	Timeout         Duration `yaml:"timeout"`
	MaxRetries      int      `yaml:"max_retries"`
}

type GCPConfig struct {
	Credentials   string   `yaml:"credentials"`
	StagingBucket string   `yaml:"staging_bucket"`
	StagingPrefix string   `yaml:"staging_prefix"`
	StorageMode   string   `yaml:"storage_mode"`
	EmulatorHost  string   `yaml:"emulator_host"`
	StagingMaxAge Duration `yaml:"staging_max_age"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RedisConfig enables cross-instance stage events when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// TelemetryConfig controls OpenTelemetry tracing. Without an endpoint spans go to stdout.
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}
