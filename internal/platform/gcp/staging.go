package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

// AudioStager parks run audio in a bucket so Speech can read it by gs:// URI.
type AudioStager interface {
	Upload(ctx context.Context, localPath string, key string) (gsURI string, err error)
	Delete(ctx context.Context, key string) error
	// SweepPrefix deletes staged objects older than maxAge and returns how many it removed.
	SweepPrefix(ctx context.Context, maxAge time.Duration) (int, error)
	ObjectKey(localPath string) string
	Close() error
}

type StagingConfig struct {
	Bucket      string
	Prefix      string
	Credentials string
	Storage     StagingStorage
}

type audioStager struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewAudioStager(ctx context.Context, log *logger.Logger, cfg StagingConfig) (AudioStager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("staging bucket required")
	}
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StagingModeGCS
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, fmt.Errorf("validate staging storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "clipreview-staging"
	}
	slog := log.With("service", "AudioStager")
	slog.Info("audio staging initialized",
		"bucket", bucket,
		"prefix", prefix,
		"mode", cfg.Storage.Mode,
		"mode_inferred", cfg.Storage.Inferred,
	)
	return &audioStager{log: slog, client: client, bucket: bucket, prefix: prefix}, nil
}

func newStorageClientForMode(ctx context.Context, cfg StagingConfig) (*storage.Client, error) {
	switch cfg.Storage.Mode {
	case StagingModeGCS:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case StagingModeEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.Storage.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStagingMode, cfg.Storage.Mode)
	}
}

func (s *audioStager) ObjectKey(localPath string) string {
	return stagingKey(s.prefix, localPath)
}

func stagingKey(prefix, localPath string) string {
	return path.Join(prefix, filepath.Base(localPath))
}

func gsURI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, strings.TrimLeft(key, "/"))
}

func (s *audioStager) Upload(ctx context.Context, localPath string, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open staged audio: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return gsURI(s.bucket, key), nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func (s *audioStager) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *audioStager) SweepPrefix(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-maxAge)
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + "/"})
	removed := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("list staged objects: %w", err)
		}
		if attrs.Created.After(cutoff) {
			continue
		}
		if err := s.Delete(ctx, attrs.Name); err != nil {
			s.log.Warn("stale staged object delete failed", "key", attrs.Name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *audioStager) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
