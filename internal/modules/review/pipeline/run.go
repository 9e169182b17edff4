package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

// Run owns the one temp audio file of a pipeline execution.
type Run struct {
	ID        uuid.UUID
	audioPath string
	log       *logger.Logger
}

func newRun(id uuid.UUID, tempDir, ext string, log *logger.Logger) *Run {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "flac"
	}
	return &Run{
		ID:        id,
		audioPath: filepath.Join(tempDir, fmt.Sprintf("clipreview-%s.%s", id.String(), ext)),
		log:       log,
	}
}

func (r *Run) AudioPath() string { return r.audioPath }

// Cleanup removes the audio file if present. Failures are logged, never returned.
func (r *Run) Cleanup() {
	if r == nil || r.audioPath == "" {
		return
	}
	err := os.Remove(r.audioPath)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	if r.log != nil {
		r.log.Warn("temp audio cleanup failed", "run_id", r.ID.String(), "path", r.audioPath, "error", err)
	}
}
