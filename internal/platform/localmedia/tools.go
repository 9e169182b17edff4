package localmedia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

// Tools is the glue around the system binaries a review needs.
//
// REQUIRED BINARIES in the service runtime:
// - yt-dlp for resolving page URLs and fetching the best audio stream
// - ffmpeg for transcoding to mono 16 kHz FLAC
type Tools interface {
	AssertReady(ctx context.Context) error

	ProbeURL(ctx context.Context, url string) (*MediaInfo, error)
	// StreamAudioTo pipes yt-dlp into ffmpeg and writes the transcoded audio to dest.
	StreamAudioTo(ctx context.Context, url string, dest string, opts AudioExtractOptions) error
	// TranscodeTo reads any ffmpeg-readable stream from r and writes audio to dest.
	TranscodeTo(ctx context.Context, r io.Reader, dest string, opts AudioExtractOptions) error
}

type AudioExtractOptions struct {
	SampleRateHz int
	Channels     int
	Format       string // "flac" or "wav"
}

type MediaInfo struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	IsLive       bool    `json:"is_live"`
	Availability string  `json:"availability"`
	Extractor    string  `json:"extractor"`
	WebpageURL   string  `json:"webpage_url"`
}

// Streamable reports whether the audio can be fetched in full right now.
func (i *MediaInfo) Streamable() bool {
	if i == nil || i.IsLive {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(i.Availability)) {
	case "private", "needs_auth", "premium_only", "subscriber_only":
		return false
	default:
		return true
	}
}

type Options struct {
	YtDlpPath      string
	FFmpegPath     string
	DefaultTimeout time.Duration
}

type tools struct {
	log *logger.Logger

	ytdlpPath  string
	ffmpegPath string

	defaultTimeout time.Duration
}

func New(log *logger.Logger, opts Options) Tools {
	if log == nil {
		log = logger.Nop()
	}
	t := &tools{
		log:            log.With("service", "MediaTools"),
		ytdlpPath:      "yt-dlp",
		ffmpegPath:     "ffmpeg",
		defaultTimeout: 30 * time.Minute,
	}
	if strings.TrimSpace(opts.YtDlpPath) != "" {
		t.ytdlpPath = strings.TrimSpace(opts.YtDlpPath)
	}
	if strings.TrimSpace(opts.FFmpegPath) != "" {
		t.ffmpegPath = strings.TrimSpace(opts.FFmpegPath)
	}
	if opts.DefaultTimeout > 0 {
		t.defaultTimeout = opts.DefaultTimeout
	}
	return t
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ytdlpPath, m.ffmpegPath} {
		if err := m.assertBinary(bin); err != nil {
			return err
		}
	}
	return nil
}

func (m *tools) assertBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", name, err)
	}
	return nil
}

func (m *tools) ProbeURL(ctx context.Context, url string) (*MediaInfo, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ytdlpPath,
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		url,
	)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe failed: %w; out=%s", err, tail(stderr.String()))
	}
	return parseMediaInfo(out)
}

func parseMediaInfo(raw []byte) (*MediaInfo, error) {
	var info MediaInfo
	if err := json.Unmarshal(bytes.TrimSpace(raw), &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp metadata: %w", err)
	}
	info.Title = strings.TrimSpace(info.Title)
	return &info, nil
}

func (m *tools) StreamAudioTo(ctx context.Context, url string, dest string, opts AudioExtractOptions) error {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("url required")
	}
	args, err := ffmpegArgs(opts)
	if err != nil {
		return err
	}
	out, err := createDest(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	var dlErr, ffErr bytes.Buffer
	dl := exec.CommandContext(ctx, m.ytdlpPath,
		"-f", "bestaudio/best",
		"--no-playlist",
		"--quiet",
		"-o", "-",
		url,
	)
	dl.Stderr = &dlErr
	ff := exec.CommandContext(ctx, m.ffmpegPath, args...)
	ff.Stderr = &ffErr
	ff.Stdout = out

	pipe, err := dl.StdoutPipe()
	if err != nil {
		return fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}
	ff.Stdin = pipe

	if err := dl.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}
	if err := ff.Start(); err != nil {
		cancel()
		_ = dl.Wait()
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	// ffmpeg holds its own copy; dropping ours lets yt-dlp see EPIPE if ffmpeg exits.
	_ = pipe.Close()

	dlWaitErr := dl.Wait()
	ffWaitErr := ff.Wait()
	if ffWaitErr != nil {
		return fmt.Errorf("ffmpeg transcode failed: %w; out=%s", ffWaitErr, tail(ffErr.String()))
	}
	if dlWaitErr != nil {
		return fmt.Errorf("yt-dlp download failed: %w; out=%s", dlWaitErr, tail(dlErr.String()))
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync audio file: %w", err)
	}
	m.log.Debug("audio streamed", "url", url, "dest", dest)
	return nil
}

func (m *tools) TranscodeTo(ctx context.Context, r io.Reader, dest string, opts AudioExtractOptions) error {
	ctx = ctxutil.Default(ctx)
	if r == nil {
		return fmt.Errorf("reader required")
	}
	args, err := ffmpegArgs(opts)
	if err != nil {
		return err
	}
	out, err := createDest(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	cmd.Stdin = r
	cmd.Stdout = out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg transcode failed: %w; out=%s", err, tail(stderr.String()))
	}
	return out.Sync()
}

func ffmpegArgs(opts AudioExtractOptions) ([]string, error) {
	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "flac"
	}
	if format != "wav" && format != "flac" {
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", strconv.Itoa(ch),
		"-ar", strconv.Itoa(sr),
		"-f", format,
		"pipe:1",
	}, nil
}

func createDest(dest string) (*os.File, error) {
	if strings.TrimSpace(dest) == "" {
		return nil, fmt.Errorf("dest required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir dest dir: %w", err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	return f, nil
}

// tail keeps error messages bounded when a tool dumps a long log.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const limit = 2000
	if len(s) > limit {
		return "..." + s[len(s)-limit:]
	}
	return s
}
