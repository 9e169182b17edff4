package providers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/clipreview-backend/internal/platform/localmedia"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

var (
	_ pipeline.Source = (*YtDlpSource)(nil)
	_ pipeline.Source = (*HTTPSource)(nil)
	_ pipeline.Source = (*SourceRouter)(nil)
)

var audioOpts = localmedia.AudioExtractOptions{SampleRateHz: 16000, Channels: 1, Format: "flac"}

// YtDlpSource handles page URLs of any site yt-dlp supports.
type YtDlpSource struct {
	tools localmedia.Tools
}

func NewYtDlpSource(tools localmedia.Tools) *YtDlpSource {
	return &YtDlpSource{tools: tools}
}

func (s *YtDlpSource) Resolve(ctx context.Context, rawURL string) (review.SourceInfo, error) {
	info, err := s.tools.ProbeURL(ctx, rawURL)
	if err != nil {
		return review.SourceInfo{}, err
	}
	return review.SourceInfo{Title: info.Title, Streamable: info.Streamable()}, nil
}

func (s *YtDlpSource) DownloadAudioTo(ctx context.Context, rawURL string, dest string) error {
	return s.tools.StreamAudioTo(ctx, rawURL, dest, audioOpts)
}

// HTTPSource handles direct links to media files.
type HTTPSource struct {
	client *http.Client
	tools  localmedia.Tools
}

func NewHTTPSource(client *http.Client, tools localmedia.Tools) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &HTTPSource{client: client, tools: tools}
}

func (s *HTTPSource) Resolve(ctx context.Context, rawURL string) (review.SourceInfo, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return review.SourceInfo{}, fmt.Errorf("build HEAD request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return review.SourceInfo{}, fmt.Errorf("HEAD %s: %w", rawURL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return review.SourceInfo{}, fmt.Errorf("HEAD %s: status %d", rawURL, resp.StatusCode)
	}
	return review.SourceInfo{
		Title:      titleFromURL(rawURL),
		Streamable: isMediaContentType(resp.Header.Get("Content-Type")),
	}, nil
}

func (s *HTTPSource) DownloadAudioTo(ctx context.Context, rawURL string, dest string) error {
	ctx = ctxutil.Default(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build GET request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return s.tools.TranscodeTo(ctx, resp.Body, dest, audioOpts)
}

func isMediaContentType(raw string) bool {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") || mt == "application/octet-stream"
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return u.Host
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}

var mediaExts = map[string]bool{
	".mp3": true, ".m4a": true, ".aac": true, ".wav": true, ".flac": true, ".ogg": true, ".opus": true,
	".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".mkv": true,
}

// IsDirectMediaURL reports whether rawURL points straight at a media file.
func IsDirectMediaURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return mediaExts[strings.ToLower(path.Ext(u.Path))]
}

// SourceRouter sends direct media links to HTTP and everything else to yt-dlp.
type SourceRouter struct {
	log    *logger.Logger
	direct pipeline.Source
	page   pipeline.Source
}

func NewSourceRouter(log *logger.Logger, direct, page pipeline.Source) *SourceRouter {
	if log == nil {
		log = logger.Nop()
	}
	return &SourceRouter{log: log.With("service", "SourceRouter"), direct: direct, page: page}
}

func (r *SourceRouter) pick(rawURL string) (pipeline.Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid source url %q", rawURL)
	}
	if IsDirectMediaURL(rawURL) && r.direct != nil {
		return r.direct, nil
	}
	if r.page == nil {
		return nil, fmt.Errorf("no source handles %q", rawURL)
	}
	return r.page, nil
}

func (r *SourceRouter) Resolve(ctx context.Context, rawURL string) (review.SourceInfo, error) {
	src, err := r.pick(rawURL)
	if err != nil {
		return review.SourceInfo{}, err
	}
	return src.Resolve(ctx, rawURL)
}

func (r *SourceRouter) DownloadAudioTo(ctx context.Context, rawURL string, dest string) error {
	src, err := r.pick(rawURL)
	if err != nil {
		return err
	}
	return src.DownloadAudioTo(ctx, rawURL, dest)
}
