package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxUploadBytes is the API's file size limit for transcriptions.
const maxUploadBytes = 25 << 20

type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"-"`
}

type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogprob float64 `json:"avg_logprob"`
}

type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Words    []Word    `json:"words"`
	Segments []Segment `json:"segments"`
}

func (c *client) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if st.Size() > maxUploadBytes {
		return nil, fmt.Errorf("audio file is %d bytes, over the %d byte transcription limit", st.Size(), maxUploadBytes)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", c.transcribeModel},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
		{"timestamp_granularities[]", "segment"},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("buffer audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Transcription
	r := request{
		method:      http.MethodPost,
		path:        "/v1/audio/transcriptions",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	out.Text = strings.TrimSpace(out.Text)
	assignWordConfidence(out.Words, out.Segments)
	return &out, nil
}

// assignWordConfidence gives each word the probability of the segment that
// contains its start. Words outside every segment get 1.
func assignWordConfidence(words []Word, segments []Segment) {
	j := 0
	for i := range words {
		words[i].Confidence = 1
		for j < len(segments) && segments[j].End <= words[i].Start {
			j++
		}
		if j < len(segments) && segments[j].Start <= words[i].Start {
			p := math.Exp(segments[j].AvgLogprob)
			words[i].Confidence = min(max(p, 0), 1)
		}
	}
}
