package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

type fakeSource struct {
	info        review.SourceInfo
	resolveErr  error
	downloadErr error
	partial     []byte
	download    func(ctx context.Context, dest string) error

	mu       sync.Mutex
	lastDest string
}

func (f *fakeSource) dest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDest
}

func (f *fakeSource) Resolve(ctx context.Context, url string) (review.SourceInfo, error) {
	return f.info, f.resolveErr
}

func (f *fakeSource) DownloadAudioTo(ctx context.Context, url string, dest string) error {
	f.mu.Lock()
	f.lastDest = dest
	f.mu.Unlock()
	if f.download != nil {
		return f.download(ctx, dest)
	}
	data := f.partial
	if data == nil {
		data = []byte("fLaC")
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return f.downloadErr
}

type transcriberFunc func(ctx context.Context, path string) (review.Transcription, error)

func (f transcriberFunc) Transcribe(ctx context.Context, path string) (review.Transcription, error) {
	return f(ctx, path)
}

type classifierFunc func(ctx context.Context, text string) (review.ClassificationResult, error)

func (f classifierFunc) Classify(ctx context.Context, text string) (review.ClassificationResult, error) {
	return f(ctx, text)
}

func foxTranscription() review.Transcription {
	return review.Transcription{
		TranscriptText: "The quick brown fox jumps over the lazy dog.",
		Tokens: []review.Token{
			{Text: "The", StartSec: 0.0, EndSec: 0.2, Confidence: 0.9},
			{Text: "quick", StartSec: 0.2, EndSec: 0.5, Confidence: 0.9},
			{Text: "brown", StartSec: 0.5, EndSec: 0.8, Confidence: 0.9},
			{Text: "fox", StartSec: 0.8, EndSec: 1.0, Confidence: 0.9},
			{Text: "jumps", StartSec: 1.0, EndSec: 1.3, Confidence: 0.9},
			{Text: "over", StartSec: 1.3, EndSec: 1.5, Confidence: 0.9},
			{Text: "the", StartSec: 1.5, EndSec: 1.6, Confidence: 0.9},
			{Text: "lazy", StartSec: 1.6, EndSec: 1.9, Confidence: 0.9},
			{Text: "dog.", StartSec: 1.9, EndSec: 2.2, Confidence: 0.9},
		},
	}
}

func goodTranscriber(t *testing.T) Transcriber {
	return transcriberFunc(func(ctx context.Context, path string) (review.Transcription, error) {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("transcriber called without audio file: %v", err)
		}
		return foxTranscription(), nil
	})
}

func goodClassifier() Classifier {
	return classifierFunc(func(ctx context.Context, text string) (review.ClassificationResult, error) {
		return review.ClassificationResult{
			Flagged:        true,
			CategoryScores: map[string]float64{"violence": 0.7},
			Sections: []review.FlaggedCandidate{
				{Text: "brown fox jumps", Reason: "r", Severity: review.SeverityMedium},
				{Text: "not in the clip", Reason: "r", Severity: review.SeverityLow},
			},
		}, nil
	})
}

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) OnTransition(ctx context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

func newTestOrchestrator(t *testing.T, src Source, tr Transcriber, cl Classifier, obs Observer) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	o, err := New(Deps{Source: src, Transcriber: tr, Classifier: cl, Observer: obs}, Config{TempDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not empty: %v", entries)
	}
}

func TestProcessHappyPath(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Title: "Fox clip", Streamable: true}}
	rec := &recorder{}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), rec)

	runID := uuid.New()
	res, err := o.Process(context.Background(), "https://example.com/v/1", ProcessOptions{RunID: runID})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.RunID != runID {
		t.Fatalf("run id: want=%s got=%s", runID, res.RunID)
	}
	if !res.ClassificationAvailable || !res.Flagged {
		t.Fatalf("classification flags: %+v", res)
	}
	if len(res.FlaggedSegments) != 2 {
		t.Fatalf("segments: want=2 got=%d", len(res.FlaggedSegments))
	}
	a := res.FlaggedSegments[0].Alignment
	if !a.Found || *a.StartSec != 0.5 || *a.EndSec != 1.3 || a.MatchQuality != review.MatchExact {
		t.Fatalf("first alignment: %+v", a)
	}
	if res.FlaggedSegments[1].Alignment.Found {
		t.Fatalf("second segment should be unlocated")
	}
	if res.MediaReference.Title != "Fox clip" || res.MediaReference.URL != "https://example.com/v/1" {
		t.Fatalf("media reference: %+v", res.MediaReference)
	}
	if filepath.Dir(src.dest()) != dir {
		t.Fatalf("audio path outside temp dir: %s", src.dest())
	}
	assertEmptyDir(t, dir)

	want := []Stage{StageResolving, StageDownloading, StageTranscribing, StageClassifying, StageAssembling, StageDone}
	got := rec.stages()
	if len(got) != len(want) {
		t.Fatalf("transitions: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions: want=%v got=%v", want, got)
		}
	}
}

func TestProcessResolveFailureCreatesNoFile(t *testing.T) {
	boom := errors.New("404 from host")
	src := &fakeSource{resolveErr: boom}
	rec := &recorder{}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), rec)

	res, err := o.Process(context.Background(), "https://example.com/missing", ProcessOptions{})
	if res != nil {
		t.Fatalf("want nil result")
	}
	if !errors.Is(err, ErrResolution) || !errors.Is(err, boom) {
		t.Fatalf("want ErrResolution wrapping cause, got=%v", err)
	}
	if FailedStage(err) != StageResolving {
		t.Fatalf("failed stage: want=%s got=%s", StageResolving, FailedStage(err))
	}
	if src.dest() != "" {
		t.Fatalf("download should not have been attempted")
	}
	assertEmptyDir(t, dir)

	last := rec.transitions[len(rec.transitions)-1]
	if last.To != StageFailed || last.FailedAt != StageResolving {
		t.Fatalf("last transition: %+v", last)
	}
}

func TestProcessNotStreamable(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Title: "live", Streamable: false}}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), nil)

	_, err := o.Process(context.Background(), "https://example.com/live", ProcessOptions{})
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("want ErrResolution got=%v", err)
	}
	assertEmptyDir(t, dir)
}

func TestProcessDownloadFailureRemovesPartialFile(t *testing.T) {
	src := &fakeSource{
		info:        review.SourceInfo{Streamable: true},
		partial:     []byte("half a file"),
		downloadErr: errors.New("connection reset"),
	}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), nil)

	_, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("want ErrDownload got=%v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Code() != "downloading_failed" {
		t.Fatalf("stage error code: %v", err)
	}
	if _, statErr := os.Stat(src.dest()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial file still present: %v", statErr)
	}
	assertEmptyDir(t, dir)
}

func TestProcessTranscriptionContractViolation(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	tr := transcriberFunc(func(ctx context.Context, path string) (review.Transcription, error) {
		return review.Transcription{
			TranscriptText: "a b",
			Tokens: []review.Token{
				{Text: "a", StartSec: 1.0, EndSec: 1.2},
				{Text: "b", StartSec: 0.5, EndSec: 0.7},
			},
		}, nil
	})
	o, dir := newTestOrchestrator(t, src, tr, goodClassifier(), nil)

	_, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("want ErrTranscription got=%v", err)
	}
	var pce *review.ProviderContractError
	if !errors.As(err, &pce) {
		t.Fatalf("want ProviderContractError in chain, got=%v", err)
	}
	assertEmptyDir(t, dir)
}

func TestProcessClassificationFailureDegrades(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	cl := classifierFunc(func(ctx context.Context, text string) (review.ClassificationResult, error) {
		return review.ClassificationResult{}, errors.New("rate limited")
	})
	rec := &recorder{}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), cl, rec)

	res, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	if err != nil {
		t.Fatalf("classification failure must not be fatal: %v", err)
	}
	if res.TranscriptText != foxTranscription().TranscriptText {
		t.Fatalf("transcript lost: %q", res.TranscriptText)
	}
	if res.ClassificationAvailable {
		t.Fatalf("want ClassificationAvailable=false")
	}
	if res.ClassificationError == "" {
		t.Fatalf("want classification error message")
	}
	if res.FlaggedSegments == nil || len(res.FlaggedSegments) != 0 {
		t.Fatalf("want empty segments got=%v", res.FlaggedSegments)
	}
	if len(res.Tokens) != 9 {
		t.Fatalf("tokens: want=9 got=%d", len(res.Tokens))
	}
	assertEmptyDir(t, dir)
	stages := rec.stages()
	if stages[len(stages)-1] != StageDone {
		t.Fatalf("want Done, got=%v", stages)
	}
}

func TestProcessMalformedClassificationDegrades(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	cl := classifierFunc(func(ctx context.Context, text string) (review.ClassificationResult, error) {
		return review.ClassificationResult{CategoryScores: map[string]float64{"x": 3}}, nil
	})
	o, _ := newTestOrchestrator(t, src, goodTranscriber(t), cl, nil)

	res, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ClassificationAvailable {
		t.Fatalf("malformed classifier payload must be treated as unavailable")
	}
}

func TestProcessClassificationCancelledFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	cl := classifierFunc(func(ctx context.Context, text string) (review.ClassificationResult, error) {
		cancel()
		return review.ClassificationResult{}, ctx.Err()
	})
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), cl, nil)

	_, err := o.Process(ctx, "https://example.com/v", ProcessOptions{})
	if !errors.Is(err, ErrClassification) || !errors.Is(err, context.Canceled) {
		t.Fatalf("want cancelled classification failure got=%v", err)
	}
	assertEmptyDir(t, dir)
}

func TestProcessCancelDuringDownloadCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	src.download = func(ctx context.Context, dest string) error {
		if err := os.WriteFile(dest, []byte("partial"), 0o644); err != nil {
			return err
		}
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), nil)

	_, err := o.Process(ctx, "https://example.com/v", ProcessOptions{})
	if !errors.Is(err, ErrDownload) || !errors.Is(err, context.Canceled) {
		t.Fatalf("want cancelled download got=%v", err)
	}
	assertEmptyDir(t, dir)
}

func TestProcessPanicStillCleansUp(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	tr := transcriberFunc(func(ctx context.Context, path string) (review.Transcription, error) {
		panic("decoder exploded")
	})
	rec := &recorder{}
	o, dir := newTestOrchestrator(t, src, tr, goodClassifier(), rec)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("want panic to propagate")
			}
		}()
		_, _ = o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	}()
	assertEmptyDir(t, dir)
	stages := rec.stages()
	if stages[len(stages)-1] != StageFailed {
		t.Fatalf("want Failed, got=%v", stages)
	}
}

func TestProcessReadinessFailureIsResolution(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	dir := t.TempDir()
	o, err := New(Deps{
		Source:      src,
		Transcriber: goodTranscriber(t),
		Classifier:  goodClassifier(),
		Readiness:   NewReadiness(func(ctx context.Context) error { return errors.New("ffmpeg missing") }),
	}, Config{TempDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = o.Process(context.Background(), "https://example.com/v", ProcessOptions{})
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("want ErrResolution got=%v", err)
	}
	assertEmptyDir(t, dir)
}

func TestConcurrentRunsUseDistinctFiles(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	src := &fakeSource{info: review.SourceInfo{Streamable: true}}
	src.download = func(ctx context.Context, dest string) error {
		mu.Lock()
		if seen[dest] {
			mu.Unlock()
			return errors.New("temp path reused")
		}
		seen[dest] = true
		mu.Unlock()
		return os.WriteFile(dest, []byte("x"), 0o644)
	}
	o, dir := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent run: %v", err)
	}
	if len(seen) != 16 {
		t.Fatalf("distinct paths: want=16 got=%d", len(seen))
	}
	assertEmptyDir(t, dir)
}

func TestNewRequiresProviders(t *testing.T) {
	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatalf("want error for missing providers")
	}
}

func TestProcessRunObserverFollowsOrchestratorObserver(t *testing.T) {
	src := &fakeSource{info: review.SourceInfo{Title: "Fox clip", Streamable: true}}
	global := &recorder{}
	o, _ := newTestOrchestrator(t, src, goodTranscriber(t), goodClassifier(), global)

	var order []string
	perRun := ObserverFunc(func(ctx context.Context, tr Transition) {
		if n := len(global.stages()); n == 0 || global.stages()[n-1] != tr.To {
			t.Errorf("run observer saw %s before the orchestrator observer", tr.To)
		}
		order = append(order, string(tr.To))
	})
	id := uuid.New()
	if _, err := o.Process(context.Background(), "https://example.com/v", ProcessOptions{RunID: id, Observer: perRun}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"resolving", "downloading", "transcribing", "classifying", "assembling", "done"}
	if len(order) != len(want) {
		t.Fatalf("run observer stages: want=%v got=%v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("stage %d: want=%s got=%s", i, want[i], order[i])
		}
	}
	for _, tr := range global.transitions {
		if tr.RunID != id {
			t.Fatalf("transition run id: want=%s got=%s", id, tr.RunID)
		}
	}
}
