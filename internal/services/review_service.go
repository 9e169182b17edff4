package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/clipreview-backend/internal/data/repos/reviews"
	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/clipreview-backend/internal/platform/dbctx"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
	"github.com/yungbote/clipreview-backend/internal/realtime/bus"
)

var (
	ErrInvalidURL     = errors.New("url must be an absolute http(s) url")
	ErrRunNotFound    = errors.New("review run not found")
	ErrRunFinished    = errors.New("review run already finished")
	ErrServiceClosing = errors.New("review service is shutting down")
)

// Processor runs one review. Implemented by *pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, url string, opts pipeline.ProcessOptions) (*review.Result, error)
	Readiness() *pipeline.Readiness
}

type SubmitRequest struct {
	URL                string
	DistinctDuplicates bool
}

type ReviewService interface {
	Submit(dbc dbctx.Context, req SubmitRequest) (*review.ReviewRun, error)
	RunSync(dbc dbctx.Context, req SubmitRequest) (*review.ReviewRun, *review.Result, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error)
	List(dbc dbctx.Context, limit int) ([]*review.ReviewRun, error)
	Cancel(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error)
	Ready(ctx context.Context) error
	RecoverInterrupted(dbc dbctx.Context) error
	Shutdown(ctx context.Context) error
}

type ReviewServiceConfig struct {
	RunTimeout        time.Duration
	MaxConcurrentRuns int
}

type inflight struct {
	cancel    context.CancelFunc
	requested bool
}

type reviewService struct {
	log   *logger.Logger
	repo  reviews.ReviewRunRepo
	proc  Processor
	bus   bus.Bus
	cfg   ReviewServiceConfig
	slots chan struct{}

	mu      sync.Mutex
	runs    map[uuid.UUID]*inflight
	closing bool
	wg      sync.WaitGroup
}

func NewReviewService(baseLog *logger.Logger, repo reviews.ReviewRunRepo, proc Processor, events bus.Bus, cfg ReviewServiceConfig) ReviewService {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	return &reviewService{
		log:   baseLog.With("service", "ReviewService"),
		repo:  repo,
		proc:  proc,
		bus:   events,
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxConcurrentRuns),
		runs:  make(map[uuid.UUID]*inflight),
	}
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return raw, nil
	default:
		return "", ErrInvalidURL
	}
}

func (s *reviewService) create(dbc dbctx.Context, req SubmitRequest) (*review.ReviewRun, error) {
	target, err := validateURL(req.URL)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(dbc, &review.ReviewRun{
		ID:        uuid.New(),
		SourceURL: target,
		Status:    review.RunStatusQueued,
		Stage:     string(pipeline.StageIdle),
		Distinct:  req.DistinctDuplicates,
	})
}

// register tracks a cancellable run context. The returned context detaches
// from the caller's cancellation only when detach is set.
func (s *reviewService) register(parent context.Context, id uuid.UUID, detach bool) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, nil, ErrServiceClosing
	}
	base := ctxutil.WithRunID(parent, id)
	if detach {
		base = context.WithoutCancel(base)
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(base, s.cfg.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	s.runs[id] = &inflight{cancel: cancel}
	s.wg.Add(1)
	done := func() {
		cancel()
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
		s.wg.Done()
	}
	return ctx, done, nil
}

func (s *reviewService) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *reviewService) cancelRequested(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		return r.requested
	}
	return false
}

func (s *reviewService) Submit(dbc dbctx.Context, req SubmitRequest) (*review.ReviewRun, error) {
	run, err := s.create(dbc, req)
	if err != nil {
		return nil, err
	}
	ctx, done, err := s.register(ctxutil.Default(dbc.Ctx), run.ID, true)
	if err != nil {
		s.finish(ctxutil.WithRunID(dbc.Ctx, run.ID), run.ID, nil, err, false)
		return nil, err
	}
	go func() {
		defer done()
		s.execute(ctx, run)
	}()
	return run, nil
}

func (s *reviewService) RunSync(dbc dbctx.Context, req SubmitRequest) (*review.ReviewRun, *review.Result, error) {
	run, err := s.create(dbc, req)
	if err != nil {
		return nil, nil, err
	}
	ctx, done, err := s.register(ctxutil.Default(dbc.Ctx), run.ID, false)
	if err != nil {
		s.finish(ctxutil.WithRunID(dbc.Ctx, run.ID), run.ID, nil, err, false)
		return nil, nil, err
	}
	defer done()
	res, runErr := s.execute(ctx, run)
	stored, getErr := s.repo.GetByID(dbctx.New(context.WithoutCancel(ctx)), run.ID)
	if getErr == nil && stored != nil {
		run = stored
	}
	return run, res, runErr
}

// execute waits for a slot, runs the pipeline and records the outcome.
func (s *reviewService) execute(ctx context.Context, run *review.ReviewRun) (*review.Result, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		err := ctx.Err()
		s.finish(ctx, run.ID, nil, err, s.cancelRequested(run.ID))
		return nil, err
	}
	defer func() { <-s.slots }()

	if err := s.repo.MarkStarted(dbctx.New(context.WithoutCancel(ctx)), run.ID, time.Now()); err != nil {
		s.log.Warn("mark review run started failed", "run_id", run.ID.String(), "error", err)
	}

	res, err := s.proc.Process(ctx, run.SourceURL, pipeline.ProcessOptions{
		RunID:              run.ID,
		DistinctDuplicates: run.Distinct,
		Observer:           pipeline.ObserverFunc(s.onTransition),
	})
	s.finish(ctx, run.ID, res, err, s.cancelRequested(run.ID))
	return res, err
}

func (s *reviewService) onTransition(ctx context.Context, t pipeline.Transition) {
	dbc := dbctx.New(context.WithoutCancel(ctx))
	if !t.To.Terminal() {
		if _, err := s.repo.UpdateStage(dbc, t.RunID, string(t.To)); err != nil {
			s.log.Warn("update review stage failed", "run_id", t.RunID.String(), "stage", t.To, "error", err)
		}
	}
	if s.bus == nil {
		return
	}
	ev := review.StageEvent{
		RunID:     t.RunID,
		Stage:     string(t.To),
		From:      string(t.From),
		FailedAt:  string(t.FailedAt),
		Timestamp: t.At,
	}
	if t.Err != nil {
		ev.Error = t.Err.Error()
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.bus.Publish(pubCtx, ev); err != nil {
		s.log.Warn("publish stage event failed", "run_id", t.RunID.String(), "stage", t.To, "error", err)
	}
}

// outcomeFor maps a run's result or error onto the persisted status.
func outcomeFor(res *review.Result, err error, canceled bool) reviews.Outcome {
	if err == nil && res != nil {
		out := reviews.Outcome{
			Status: review.RunStatusSucceeded,
			Stage:  string(pipeline.StageDone),
			Title:  res.MediaReference.Title,
		}
		if !res.ClassificationAvailable {
			out.Status = review.RunStatusDegraded
			out.Error = res.ClassificationError
		}
		if b, mErr := json.Marshal(res); mErr == nil {
			out.Result = datatypes.JSON(b)
		}
		return out
	}
	if err == nil {
		err = errors.New("pipeline returned no result")
	}
	out := reviews.Outcome{
		Status:      review.RunStatusFailed,
		Stage:       string(pipeline.StageFailed),
		FailedStage: string(pipeline.FailedStage(err)),
		Error:       err.Error(),
	}
	switch {
	case canceled && errors.Is(err, context.Canceled):
		out.Status = review.RunStatusCanceled
	case errors.Is(err, context.DeadlineExceeded):
		out.Error = fmt.Sprintf("run timed out: %v", err)
	}
	return out
}

func (s *reviewService) finish(ctx context.Context, id uuid.UUID, res *review.Result, err error, canceled bool) {
	out := outcomeFor(res, err, canceled)
	if out.Status == review.RunStatusFailed && errors.Is(err, context.Canceled) && s.isClosing() {
		out.Error = "interrupted by service shutdown: " + out.Error
	}
	fields := ctxutil.LogFields(ctx)
	if len(fields) == 0 {
		fields = []interface{}{"run_id", id.String()}
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, fErr := s.repo.Finish(dbctx.New(wctx), id, out); fErr != nil {
		s.log.Error("persist review outcome failed", append(fields, "status", out.Status, "error", fErr)...)
		return
	}
	s.log.Info("review run finished", append(fields, "status", out.Status, "failed_stage", out.FailedStage)...)
}

func (s *reviewService) Get(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error) {
	run, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *reviewService) List(dbc dbctx.Context, limit int) ([]*review.ReviewRun, error) {
	return s.repo.ListRecent(dbc, limit)
}

// Cancel stops an in-flight run owned by this instance. Cleanup of the run's
// temporary audio still happens inside the pipeline.
func (s *reviewService) Cancel(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error) {
	run, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if run.Terminal() {
		return run, ErrRunFinished
	}
	s.mu.Lock()
	r, ok := s.runs[id]
	if ok {
		r.requested = true
		r.cancel()
	}
	s.mu.Unlock()
	if !ok {
		// Not running here: the process that owned it is gone.
		if _, err := s.repo.Finish(dbc, id, reviews.Outcome{
			Status: review.RunStatusCanceled,
			Stage:  run.Stage,
			Error:  context.Canceled.Error(),
		}); err != nil {
			return nil, err
		}
	}
	s.log.Info("review run cancel requested", "run_id", id.String(), "inflight", ok)
	return run, nil
}

func (s *reviewService) Ready(ctx context.Context) error {
	return s.proc.Readiness().Ensure(ctx)
}

func (s *reviewService) RecoverInterrupted(dbc dbctx.Context) error {
	_, err := s.repo.FailInterrupted(dbc, "interrupted by service restart")
	return err
}

// Shutdown cancels every in-flight run and waits for them to record their
// outcome. Those runs are recorded as failed, not canceled.
func (s *reviewService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
