// Package pipeline drives one review run through resolve, download,
// transcribe, classify and assemble, one awaited step per stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/alignment"
	"github.com/yungbote/clipreview-backend/internal/modules/review/flagging"
	"github.com/yungbote/clipreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

const tracerName = "clipreview/pipeline"

type Config struct {
	TempDir            string
	AudioExt           string
	DistinctDuplicates bool
}

type Deps struct {
	Log         *logger.Logger
	Readiness   *Readiness
	Source      Source
	Transcriber Transcriber
	Classifier  Classifier
	Locator     flagging.Locator
	Observer    Observer
}

type ProcessOptions struct {
	// RunID is generated when zero.
	RunID              uuid.UUID
	DistinctDuplicates bool
	// Observer receives this run's transitions after the orchestrator-wide one.
	Observer Observer
}

type Orchestrator struct {
	log         *logger.Logger
	readiness   *Readiness
	source      Source
	transcriber Transcriber
	classifier  Classifier
	locator     flagging.Locator
	observer    Observer
	tracer      trace.Tracer
	cfg         Config
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline: source required")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("pipeline: transcriber required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("pipeline: classifier required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	readiness := deps.Readiness
	if readiness == nil {
		readiness = AlreadyReady()
	}
	locator := deps.Locator
	if locator == nil {
		locator = alignment.Engine{}
	}
	return &Orchestrator{
		log:         log.With("service", "ReviewPipeline"),
		readiness:   readiness,
		source:      deps.Source,
		transcriber: deps.Transcriber,
		classifier:  deps.Classifier,
		locator:     locator,
		observer:    deps.Observer,
		tracer:      otel.Tracer(tracerName),
		cfg:         cfg,
	}, nil
}

func (o *Orchestrator) Readiness() *Readiness { return o.readiness }

// runState tracks the current stage of one execution.
type runState struct {
	o        *Orchestrator
	id       uuid.UUID
	stage    Stage
	observer Observer
}

func (s *runState) advance(ctx context.Context, to Stage, failedAt Stage, err error) {
	from := s.stage
	if !CanTransition(from, to) {
		s.o.log.Error("illegal stage transition", "run_id", s.id.String(), "from", from, "to", to)
		return
	}
	s.stage = to
	s.o.log.Debug("stage transition", "run_id", s.id.String(), "from", from, "to", to)
	t := Transition{
		RunID:    s.id,
		From:     from,
		To:       to,
		FailedAt: failedAt,
		Err:      err,
		At:       time.Now().UTC(),
	}
	if s.o.observer != nil {
		s.o.observer.OnTransition(ctx, t)
	}
	if s.observer != nil {
		s.observer.OnTransition(ctx, t)
	}
}

// Process runs the whole pipeline for url. A fatal stage failure returns a
// *StageError and no result. A classification failure still yields a result
// with ClassificationAvailable=false.
func (o *Orchestrator) Process(ctx context.Context, url string, opts ProcessOptions) (res *review.Result, err error) {
	ctx = ctxutil.Default(ctx)
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	ctx = ctxutil.WithRunID(ctx, runID)
	ctx, span := o.tracer.Start(ctx, "review.run", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("source_url", url),
	))
	defer span.End()

	st := &runState{o: o, id: runID, stage: StageIdle, observer: opts.Observer}
	var run *Run

	defer func() {
		if run != nil {
			run.Cleanup()
		}
		if p := recover(); p != nil {
			st.advance(ctx, StageFailed, st.stage, fmt.Errorf("panic: %v", p))
			panic(p)
		}
		if err != nil {
			var se *StageError
			failedAt := st.stage
			if errors.As(err, &se) {
				failedAt = se.Stage
			}
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			st.advance(ctx, StageFailed, failedAt, err)
			o.log.Warn("review run failed", "run_id", runID.String(), "stage", failedAt, "error", err)
			return
		}
		st.advance(ctx, StageDone, "", nil)
	}()

	var info review.SourceInfo
	err = o.step(ctx, st, StageResolving, func(ctx context.Context) error {
		if err := o.readiness.Ensure(ctx); err != nil {
			return fmt.Errorf("environment not ready: %w", err)
		}
		si, err := o.source.Resolve(ctx, url)
		if err != nil {
			return err
		}
		if !si.Streamable {
			return errNotStreamable
		}
		info = si
		return nil
	})
	if err != nil {
		return nil, err
	}

	run = newRun(runID, o.cfg.TempDir, o.cfg.AudioExt, o.log)
	err = o.step(ctx, st, StageDownloading, func(ctx context.Context) error {
		return o.source.DownloadAudioTo(ctx, url, run.AudioPath())
	})
	if err != nil {
		return nil, err
	}

	var (
		transcription review.Transcription
		timeline      review.WordTimeline
	)
	err = o.step(ctx, st, StageTranscribing, func(ctx context.Context) error {
		t, err := o.transcriber.Transcribe(ctx, run.AudioPath())
		if err != nil {
			return err
		}
		tl, err := review.ValidateTranscription(t)
		if err != nil {
			return err
		}
		transcription, timeline = t, tl
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		cls    review.ClassificationResult
		clsErr error
	)
	err = o.step(ctx, st, StageClassifying, func(ctx context.Context) error {
		c, err := o.classifier.Classify(ctx, transcription.TranscriptText)
		if err == nil {
			err = review.ValidateClassification(c)
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			clsErr = err
			trace.SpanFromContext(ctx).AddEvent("classification unavailable", trace.WithAttributes(attribute.String("error", err.Error())))
			o.log.Warn("classification unavailable, continuing without flags", "run_id", runID.String(), "error", err)
			return nil
		}
		cls = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &review.Result{
		RunID:                   runID,
		TranscriptText:          transcription.TranscriptText,
		Tokens:                  []review.Token(timeline),
		FlaggedSegments:         []review.FlaggedSegment{},
		ClassificationAvailable: clsErr == nil,
		MediaReference:          review.MediaReference{URL: url, Title: info.Title},
	}
	if out.Tokens == nil {
		out.Tokens = []review.Token{}
	}
	if clsErr != nil {
		out.ClassificationError = clsErr.Error()
	}

	_ = o.step(ctx, st, StageAssembling, func(ctx context.Context) error {
		if clsErr != nil {
			return nil
		}
		asm := flagging.NewAssembler(o.locator, flagging.Options{
			DistinctDuplicates: o.cfg.DistinctDuplicates || opts.DistinctDuplicates,
		})
		out.Flagged = cls.Flagged
		out.CategoryScores = cls.CategoryScores
		out.FlaggedSegments = asm.Assemble(transcription.TranscriptText, timeline, cls)
		span.SetAttributes(attribute.Int("flagged_segments", len(out.FlaggedSegments)))
		return nil
	})

	return out, nil
}

// step enters stage, runs fn under a child span, and wraps any failure.
func (o *Orchestrator) step(ctx context.Context, st *runState, stage Stage, fn func(ctx context.Context) error) error {
	st.advance(ctx, stage, "", nil)
	ctx, span := o.tracer.Start(ctx, "review.stage."+string(stage))
	defer span.End()

	err := ctx.Err()
	if err == nil {
		err = fn(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
