package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrResolution     = errors.New("source resolution failed")
	ErrDownload       = errors.New("audio download failed")
	ErrTranscription  = errors.New("transcription failed")
	ErrClassification = errors.New("classification failed")

	errNotStreamable = errors.New("source is not streamable")
)

// StageError is the error a failed run returns. It matches the sentinel for
// its stage with errors.Is and unwraps to the provider error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, sentinelFor(e.Stage))
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StageError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := sentinelFor(e.Stage)
	return s != nil && target == s
}

// Code is the stable machine-readable code used in API error envelopes.
func (e *StageError) Code() string {
	if e == nil {
		return ""
	}
	return string(e.Stage) + "_failed"
}

func sentinelFor(s Stage) error {
	switch s {
	case StageResolving:
		return ErrResolution
	case StageDownloading:
		return ErrDownload
	case StageTranscribing:
		return ErrTranscription
	case StageClassifying:
		return ErrClassification
	default:
		return nil
	}
}

// FailedStage extracts the stage from a pipeline error, or "" if err is not one.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
