package gcp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// StagingMode selects where long audio is staged before recognition.
type StagingMode string

const (
	StagingModeGCS      StagingMode = "gcs"
	StagingModeEmulator StagingMode = "gcs_emulator"
)

var (
	ErrUnknownStagingMode  = errors.New("unknown staging storage mode")
	ErrEmulatorHostMissing = errors.New("emulator staging requires an emulator host")
	ErrEmulatorHostInvalid = errors.New("emulator host must be an absolute URL")
)

type StagingStorage struct {
	Mode         StagingMode
	EmulatorHost string
	// Inferred is set when the mode was picked from the emulator host alone.
	Inferred bool
}

func (s StagingStorage) Validate() error {
	switch s.Mode {
	case StagingModeGCS:
		return nil
	case StagingModeEmulator:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStagingMode, s.Mode)
	}
	if s.EmulatorHost == "" {
		return ErrEmulatorHostMissing
	}
	u, err := url.Parse(s.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrEmulatorHostInvalid, s.EmulatorHost)
	}
	return nil
}

// ResolveStagingStorage reads the configured mode. An empty mode falls back to
// the emulator when a host is configured, otherwise to real GCS.
func ResolveStagingStorage(rawMode, emulatorHost string) (StagingStorage, error) {
	s := StagingStorage{EmulatorHost: strings.TrimSpace(emulatorHost)}
	switch mode := StagingMode(strings.ToLower(strings.TrimSpace(rawMode))); mode {
	case "":
		s.Mode = StagingModeGCS
		if s.EmulatorHost != "" {
			s.Mode = StagingModeEmulator
			s.Inferred = true
		}
	default:
		s.Mode = mode
	}
	return s, s.Validate()
}
