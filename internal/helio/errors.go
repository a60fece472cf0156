package helio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySeries is returned when there are no frames to assemble.
	ErrEmptySeries = errors.New("no frames to assemble")

	// ErrNoDefinedSamples means a projection contained only NaN or Inf.
	ErrNoDefinedSamples = errors.New("projection has no defined samples")

	// ErrPolarOrigin is returned for a drifting origin placed on a pole,
	// where the circle of latitude has no radius.
	ErrPolarOrigin = errors.New("origin drift undefined at a pole")

	// ErrUnderdetermined is matched by every UnderdeterminedFitError.
	ErrUnderdetermined = errors.New("quadratic fit underdetermined")
)

// UnderdeterminedFitError reports a frame with fewer pixels than surface
// coefficients.
type UnderdeterminedFitError struct {
	Pixels       int
	Coefficients int
}

func (e *UnderdeterminedFitError) Error() string {
	return fmt.Sprintf("quadratic fit needs at least %d pixels, frame has %d", e.Coefficients, e.Pixels)
}

func (e *UnderdeterminedFitError) Is(target error) bool { return target == ErrUnderdetermined }

// FrameError ties a processing failure to the frame that caused it.
type FrameError struct {
	Index int
	Path  string
	Stage string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d (%s): %s: %v", e.Index, e.Path, e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
