package presence

import (
	"errors"
	"fmt"
)

// Sentinel errors for detector failures.
var (
	// ErrModelUnavailable means the landmark model did not become available
	// within the polling window.
	ErrModelUnavailable = errors.New("presence: landmark model unavailable")

	// ErrModelConfiguration means the model rejected its options or could
	// not be constructed.
	ErrModelConfiguration = errors.New("presence: model configuration failed")

	// ErrCameraStart means the camera pump could not start.
	ErrCameraStart = errors.New("presence: camera start failed")

	// ErrFrameSubmission means a frame submission to the model failed.
	ErrFrameSubmission = errors.New("presence: frame submission failed")

	// ErrRasterUnavailable means the heuristic raster could not be acquired.
	ErrRasterUnavailable = errors.New("presence: raster unavailable")
)

// DetectorError wraps a failure with the detector kind and operation.
type DetectorError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("%s detector: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// NewError builds a DetectorError.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DetectorError{Kind: kind, Op: op, Err: err}
}

// Wrap joins a sentinel with an underlying cause so both match errors.Is.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// IsDetectorFailure reports whether err belongs to the detector taxonomy.
func IsDetectorFailure(err error) bool {
	return errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrModelConfiguration) ||
		errors.Is(err, ErrCameraStart) ||
		errors.Is(err, ErrFrameSubmission) ||
		errors.Is(err, ErrRasterUnavailable)
}

// KindOf returns the detector kind recorded in err, if any.
func KindOf(err error) (Kind, bool) {
	var de *DetectorError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
