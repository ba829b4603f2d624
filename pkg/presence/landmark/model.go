// Package landmark adapts a face-landmark model into a presence detector.
package landmark

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// Options configures the landmark model.
type Options struct {
	MaxNumFaces            int     `json:"max_num_faces"`
	RefineLandmarks        bool    `json:"refine_landmarks"`
	MinDetectionConfidence float64 `json:"min_detection_confidence"`
	MinTrackingConfidence  float64 `json:"min_tracking_confidence"`
}

// DefaultOptions tracks a single subject with moderate thresholds, which
// favours stability over sensitivity.
func DefaultOptions() Options {
	return Options{
		MaxNumFaces:            1,
		RefineLandmarks:        false,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.MaxNumFaces < 1 {
		return fmt.Errorf("max_num_faces must be at least 1, got %d", o.MaxNumFaces)
	}
	if o.MinDetectionConfidence < 0 || o.MinDetectionConfidence > 1 {
		return fmt.Errorf("min_detection_confidence must be within [0, 1], got %v", o.MinDetectionConfidence)
	}
	if o.MinTrackingConfidence < 0 || o.MinTrackingConfidence > 1 {
		return fmt.Errorf("min_tracking_confidence must be within [0, 1], got %v", o.MinTrackingConfidence)
	}
	return nil
}

// Point is a normalized image coordinate.
type Point struct {
	X, Y float64
}

// Face is one detected face. Coordinates are normalized to 0-1.
type Face struct {
	X, Y, W, H float64
	Landmarks  []Point
	Score      float64
}

// Results is one result batch from the model.
type Results struct {
	Seq       uint64
	Timestamp time.Time
	Faces     []Face
}

// Input is a frame submission at a target resolution.
type Input struct {
	Frame  video.Frame
	Width  int
	Height int
}

// Model is an asynchronous face-landmark model. Results for a submission
// are delivered through the OnResults callback, possibly after Send
// returns and in any order relative to later submissions.
type Model interface {
	SetOptions(ctx context.Context, opts Options) error
	OnResults(fn func(Results))
	Send(ctx context.Context, in Input) error
	Close() error
}

// Loader makes a Model available.
type Loader interface {
	// Available reports whether Load can succeed now.
	Available() bool
	Load() (Model, error)
}
