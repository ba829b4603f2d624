// Package presence defines the presence signal produced by face detectors
// and the interface every detector variant implements.
package presence

import (
	"context"
	"time"
)

// Kind identifies a detector variant.
type Kind string

const (
	KindLandmark  Kind = "landmark"
	KindHeuristic Kind = "heuristic"
)

func (k Kind) String() string { return string(k) }

// Signal is a single observation of whether a face is present.
type Signal struct {
	Timestamp time.Time `json:"timestamp"`
	Present   bool      `json:"present"`
	FaceCount int       `json:"face_count"`
	Source    Kind      `json:"source"`
}

// SignalFunc receives presence signals.
type SignalFunc func(Signal)

// Detector is implemented by the landmark and heuristic detectors.
//
// Start returns once the detector is producing signals or has failed to
// start. Failures after a successful start are reported once on Err.
// Stop is idempotent and synchronous: no signal is delivered after it
// returns.
type Detector interface {
	Kind() Kind
	Start(ctx context.Context) error
	Stop() error
	OnSignal(fn SignalFunc)
	Err() <-chan error
}

// Session records the lifecycle of the active detector.
type Session struct {
	Kind        Kind      `json:"kind"`
	Initialized bool      `json:"initialized"`
	Failed      bool      `json:"failed"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// Gate reports whether a focus session is active.
type Gate interface {
	Active() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

// Active implements Gate.
func (f GateFunc) Active() bool { return f() }
