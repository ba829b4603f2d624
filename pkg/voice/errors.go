package voice

import (
	"errors"
	"fmt"
)

// ErrClosed is reported for messages spoken after Close.
var ErrClosed = errors.New("voice: speaker closed")

// Stage names the step of an utterance that failed.
type Stage string

const (
	StageSynthesize Stage = "synthesize"
	StagePlay       Stage = "play"
	StagePanic      Stage = "panic"
)

// SinkError is a failed utterance. It is logged and handed to the error
// handler, never returned from Speak.
type SinkError struct {
	Stage Stage
	Text  string
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("voice: %s %q: %v", e.Stage, e.Text, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
