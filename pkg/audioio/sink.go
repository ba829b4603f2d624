package audioio

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInterrupted is returned by Play when the clip was cleared or
	// replaced by a newer one before it finished.
	ErrInterrupted = errors.New("audioio: playback interrupted")

	// ErrNotRunning is returned by Play before Start or after Stop.
	ErrNotRunning = errors.New("audioio: sink not running")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("audioio: sink closed")
)

// Sink plays audio to a speaker or other output device.
//
// At most one clip plays at a time. Playing a new clip replaces the
// current one; there is no queue. The ambient bed, when enabled, plays
// underneath whatever clip is current.
type Sink interface {
	// Start opens the device. The ambient bed starts with it.
	Start(ctx context.Context) error

	// Stop closes the device and interrupts the current clip.
	// It is safe to call Stop multiple times.
	Stop() error

	// Play replaces the current clip and blocks until it has been played,
	// interrupted (ErrInterrupted) or ctx is done.
	Play(ctx context.Context, chunk AudioChunk) error

	// Clear interrupts the current clip. The ambient bed keeps playing.
	Clear() error

	// SetAmbient changes the noise bed.
	SetAmbient(a Ambient)

	// Ambient returns the current noise bed.
	Ambient() Ambient

	// Config returns the device configuration.
	Config() Config

	// Name returns the backend name, e.g. "malgo" or "mock".
	Name() string

	// Stats returns playback counters.
	Stats() SinkStats

	// Close releases all resources.
	// After Close, the sink cannot be restarted.
	io.Closer
}

// SinkStats contains playback counters.
type SinkStats struct {
	ClipsPlayed      int64   `json:"clips_played"`
	ClipsInterrupted int64   `json:"clips_interrupted"`
	FramesWritten    int64   `json:"frames_written"`
	Speaking         bool    `json:"speaking"`
	Level            float64 `json:"level"`
	Running          bool    `json:"running"`
	Backend          string  `json:"backend"`
	Ambient          Ambient `json:"ambient"`
}

// play enqueues chunk on m and waits for it. Cancelling ctx withdraws the
// clip without touching a newer one.
func play(ctx context.Context, m *Mixer, chunk AudioChunk) error {
	pb := m.Enqueue(chunk)
	select {
	case <-pb.Done():
		return pb.Err()
	case <-ctx.Done():
		m.Cancel(pb)
		return ctx.Err()
	}
}
