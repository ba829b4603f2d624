// Package audioio plays synthesized speech and the ambient noise bed
// through the sound card.
//
// Backends:
//   - malgo (miniaudio) for ALSA, CoreAudio and WASAPI
//   - mock for CI and machines without audio hardware
package audioio

import (
	"fmt"
	"time"
)

// Backend selects the playback implementation.
type Backend string

const (
	// BackendAuto tries malgo and falls back to mock.
	BackendAuto  Backend = "auto"
	BackendMalgo Backend = "malgo"
	BackendMock  Backend = "mock"
)

// Config holds playback configuration.
type Config struct {
	Backend Backend `json:"backend"`

	// SampleRate is the device rate. Clips at other rates are resampled.
	SampleRate int `json:"sample_rate"`

	Channels int `json:"channels"`

	// BufferDuration is the device period.
	BufferDuration time.Duration `json:"buffer_duration"`
}

// DefaultConfig returns 24kHz mono with a 20ms period, matching the TTS
// providers' output.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per period.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferSamples returns the number of interleaved samples per period.
func (c *Config) BufferSamples() int {
	return c.BufferSize() * c.Channels
}
