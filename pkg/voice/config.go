package voice

import (
	"errors"
	"time"
)

// Config holds Speaker parameters.
type Config struct {
	// Muted drops every message until unmuted.
	Muted bool

	// SynthesisTimeout bounds one provider call.
	SynthesisTimeout time.Duration

	// PlaybackMargin is added to the clip length to bound playback.
	PlaybackMargin time.Duration

	// MaxTextLength truncates longer messages. Zero disables the limit.
	MaxTextLength int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SynthesisTimeout: 10 * time.Second,
		PlaybackMargin:   2 * time.Second,
		MaxTextLength:    500,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SynthesisTimeout <= 0 {
		return errors.New("voice: synthesis timeout must be positive")
	}
	if c.PlaybackMargin < 0 {
		return errors.New("voice: playback margin must not be negative")
	}
	if c.MaxTextLength < 0 {
		return errors.New("voice: max text length must not be negative")
	}
	return nil
}
