package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c := Load(New())

	if c.Attention.DistractionThreshold != 5*time.Second {
		t.Errorf("DistractionThreshold: got %v, want 5s", c.Attention.DistractionThreshold)
	}
	if c.Attention.RefocusCooldown != 3*time.Second {
		t.Errorf("RefocusCooldown: got %v, want 3s", c.Attention.RefocusCooldown)
	}
	if c.Detector.PollInterval != 100*time.Millisecond || c.Detector.PollAttempts != 50 {
		t.Errorf("poll: got %v x %d, want 100ms x 50", c.Detector.PollInterval, c.Detector.PollAttempts)
	}
	if c.Detector.PumpWidth != 480 || c.Detector.PumpHeight != 360 {
		t.Errorf("pump: got %dx%d, want 480x360", c.Detector.PumpWidth, c.Detector.PumpHeight)
	}
	if c.Detector.MinConfidence != 0.5 {
		t.Errorf("MinConfidence: got %v, want 0.5", c.Detector.MinConfidence)
	}
	if c.Timer.FocusMinutes != 25 || c.Timer.BreakMinutes != 5 {
		t.Errorf("timer: got %d/%d, want 25/5", c.Timer.FocusMinutes, c.Timer.BreakMinutes)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FOCUS_ATTENTION_DISTRACTION_THRESHOLD", "8s")
	t.Setenv("FOCUS_TIMER_FOCUS_MINUTES", "50")
	t.Setenv("ELEVENLABS_API_KEY", "xi-test")

	c := Load(New())

	if c.Attention.DistractionThreshold != 8*time.Second {
		t.Errorf("DistractionThreshold: got %v, want 8s", c.Attention.DistractionThreshold)
	}
	if c.Timer.FocusMinutes != 50 {
		t.Errorf("FocusMinutes: got %d, want 50", c.Timer.FocusMinutes)
	}
	if c.Voice.ElevenLabsKey != "xi-test" {
		t.Errorf("ElevenLabsKey: got %q, want %q", c.Voice.ElevenLabsKey, "xi-test")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero threshold", func(c *Config) { c.Attention.DistractionThreshold = 0 }, "attention.distraction_threshold"},
		{"negative cooldown", func(c *Config) { c.Attention.RefocusCooldown = -time.Second }, "attention.refocus_cooldown"},
		{"no attempts", func(c *Config) { c.Detector.PollAttempts = 0 }, "detector.poll_attempts"},
		{"confidence above one", func(c *Config) { c.Detector.MinConfidence = 1.5 }, "detector.min_confidence"},
		{"zero focus", func(c *Config) { c.Timer.FocusMinutes = 0 }, "timer"},
		{"loud ambient", func(c *Config) { c.Ambient.Volume = 2 }, "ambient.volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load(New())
			tt.mutate(&c)

			err := c.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field: got %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("FOCUS_USER_NAME=Sam\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOCUS_USER_NAME", "")
	os.Unsetenv("FOCUS_USER_NAME")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := Load(New()).UserName; got != "Sam" {
		t.Errorf("UserName: got %q, want %q", got, "Sam")
	}
}
