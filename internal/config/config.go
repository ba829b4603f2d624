// Package config loads go-focuscoach configuration from flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FOCUS_SERVER_ADDR.
const EnvPrefix = "FOCUS"

// Config holds all configuration for the focus coach.
// Flag parsing is done in cmd/focuscoach; this struct is data only.
type Config struct {
	Server    Server
	Camera    Camera
	Detector  Detector
	Attention Attention
	Timer     Timer
	Voice     Voice
	Ambient   Ambient
	Notify    Notify
	DataDir   string
	UserName  string
	LogLevel  string
}

// Server configures the dashboard.
type Server struct {
	Addr    string
	Enabled bool
}

// Camera configures webcam capture.
type Camera struct {
	Device    int
	Width     int
	Height    int
	Framerate int
	Quality   int
}

// Detector configures the presence detectors and their supervisor.
type Detector struct {
	ModelPath     string
	ModelURL      string
	FetchModel    bool
	InitDelay     time.Duration
	PollInterval  time.Duration
	PollAttempts  int
	PumpWidth     int
	PumpHeight    int
	PumpFPS       int
	SampleFPS     int
	MinConfidence float64
}

// Attention configures distraction debouncing.
type Attention struct {
	DistractionThreshold time.Duration
	RefocusCooldown      time.Duration
}

// Timer configures the focus/break countdown.
type Timer struct {
	FocusMinutes int
	BreakMinutes int
}

// Voice configures spoken prompts.
type Voice struct {
	Enabled       bool
	Playback      bool
	ElevenLabsKey string
	OpenAIKey     string
	VoiceID       string
	Model         string
	SampleRate    int
}

// Ambient configures the background noise bed.
type Ambient struct {
	Sound  string
	Volume float64
}

// Notify configures push notifications.
type Notify struct {
	URLs         []string
	DedupeWindow time.Duration
}

// Defaults registers every default on v.
func Defaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.enabled", true)

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.framerate", 30)
	v.SetDefault("camera.quality", 80)

	v.SetDefault("detector.model_path", "models/face_detection_yunet.onnx")
	v.SetDefault("detector.model_url", "https://github.com/opencv/opencv_zoo/raw/main/models/face_detection_yunet/face_detection_yunet_2023mar.onnx")
	v.SetDefault("detector.fetch_model", true)
	v.SetDefault("detector.init_delay", time.Second)
	v.SetDefault("detector.poll_interval", 100*time.Millisecond)
	v.SetDefault("detector.poll_attempts", 50)
	v.SetDefault("detector.pump_width", 480)
	v.SetDefault("detector.pump_height", 360)
	v.SetDefault("detector.pump_fps", 15)
	v.SetDefault("detector.sample_fps", 30)
	v.SetDefault("detector.min_confidence", 0.5)

	v.SetDefault("attention.distraction_threshold", 5*time.Second)
	v.SetDefault("attention.refocus_cooldown", 3*time.Second)

	v.SetDefault("timer.focus_minutes", 25)
	v.SetDefault("timer.break_minutes", 5)

	v.SetDefault("voice.enabled", true)
	v.SetDefault("voice.playback", true)
	v.SetDefault("voice.voice_id", "sarah")
	v.SetDefault("voice.model", "eleven_multilingual_v2")
	v.SetDefault("voice.sample_rate", 24000)

	v.SetDefault("ambient.sound", "off")
	v.SetDefault("ambient.volume", 0.1)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.dedupe_window", 5*time.Second)

	v.SetDefault("data_dir", filepath.Join(home, ".focuscoach"))
	v.SetDefault("user_name", "")
	v.SetDefault("log_level", "info")
}

// New returns a viper instance with defaults, env bindings and the
// well-known API key variables mapped.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	Defaults(v)

	// Unprefixed names used by the providers themselves
	_ = v.BindEnv("voice.elevenlabs_key", EnvPrefix+"_VOICE_ELEVENLABS_KEY", "ELEVENLABS_API_KEY")
	_ = v.BindEnv("voice.openai_key", EnvPrefix+"_VOICE_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	return v
}

// LoadDotEnv loads .env files into the process environment.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from v.
func Load(v *viper.Viper) Config {
	var c Config

	c.Server.Addr = v.GetString("server.addr")
	c.Server.Enabled = v.GetBool("server.enabled")

	c.Camera.Device = v.GetInt("camera.device")
	c.Camera.Width = v.GetInt("camera.width")
	c.Camera.Height = v.GetInt("camera.height")
	c.Camera.Framerate = v.GetInt("camera.framerate")
	c.Camera.Quality = v.GetInt("camera.quality")

	c.Detector.ModelPath = v.GetString("detector.model_path")
	c.Detector.ModelURL = v.GetString("detector.model_url")
	c.Detector.FetchModel = v.GetBool("detector.fetch_model")
	c.Detector.InitDelay = v.GetDuration("detector.init_delay")
	c.Detector.PollInterval = v.GetDuration("detector.poll_interval")
	c.Detector.PollAttempts = v.GetInt("detector.poll_attempts")
	c.Detector.PumpWidth = v.GetInt("detector.pump_width")
	c.Detector.PumpHeight = v.GetInt("detector.pump_height")
	c.Detector.PumpFPS = v.GetInt("detector.pump_fps")
	c.Detector.SampleFPS = v.GetInt("detector.sample_fps")
	c.Detector.MinConfidence = v.GetFloat64("detector.min_confidence")

	c.Attention.DistractionThreshold = v.GetDuration("attention.distraction_threshold")
	c.Attention.RefocusCooldown = v.GetDuration("attention.refocus_cooldown")

	c.Timer.FocusMinutes = v.GetInt("timer.focus_minutes")
	c.Timer.BreakMinutes = v.GetInt("timer.break_minutes")

	c.Voice.Enabled = v.GetBool("voice.enabled")
	c.Voice.Playback = v.GetBool("voice.playback")
	c.Voice.ElevenLabsKey = v.GetString("voice.elevenlabs_key")
	c.Voice.OpenAIKey = v.GetString("voice.openai_key")
	c.Voice.VoiceID = v.GetString("voice.voice_id")
	c.Voice.Model = v.GetString("voice.model")
	c.Voice.SampleRate = v.GetInt("voice.sample_rate")

	c.Ambient.Sound = v.GetString("ambient.sound")
	c.Ambient.Volume = v.GetFloat64("ambient.volume")

	c.Notify.URLs = v.GetStringSlice("notify.urls")
	c.Notify.DedupeWindow = v.GetDuration("notify.dedupe_window")

	c.DataDir = v.GetString("data_dir")
	c.UserName = v.GetString("user_name")
	c.LogLevel = v.GetString("log_level")
	return c
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	switch {
	case c.Attention.DistractionThreshold <= 0:
		return &ConfigError{Field: "attention.distraction_threshold", Message: "must be positive"}
	case c.Attention.RefocusCooldown < 0:
		return &ConfigError{Field: "attention.refocus_cooldown", Message: "must not be negative"}
	case c.Detector.PollInterval <= 0:
		return &ConfigError{Field: "detector.poll_interval", Message: "must be positive"}
	case c.Detector.PollAttempts <= 0:
		return &ConfigError{Field: "detector.poll_attempts", Message: "must be positive"}
	case c.Detector.PumpWidth <= 0 || c.Detector.PumpHeight <= 0:
		return &ConfigError{Field: "detector.pump_width", Message: "pump resolution must be positive"}
	case c.Detector.PumpFPS <= 0 || c.Detector.SampleFPS <= 0:
		return &ConfigError{Field: "detector.pump_fps", Message: "rates must be positive"}
	case c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1:
		return &ConfigError{Field: "detector.min_confidence", Message: "must be within [0, 1]"}
	case c.Timer.FocusMinutes <= 0 || c.Timer.BreakMinutes <= 0:
		return &ConfigError{Field: "timer", Message: "focus and break minutes must be positive"}
	case c.Ambient.Volume < 0 || c.Ambient.Volume > 1:
		return &ConfigError{Field: "ambient.volume", Message: "must be within [0, 1]"}
	case c.Camera.Width <= 0 || c.Camera.Height <= 0:
		return &ConfigError{Field: "camera.width", Message: "capture resolution must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
