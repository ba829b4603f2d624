// Package settings persists user preferences and lifetime session stats in
// a versioned JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ambient is the preferred background sound.
type Ambient struct {
	Sound  string  `json:"sound"`
	Volume float64 `json:"volume"`
}

// Stats are lifetime totals.
type Stats struct {
	CompletedSessions int `json:"completed_sessions"`
	TotalFocusMinutes int `json:"total_focus_minutes"`
}

// Settings are the user's preferences.
type Settings struct {
	InstallID     string  `json:"install_id"`
	UserName      string  `json:"user_name"`
	FocusMinutes  int     `json:"focus_minutes"`
	BreakMinutes  int     `json:"break_minutes"`
	ElevenLabsKey string  `json:"elevenlabs_key,omitempty"`
	VoiceID       string  `json:"voice_id"`
	VoiceEnabled  bool    `json:"voice_enabled"`
	Ambient       Ambient `json:"ambient"`
	Stats         Stats   `json:"stats"`
}

// Defaults returns first-run settings.
func Defaults() Settings {
	return Settings{
		FocusMinutes: 25,
		BreakMinutes: 5,
		VoiceID:      "sarah",
		VoiceEnabled: true,
		Ambient:      Ambient{Sound: "off", Volume: 0.1},
	}
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	switch {
	case s.FocusMinutes <= 0 || s.FocusMinutes > 240:
		return fmt.Errorf("%w: focus_minutes must be within 1-240, got %d", ErrInvalid, s.FocusMinutes)
	case s.BreakMinutes <= 0 || s.BreakMinutes > 120:
		return fmt.Errorf("%w: break_minutes must be within 1-120, got %d", ErrInvalid, s.BreakMinutes)
	case s.Ambient.Volume < 0 || s.Ambient.Volume > 1:
		return fmt.Errorf("%w: ambient volume must be within 0-1, got %v", ErrInvalid, s.Ambient.Volume)
	case len(s.UserName) > 64:
		return fmt.Errorf("%w: user_name is too long", ErrInvalid)
	}
	return nil
}

// Redacted returns a copy safe to show in the dashboard.
func (s Settings) Redacted() Settings {
	if k := s.ElevenLabsKey; k != "" {
		if len(k) > 4 {
			k = k[len(k)-4:]
		}
		s.ElevenLabsKey = "…" + k
	}
	return s
}

// Store holds the settings in memory and writes every change to disk.
type Store struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// storeData is the on-disk layout.
type storeData struct {
	Version   int      `json:"version"`
	UpdatedAt string   `json:"updated_at"`
	Settings  Settings `json:"settings"`
}

const currentVersion = 1

// Errors returned by the store.
var (
	ErrVersion = errors.New("settings: unsupported file version")
	ErrInvalid = errors.New("settings: invalid")
)

// Open loads the store at path, creating its directory. A missing file
// starts from defaults and is written on first save.
func Open(path string, defaults Settings) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &Store{path: path, settings: defaults}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if s.settings.InstallID == "" {
		s.settings.InstallID = uuid.NewString()
	}
	return s, nil
}

// OpenDefault opens settings.json in dir.
func OpenDefault(dir string) (*Store, error) {
	return Open(filepath.Join(dir, "settings.json"), Defaults())
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if stored.Version > currentVersion {
		return fmt.Errorf("%w: %d", ErrVersion, stored.Version)
	}

	// Fields missing from older files keep their defaults.
	merged := s.settings
	if err := json.Unmarshal(settingsRaw(data), &merged); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	s.settings = merged
	return nil
}

// settingsRaw extracts the raw settings object so it can be decoded over
// defaults.
func settingsRaw(data []byte) []byte {
	var wrapper struct {
		Settings json.RawMessage `json:"settings"`
	}
	if json.Unmarshal(data, &wrapper) != nil || len(wrapper.Settings) == 0 {
		return []byte("{}")
	}
	return wrapper.Settings
}

// save writes the store to disk. Callers hold mu.
func (s *Store) save() error {
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Settings:  s.settings,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to a temp file, then rename over the original.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Save replaces the settings. The install ID and stats are kept, and a
// key echoed back in redacted form leaves the stored key unchanged.
func (s *Store) Save(next Settings) (Settings, error) {
	return s.Update(func(cur *Settings) {
		if next.ElevenLabsKey != "" && next.ElevenLabsKey == cur.Redacted().ElevenLabsKey {
			next.ElevenLabsKey = cur.ElevenLabsKey
		}
		next.Stats, next.InstallID = cur.Stats, cur.InstallID
		*cur = next
	})
}

// Update applies fn to a copy of the settings and persists the result if
// it validates.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	next.UserName = strings.TrimSpace(next.UserName)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}

	prev := s.settings
	s.settings = next
	if err := s.save(); err != nil {
		s.settings = prev
		return prev, err
	}
	return next, nil
}

// RecordCompletion adds one completed focus phase of the given length.
func (s *Store) RecordCompletion(minutes int) (Settings, error) {
	return s.Update(func(cur *Settings) {
		cur.Stats.CompletedSessions++
		cur.Stats.TotalFocusMinutes += minutes
	})
}
