package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidConfig is returned for configurations that fail validation.
var ErrInvalidConfig = errors.New("camera: invalid config")

// Manager owns the live capture configuration. Changes are applied to the
// device through OnConfigChange before they are stored, so a setting the
// device rejects never becomes current.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange applies cfg to the capture device. Optional.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager holding cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, applies it and makes it current.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// UpdateConfig overlays params on the current configuration. A "preset"
// entry replaces the base before the remaining fields are applied.
// Unknown fields and mistyped values are rejected.
func (m *Manager) UpdateConfig(params map[string]any) error {
	base := m.GetConfig()

	fields := make(map[string]any, len(params))
	for k, v := range params {
		if k != "preset" {
			fields[k] = v
			continue
		}
		name, _ := v.(string)
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, v)
		}
		base = *preset
	}

	cfg, err := overlay(base, fields)
	if err != nil {
		return err
	}
	return m.SetConfig(cfg)
}

// overlay decodes fields onto a copy of base using the JSON field names.
func overlay(base Config, fields map[string]any) (Config, error) {
	if len(fields) == 0 {
		return base, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	cfg := base
	if err := dec.Decode(&cfg); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}
