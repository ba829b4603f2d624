package camera

import (
	"errors"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	for name, cfg := range Presets() {
		t.Run(name, func(t *testing.T) {
			if errs := cfg.Validate(); len(errs) > 0 {
				t.Errorf("preset %s invalid: %v", name, errs)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"tiny width", func(c *Config) { c.Width = 100 }, false},
		{"huge height", func(c *Config) { c.Height = 5000 }, false},
		{"zero fps", func(c *Config) { c.Framerate = 0 }, false},
		{"quality 101", func(c *Config) { c.Quality = 101 }, false},
		{"negative device", func(c *Config) { c.Device = -1 }, false},
		{"dim", func(c *Config) { c.Brightness = -0.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			errs := cfg.Validate()
			if got := len(errs) == 0; got != tt.valid {
				t.Errorf("valid: got %v, want %v (errors: %v)", got, tt.valid, errs)
			}
		})
	}
}

func TestManagerUpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied Config
	calls := 0
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		calls++
		return nil
	}

	err := m.UpdateConfig(map[string]any{
		"preset":  PresetLow,
		"quality": float64(50),
		"mirror":  false,
	})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 320 || got.Height != 240 {
		t.Errorf("resolution: got %dx%d, want 320x240", got.Width, got.Height)
	}
	if got.Quality != 50 {
		t.Errorf("Quality: got %d, want 50", got.Quality)
	}
	if got.Mirror {
		t.Error("Mirror: got true, want false")
	}
	if calls != 1 || applied != got {
		t.Errorf("OnConfigChange: calls=%d applied=%+v", calls, applied)
	}
}

func TestManagerRejectsInvalid(t *testing.T) {
	m := NewManager(DefaultConfig())

	if err := m.UpdateConfig(map[string]any{"preset": "bogus"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown preset: got %v, want ErrInvalidConfig", err)
	}
	if err := m.UpdateConfig(map[string]any{"width": 10}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("narrow width: got %v, want ErrInvalidConfig", err)
	}
	if got := m.GetConfig().Width; got != 640 {
		t.Errorf("Width changed after rejected update: %d", got)
	}
}

func TestManagerApplyError(t *testing.T) {
	m := NewManager(DefaultConfig())
	boom := errors.New("device busy")
	m.OnConfigChange = func(Config) error { return boom }

	err := m.SetConfig(HD720Config())
	if !errors.Is(err, boom) {
		t.Errorf("SetConfig error: got %v, want wrapped %v", err, boom)
	}
}

func TestManagerKeepsConfigOnApplyError(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.OnConfigChange = func(Config) error { return errors.New("device busy") }

	if err := m.UpdateConfig(map[string]any{"preset": Preset720p}); err == nil {
		t.Fatal("expected apply error")
	}
	if got := m.GetConfig(); got != DefaultConfig() {
		t.Errorf("config after failed apply: got %+v", got)
	}
}

func TestManagerRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"unknown field", map[string]any{"zoom": 2}},
		{"wrong type", map[string]any{"width": "wide"}},
		{"fractional width", map[string]any{"width": 640.5}},
		{"preset not a string", map[string]any{"preset": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultConfig())
			if err := m.UpdateConfig(tt.params); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}
