package web

import (
	"context"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/audioio"
	"github.com/teslashibe/go-focuscoach/pkg/camera"
	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/settings"
	"github.com/teslashibe/go-focuscoach/pkg/supervisor"
	"github.com/teslashibe/go-focuscoach/pkg/timer"
	"github.com/teslashibe/go-focuscoach/pkg/voice"
)

// Controller is the application behind the dashboard.
type Controller interface {
	Status() Status
	StartSession(ctx context.Context) (Status, error)
	StopSession() (Status, error)
	Settings() settings.Settings
	UpdateSettings(next settings.Settings) (settings.Settings, error)
	Camera() camera.Config
	UpdateCamera(params map[string]any) (camera.Config, error)
}

// Session describes the current focus session.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Active    bool      `json:"active"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Tracking describes the presence pipeline.
type Tracking struct {
	State     supervisor.State `json:"state"`
	Detector  presence.Session `json:"detector"`
	Failovers int              `json:"failovers"`
	Error     string           `json:"error,omitempty"`
}

// Timer is the countdown as shown on the dashboard.
type Timer struct {
	timer.Progress
	Clock   string  `json:"clock"`
	Percent float64 `json:"percent"`
}

// NewTimer wraps p with its display fields.
func NewTimer(p timer.Progress) Timer {
	return Timer{Progress: p, Clock: p.Clock(), Percent: p.Percent()}
}

// Status is the full dashboard state.
type Status struct {
	Message   string             `json:"message"`
	Session   Session            `json:"session"`
	Attention attention.Snapshot `json:"attention"`
	Display   attention.Status   `json:"display_status"`
	Timer     Timer              `json:"timer"`
	Tracking  Tracking           `json:"tracking"`
	Voice     voice.Stats        `json:"voice"`
	Audio     audioio.SinkStats  `json:"audio"`
	Stats     settings.Stats     `json:"stats"`
	UpdatedAt time.Time          `json:"updated_at"`
}
