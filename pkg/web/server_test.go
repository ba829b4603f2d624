package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-focuscoach/internal/log"
	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/camera"
	"github.com/teslashibe/go-focuscoach/pkg/settings"
)

// fakeController is an in-memory Controller.
type fakeController struct {
	mu       sync.Mutex
	active   bool
	settings settings.Settings
	camera   camera.Config
	starts   int
}

func newFakeController() *fakeController {
	s := settings.Defaults()
	s.UserName = "Ada"
	s.ElevenLabsKey = "sk-secret-1234"
	return &fakeController{settings: s, camera: camera.DefaultConfig()}
}

func (f *fakeController) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{Message: "Ready to focus", Session: Session{Active: f.active}}
	if f.active {
		st.Session.ID = "session-1"
		st.Attention.Status = attention.StatusFocused
	}
	return st
}

func (f *fakeController) StartSession(context.Context) (Status, error) {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return Status{}, fmt.Errorf("session already active: %w", ErrConflict)
	}
	f.active = true
	f.starts++
	f.mu.Unlock()
	return f.Status(), nil
}

func (f *fakeController) StopSession() (Status, error) {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	return f.Status(), nil
}

func (f *fakeController) Settings() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) UpdateSettings(next settings.Settings) (settings.Settings, error) {
	if err := next.Validate(); err != nil {
		return f.Settings(), err
	}
	f.mu.Lock()
	f.settings = next
	f.mu.Unlock()
	return next, nil
}

func (f *fakeController) Camera() camera.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.camera
}

func (f *fakeController) UpdateCamera(params map[string]any) (camera.Config, error) {
	m := camera.NewManager(f.Camera())
	if err := m.UpdateConfig(params); err != nil {
		return camera.Config{}, err
	}
	f.mu.Lock()
	f.camera = m.GetConfig()
	f.mu.Unlock()
	return m.GetConfig(), nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeController) {
	t.Helper()
	ctrl := newFakeController()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return New(ctrl, opts...), ctrl
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestSessionEndpoints(t *testing.T) {
	s, ctrl := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		code   int
		active bool
	}{
		{"status idle", http.MethodGet, "/api/status", http.StatusOK, false},
		{"start", http.MethodPost, "/api/session/start", http.StatusOK, true},
		{"start twice", http.MethodPost, "/api/session/start", http.StatusConflict, true},
		{"stop", http.MethodPost, "/api/session/stop", http.StatusOK, false},
		{"start again", http.MethodPost, "/api/session/start", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, s, tt.method, tt.path, "")
			if code != tt.code {
				t.Fatalf("code: got %d, want %d (%s)", code, tt.code, body)
			}
			if code != http.StatusOK {
				var e map[string]string
				if err := json.Unmarshal(body, &e); err != nil || e["error"] == "" {
					t.Errorf("error body: got %s", body)
				}
				return
			}
			var st Status
			if err := json.Unmarshal(body, &st); err != nil {
				t.Fatal(err)
			}
			if st.Session.Active != tt.active {
				t.Errorf("active: got %v, want %v", st.Session.Active, tt.active)
			}
		})
	}

	if ctrl.starts != 2 {
		t.Errorf("starts: got %d, want 2", ctrl.starts)
	}
}

func TestSettingsRedactedAndValidated(t *testing.T) {
	s, ctrl := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/settings", "")
	if code != http.StatusOK {
		t.Fatalf("GET settings: %d", code)
	}
	var got settings.Settings
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.ElevenLabsKey != "…1234" {
		t.Errorf("key: got %q, want redacted", got.ElevenLabsKey)
	}

	code, body = do(t, s, http.MethodPut, "/api/settings", `{"focus_minutes":50,"user_name":"Grace"}`)
	if code != http.StatusOK {
		t.Fatalf("PUT settings: %d %s", code, body)
	}
	cur := ctrl.Settings()
	if cur.FocusMinutes != 50 || cur.UserName != "Grace" || cur.BreakMinutes != 5 {
		t.Errorf("partial update: got %+v", cur)
	}

	code, _ = do(t, s, http.MethodPut, "/api/settings", `{"focus_minutes":0}`)
	if code != http.StatusBadRequest {
		t.Errorf("invalid settings: got %d, want 400", code)
	}
	code, _ = do(t, s, http.MethodPut, "/api/settings", `{"focus_minutes":`)
	if code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d, want 400", code)
	}
	if got := ctrl.Settings().FocusMinutes; got != 50 {
		t.Errorf("focus after rejected updates: got %d, want 50", got)
	}
}

func TestCameraEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name  string
		body  string
		code  int
		width int
	}{
		{"preset", `{"preset":"low"}`, http.StatusOK, 320},
		{"field", `{"width":1280,"height":720}`, http.StatusOK, 1280},
		{"unknown preset", `{"preset":"cinema"}`, http.StatusBadRequest, 0},
		{"out of range", `{"width":1}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, s, http.MethodPut, "/api/camera", tt.body)
			if code != tt.code {
				t.Fatalf("code: got %d, want %d (%s)", code, tt.code, body)
			}
			if code != http.StatusOK {
				return
			}
			var cfg camera.Config
			if err := json.Unmarshal(body, &cfg); err != nil {
				t.Fatal(err)
			}
			if cfg.Width != tt.width {
				t.Errorf("width: got %d, want %d", cfg.Width, tt.width)
			}
		})
	}
}

func TestCameraCapabilities(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := do(t, s, http.MethodGet, "/api/camera/capabilities", "")
	if code != http.StatusOK {
		t.Fatalf("code: got %d", code)
	}
	var caps struct {
		MaxWidth int      `json:"max_width"`
		Presets  []string `json:"presets"`
	}
	if err := json.Unmarshal(body, &caps); err != nil {
		t.Fatal(err)
	}
	if caps.MaxWidth != camera.MaxWidth || len(caps.Presets) != len(camera.PresetNames()) {
		t.Errorf("capabilities: got %+v", caps)
	}
}

func TestLogsBounded(t *testing.T) {
	s, _ := newTestServer(t, WithLogSize(3))
	for i := 0; i < 5; i++ {
		s.AddLog("info", fmt.Sprintf("line %d", i))
	}

	code, body := do(t, s, http.MethodGet, "/api/logs", "")
	if code != http.StatusOK {
		t.Fatalf("GET logs: %d", code)
	}
	var logs []LogEntry
	if err := json.Unmarshal(body, &logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 || logs[0].Message != "line 2" || logs[2].Message != "line 4" {
		t.Errorf("logs: got %+v", logs)
	}
}

func TestMetricsRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "focuscoach_up 1\n")
	})

	s, _ := newTestServer(t, WithMetrics(h))
	code, body := do(t, s, http.MethodGet, "/metrics", "")
	if code != http.StatusOK || !strings.Contains(string(body), "focuscoach_up 1") {
		t.Errorf("metrics: got %d %q", code, body)
	}

	bare, _ := newTestServer(t)
	if code, _ := do(t, bare, http.MethodGet, "/metrics", ""); code != http.StatusNotFound {
		t.Errorf("metrics without handler: got %d, want 404", code)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/ws/status", "/ws/events", "/ws/camera"} {
		if code, _ := do(t, s, http.MethodGet, path, ""); code != http.StatusUpgradeRequired {
			t.Errorf("%s: got %d, want 426", path, code)
		}
	}
}
