// Package web serves the focus coach dashboard: a JSON API, live
// websocket streams and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-focuscoach/pkg/hub"
)

const (
	defaultLogSize  = 500
	shutdownTimeout = 5 * time.Second
)

// Error kinds a Controller wraps so handlers can pick a status code.
var (
	ErrInvalid  = errors.New("invalid request")
	ErrConflict = errors.New("conflict")
)

// LogEntry is a dashboard log line.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, session, attention, detector, voice, error
	Message string `json:"message"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStatic serves files from dir at the root path.
func WithStatic(dir string) Option {
	return func(s *Server) { s.static = dir }
}

// WithLogSize bounds the log buffer.
func WithLogSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.logSize = n
		}
	}
}

// Server is the dashboard server.
type Server struct {
	app     *fiber.App
	ctrl    Controller
	logger  *slog.Logger
	metrics http.Handler
	static  string
	logSize int

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	eventHub  *hub.Hub
	cameraHub *hub.Hub
}

// New creates a dashboard backed by ctrl.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:    ctrl,
		logger:  slog.Default(),
		logSize: defaultLogSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.logs = make([]LogEntry, 0, s.logSize)
	s.statusHub = hub.New("status", s.logger)
	s.eventHub = hub.New("events", s.logger)
	s.cameraHub = hub.New("camera", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Focus Coach",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New())

	if s.static != "" {
		app.Static("/", s.static)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session/start", s.handleStartSession)
	api.Post("/session/stop", s.handleStopSession)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handlePutSettings)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handlePutCamera)
	api.Get("/camera/capabilities", s.handleCameraCapabilities)
	api.Get("/logs", s.handleGetLogs)

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Run serves on addr until ctx is cancelled. The hubs run for the same
// lifetime.
func (s *Server) Run(ctx context.Context, addr string) error {
	var wg sync.WaitGroup
	for _, h := range []*hub.Hub{s.statusHub, s.eventHub, s.cameraHub} {
		wg.Add(1)
		go func(h *hub.Hub) {
			defer wg.Done()
			h.Run(ctx)
		}(h)
	}
	defer wg.Wait()

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", addr)
		errc <- s.app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Warn("dashboard shutdown", "error", err)
	}
	<-errc
	return nil
}

// PublishStatus pushes a status snapshot to /ws/status clients.
func (s *Server) PublishStatus(st Status) {
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("status broadcast", "error", err)
	}
}

// PublishEvent pushes a typed event to /ws/events clients.
func (s *Server) PublishEvent(typ string, data any) {
	msg, err := hub.EncodeEnvelope(typ, data)
	if err != nil {
		s.logger.Warn("event encode", "type", typ, "error", err)
		return
	}
	s.eventHub.Broadcast(msg)
}

// SendCameraFrame pushes a JPEG frame to /ws/camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// CameraClients reports how many clients watch the camera stream.
func (s *Server) CameraClients() int {
	return s.cameraHub.ClientCount()
}

// AddLog appends a log entry and streams it as a "log" event.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	if len(s.logs) == s.logSize {
		copy(s.logs, s.logs[1:])
		s.logs = s.logs[:len(s.logs)-1]
	}
	s.logs = append(s.logs, entry)
	s.logsMu.Unlock()

	s.PublishEvent("log", entry)
}

// Logs returns a copy of the log buffer, oldest first.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}
