package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-focuscoach/pkg/camera"
	"github.com/teslashibe/go-focuscoach/pkg/hub"
	"github.com/teslashibe/go-focuscoach/pkg/settings"
)

// handleError maps controller errors onto status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, ErrInvalid), errors.Is(err, settings.ErrInvalid), errors.Is(err, camera.ErrInvalidConfig):
		code = fiber.StatusBadRequest
	case errors.Is(err, ErrConflict):
		code = fiber.StatusConflict
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// handleStatus returns the dashboard state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	st, err := s.ctrl.StartSession(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	st, err := s.ctrl.StopSession()
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// handleGetSettings returns the settings with the API key redacted.
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Settings().Redacted())
}

// handlePutSettings replaces the settings. Omitted fields keep their
// current values.
func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	next := s.ctrl.Settings()
	if err := c.BodyParser(&next); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid settings: "+err.Error())
	}
	saved, err := s.ctrl.UpdateSettings(next)
	if err != nil {
		return err
	}
	s.AddLog("info", "Settings updated")
	return c.JSON(saved.Redacted())
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Camera())
}

// handlePutCamera applies a partial camera update, optionally starting
// from a named preset.
func (s *Server) handlePutCamera(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid camera config: "+err.Error())
	}
	cfg, err := s.ctrl.UpdateCamera(params)
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

// handleCameraCapabilities lists capture limits and preset names.
func (s *Server) handleCameraCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

// handleGetLogs returns recent log entries.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleStatusWS streams status snapshots, starting with the current one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if data, err := json.Marshal(s.ctrl.Status()); err == nil {
		initial = append(initial, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}

// handleEventsWS streams typed events after replaying the log buffer.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	var initial []hub.Message
	for _, entry := range s.Logs() {
		if msg, err := hub.EncodeEnvelope("log", entry); err == nil {
			initial = append(initial, msg)
		}
	}
	hub.NewClient(s.eventHub, c, initial...).Run()
}

// handleCameraWS streams binary JPEG frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
