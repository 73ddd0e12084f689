package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/capture"
	"github.com/teslashibe/go-snapcam/pkg/session"
	"github.com/teslashibe/go-snapcam/pkg/still"
	"github.com/teslashibe/go-snapcam/pkg/transport"
)

// statusResponse is the body returned by every session endpoint.
type statusResponse struct {
	session.Status
	Previewing bool `json:"previewing"`
}

func (s *Server) status() statusResponse {
	return statusResponse{Status: s.session().Snapshot(), Previewing: s.previewing()}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleCapture takes a still. An empty body uses the session's mode.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	sess := s.session()

	var (
		img *still.Image
		err error
	)
	if len(c.Body()) == 0 {
		img, err = sess.Capture()
	} else {
		var m capture.Mode
		if err := c.BodyParser(&m); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := m.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		img, err = sess.CaptureWith(m)
	}
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	s.PublishStatus()
	resp := fiber.Map{"captured": img != nil, "status": s.status()}
	if img != nil {
		resp["image"] = img.Meta()
	}
	return c.JSON(resp)
}

func (s *Server) handleRetake(c *fiber.Ctx) error {
	err := s.session().Retake(c.UserContext())
	s.PublishStatus()
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error(), "status": s.status()})
	}
	return c.JSON(s.status())
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	path, err := s.session().Save()
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"saved": path != "", "path": path})
}

func (s *Server) handleSend(c *fiber.Ctx) error {
	sess := s.session()
	if sess.Image() == nil {
		return c.JSON(fiber.Map{"sent": false})
	}
	if err := sess.Send(c.UserContext()); err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sent": true})
}

func (s *Server) handleConfirm(c *fiber.Ctx) error {
	if err := s.session().Confirm(c.UserContext()); err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.status())
}

// handleImage returns the current still as JPEG.
func (s *Server) handleImage(c *fiber.Ctx) error {
	img := s.session().Image()
	if img == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no image captured"})
	}
	c.Set(fiber.HeaderContentType, img.MIME())
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img.Bytes())
}

func (s *Server) handleNotifications(c *fiber.Ctx) error {
	return c.JSON(s.Notifications())
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.manager
	s.mu.RUnlock()
	if m == nil {
		return c.JSON(s.session().Snapshot().Constraints)
	}
	return c.JSON(m.GetConfigJSON())
}

// handleUpdateCamera applies a partial constraints update, e.g.
// {"preset": "document"} or {"facing_mode": "environment", "width": 1920}.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.manager
	s.mu.RUnlock()
	if m == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": errNoManager.Error()})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := m.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.PublishStatus()
	return c.JSON(m.GetConfigJSON())
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets":      camera.Presets(),
		"names":        camera.PresetNames(),
		"capabilities": camera.Capabilities(),
	})
}

// errorStatus maps session errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrClosed):
		return fiber.StatusGone
	case errors.Is(err, camera.ErrUnavailable),
		errors.Is(err, transport.ErrNotConnected):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoSaver):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}
