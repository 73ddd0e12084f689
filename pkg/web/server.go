// Package web serves the capture UI's control surface: a REST API over a
// session, a live JPEG preview feed and a status/notification feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/hub"
	"github.com/teslashibe/go-snapcam/pkg/session"
)

// Defaults for Config.
const (
	DefaultAddr            = ":8080"
	DefaultPreviewInterval = 100 * time.Millisecond
	DefaultPreviewQuality  = 0.7
	maxNotifications       = 100
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PreviewInterval is how often a preview frame is pushed.
	PreviewInterval time.Duration

	// PreviewQuality is the JPEG quality of preview frames in [0, 1].
	PreviewQuality float64

	// StaticDir, if set, is served at "/".
	StaticDir string
}

// Event is a message on the status feed.
type Event struct {
	Type         string                `json:"type"` // "status" or "notification"
	Status       *session.Status       `json:"status,omitempty"`
	Notification *session.Notification `json:"notification,omitempty"`
}

// Server is the preview and control server. It is the session's preview
// sink and notifier.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	previewHub *hub.Hub
	statusHub  *hub.Hub

	mu      sync.RWMutex
	sess    *session.Session
	manager *camera.Manager
	stream  camera.Stream

	notifyMu      sync.RWMutex
	notifications []session.Notification

	framesSent atomic.Uint64
}

// NewServer creates a server. Attach a session before serving requests.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.PreviewInterval <= 0 {
		cfg.PreviewInterval = DefaultPreviewInterval
	}
	if cfg.PreviewQuality <= 0 {
		cfg.PreviewQuality = DefaultPreviewQuality
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		previewHub:    hub.New("preview", hub.WithLogger(logger)),
		statusHub:     hub.New("status", hub.WithLogger(logger), hub.WithRetainLast()),
		notifications: make([]session.Notification, 0, maxNotifications),
	}

	app := fiber.New(fiber.Config{
		AppName:               "snapcam",
		DisableStartupMessage: true,
		BodyLimit:             1 << 20,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Use(s.requireSession)
	api.Get("/status", s.handleStatus)
	api.Post("/capture", s.handleCapture)
	api.Post("/retake", s.handleRetake)
	api.Post("/save", s.handleSave)
	api.Post("/send", s.handleSend)
	api.Post("/confirm", s.handleConfirm)
	api.Get("/image", s.handleImage)
	api.Get("/notifications", s.handleNotifications)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handlePresets)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(func(c *websocket.Conn) {
		hub.NewClient(s.previewHub, c).Serve()
	}))
	app.Get("/ws/status", websocket.New(func(c *websocket.Conn) {
		hub.NewClient(s.statusHub, c).Serve()
	}))

	s.app = app
	return s
}

// Attach connects the server to a session and its constraint manager.
// Constraint updates made through the API are applied to the session.
func (s *Server) Attach(sess *session.Session, m *camera.Manager) {
	s.mu.Lock()
	s.sess = sess
	s.manager = m
	s.mu.Unlock()

	if m != nil {
		m.OnConfigChange = func(c camera.Constraints) error {
			return sess.SetConstraints(context.Background(), c)
		}
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.previewHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.pumpPreview(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(s.cfg.Addr) }()
	s.logger.Info("web server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return err
		}
		return nil
	}
}

// Bind implements session.PreviewSink.
func (s *Server) Bind(st camera.Stream) {
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()
}

// Unbind implements session.PreviewSink.
func (s *Server) Unbind() {
	s.mu.Lock()
	s.stream = nil
	s.mu.Unlock()
}

// Notify implements session.Notifier. Notifications are kept for the
// notifications endpoint and pushed to the status feed.
func (s *Server) Notify(n session.Notification) {
	s.notifyMu.Lock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[1:]
	}
	s.notifyMu.Unlock()

	s.statusHub.BroadcastJSON(Event{Type: "notification", Notification: &n})
}

// Notifications returns the recent notifications, oldest first.
func (s *Server) Notifications() []session.Notification {
	s.notifyMu.RLock()
	defer s.notifyMu.RUnlock()
	out := make([]session.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// PublishStatus pushes the current session status to the status feed.
func (s *Server) PublishStatus() {
	sess := s.session()
	if sess == nil {
		return
	}
	st := sess.Snapshot()
	s.statusHub.BroadcastJSON(Event{Type: "status", Status: &st})
}

func (s *Server) session() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

func (s *Server) requireSession(c *fiber.Ctx) error {
	if s.session() == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no session attached",
		})
	}
	return c.Next()
}

var errNoManager = errors.New("camera settings not configurable")
