// Package receiver is the remote end of a capture session: it accepts
// upload messages on /ws/session/:id and stores the images they carry.
package receiver

import (
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-snapcam/pkg/protocol"
)

// MaxMessageSize bounds one upload message (base64 inflates by a third).
const MaxMessageSize = 32 << 20

// Received describes one stored upload.
type Received struct {
	SessionID string    `json:"session_id"`
	FileName  string    `json:"file_name"`
	Size      int       `json:"size"`
	Path      string    `json:"path"`
	Time      time.Time `json:"time"`
}

// SessionConn is a connected capture session.
type SessionConn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	uploads  int
}

// Hub tracks connected sessions and stores their uploads.
type Hub struct {
	store  UploadStore
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*SessionConn
	onUpload func(r Received)

	messagesReceived atomic.Uint64
	uploadsStored    atomic.Uint64
	uploadsRejected  atomic.Uint64
	bytesStored      atomic.Uint64
}

// NewHub creates a hub that stores uploads in store.
func NewHub(store UploadStore, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:    store,
		logger:   logger.With("component", "receiver"),
		sessions: make(map[string]*SessionConn),
	}
}

// OnUpload sets a callback run after each stored upload.
func (h *Hub) OnUpload(cb func(r Received)) {
	h.mu.Lock()
	h.onUpload = cb
	h.mu.Unlock()
}

// RegisterRoutes registers the websocket endpoint and /health on app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": h.SessionCount()})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session/:id", websocket.New(h.handleSession))
}

// RegisterAPIRoutes registers session listing and stats under api.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/sessions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": h.GetSessionInfos(),
			"count":    h.SessionCount(),
		})
	})
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

func (h *Hub) handleSession(c *websocket.Conn) {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil || id == "" {
		h.logger.Warn("rejecting session with bad id", "id", c.Params("id"))
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad session id"))
		c.Close()
		return
	}

	now := time.Now()
	sc := &SessionConn{ID: id, Conn: c, Connected: now, lastSeen: now}

	h.mu.Lock()
	prev := h.sessions[id]
	h.sessions[id] = sc
	count := len(h.sessions)
	h.mu.Unlock()

	if prev != nil {
		h.logger.Info("session reconnected, closing previous connection", "session", id)
		prev.Conn.Close()
	}
	h.logger.Info("session connected", "session", id, "sessions", count)

	defer func() {
		h.mu.Lock()
		if h.sessions[id] == sc {
			delete(h.sessions, id)
		}
		count := len(h.sessions)
		h.mu.Unlock()
		h.logger.Info("session disconnected", "session", id, "sessions", count)
	}()

	c.SetReadLimit(MaxMessageSize)
	for {
		typ, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		sc.mu.Lock()
		sc.lastSeen = time.Now()
		sc.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(sc, data)
	}
}

// handleMessage stores one upload. Bad messages are logged and dropped;
// the protocol has no reply.
func (h *Hub) handleMessage(sc *SessionConn, data []byte) {
	u, err := protocol.ParseUpload(data)
	if err != nil {
		h.uploadsRejected.Add(1)
		h.logger.Warn("rejected upload", "session", sc.ID, "error", err)
		return
	}
	raw, err := u.Decode()
	if err != nil {
		h.uploadsRejected.Add(1)
		h.logger.Warn("rejected upload", "session", sc.ID, "error", err)
		return
	}

	path, err := h.store.Store(sc.ID, u.FileName, raw)
	if err != nil {
		h.uploadsRejected.Add(1)
		h.logger.Error("store upload failed", "session", sc.ID, "error", err)
		return
	}

	h.uploadsStored.Add(1)
	h.bytesStored.Add(uint64(len(raw)))
	sc.mu.Lock()
	sc.uploads++
	sc.mu.Unlock()

	r := Received{SessionID: sc.ID, FileName: u.FileName, Size: len(raw), Path: path, Time: time.Now()}
	h.logger.Info("upload stored", "session", sc.ID, "file", u.FileName, "bytes", len(raw), "path", path)

	h.mu.RLock()
	cb := h.onUpload
	h.mu.RUnlock()
	if cb != nil {
		cb(r)
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// GetSession returns a connected session by id, or nil.
func (h *Hub) GetSession(id string) *SessionConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Uploads   int       `json:"uploads"`
}

// GetSessionInfos returns info about all connected sessions.
func (h *Hub) GetSessionInfos() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.lastSeen,
			Uploads:   s.uploads,
		})
		s.mu.Unlock()
	}
	return infos
}

// Stats contains receiver counters.
type Stats struct {
	SessionCount     int    `json:"session_count"`
	MessagesReceived uint64 `json:"messages_received"`
	UploadsStored    uint64 `json:"uploads_stored"`
	UploadsRejected  uint64 `json:"uploads_rejected"`
	BytesStored      uint64 `json:"bytes_stored"`
}

// GetStats returns receiver counters.
func (h *Hub) GetStats() Stats {
	return Stats{
		SessionCount:     h.SessionCount(),
		MessagesReceived: h.messagesReceived.Load(),
		UploadsStored:    h.uploadsStored.Load(),
		UploadsRejected:  h.uploadsRejected.Load(),
		BytesStored:      h.bytesStored.Load(),
	}
}

// NewApp returns a fiber app serving h's routes, with the API under /api.
func NewApp(h *Hub) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "snapcam-receiver",
		DisableStartupMessage: true,
	})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))
	return app
}
