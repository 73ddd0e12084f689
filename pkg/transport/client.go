// Package transport sends captured stills to a remote endpoint over a
// single WebSocket connection addressed by session id.
//
// Sends are fire-and-forget: there is no acknowledgement, retry or
// reconnect. Inbound messages are read and discarded.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-snapcam/pkg/protocol"
	"github.com/teslashibe/go-snapcam/pkg/still"
)

// Default timeouts.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrNoSession is returned when no session id was supplied.
	ErrNoSession = errors.New("transport: session id required")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("transport: closed")
)

// Config configures a Client.
type Config struct {
	// BaseURL is the ws:// or wss:// endpoint prefix; the session id is
	// appended as the final path segment.
	BaseURL string

	// SessionID identifies the remote session.
	SessionID string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Header is sent with the handshake.
	Header http.Header
}

// SessionURL joins base and the path-escaped session id.
func SessionURL(base, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("transport: bad base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	escaped := strings.TrimSuffix(u.EscapedPath(), "/") + "/" + url.PathEscape(sessionID)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + sessionID
	u.RawPath = escaped
	return u.String(), nil
}

// Client owns at most one WebSocket connection.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	connected bool

	writeMu sync.Mutex

	onError func(err error)
}

// NewClient creates a client. It does not connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("session", cfg.SessionID),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// SetOnError registers fn to be called when an open connection fails.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// SessionID returns the configured session id.
func (c *Client) SessionID() string { return c.cfg.SessionID }

// Connect opens the connection. Calling Connect while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	target, err := SessionURL(c.cfg.BaseURL, c.cfg.SessionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, target, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: connect %s failed (%s): %w", target, resp.Status, err)
		}
		return fmt.Errorf("transport: connect %s failed: %w", target, err)
	}

	c.mu.Lock()
	if c.closed || c.connected {
		// Closed (or raced by another Connect) while dialing.
		closed := c.closed
		c.mu.Unlock()
		conn.Close()
		if closed {
			return ErrClosed
		}
		return nil
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("transport connected", "url", target)
	go c.readLoop(conn)
	return nil
}

// readLoop discards inbound messages and notices disconnects.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			c.drop(conn, err)
			return
		}
	}
}

// drop forgets conn if it is still current and reports err once.
func (c *Client) drop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	wasClosed := c.closed
	if current {
		c.conn = nil
		c.connected = false
	}
	onError := c.onError
	c.mu.Unlock()

	conn.Close()
	if current && !wasClosed {
		c.logger.Warn("transport disconnected", "error", err)
		if onError != nil {
			onError(err)
		}
	}
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send writes img as an Upload under fileName.
func (c *Client) Send(ctx context.Context, fileName string, img *still.Image) error {
	if img == nil {
		return errors.New("transport: nothing to send")
	}
	return c.SendUpload(ctx, protocol.NewUpload(fileName, img.Bytes()))
}

// SendUpload writes a prepared upload.
func (c *Client) SendUpload(ctx context.Context, u *protocol.Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := u.Bytes()
	if err != nil {
		return fmt.Errorf("transport: encode upload: %w", err)
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(deadline)
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		// gorilla write errors are sticky, so the connection is unusable.
		c.drop(conn, err)
		return fmt.Errorf("transport: send failed: %w", err)
	}

	c.logger.Debug("upload sent", "file", u.FileName, "bytes", len(data))
	return nil
}

// Close closes the connection. It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.logger.Info("transport closed")
	return conn.Close()
}
