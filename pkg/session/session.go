// Package session ties camera acquisition, frame capture, local save and
// transport together into one capture lifecycle.
//
// A Session owns at most one camera stream, one still and one transport
// connection. State moves Idle -> Captured on capture and back on retake.
// The camera stream is released as soon as a still is captured and
// reacquired on retake. Close releases everything and may be called any
// number of times, from any state, concurrently with a pending acquisition.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/capture"
	"github.com/teslashibe/go-snapcam/pkg/save"
	"github.com/teslashibe/go-snapcam/pkg/still"
	"github.com/teslashibe/go-snapcam/pkg/transport"
)

// DefaultFileName is the name stills are saved and sent under.
const DefaultFileName = "selfie.jpg"

var (
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("session: closed")
	// ErrNoSaver is returned by Save when no Saver is configured.
	ErrNoSaver = errors.New("session: no saver configured")
)

// PreviewSink displays the live stream. Bind and Unbind are called with the
// Session lock held and must not block or call back into the Session.
type PreviewSink interface {
	Bind(s camera.Stream)
	Unbind()
}

// Transport is the outbound connection used by Send.
// *transport.Client implements it.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, fileName string, img *still.Image) error
	Close() error
}

// errorReporter is implemented by transports that report dropped connections.
type errorReporter interface {
	SetOnError(fn func(err error))
}

// Config holds per-session settings.
type Config struct {
	// Constraints are used for every acquisition until changed.
	Constraints camera.Constraints

	// Mode is the capture mode used by Capture.
	Mode capture.Mode

	// FileName is used by Save and Send.
	FileName string

	// Confirm selects what Confirm does. Default ConfirmSave.
	Confirm ConfirmAction
}

// DefaultConfig is the selfie setup: front camera, full frame, save locally.
func DefaultConfig() Config {
	return Config{
		Constraints: camera.DefaultConfig(),
		Mode:        capture.Simple(),
		FileName:    DefaultFileName,
		Confirm:     ConfirmSave,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithCapturer sets the frame capturer.
func WithCapturer(c *capture.Capturer) Option {
	return func(s *Session) { s.capturer = c }
}

// WithTransport sets the outbound connection.
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithSaver sets local storage.
func WithSaver(sv save.Saver) Option {
	return func(s *Session) { s.saver = sv }
}

// WithPreview sets the preview sink.
func WithPreview(p PreviewSink) Option {
	return func(s *Session) { s.preview = p }
}

// WithNotifier sets where notifications go. Default logs them.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is one capture lifecycle. All methods are safe for concurrent use.
type Session struct {
	cfg       Config
	source    camera.Source
	capturer  *capture.Capturer
	transport Transport
	saver     save.Saver
	preview   PreviewSink
	notifier  Notifier
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	still       *still.Image
	stream      camera.Stream
	constraints camera.Constraints
	mode        capture.Mode
	gen         uint64
	started     bool
	closed      bool
}

// New creates a Session around a camera source. Nothing is acquired until Start.
func New(cfg Config, source camera.Source, opts ...Option) *Session {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if cfg.Confirm == "" {
		cfg.Confirm = ConfirmSave
	}

	s := &Session{
		cfg:         cfg,
		source:      source,
		constraints: cfg.Constraints,
		mode:        cfg.Mode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.capturer == nil {
		s.capturer = capture.New(capture.WithLogger(s.logger))
	}
	if r, ok := s.transport.(errorReporter); ok {
		r.SetOnError(func(err error) {
			s.notify(KindConnectionError, "connection lost", err)
		})
	}
	return s
}

func (s *Session) notify(kind Kind, msg string, err error) {
	s.notifier.Notify(newNotification(kind, msg, err))
}

// Start mounts the session: it acquires the camera and, when a transport is
// configured, opens the connection. Failures are notified and returned but
// leave the session usable. Calling Start again is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	camErr := s.acquire(ctx)

	var connErr error
	if s.transport != nil {
		if connErr = s.transport.Connect(ctx); connErr != nil && !errors.Is(connErr, transport.ErrClosed) {
			s.notify(KindConnectionError, "could not connect to session endpoint", connErr)
		}
	}
	return errors.Join(camErr, connErr)
}

// acquire releases any held stream and acquires a new one. A result that
// arrives after a newer acquisition, a capture, or Close is stopped and
// dropped.
func (s *Session) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	old := s.stream
	s.stream = nil
	if old != nil && s.preview != nil {
		s.preview.Unbind()
	}
	c := s.constraints
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	st, err := s.source.Acquire(ctx, c)

	s.mu.Lock()
	stale := gen != s.gen || s.closed || s.state != StateIdle
	if err != nil {
		s.mu.Unlock()
		if stale {
			return nil
		}
		if !errors.Is(err, camera.ErrUnavailable) {
			err = camera.Unavailable("acquire", err)
		}
		s.notify(KindCameraUnavailable, "camera unavailable", err)
		return err
	}
	if stale {
		s.mu.Unlock()
		s.logger.Debug("discarding stale camera stream", "stream", st.ID())
		st.Stop()
		return nil
	}
	s.stream = st
	if s.preview != nil {
		s.preview.Bind(st)
	}
	s.mu.Unlock()

	set := st.Settings()
	s.logger.Info("camera started",
		"backend", s.source.Name(),
		"stream", st.ID(),
		"facing", set.FacingMode,
		"width", set.Width,
		"height", set.Height,
	)
	return nil
}

// Capture takes a still with the configured mode.
// See CaptureWith.
func (s *Session) Capture() (*still.Image, error) {
	s.mu.Lock()
	m := s.mode
	s.mu.Unlock()
	return s.CaptureWith(m)
}

// CaptureWith takes a still from the live stream using m, moves to
// Captured and releases the camera.
//
// It is a silent no-op returning (nil, nil) when there is no stream, the
// stream has no dimensions yet, or a still is already held.
func (s *Session) CaptureWith(m capture.Mode) (*still.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state == StateCaptured {
		s.mu.Unlock()
		return nil, nil
	}
	st := s.stream
	if st == nil {
		s.mu.Unlock()
		s.logger.Debug("capture skipped: no stream")
		return nil, nil
	}
	if w, h := st.Size(); w == 0 || h == 0 {
		s.mu.Unlock()
		s.logger.Debug("capture skipped: stream not ready")
		return nil, nil
	}

	q := s.constraints.Quality
	if q <= 0 {
		q = s.capturer.Quality()
	}
	img, err := s.capturer.CaptureStillQuality(st.Frame(), m, q)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, capture.ErrNotReady) || errors.Is(err, capture.ErrNoSurface) {
			s.logger.Debug("capture skipped", "reason", err)
			return nil, nil
		}
		return nil, fmt.Errorf("capture: %w", err)
	}

	s.still = img
	s.state = StateCaptured
	s.stream = nil
	s.gen++
	if s.preview != nil {
		s.preview.Unbind()
	}
	s.mu.Unlock()

	st.Stop()
	s.logger.Info("still captured", "width", img.Width(), "height", img.Height(), "bytes", img.Len())
	return img, nil
}

// Retake discards the still, returns to Idle and reacquires the camera.
// In Idle without a stream (e.g. after a camera failure) it retries the
// acquisition; in Idle with a stream it does nothing.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateIdle
	s.still = nil
	hasStream := s.stream != nil
	s.mu.Unlock()

	if hasStream {
		return nil
	}
	return s.acquire(ctx)
}

// Save writes the still locally under the configured file name and returns
// the path. Without a still it does nothing.
func (s *Session) Save() (string, error) {
	img := s.Image()
	if img == nil {
		return "", nil
	}
	if s.saver == nil {
		return "", ErrNoSaver
	}

	path, err := s.saver.Save(s.cfg.FileName, img.Bytes())
	if err != nil {
		s.notify(KindSaveFailed, "could not save image", err)
		return "", err
	}
	s.notify(KindSaved, "image saved to "+path, nil)
	return path, nil
}

// Send transmits the still over the transport. Without a still it does
// nothing; without an open connection it notifies and returns
// transport.ErrNotConnected. State is never changed.
func (s *Session) Send(ctx context.Context) error {
	img := s.Image()
	if img == nil {
		return nil
	}
	if s.transport == nil || !s.transport.Connected() {
		s.notify(KindConnectionError, "not connected to session endpoint", transport.ErrNotConnected)
		return transport.ErrNotConnected
	}
	if err := s.transport.Send(ctx, s.cfg.FileName, img); err != nil {
		s.notify(KindConnectionError, "send failed", err)
		return err
	}
	s.notify(KindSent, "image sent", nil)
	return nil
}

// Confirm runs the configured confirm action. The session stays Captured.
func (s *Session) Confirm(ctx context.Context) error {
	if s.Image() == nil {
		return nil
	}
	var errs []error
	if s.cfg.Confirm == ConfirmSave || s.cfg.Confirm == ConfirmBoth {
		if _, err := s.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.Confirm == ConfirmSend || s.cfg.Confirm == ConfirmBoth {
		if err := s.Send(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetConstraints changes the constraints for later acquisitions and, when
// the preview is running, reacquires with them.
func (s *Session) SetConstraints(ctx context.Context, c camera.Constraints) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.constraints = c
	live := s.started && s.state == StateIdle
	s.mu.Unlock()

	if !live {
		return nil
	}
	return s.acquire(ctx)
}

// SetMode changes the mode used by Capture.
func (s *Session) SetMode(m capture.Mode) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

// Close releases the stream and the connection. It is safe to call Close
// multiple times; later calls do nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	st := s.stream
	s.stream = nil
	if s.preview != nil {
		s.preview.Unbind()
	}
	s.mu.Unlock()

	var errs []error
	if st != nil {
		if err := st.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	s.logger.Info("session closed")
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Image returns the current still, or nil in Idle.
func (s *Session) Image() *still.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.still
}

// Stream returns the live stream, or nil.
func (s *Session) Stream() camera.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Status is a point-in-time view of a Session.
type Status struct {
	State       State              `json:"state"`
	Streaming   bool               `json:"streaming"`
	Stream      *camera.Settings   `json:"stream,omitempty"`
	Connected   bool               `json:"connected"`
	SessionID   string             `json:"session_id,omitempty"`
	Image       *still.Meta        `json:"image,omitempty"`
	Constraints camera.Constraints `json:"constraints"`
	Mode        capture.Mode       `json:"capture_mode"`
	Closed      bool               `json:"closed"`
}

// Snapshot returns the current status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	st := Status{
		State:       s.state,
		Constraints: s.constraints,
		Mode:        s.mode,
		Closed:      s.closed,
	}
	if s.stream != nil {
		set := s.stream.Settings()
		st.Streaming = true
		st.Stream = &set
	}
	if s.still != nil {
		meta := s.still.Meta()
		st.Image = &meta
	}
	t := s.transport
	s.mu.Unlock()

	if t != nil {
		st.Connected = t.Connected()
		if c, ok := t.(*transport.Client); ok {
			st.SessionID = c.SessionID()
		}
	}
	return st
}
