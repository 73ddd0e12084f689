package camera

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockSource is a mock camera for testing and headless runs.
// It produces a synthetic gradient frame.
type MockSource struct {
	logger *slog.Logger

	width, height int
	notReady      bool
	fail          error
	gate          <-chan struct{}

	mu      sync.Mutex
	streams []*MockStream

	acquired atomic.Int64
	stopped  atomic.Int64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithNativeSize fixes the native frame size regardless of constraints.
func WithNativeSize(w, h int) MockOption {
	return func(m *MockSource) {
		m.width = w
		m.height = h
	}
}

// WithNotReady makes new streams report 0x0 until MarkReady is called.
func WithNotReady() MockOption {
	return func(m *MockSource) { m.notReady = true }
}

// WithFailure makes every Acquire fail with err wrapped in ErrUnavailable.
func WithFailure(err error) MockOption {
	return func(m *MockSource) { m.fail = err }
}

// WithGate blocks Acquire until gate is closed or receives a value.
func WithGate(gate <-chan struct{}) MockOption {
	return func(m *MockSource) { m.gate = gate }
}

// NewMockSource creates a mock camera source.
func NewMockSource(logger *slog.Logger, opts ...MockOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Acquire returns a new synthetic stream.
func (m *MockSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, Unavailable("acquire cancelled", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable("acquire cancelled", err)
	}
	if m.fail != nil {
		return nil, Unavailable("mock failure", m.fail)
	}

	w, h := m.width, m.height
	if w == 0 || h == 0 {
		w, h = c.Width, c.Height
	}
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}

	facing := c.FacingMode
	if facing == "" {
		facing = FacingUser
	}

	s := &MockStream{
		source: m,
		id:     uuid.New().String(),
		settings: Settings{
			DeviceID:   "mock-" + string(facing),
			FacingMode: facing,
			Width:      w,
			Height:     h,
			Framerate:  c.Framerate,
		},
		frame:  gradient(w, h, facing),
		ready:  !m.notReady,
		active: true,
	}

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	m.acquired.Add(1)

	m.logger.Debug("mock stream acquired", "id", s.id, "facing", facing, "width", w, "height", h)
	return s, nil
}

// Streams returns every stream acquired so far.
func (m *MockSource) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// ActiveStreams returns how many acquired streams have not been stopped.
func (m *MockSource) ActiveStreams() int {
	return int(m.acquired.Load() - m.stopped.Load())
}

// Acquired returns the number of successful acquisitions.
func (m *MockSource) Acquired() int {
	return int(m.acquired.Load())
}

// MockStream is a stream produced by MockSource.
type MockStream struct {
	source   *MockSource
	id       string
	settings Settings
	frame    *image.RGBA

	mu     sync.Mutex
	ready  bool
	active bool
}

// ID returns the stream id.
func (s *MockStream) ID() string { return s.id }

// Settings returns the applied settings.
func (s *MockStream) Settings() Settings { return s.settings }

// MarkReady makes the stream report its size and frames.
func (s *MockStream) MarkReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// Frame returns the synthetic frame once ready, or a 0x0 image before that.
func (s *MockStream) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	if !s.ready {
		return image.NewRGBA(image.Rectangle{})
	}
	return s.frame
}

// Size returns the native size once ready.
func (s *MockStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || !s.active {
		return 0, 0
	}
	return s.settings.Width, s.settings.Height
}

// Active reports whether Stop has not been called.
func (s *MockStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop marks the stream stopped. Safe to call multiple times.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	if wasActive {
		s.source.stopped.Add(1)
		s.source.logger.Debug("mock stream stopped", "id", s.id)
	}
	return nil
}

// gradient draws a diagonal gradient, tinted by facing mode.
func gradient(w, h int, facing FacingMode) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var tint uint8 = 64
	if facing == FacingEnvironment {
		tint = 192
	}
	for y := 0; y < h; y++ {
		g := uint8(y * 255 / h)
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: g, B: tint, A: 255})
		}
	}
	return img
}
