// Package gocvcam is the OpenCV camera backend, built on gocv.
package gocvcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-snapcam/pkg/camera"
)

// Config maps facing modes onto OpenCV device indexes.
type Config struct {
	// Device forces a device index. -1 maps from facing mode.
	Device int

	// UserDevice is opened for FacingUser. Default 0.
	UserDevice int

	// EnvironmentDevice is opened for FacingEnvironment. Default 1.
	EnvironmentDevice int

	// ReadInterval is the pause between frame reads when the device returns nothing.
	ReadInterval time.Duration
}

// DefaultConfig returns front=0, rear=1.
func DefaultConfig() Config {
	return Config{
		Device:            -1,
		UserDevice:        0,
		EnvironmentDevice: 1,
		ReadInterval:      10 * time.Millisecond,
	}
}

// Source opens OpenCV capture devices.
type Source struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a gocv camera source.
func New(cfg Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadInterval <= 0 {
		cfg.ReadInterval = 10 * time.Millisecond
	}
	return &Source{cfg: cfg, logger: logger}
}

// Name returns "gocv".
func (s *Source) Name() string { return "gocv" }

func (s *Source) device(facing camera.FacingMode) int {
	if s.cfg.Device >= 0 {
		return s.cfg.Device
	}
	if facing == camera.FacingEnvironment {
		return s.cfg.EnvironmentDevice
	}
	return s.cfg.UserDevice
}

type openResult struct {
	vc  *gocv.VideoCapture
	err error
}

// open opens device id, abandoning (and later closing) the device if ctx ends first.
func (s *Source) open(ctx context.Context, id int) (*gocv.VideoCapture, error) {
	ch := make(chan openResult, 1)
	go func() {
		vc, err := gocv.OpenVideoCapture(id)
		if err == nil && !vc.IsOpened() {
			vc.Close()
			vc, err = nil, fmt.Errorf("device %d did not open", id)
		}
		ch <- openResult{vc, err}
	}()

	select {
	case r := <-ch:
		return r.vc, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.vc != nil {
				r.vc.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Acquire opens the device for c.FacingMode, falling back to the user
// device when the requested one cannot be opened.
func (s *Source) Acquire(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	id := s.device(c.FacingMode)
	vc, err := s.open(ctx, id)
	if err != nil && ctx.Err() == nil && id != s.cfg.UserDevice && s.cfg.Device < 0 {
		s.logger.Warn("camera device unavailable, falling back",
			"device", id, "fallback", s.cfg.UserDevice, "error", err)
		id = s.cfg.UserDevice
		vc, err = s.open(ctx, id)
	}
	if err != nil {
		return nil, camera.Unavailable(fmt.Sprintf("open device %d", id), err)
	}

	applyHints(vc, c)

	st := &Stream{
		id:       uuid.New().String(),
		vc:       vc,
		interval: s.cfg.ReadInterval,
		logger:   s.logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		settings: camera.Settings{
			DeviceID:   fmt.Sprintf("video%d", id),
			FacingMode: c.FacingMode,
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Framerate:  int(math.Round(vc.Get(gocv.VideoCaptureFPS))),
		},
	}
	go st.readLoop()

	s.logger.Info("camera acquired",
		"device", id,
		"stream", st.id,
		"width", st.settings.Width,
		"height", st.settings.Height,
	)
	return st, nil
}

// applyHints sets what the device accepts; OpenCV silently ignores the rest.
func applyHints(vc *gocv.VideoCapture, c camera.Constraints) {
	w, h := c.Width, c.Height
	if c.AspectRatio > 0 {
		switch {
		case w > 0:
			h = int(math.Round(float64(w) / c.AspectRatio))
		case h > 0:
			w = int(math.Round(float64(h) * c.AspectRatio))
		}
	}
	if w > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	}
	if h > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}
	if c.GainControl != nil {
		// V4L2 auto exposure: 3 = aperture priority (auto), 1 = manual.
		if *c.GainControl {
			vc.Set(gocv.VideoCaptureAutoExposure, 3)
		} else {
			vc.Set(gocv.VideoCaptureAutoExposure, 1)
		}
	}
}

// Stream is a live OpenCV capture. Only readLoop touches the VideoCapture.
type Stream struct {
	id       string
	vc       *gocv.VideoCapture
	settings camera.Settings
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	latest image.Image
	width  int
	height int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (s *Stream) readLoop() {
	defer close(s.done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.vc.Read(&mat); !ok || mat.Empty() {
			time.Sleep(s.interval)
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			s.logger.Debug("frame conversion failed", "stream", s.id, "error", err)
			continue
		}

		s.mu.Lock()
		s.latest = img
		s.width = mat.Cols()
		s.height = mat.Rows()
		s.mu.Unlock()
	}
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Settings returns what the device reported after hints were applied.
func (s *Stream) Settings() camera.Settings { return s.settings }

// Frame returns the latest frame.
func (s *Stream) Frame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Size returns the size of the latest frame, 0x0 before the first one.
func (s *Stream) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Active reports whether Stop has not been called.
func (s *Stream) Active() bool {
	select {
	case <-s.stop:
		return false
	default:
		return true
	}
}

// Stop ends the read loop and releases the device. Safe to call multiple times.
func (s *Stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		err = s.vc.Close()

		s.mu.Lock()
		s.latest = nil
		s.width, s.height = 0, 0
		s.mu.Unlock()

		s.logger.Info("camera released", "stream", s.id)
	})
	return err
}
