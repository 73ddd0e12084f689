// Package capture turns a live preview frame into a still image.
//
// A Capturer supports three modes: the whole frame, an on-screen overlay
// (optionally clipped to a ring) scaled to a fixed size, and a centered
// aspect-locked guide frame drawn at native resolution.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-snapcam/pkg/guide"
	"github.com/teslashibe/go-snapcam/pkg/still"
)

var (
	// ErrNotReady is returned while the source frame has no dimensions yet.
	ErrNotReady = errors.New("capture: frame not ready")
	// ErrNoSurface is returned when there is no frame to read from.
	ErrNoSurface = errors.New("capture: no source surface")
	// ErrOutOfFrame is returned when an overlay does not intersect the video.
	ErrOutOfFrame = errors.New("capture: overlay outside video frame")
)

// Capturer crops and encodes frames. It holds no per-capture state and is
// safe for concurrent use.
type Capturer struct {
	quality   float64
	fractions guide.Fractions
	scaler    draw.Interpolator
	logger    *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithQuality sets the encode quality in [0, 1].
func WithQuality(q float64) Option {
	return func(c *Capturer) { c.quality = q }
}

// WithFractions sets aspect-mode coverage fractions.
func WithFractions(f guide.Fractions) Option {
	return func(c *Capturer) { c.fractions = f }
}

// WithInterpolator sets the scaler used in overlay mode.
func WithInterpolator(i draw.Interpolator) Option {
	return func(c *Capturer) { c.scaler = i }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) { c.logger = l }
}

// New creates a Capturer.
func New(opts ...Option) *Capturer {
	c := &Capturer{
		quality:   still.DefaultQuality,
		fractions: guide.DefaultFractions(),
		scaler:    draw.BiLinear,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Quality returns the configured encode quality.
func (c *Capturer) Quality() float64 { return c.quality }

// Capture rasterizes frame according to m into a new buffer.
func (c *Capturer) Capture(frame image.Image, m Mode) (*image.RGBA, error) {
	if frame == nil {
		return nil, ErrNoSurface
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrNotReady
	}

	switch m.kind() {
	case KindAspect:
		return c.captureAspect(frame, m.Ratio)
	case KindOverlay:
		return c.captureOverlay(frame, m)
	default:
		return c.captureSimple(frame), nil
	}
}

// CaptureStill captures and JPEG-encodes frame at the capturer's quality.
func (c *Capturer) CaptureStill(frame image.Image, m Mode) (*still.Image, error) {
	return c.CaptureStillQuality(frame, m, c.quality)
}

// CaptureStillQuality is CaptureStill with an explicit quality in [0, 1].
func (c *Capturer) CaptureStillQuality(frame image.Image, m Mode, quality float64) (*still.Image, error) {
	img, err := c.Capture(frame, m)
	if err != nil {
		return nil, err
	}
	s, err := still.Encode(img, quality)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("frame captured",
		"mode", m.kind(),
		"width", s.Width(),
		"height", s.Height(),
		"bytes", s.Len(),
	)
	return s, nil
}

func (c *Capturer) captureSimple(frame image.Image) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)
	return dst
}

func (c *Capturer) captureAspect(frame image.Image, ratio float64) (*image.RGBA, error) {
	b := frame.Bounds()
	r, err := guide.AspectFrame(b.Dx(), b.Dy(), ratio, c.fractions)
	if err != nil {
		if errors.Is(err, guide.ErrNoDimensions) {
			return nil, ErrNotReady
		}
		return nil, err
	}

	src := r.Image(b)
	if src.Empty() {
		return nil, ErrNotReady
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, src.Min, draw.Src)
	return dst, nil
}

func (c *Capturer) captureOverlay(frame image.Image, m Mode) (*image.RGBA, error) {
	b := frame.Bounds()
	r, err := guide.MapOverlay(b.Dx(), b.Dy(), m.Display, m.Overlay)
	if err != nil {
		if errors.Is(err, guide.ErrNoDimensions) {
			return nil, ErrNotReady
		}
		return nil, err
	}
	src := r.Image(b)
	if src.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrOutOfFrame, m.Overlay)
	}

	size := m.outputSize()
	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	c.scaler.Scale(scaled, scaled.Bounds(), frame, src, draw.Src, nil)

	if m.Shape != ShapeRing {
		return scaled, nil
	}

	out := image.NewRGBA(scaled.Bounds())
	draw.DrawMask(out, out.Bounds(), scaled, image.Point{}, newCircle(out.Bounds()), image.Point{}, draw.Over)
	return out, nil
}

// circle is an alpha mask that is opaque inside the circle inscribed in r.
type circle struct {
	r      image.Rectangle
	cx, cy float64
	rad2   float64
}

func newCircle(r image.Rectangle) *circle {
	d := float64(r.Dx())
	if h := float64(r.Dy()); h < d {
		d = h
	}
	rad := d / 2
	return &circle{
		r:    r,
		cx:   float64(r.Min.X) + float64(r.Dx())/2,
		cy:   float64(r.Min.Y) + float64(r.Dy())/2,
		rad2: rad * rad,
	}
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle { return c.r }

func (c *circle) At(x, y int) color.Color {
	dx := float64(x) + 0.5 - c.cx
	dy := float64(y) + 0.5 - c.cy
	if dx*dx+dy*dy <= c.rad2 {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
