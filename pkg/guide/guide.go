// Package guide computes guide-overlay crop regions in native video pixels.
//
// Two kinds of guide are supported:
//   - an aspect-locked frame centered in the video (AspectFrame)
//   - an arbitrary on-screen overlay mapped from display to native
//     coordinates (MapOverlay)
package guide

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Default coverage fractions for AspectFrame.
const (
	// DefaultHeightFraction is used when the video is wider than the target ratio.
	DefaultHeightFraction = 0.6
	// DefaultWidthFraction is used otherwise.
	DefaultWidthFraction = 0.8
)

var (
	// ErrInvalidRatio is returned for a target aspect ratio that is not a finite positive number.
	ErrInvalidRatio = errors.New("guide: aspect ratio must be finite and > 0")
	// ErrNoDimensions is returned when the native or display size is not known yet.
	ErrNoDimensions = errors.New("guide: dimensions not available")
	// ErrInvalidFraction is returned for coverage fractions outside (0, 1].
	ErrInvalidFraction = errors.New("guide: coverage fraction must be in (0, 1]")
)

// Rect is a rectangle in floating point pixel coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Ratio returns width / height, or 0 for an empty rect.
func (r Rect) Ratio() float64 {
	if r.Height == 0 {
		return 0
	}
	return r.Width / r.Height
}

// Within reports whether r lies inside [0,w]x[0,h], allowing eps of float slack.
func (r Rect) Within(w, h, eps float64) bool {
	return r.X >= -eps && r.Y >= -eps &&
		r.X+r.Width <= w+eps && r.Y+r.Height <= h+eps
}

// Image rounds r to whole pixels and clips it to bounds.
func (r Rect) Image(bounds image.Rectangle) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1).Add(bounds.Min).Intersect(bounds)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f %.1fx%.1f)", r.X, r.Y, r.Width, r.Height)
}

// Fractions controls how much of the binding dimension an aspect frame covers.
type Fractions struct {
	// Height is the share of the video height used when the video is wider than the ratio.
	Height float64 `json:"height"`
	// Width is the share of the video width used otherwise.
	Width float64 `json:"width"`
}

// DefaultFractions returns the 60% height / 80% width coverage.
func DefaultFractions() Fractions {
	return Fractions{Height: DefaultHeightFraction, Width: DefaultWidthFraction}
}

// Validate checks both fractions are in (0, 1].
func (f Fractions) Validate() error {
	if !validFraction(f.Height) || !validFraction(f.Width) {
		return fmt.Errorf("%w: height=%v width=%v", ErrInvalidFraction, f.Height, f.Width)
	}
	return nil
}

func validFraction(v float64) bool {
	return v > 0 && v <= 1 && !math.IsNaN(v)
}

// AspectFrame returns a rectangle of the given aspect ratio centered in a
// nativeW x nativeH frame.
//
// If the video is wider than ratio, the height is the binding dimension and
// the frame covers f.Height of it; otherwise the frame covers f.Width of the
// video width. Either way the result fits inside the video.
func AspectFrame(nativeW, nativeH int, ratio float64, f Fractions) (Rect, error) {
	if nativeW <= 0 || nativeH <= 0 {
		return Rect{}, ErrNoDimensions
	}
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return Rect{}, fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}
	if err := f.Validate(); err != nil {
		return Rect{}, err
	}

	vw, vh := float64(nativeW), float64(nativeH)

	var w, h float64
	if vw/vh > ratio {
		h = vh * f.Height
		w = h * ratio
	} else {
		w = vw * f.Width
		h = w / ratio
	}

	return Rect{
		X:      (vw - w) / 2,
		Y:      (vh - h) / 2,
		Width:  w,
		Height: h,
	}, nil
}

// MapOverlay converts an overlay drawn over a displayed preview into native
// video coordinates.
//
// display and overlay are on-screen rectangles in the same coordinate space.
// The preview is assumed to be stretched to display, so
// scaleX = nativeW / display.Width and scaleY = nativeH / display.Height.
// The result is clipped to the native frame.
func MapOverlay(nativeW, nativeH int, display, overlay Rect) (Rect, error) {
	if nativeW <= 0 || nativeH <= 0 || display.Empty() {
		return Rect{}, ErrNoDimensions
	}
	if overlay.Empty() {
		return Rect{}, fmt.Errorf("guide: empty overlay %s", overlay)
	}

	scaleX := float64(nativeW) / display.Width
	scaleY := float64(nativeH) / display.Height

	src := Rect{
		X:      (overlay.X - display.X) * scaleX,
		Y:      (overlay.Y - display.Y) * scaleY,
		Width:  overlay.Width * scaleX,
		Height: overlay.Height * scaleY,
	}
	return clip(src, float64(nativeW), float64(nativeH)), nil
}

func clip(r Rect, w, h float64) Rect {
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Min(r.X+r.Width, w)
	y1 := math.Min(r.Y+r.Height, h)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
