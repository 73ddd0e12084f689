package capture

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-snapcam/pkg/guide"
)

// Kind selects how a frame is cropped.
type Kind string

const (
	// KindSimple copies the whole frame at native resolution.
	KindSimple Kind = "simple"
	// KindOverlay crops to an on-screen overlay and scales to a fixed size.
	KindOverlay Kind = "overlay"
	// KindAspect crops to a centered aspect-locked guide frame.
	KindAspect Kind = "aspect"
)

// Shape is the overlay outline.
type Shape string

const (
	// ShapeRect keeps the whole cropped square.
	ShapeRect Shape = "rect"
	// ShapeRing clips the output to its inscribed circle.
	ShapeRing Shape = "ring"
)

// Overlay output side lengths.
const (
	DefaultOverlaySize = 300
	MaxOverlaySize     = 4096
)

// Mode describes one capture request. The zero value is simple mode.
type Mode struct {
	Kind Kind `json:"mode"`

	// Aspect mode.
	Ratio float64 `json:"ratio,omitempty"`

	// Overlay mode. Display is the preview's on-screen rect and Overlay the
	// guide's on-screen rect, both in the same coordinate space.
	Display guide.Rect `json:"display,omitempty"`
	Overlay guide.Rect `json:"overlay,omitempty"`
	Shape   Shape      `json:"shape,omitempty"`
	Size    int        `json:"size,omitempty"`
}

// Simple returns a full-frame mode.
func Simple() Mode {
	return Mode{Kind: KindSimple}
}

// Aspect returns a mode cropping to a centered frame of the given ratio.
func Aspect(ratio float64) Mode {
	return Mode{Kind: KindAspect, Ratio: ratio}
}

// Overlay returns a mode cropping to overlay as displayed over display.
// size <= 0 uses DefaultOverlaySize.
func Overlay(display, overlay guide.Rect, shape Shape, size int) Mode {
	return Mode{Kind: KindOverlay, Display: display, Overlay: overlay, Shape: shape, Size: size}
}

func (m Mode) kind() Kind {
	if m.Kind == "" {
		return KindSimple
	}
	return m.Kind
}

func (m Mode) outputSize() int {
	if m.Size <= 0 {
		return DefaultOverlaySize
	}
	return m.Size
}

// Validate checks the parameters required by the mode's kind.
func (m Mode) Validate() error {
	switch m.kind() {
	case KindSimple:
		return nil
	case KindAspect:
		if m.Ratio <= 0 || math.IsNaN(m.Ratio) || math.IsInf(m.Ratio, 0) {
			return fmt.Errorf("%w: %v", guide.ErrInvalidRatio, m.Ratio)
		}
		return nil
	case KindOverlay:
		if m.Overlay.Empty() {
			return fmt.Errorf("capture: overlay rect is empty")
		}
		switch m.Shape {
		case "", ShapeRect, ShapeRing:
		default:
			return fmt.Errorf("capture: unknown shape %q", m.Shape)
		}
		if m.Size > MaxOverlaySize {
			return fmt.Errorf("capture: overlay size %d exceeds %d", m.Size, MaxOverlaySize)
		}
		return nil
	default:
		return fmt.Errorf("capture: unknown mode %q", m.Kind)
	}
}
