package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrUnavailable wraps every acquisition failure: permission denied, no
// device, or a device that would not open.
var ErrUnavailable = errors.New("camera unavailable")

// Unavailable wraps err with ErrUnavailable and a reason.
func Unavailable(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, reason, err)
}

// Source opens camera streams.
type Source interface {
	// Acquire opens a stream matching c as closely as the device allows.
	// Failures wrap ErrUnavailable. Acquire honours ctx cancellation.
	Acquire(ctx context.Context, c Constraints) (Stream, error)

	// Name returns the backend name (e.g., "gocv", "mock").
	Name() string
}

// Stream is a live camera stream.
type Stream interface {
	// ID identifies the stream for logging.
	ID() string

	// Settings reports what the stream actually runs with.
	Settings() Settings

	// Frame returns the most recent frame, or nil before the first one arrives.
	// The returned image must not be modified.
	Frame() image.Image

	// Size returns the native frame size, or 0, 0 until known.
	Size() (width, height int)

	// Active reports whether the stream has not been stopped.
	Active() bool

	// Stop releases the device. It is safe to call Stop multiple times.
	Stop() error
}
