package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-snapcam/internal/log"
	"github.com/teslashibe/go-snapcam/pkg/capture"
	"github.com/teslashibe/go-snapcam/pkg/guide"
	"github.com/teslashibe/go-snapcam/pkg/session"
	"github.com/teslashibe/go-snapcam/pkg/still"
)

var shootCmd = &cobra.Command{
	Use:   "shoot",
	Short: "Capture one still without a UI",
	Long: `Open the camera, wait until it delivers frames, capture one still and
run the confirm action (save, send or both).

Modes:
  simple   the whole frame at native resolution (default)
  aspect   a centered frame of --ratio, e.g. --ratio 1.3333 for documents
  overlay  --overlay x,y,w,h as fractions of the frame, scaled to --size
           pixels square; --ring clips to a circle`,
	RunE: runShoot,
}

// Shoot flags
var (
	shootSession sessionOptions
	shootMode    string
	shootRatio   float64
	shootOverlay string
	shootRing    bool
	shootSize    int
	shootTimeout time.Duration
)

func init() {
	f := shootCmd.Flags()
	f.StringVar(&shootMode, "mode", string(capture.KindSimple), "Capture mode: simple, aspect or overlay")
	f.Float64Var(&shootRatio, "ratio", 4.0/3.0, "Aspect mode width/height ratio")
	f.StringVar(&shootOverlay, "overlay", "0.25,0.25,0.5,0.5", "Overlay mode rect as x,y,w,h fractions of the frame")
	f.BoolVar(&shootRing, "ring", false, "Clip overlay captures to a circle")
	f.IntVar(&shootSize, "size", capture.DefaultOverlaySize, "Overlay output size in pixels")
	f.DurationVar(&shootTimeout, "timeout", 10*time.Second, "How long to wait for the camera")
	shootSession.register(shootCmd)
}

// parseMode builds a capture mode from the shoot flags.
func parseMode(kind string, ratio float64, overlay string, ring bool, size int) (capture.Mode, error) {
	var m capture.Mode
	switch capture.Kind(kind) {
	case capture.KindSimple, "":
		m = capture.Simple()
	case capture.KindAspect:
		m = capture.Aspect(ratio)
	case capture.KindOverlay:
		r, err := parseRect(overlay)
		if err != nil {
			return m, err
		}
		shape := capture.ShapeRect
		if ring {
			shape = capture.ShapeRing
		}
		// The display is the unit square, so overlay coordinates are fractions.
		m = capture.Overlay(guide.Rect{Width: 1, Height: 1}, r, shape, size)
	default:
		return m, fmt.Errorf("unknown mode %q", kind)
	}
	return m, m.Validate()
}

// parseRect parses "x,y,w,h".
func parseRect(s string) (guide.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return guide.Rect{}, fmt.Errorf("rect %q: want x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return guide.Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = f
	}
	return guide.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func runShoot(cmd *cobra.Command, args []string) error {
	m, err := parseMode(shootMode, shootRatio, shootOverlay, shootRing, shootSize)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, _, err := shootSession.build()
	if err != nil {
		return err
	}
	defer sess.Close()

	shootSession.checkReceiver(ctx)
	if err := sess.Start(ctx); err != nil {
		if sess.Stream() == nil {
			return fmt.Errorf("start: %w", err)
		}
		log.Warn("session started with errors", "error", err)
	}

	img, err := waitCapture(ctx, sess, m, shootTimeout)
	if err != nil {
		return err
	}
	log.Info("captured", "width", img.Width(), "height", img.Height(), "bytes", img.Len())

	return sess.Confirm(ctx)
}

// waitCapture retries a capture until the stream delivers a frame.
func waitCapture(ctx context.Context, sess *session.Session, m capture.Mode, timeout time.Duration) (*still.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		img, err := sess.CaptureWith(m)
		if err != nil {
			return nil, err
		}
		if img != nil {
			return img, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("camera not ready after %s", timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
