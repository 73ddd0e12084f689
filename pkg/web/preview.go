package web

import (
	"context"
	"time"

	"github.com/teslashibe/go-snapcam/pkg/still"
)

// pumpPreview pushes the bound stream's latest frame to preview clients.
func (s *Server) pumpPreview(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PreviewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.previewHub.ClientCount() == 0 {
				continue
			}
			s.pushFrame()
		}
	}
}

// pushFrame encodes and broadcasts one frame. It reports whether a frame
// was sent.
func (s *Server) pushFrame() bool {
	s.mu.RLock()
	st := s.stream
	s.mu.RUnlock()
	if st == nil {
		return false
	}

	frame := st.Frame()
	if frame == nil || frame.Bounds().Empty() {
		return false
	}

	img, err := still.Encode(frame, s.cfg.PreviewQuality)
	if err != nil {
		s.logger.Debug("preview encode failed", "error", err)
		return false
	}
	s.previewHub.BroadcastBinary(img.Bytes())
	s.framesSent.Add(1)
	return true
}

// FramesSent returns how many preview frames were broadcast.
func (s *Server) FramesSent() uint64 {
	return s.framesSent.Load()
}

// previewing reports whether a stream is bound.
func (s *Server) previewing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream != nil
}

