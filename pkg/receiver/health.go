package receiver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/teslashibe/go-snapcam/internal/httpc"
)

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// HealthURL maps a session base URL such as ws://host:8090/ws/session to
// the receiver's health endpoint http://host:8090/health.
func HealthURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("receiver: bad url: %w", err)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("receiver: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/health"
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}

// CheckHealth asks the receiver behind base whether it is up.
func CheckHealth(ctx context.Context, base string) (Health, error) {
	var h Health
	target, err := HealthURL(base)
	if err != nil {
		return h, err
	}
	if err := httpc.GetJSON(ctx, target, &h); err != nil {
		return h, fmt.Errorf("receiver: health check: %w", err)
	}
	return h, nil
}
