// Package config provides environment-backed defaults for snapcam commands.
package config

import (
	"os"
	"strconv"
)

// Environment variables read by snapcam.
const (
	EnvSessionID    = "SNAPCAM_SESSION_ID"
	EnvReceiverURL  = "SNAPCAM_RECEIVER_URL"
	EnvPort         = "SNAPCAM_PORT"
	EnvReceiverPort = "SNAPCAM_RECEIVER_PORT"
	EnvDevice       = "SNAPCAM_CAMERA_DEVICE"
	EnvOutputDir    = "SNAPCAM_OUTPUT_DIR"
	EnvLogLevel     = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultPort         = 8080
	DefaultReceiverPort = 8090
	DefaultReceiverURL  = "ws://localhost:8090/ws/session"
	DefaultOutputDir    = "."
	DefaultLogLevel     = "info"
	DefaultFileName     = "selfie.jpg"
)

// String returns the value of key or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value of key or def when unset or malformed.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// SessionID returns the session id from SNAPCAM_SESSION_ID, or "" if unset.
func SessionID() string {
	return os.Getenv(EnvSessionID)
}

// ReceiverURL returns the websocket base URL sessions are sent to.
func ReceiverURL() string {
	return String(EnvReceiverURL, DefaultReceiverURL)
}

// Port returns the preview server port.
func Port() int {
	return Int(EnvPort, DefaultPort)
}

// ReceiverPort returns the receiver listen port.
func ReceiverPort() int {
	return Int(EnvReceiverPort, DefaultReceiverPort)
}

// Device returns the default camera device index, or -1 to map from facing mode.
func Device() int {
	return Int(EnvDevice, -1)
}

// OutputDir returns the directory stills are saved to.
func OutputDir() string {
	return String(EnvOutputDir, DefaultOutputDir)
}

// LogLevel returns the log level from LOG_LEVEL.
func LogLevel() string {
	return String(EnvLogLevel, DefaultLogLevel)
}
