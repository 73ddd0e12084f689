// Package camera acquires live camera streams.
//
// A Source turns advisory Constraints into a Stream. Backends:
//   - gocvcam (subpackage) - OpenCV capture devices via gocv
//   - Mock - synthetic frames for tests and headless runs
package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FacingMode selects which way the camera faces.
type FacingMode string

const (
	// FacingUser is the front (selfie) camera.
	FacingUser FacingMode = "user"
	// FacingEnvironment is the rear camera.
	FacingEnvironment FacingMode = "environment"
)

// Constraints are the requested stream parameters. All of them are hints:
// a backend applies what it can and reports the result in Settings.
type Constraints struct {
	// FacingMode picks the front or rear camera.
	FacingMode FacingMode `json:"facing_mode" validate:"omitempty,oneof=user environment"`

	// Ideal resolution in pixels. 0 leaves the device default.
	Width  int `json:"width" validate:"gte=0,lte=7680"`
	Height int `json:"height" validate:"gte=0,lte=4320"`

	// AspectRatio is an exact width/height ratio request. 0 means none.
	AspectRatio float64 `json:"aspect_ratio,omitempty" validate:"gte=0,lte=10"`

	// Framerate is the target FPS. 0 leaves the device default.
	Framerate int `json:"framerate,omitempty" validate:"gte=0,lte=240"`

	// GainControl asks for automatic gain when true and fixed gain when false.
	GainControl *bool `json:"gain_control,omitempty"`

	// Quality is the JPEG quality (0.0 to 1.0) stills are encoded with.
	Quality float64 `json:"quality" validate:"gte=0,lte=1"`
}

// Settings are the parameters a stream actually runs with.
type Settings struct {
	DeviceID   string     `json:"device_id"`
	FacingMode FacingMode `json:"facing_mode,omitempty"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Framerate  int        `json:"framerate,omitempty"`
}

// Limits for the constraint validator.
const (
	MaxWidth     = 7680
	MaxHeight    = 4320
	MaxFramerate = 240
)

// DefaultConfig returns the front camera at 1280x720.
func DefaultConfig() Constraints {
	return Constraints{
		FacingMode: FacingUser,
		Width:      1280,
		Height:     720,
		Quality:    0.92,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the constraint values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Constraints) Validate() []string {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return msgs
}

// Capabilities returns what can be requested.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"facing_modes":  []FacingMode{FacingUser, FacingEnvironment},
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
