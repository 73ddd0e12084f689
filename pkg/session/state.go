package session

import "fmt"

// State is the capture lifecycle state.
type State int

const (
	// StateIdle means no still is held; the preview runs if the camera is up.
	StateIdle State = iota
	// StateCaptured means a still is held and the camera is released.
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCaptured:
		return "captured"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "captured":
		*s = StateCaptured
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// ConfirmAction selects what Confirm does with the still.
type ConfirmAction string

const (
	ConfirmSave ConfirmAction = "save"
	ConfirmSend ConfirmAction = "send"
	ConfirmBoth ConfirmAction = "both"
)
