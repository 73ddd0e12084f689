package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the current constraints and handles updates.
type Manager struct {
	config Constraints
	mu     sync.RWMutex

	// OnConfigChange is called after a successful update, e.g. to reacquire.
	OnConfigChange func(cfg Constraints) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Constraints) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current constraints.
func (m *Manager) GetConfig() Constraints {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then notifies OnConfigChange.
func (m *Manager) SetConfig(cfg Constraints) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig applies a partial update.
// A "preset" key replaces the base config before other keys are applied.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		switch key {
		case "preset":
		case "facing_mode":
			if v, ok := value.(string); ok {
				cfg.FacingMode = FacingMode(v)
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "aspect_ratio":
			if v, ok := toFloat(value); ok {
				cfg.AspectRatio = v
			}
		case "quality":
			if v, ok := toFloat(value); ok {
				cfg.Quality = v
			}
		case "gain_control":
			if v, ok := value.(bool); ok {
				cfg.GainControl = &v
			} else if value == nil {
				cfg.GainControl = nil
			}
		default:
			return fmt.Errorf("unknown camera setting: %s", key)
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	data, _ := json.Marshal(m.GetConfig())
	var result map[string]interface{}
	json.Unmarshal(data, &result)
	return result
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
