package camera

// Preset names for common configurations
const (
	PresetSelfie   = "selfie"
	PresetDocument = "document"
	Preset720p     = "720p"
	Preset1080p    = "1080p"
	PresetLegacy   = "legacy"
)

// Presets returns all available preset configurations.
func Presets() map[string]Constraints {
	return map[string]Constraints{
		PresetSelfie:   SelfieConfig(),
		PresetDocument: DocumentConfig(),
		Preset720p:     HD720Config(),
		Preset1080p:    HD1080Config(),
		PresetLegacy:   LegacyConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetSelfie,
		PresetDocument,
		Preset720p,
		Preset1080p,
		PresetLegacy,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Constraints {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// SelfieConfig is the front camera at ideal 1280x720.
func SelfieConfig() Constraints {
	return DefaultConfig()
}

// DocumentConfig is the rear camera at exact 4:3, for aspect-locked guide frames.
func DocumentConfig() Constraints {
	on := true
	cfg := DefaultConfig()
	cfg.FacingMode = FacingEnvironment
	cfg.Width = 1280
	cfg.Height = 960
	cfg.AspectRatio = 4.0 / 3.0
	cfg.GainControl = &on
	return cfg
}

// HD720Config returns 720p on the current facing mode.
func HD720Config() Constraints {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p.
func HD1080Config() Constraints {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// LegacyConfig returns 640x480 for old webcams.
func LegacyConfig() Constraints {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}
