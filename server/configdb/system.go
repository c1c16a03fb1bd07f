package configdb

import (
	"encoding/json"
	"fmt"
)

// Root system config, stored as JSON in the system_config table under the key 'main'.
type ConfigJSON struct {
	Vials DetectorJSON `json:"vials"` // Vial detector settings
	PFS   DetectorJSON `json:"pfs"`   // Pre-filled syringe detector settings
}

// Settings for one detector
type DetectorJSON struct {
	Model                string  `json:"model"`                // Model name inside the models directory, eg "yolov8l-vials"
	ProbabilityThreshold float32 `json:"probabilityThreshold"` // Confidence threshold, 0..1
	NmsIouThreshold      float32 `json:"nmsIouThreshold"`      // NMS IoU threshold, 0..1
}

func DefaultConfig() ConfigJSON {
	return ConfigJSON{
		Vials: DetectorJSON{
			Model:                "yolov8l-vials",
			ProbabilityThreshold: 0.65,
			NmsIouThreshold:      0.45,
		},
		PFS: DetectorJSON{
			Model:                "yolov8l-pfs",
			ProbabilityThreshold: 0.70,
			NmsIouThreshold:      0.45,
		},
	}
}

// Returns an error if there is anything invalid about the config, or nil if everything is OK
func ValidateConfig(c *ConfigJSON) error {
	if err := validateDetectorConfig("vials", &c.Vials); err != nil {
		return err
	}
	return validateDetectorConfig("pfs", &c.PFS)
}

func validateDetectorConfig(name string, c *DetectorJSON) error {
	if c.Model == "" {
		return fmt.Errorf("%v: model is required", name)
	}
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		return fmt.Errorf("%v: probability threshold must be between 0 and 1", name)
	}
	if c.NmsIouThreshold < 0 || c.NmsIouThreshold > 1 {
		return fmt.Errorf("%v: NMS IoU threshold must be between 0 and 1", name)
	}
	return nil
}

// GetConfig returns the stored system config, or the defaults if none has been saved yet.
func (c *ConfigDB) GetConfig() (*ConfigJSON, error) {
	value := ""
	c.DB.Raw("SELECT value FROM system_config WHERE key = 'main'").Scan(&value)
	if value == "" {
		cfg := DefaultConfig()
		return &cfg, nil
	}
	cfg := ConfigJSON{}
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, fmt.Errorf("Failed to parse system config: %w", err)
	}
	return &cfg, nil
}

func (c *ConfigDB) SetConfig(cfg *ConfigJSON) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	j, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.DB.Exec("INSERT INTO system_config (key, value) VALUES ('main', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", string(j)).Error
}
