package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"runstream/internal/analysis"
)

// Config represents the CLI configuration
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Athlete  AthleteConfig  `json:"athlete"`
	Display  DisplayConfig  `json:"display"`
	Data     DataConfig     `json:"data"`
}

// ProviderConfig holds telemetry provider API credentials
type ProviderConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
}

// AthleteConfig holds athlete calibration. Zero values mean the athlete
// never supplied the number; they are not defaulted, because the analysis
// tier ladder keys off which values genuinely exist.
type AthleteConfig struct {
	AthleteID   int64   `json:"athlete_id"`
	RestingHR   float64 `json:"resting_hr,omitempty"`
	MaxHR       float64 `json:"max_hr,omitempty"`
	ThresholdHR float64 `json:"threshold_hr,omitempty"`
}

// DisplayConfig holds display preferences
type DisplayConfig struct {
	DistanceUnit string `json:"distance_unit"`
	PaceUnit     string `json:"pace_unit"`
}

// DataConfig holds local storage settings
type DataConfig struct {
	// DatabasePath overrides the default sqlite location under the config
	// directory.
	DatabasePath string `json:"database_path,omitempty"`
	// ExportDir is where analyze/export artifacts land.
	ExportDir string `json:"export_dir,omitempty"`
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// EnvConfigDir overrides the config directory location, mainly for tests.
const EnvConfigDir = "RUNSTREAM_CONFIG_DIR"

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Display: DisplayConfig{
			DistanceUnit: "km",
			PaceUnit:     "min/km",
		},
	}
}

// Load reads the configuration from ~/.runstream/config.json
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.Display.DistanceUnit == "" {
		cfg.Display.DistanceUnit = defaults.Display.DistanceUnit
	}
	if cfg.Display.PaceUnit == "" {
		cfg.Display.PaceUnit = defaults.Display.PaceUnit
	}

	return &cfg, nil
}

// Save writes the configuration to ~/.runstream/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := Config{
		Provider: ProviderConfig{
			ClientID:     "YOUR_CLIENT_ID",
			ClientSecret: "YOUR_CLIENT_SECRET",
		},
		Athlete: AthleteConfig{
			RestingHR:   50,
			MaxHR:       185,
			ThresholdHR: 165,
		},
		Display: DisplayConfig{
			DistanceUnit: "km",
			PaceUnit:     "min/km",
		},
	}

	return Save(&example)
}

// Validate checks if the config has required fields
func (c *Config) Validate() error {
	if c.Provider.ClientID == "" || c.Provider.ClientID == "YOUR_CLIENT_ID" {
		return errors.New("provider.client_id is required")
	}
	if c.Provider.ClientSecret == "" || c.Provider.ClientSecret == "YOUR_CLIENT_SECRET" {
		return errors.New("provider.client_secret is required")
	}

	if c.Display.DistanceUnit != "" && c.Display.DistanceUnit != "km" && c.Display.DistanceUnit != "mi" {
		return fmt.Errorf("display.distance_unit must be \"km\" or \"mi\", got %q", c.Display.DistanceUnit)
	}
	if c.Display.PaceUnit != "" && c.Display.PaceUnit != "min/km" && c.Display.PaceUnit != "min/mi" {
		return fmt.Errorf("display.pace_unit must be \"min/km\" or \"min/mi\", got %q", c.Display.PaceUnit)
	}

	if c.Athlete.ThresholdHR > 0 && c.Athlete.MaxHR > 0 && c.Athlete.ThresholdHR >= c.Athlete.MaxHR {
		return fmt.Errorf("athlete.threshold_hr (%v) must be less than athlete.max_hr (%v)", c.Athlete.ThresholdHR, c.Athlete.MaxHR)
	}

	return nil
}

// Calibration maps the athlete settings to their analysis form. Unset
// values become nil so the tier ladder sees what is actually known.
func (c *Config) Calibration() analysis.Calibration {
	var calib analysis.Calibration
	if c.Athlete.ThresholdHR > 0 {
		v := c.Athlete.ThresholdHR
		calib.ThresholdHR = &v
	}
	if c.Athlete.MaxHR > 0 {
		v := c.Athlete.MaxHR
		calib.MaxHR = &v
	}
	if c.Athlete.RestingHR > 0 {
		v := c.Athlete.RestingHR
		calib.RestingHR = &v
	}
	return calib
}

// DatabasePath resolves the sqlite location, defaulting under the config
// directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Data.DatabasePath != "" {
		return c.Data.DatabasePath, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runstream.db"), nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".runstream"), nil
}
