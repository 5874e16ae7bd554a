package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snapmark/snapmark/internal/capture"
)

// Config holds all daemon configuration
type Config struct {
	EngineURL          string `json:"engine_url"`           // Capture engine WebSocket address
	EnginePassword     string `json:"engine_password"`      // Capture engine auth password
	OutputDir          string `json:"output_dir"`           // Library root for saved artifacts
	Quality            string `json:"quality"`              // low | medium | high
	FrameRate          int    `json:"frame_rate"`           // Target capture frame rate
	FlushIntervalMs    int    `json:"flush_interval_ms"`    // Encoder chunk cadence
	IncludeMicrophone  bool   `json:"include_microphone"`   // Request microphone track
	IncludeSystemAudio bool   `json:"include_system_audio"` // Request system audio track
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		EngineURL:          "ws://localhost:4460",
		EnginePassword:     "",
		OutputDir:          filepath.Join(os.Getenv("HOME"), "SnapMark"),
		Quality:            string(capture.QualityHigh),
		FrameRate:          30,
		FlushIntervalMs:    1000,
		IncludeMicrophone:  false,
		IncludeSystemAudio: true,
	}
}

func configPath() string {
	if p := os.Getenv("SNAPMARK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "snapmark", "config.json")
}

// Load reads configuration from ~/.config/snapmark/config.json.
// A missing file yields the defaults; a malformed or invalid file is an error.
func Load() (*Config, error) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	// Start from defaults so new fields get sensible values when an older
	// config file omits them.
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to ~/.config/snapmark/config.json
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return fmt.Errorf("engine_url must not be empty")
	}
	switch capture.QualityPreset(c.Quality) {
	case capture.QualityLow, capture.QualityMedium, capture.QualityHigh:
	default:
		return fmt.Errorf("quality must be low, medium, or high, got %q", c.Quality)
	}
	if c.FrameRate < 1 || c.FrameRate > 60 {
		return fmt.Errorf("frame_rate must be between 1 and 60, got %d", c.FrameRate)
	}
	if c.FlushIntervalMs < 250 || c.FlushIntervalMs > 5000 {
		return fmt.Errorf("flush_interval_ms must be between 250 and 5000, got %d", c.FlushIntervalMs)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	return nil
}
