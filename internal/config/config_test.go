package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("SNAPMARK_CONFIG", filepath.Join(t.TempDir(), "config.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Quality != "high" || cfg.FrameRate != 30 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Setenv("SNAPMARK_CONFIG", filepath.Join(t.TempDir(), "config.json"))

	want := Default()
	want.EngineURL = "ws://127.0.0.1:9001"
	want.Quality = "low"
	want.FrameRate = 24
	want.IncludeMicrophone = true
	if err := Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.EngineURL != want.EngineURL || got.Quality != want.Quality ||
		got.FrameRate != want.FrameRate || !got.IncludeMicrophone {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestLoadFillsMissingFieldsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("SNAPMARK_CONFIG", path)

	// An older config that only knows about the engine URL.
	if err := os.WriteFile(path, []byte(`{"engine_url":"ws://host:1"}`), 0644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EngineURL != "ws://host:1" {
		t.Errorf("expected overridden engine_url, got %q", cfg.EngineURL)
	}
	if cfg.FlushIntervalMs != 1000 {
		t.Errorf("expected default flush interval, got %d", cfg.FlushIntervalMs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty engine url", func(c *Config) { c.EngineURL = "" }},
		{"unknown quality", func(c *Config) { c.Quality = "ultra" }},
		{"frame rate too low", func(c *Config) { c.FrameRate = 0 }},
		{"frame rate too high", func(c *Config) { c.FrameRate = 120 }},
		{"flush interval too short", func(c *Config) { c.FlushIntervalMs = 100 }},
		{"flush interval too long", func(c *Config) { c.FlushIntervalMs = 60000 }},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("SNAPMARK_CONFIG", path)

	if err := os.WriteFile(path, []byte(`{"frame_rate": 999}`), 0644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid config, got nil")
	}
}
