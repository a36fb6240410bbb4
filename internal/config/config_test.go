package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if diff := cmp.Diff([]string{"maps"}, cfg.Maps.SearchPaths); diff != "" {
		t.Errorf("default search paths mismatch (-want +got):\n%s", diff)
	}
	if cfg.Maps.Strict {
		t.Error("expected strict to be false by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFrom(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
maps:
  search_paths:
    - /data/maps
    - /data/maps_patch
  strict: true

logging:
  level: "debug"
  log_file: "terrmap.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if diff := cmp.Diff([]string{"/data/maps", "/data/maps_patch"}, cfg.Maps.SearchPaths); diff != "" {
		t.Errorf("search paths mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Maps.Strict {
		t.Error("expected strict to be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "terrmap.log" {
		t.Errorf("expected log file 'terrmap.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
logging:
  level: "warn"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level 'warn', got %s", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if diff := cmp.Diff([]string{"maps"}, cfg.Maps.SearchPaths); diff != "" {
		t.Errorf("search paths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("maps: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := Default()
	cfg.Maps.SearchPaths = []string{"/srv/maps"}
	cfg.Maps.Strict = true
	cfg.Logging.Level = "debug"

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}

	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round-tripped config mismatch (-saved +loaded):\n%s", diff)
	}
}
