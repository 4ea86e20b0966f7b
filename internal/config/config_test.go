package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Run.MaxFires != 0 {
		t.Errorf("MaxFires = %d, want 0 (quiescence)", cfg.Run.MaxFires)
	}
	if cfg.Trace != 0 {
		t.Errorf("Trace = %d, want 0", cfg.Trace)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(missing) = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulectl.yaml")
	body := "run:\n  max_fires: 10\n  yield: true\ntrace: 2\nscenario: ward.yaml\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Run.MaxFires != 10 || !cfg.Run.Yield {
		t.Errorf("Run = %+v", cfg.Run)
	}
	if cfg.Trace != 2 {
		t.Errorf("Trace = %d, want 2", cfg.Trace)
	}
	if cfg.Scenario != "ward.yaml" {
		t.Errorf("Scenario = %q", cfg.Scenario)
	}
}

func TestLoadRejectsBadTraceLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulectl.yaml")
	if err := os.WriteFile(path, []byte("trace: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted trace level 9")
	}
}
