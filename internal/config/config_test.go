package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileNotRequired(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"), false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadMissingFileRequired(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), true)
	if err == nil {
		t.Fatal("expected error for a required but missing config file")
	}
}

func TestLoadJSONCWithComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rcored.jsonc")
	content := `{
  // listen address for the harness
  "listen": "0.0.0.0:9999",
  "setsize": 4096,
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "0.0.0.0:9999" {
		t.Fatalf("Listen = %q, want 0.0.0.0:9999", cfg.Listen)
	}
	if cfg.SetSize != 4096 {
		t.Fatalf("SetSize = %d, want 4096", cfg.SetSize)
	}
}

func TestApplyFlagsOverridesFile(t *testing.T) {
	cfg := Default()
	cfg.Listen = "127.0.0.1:6380"

	got := cfg.ApplyFlags("10.0.0.1:7000", true, 0, false, true, true)
	if got.Listen != "10.0.0.1:7000" {
		t.Fatalf("Listen = %q, want CLI override", got.Listen)
	}
	if got.SetSize != cfg.SetSize {
		t.Fatalf("SetSize = %d, want unchanged %d", got.SetSize, cfg.SetSize)
	}
	if !got.FastHash {
		t.Fatal("FastHash flag override did not apply")
	}
}
