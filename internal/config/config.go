// Package config loads cmd/rcored's settings from an optional
// JSON-with-comments file and merges in CLI overrides, following the
// same defaults -> config file -> CLI-flags precedence the teacher's
// own LoadConfig implements for its tool (§6.6).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds every setting cmd/rcored accepts.
type Config struct {
	Listen   string `json:"listen"`
	SetSize  int    `json:"setsize"`
	FastHash bool   `json:"fast_hash"` //nolint:tagliatelle // snake_case for config file
}

// Default returns the built-in defaults, before any file or flag is
// applied.
func Default() Config {
	return Config{
		Listen:  "127.0.0.1:6380",
		SetSize: 1024,
	}
}

// Load reads path (if non-empty) as JSONC and merges it onto the
// defaults; a missing path that was not explicitly requested is not
// an error. mustExist forces a read error when the file doesn't
// exist, matching the explicit-vs-default-location distinction the
// teacher's loadProjectConfig draws.
func Load(path string, mustExist bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	overlay, err := parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return merge(cfg, overlay), nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// merge overlays onto base, preferring overlay's non-zero fields.
// FastHash is a plain bool (no tri-state "unset"), so it always
// passes through — a config file that doesn't mention it explicitly
// writes false, matching the default.
func merge(base, overlay Config) Config {
	if overlay.Listen != "" {
		base.Listen = overlay.Listen
	}
	if overlay.SetSize != 0 {
		base.SetSize = overlay.SetSize
	}
	base.FastHash = overlay.FastHash
	return base
}

// ApplyFlags overlays any CLI flag that was explicitly set, taking
// precedence over both the defaults and the config file.
func (c Config) ApplyFlags(listen string, listenSet bool, setSize int, setSizeSet bool, fastHash bool, fastHashSet bool) Config {
	if listenSet {
		c.Listen = listen
	}
	if setSizeSet {
		c.SetSize = setSize
	}
	if fastHashSet {
		c.FastHash = fastHash
	}
	return c
}
