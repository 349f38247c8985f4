package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[window]
title = "OBJLoader"
width = 800
height = 600

[renderer]
mode = "uniform_buffer"
fence_timeout_ms = 0
acquire_timeout_ms = 250
max_fence_timeouts = 2
strict_sync = true
clear_color = [0.1, 0.2, 0.3, 1.0]

[log]
level = "debug"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Window.Title != "OBJLoader" || cfg.Window.Width != 800 || cfg.Window.X != 100 {
		t.Fatalf("window = %+v", cfg.Window)
	}
	if cfg.Renderer.Mode != "uniform_buffer" || cfg.Renderer.FencePoolSize != 8 {
		t.Fatalf("renderer = %+v", cfg.Renderer)
	}

	cycle := cfg.CycleConfig()
	if cycle.FenceTimeout != rhi.InfiniteTimeout {
		t.Fatalf("fence timeout = %d, want infinite", cycle.FenceTimeout)
	}
	if cycle.AcquireTimeout != 250_000_000 || cycle.MaxConsecutiveTimeouts != 2 {
		t.Fatalf("cycle = %+v", cycle)
	}
	if !cfg.FenceManagerConfig().Strict {
		t.Fatal("strict_sync not applied")
	}
	if cfg.ClearValues().Color != [4]float32{0.1, 0.2, 0.3, 1.0} || cfg.ClearValues().Depth != 1 {
		t.Fatalf("clear = %+v", cfg.ClearValues())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[renderer]\nframes_in_flight = 2\n"},
		{"malformed", "[window\n"},
		{"zero width", "[window]\nwidth = 0\n"},
		{"empty mode", "[renderer]\nmode = \"\"\n"},
		{"bad pool", "[renderer]\nfence_pool_size = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Fatal("LoadConfig accepted an invalid config")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("missing file should yield defaults, got %+v", cfg)
	}
}
