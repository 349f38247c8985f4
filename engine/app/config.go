package app

import (
	"bytes"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type WindowConfig struct {
	// The application name used in windowing.
	Title string `toml:"title"`
	// Window starting position x axis.
	X uint32 `toml:"x"`
	// Window starting position y axis.
	Y uint32 `toml:"y"`
	// Window starting width.
	Width uint32 `toml:"width"`
	// Window starting height.
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// Mode is the name of the render mode to run.
	Mode       string `toml:"mode"`
	Validation bool   `toml:"validation"`
	VSync      bool   `toml:"vsync"`
	// Timeouts in milliseconds, 0 waits forever.
	AcquireTimeoutMS uint64 `toml:"acquire_timeout_ms"`
	FenceTimeoutMS   uint64 `toml:"fence_timeout_ms"`
	// MaxFenceTimeouts consecutive fence timeouts are treated as a lost device.
	MaxFenceTimeouts int        `toml:"max_fence_timeouts"`
	FencePoolSize    int        `toml:"fence_pool_size"`
	StrictSync       bool       `toml:"strict_sync"`
	ClearColor       [4]float32 `toml:"clear_color"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type AssetsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Log      LogConfig      `toml:"log"`
	Assets   AssetsConfig   `toml:"assets"`
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Monkey",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Mode:             "dynamic_uniform_buffer",
			VSync:            true,
			FenceTimeoutMS:   1000,
			MaxFenceTimeouts: 3,
			FencePoolSize:    8,
			ClearColor:       [4]float32{0.2, 0.2, 0.2, 1},
		},
		Log: LogConfig{
			Level: "info",
		},
		Assets: AssetsConfig{
			Dir:   "assets",
			Watch: true,
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file yields
// the defaults; unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogInfo("config file %s not found, using defaults", path)
			return cfg, cfg.Validate()
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Newf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.Mode == "" {
		return errors.New("renderer mode is empty")
	}
	if c.Renderer.FencePoolSize <= 0 {
		return errors.Newf("fence pool size %d", c.Renderer.FencePoolSize)
	}
	if c.Renderer.MaxFenceTimeouts <= 0 {
		return errors.Newf("max fence timeouts %d", c.Renderer.MaxFenceTimeouts)
	}
	if c.Assets.Dir == "" {
		return errors.New("assets dir is empty")
	}
	return nil
}

func timeoutNs(ms uint64) uint64 {
	if ms == 0 {
		return rhi.InfiniteTimeout
	}
	return uint64((time.Duration(ms) * time.Millisecond).Nanoseconds())
}

// CycleConfig converts the renderer settings for the frame cycle.
func (c *Config) CycleConfig() rhi.CycleConfig {
	return rhi.CycleConfig{
		AcquireTimeout:         timeoutNs(c.Renderer.AcquireTimeoutMS),
		FenceTimeout:           timeoutNs(c.Renderer.FenceTimeoutMS),
		MaxConsecutiveTimeouts: c.Renderer.MaxFenceTimeouts,
	}
}

func (c *Config) FenceManagerConfig() rhi.FenceManagerConfig {
	return rhi.FenceManagerConfig{
		PoolSize: c.Renderer.FencePoolSize,
		Strict:   c.Renderer.StrictSync,
	}
}

func (c *Config) ClearValues() rhi.ClearValues {
	return rhi.ClearValues{
		Color: c.Renderer.ClearColor,
		Depth: 1,
	}
}
