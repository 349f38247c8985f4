package app

import (
	"github.com/spaghettifunk/monkey/engine/assets"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

// Context carries everything a render mode may use. Modes never reach for
// global state.
type Context struct {
	Device    rhi.Device
	Queue     rhi.Queue
	Swapchain rhi.Swapchain
	Assets    *assets.AssetManager
	Config    *Config
}

// AppMode is one example renderer driven by the engine loop.
type AppMode interface {
	Name() string
	// PreInit runs before the window and device exist and may adjust the
	// configuration.
	PreInit(cfg *Config) error
	// Init builds every frame slot, fence, buffer and pipeline of the mode.
	Init(ctx *Context) error
	// Loop draws one frame. time and delta are in seconds.
	Loop(time, delta float64) error
	// Resized rebuilds the swapchain dependent resources after the engine
	// recreated the swapchain.
	Resized(ctx *Context) error
	// AssetChanged is called for every asset modified on disk.
	AssetChanged(name string) error
	// Exist drains the device and destroys everything Init built.
	Exist() error
}
