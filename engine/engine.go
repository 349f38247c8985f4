package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/assets"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/platform"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// How often frame metrics are logged, in seconds.
const metricsInterval = 5.0

// Window is the part of the platform layer the engine loop drives.
type Window interface {
	Startup(applicationName string, x, y, width, height uint32) error
	Shutdown() error
	PumpMessages()
	ShouldClose() bool
	FramebufferSize() (uint32, uint32, uint64)
}

// Backend is a device that also owns the presentation surface.
type Backend interface {
	rhi.Device
	Initialize(appName string, width, height uint32) error
	Shutdown() error
	RecreateSwapchain(width, height uint32) error
	Queue() rhi.Queue
	Swapchain() rhi.Swapchain
}

type Engine struct {
	currentStage Stage
	config       *app.Config
	mode         app.AppMode
	platform     Window
	backend      Backend
	assetManager *assets.AssetManager
	clock        *core.Clock
	metrics      *core.FrameMetrics

	isRunning      atomic.Bool
	isSuspended    bool
	width          uint32
	height         uint32
	sizeGeneration uint64
	lastTime       float64

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds an engine running mode on a GLFW window with the Vulkan backend.
func New(cfg *app.Config, mode app.AppMode) *Engine {
	p := platform.New()
	return NewWithBackend(cfg, mode, p, vulkan.New(p, cfg.Renderer.Validation, cfg.Renderer.VSync))
}

func NewWithBackend(cfg *app.Config, mode app.AppMode, window Window, backend Backend) *Engine {
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		mode:         mode,
		platform:     window,
		backend:      backend,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return errors.Wrap(core.ErrInvalidState, "engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	if err := e.mode.PreInit(e.config); err != nil {
		return errors.Wrapf(err, "pre-init mode %s", e.mode.Name())
	}

	window := e.config.Window
	if err := e.platform.Startup(window.Title, window.X, window.Y, window.Width, window.Height); err != nil {
		return err
	}
	e.width, e.height, e.sizeGeneration = e.platform.FramebufferSize()

	am, err := assets.NewAssetManager(e.config.Assets.Dir)
	if err != nil {
		return err
	}
	e.assetManager = am
	if e.config.Assets.Watch {
		if err := am.Watch(); err != nil {
			return err
		}
	}

	if err := e.backend.Initialize(window.Title, e.width, e.height); err != nil {
		return errors.Wrap(err, "initialize renderer")
	}

	if err := e.mode.Init(e.context()); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	e.isRunning.Store(true)
	core.LogInfo("engine initialized, running mode %s", e.mode.Name())
	return nil
}

func (e *Engine) context() *app.Context {
	return &app.Context{
		Device:    e.backend,
		Queue:     e.backend.Queue(),
		Swapchain: e.backend.Swapchain(),
		Assets:    e.assetManager,
		Config:    e.config,
	}
}

// Run drives the mode until the window closes, Stop is called or the device is
// lost.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.Wrap(core.ErrInvalidState, "engine run before initialize")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	lastMetrics := e.lastTime

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.isRunning.Store(false)
			break
		}

		e.dispatchAssetChanges()
		if err := e.checkResize(); err != nil {
			return err
		}
		if e.isSuspended {
			// nothing to present to while minimized
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.mode.Loop(currentTime, delta); err != nil {
			if err := e.handleFrameError(err); err != nil {
				e.isRunning.Store(false)
				return err
			}
		}

		e.metrics.Update(delta)
		if currentTime-lastMetrics >= metricsInterval {
			fps, frameTime := e.metrics.Frame()
			core.LogDebug("%.1f fps, %.3f ms per frame", fps, frameTime)
			lastMetrics = currentTime
		}

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// Stop asks the loop to return after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// handleFrameError returns the errors that end the loop. A stale swapchain is
// rebuilt, any other frame failure was logged by the frame cycle and only
// costs that frame.
func (e *Engine) handleFrameError(err error) error {
	switch {
	case errors.Is(err, core.ErrSurfaceOutOfDate):
		return e.recreateSwapchain()
	case errors.Is(err, core.ErrDeviceLost):
		core.LogError("device lost, shutting down: %v", err)
		return err
	case errors.Is(err, core.ErrResourceExhausted):
		core.LogError("out of device resources, shutting down: %v", err)
		return err
	}
	return nil
}

func (e *Engine) checkResize() error {
	width, height, generation := e.platform.FramebufferSize()
	if generation == e.sizeGeneration {
		return nil
	}
	e.sizeGeneration = generation
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)
	return e.recreateSwapchain()
}

func (e *Engine) recreateSwapchain() error {
	// Handle minimization
	if e.width == 0 || e.height == 0 {
		if !e.isSuspended {
			core.LogInfo("Window minimized, suspending application.")
			e.isSuspended = true
		}
		return nil
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}

	if err := e.backend.RecreateSwapchain(e.width, e.height); err != nil {
		return err
	}
	return e.mode.Resized(e.context())
}

// dispatchAssetChanges hands every pending asset change to the mode without
// blocking.
func (e *Engine) dispatchAssetChanges() {
	if e.assetManager == nil {
		return
	}
	for {
		select {
		case name, ok := <-e.assetManager.Changes():
			if !ok {
				return
			}
			core.LogDebug("asset changed: %s", name)
			if err := e.mode.AssetChanged(name); err != nil {
				core.LogError("mode %s failed to handle change of %s: %v", e.mode.Name(), name, err)
			}
		default:
			return
		}
	}
}

// Shutdown releases the mode, the assets, the renderer and the window, in this
// order. It must run on the thread that called Run. Calling it again returns
// the first result.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.isRunning.Store(false)
		previous := e.currentStage
		e.currentStage = EngineStageShuttingDown

		var err error
		if previous >= EngineStageInitializing {
			err = errors.CombineErrors(err, e.mode.Exist())
		}
		if e.assetManager != nil {
			err = errors.CombineErrors(err, e.assetManager.Close())
		}
		err = errors.CombineErrors(err, e.backend.Shutdown())
		err = errors.CombineErrors(err, e.platform.Shutdown())
		e.shutdownErr = err
		core.LogInfo("engine shut down")
	})
	return e.shutdownErr
}

// GetFramebufferSize returns the width and height (in this order) of the
// framebuffer the engine renders to.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}
