package platform

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/monkey/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	// sizeGeneration changes every time the framebuffer is resized.
	sizeGeneration uint64
	width, height  uint32
	quitRequested  bool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "failed to create window")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	fbWidth, fbHeight := p.Window.GetFramebufferSize()
	p.width, p.height = uint32(fbWidth), uint32(fbHeight)

	core.LogInfo("window %q created (%dx%d)", applicationName, p.width, p.height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// ShouldClose reports a window close or a quit key press.
func (p *Platform) ShouldClose() bool {
	return p.quitRequested || p.Window == nil || p.Window.ShouldClose()
}

// FramebufferSize returns the last known framebuffer size and a counter that
// changes on every resize.
func (p *Platform) FramebufferSize() (uint32, uint32, uint64) {
	return p.width, p.height, p.sizeGeneration
}

// GetRequiredExtensionNames lists the instance extensions needed to present
// to the window.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		p.quitRequested = true
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.width, p.height = uint32(width), uint32(height)
	p.sizeGeneration++
	core.LogDebug("framebuffer resized to %dx%d", width, height)
}
