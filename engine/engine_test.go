package engine

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi/rhitest"
)

type fakeWindow struct {
	width, height uint32
	generation    uint64
	pumps         int
	closed        bool
	started       int
	shutdowns     int
	// onPump runs on every PumpMessages call with the pump count.
	onPump func(w *fakeWindow, pump int)
}

func (w *fakeWindow) Startup(name string, x, y, width, height uint32) error {
	w.started++
	w.width, w.height = width, height
	return nil
}

func (w *fakeWindow) Shutdown() error {
	w.shutdowns++
	return nil
}

func (w *fakeWindow) PumpMessages() {
	w.pumps++
	if w.onPump != nil {
		w.onPump(w, w.pumps)
	}
}

func (w *fakeWindow) ShouldClose() bool {
	return w.closed
}

func (w *fakeWindow) FramebufferSize() (uint32, uint32, uint64) {
	return w.width, w.height, w.generation
}

func (w *fakeWindow) resize(width, height uint32) {
	w.width, w.height = width, height
	w.generation++
}

type fakeBackend struct {
	*rhitest.Device
	swapchain  *rhitest.Swapchain
	recreated  [][2]uint32
	shutdowns  int
	initFailed error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{Device: rhitest.NewDevice(256)}
}

func (b *fakeBackend) Initialize(appName string, width, height uint32) error {
	if b.initFailed != nil {
		return b.initFailed
	}
	b.swapchain = rhitest.NewSwapchain(b.Device, 3, width, height)
	return nil
}

func (b *fakeBackend) Shutdown() error {
	b.shutdowns++
	return nil
}

func (b *fakeBackend) RecreateSwapchain(width, height uint32) error {
	if err := b.WaitIdle(); err != nil {
		return err
	}
	b.recreated = append(b.recreated, [2]uint32{width, height})
	b.swapchain = rhitest.NewSwapchain(b.Device, 3, width, height)
	return nil
}

func (b *fakeBackend) Queue() rhi.Queue {
	return b.Device.Queue()
}

func (b *fakeBackend) Swapchain() rhi.Swapchain {
	return b.swapchain
}

type fakeMode struct {
	preInits, inits, loops, resizes, exists int
	// loopErrs is consumed one entry per frame.
	loopErrs []error
	sizes    [][2]uint32
}

func (m *fakeMode) Name() string { return "fake" }

func (m *fakeMode) PreInit(cfg *app.Config) error {
	m.preInits++
	cfg.Window.Title = "fake"
	return nil
}

func (m *fakeMode) Init(ctx *app.Context) error {
	m.inits++
	if ctx.Device == nil || ctx.Queue == nil || ctx.Swapchain == nil || ctx.Assets == nil {
		return errors.New("incomplete context")
	}
	return nil
}

func (m *fakeMode) Loop(time, delta float64) error {
	m.loops++
	if len(m.loopErrs) > 0 {
		err := m.loopErrs[0]
		m.loopErrs = m.loopErrs[1:]
		return err
	}
	return nil
}

func (m *fakeMode) Resized(ctx *app.Context) error {
	m.resizes++
	m.sizes = append(m.sizes, [2]uint32{ctx.Swapchain.Width(), ctx.Swapchain.Height()})
	return nil
}

func (m *fakeMode) AssetChanged(name string) error { return nil }

func (m *fakeMode) Exist() error {
	m.exists++
	return nil
}

func newTestEngine(t *testing.T, mode *fakeMode, window *fakeWindow) (*Engine, *fakeBackend) {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.Assets.Dir = t.TempDir()
	cfg.Assets.Watch = false
	backend := newFakeBackend()
	e := NewWithBackend(cfg, mode, window, backend)
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	return e, backend
}

func closeAfter(pumps int) func(w *fakeWindow, pump int) {
	return func(w *fakeWindow, pump int) {
		if pump > pumps {
			w.closed = true
		}
	}
}

func TestEngineLifecycle(t *testing.T) {
	mode := &fakeMode{}
	window := &fakeWindow{onPump: closeAfter(5)}
	e, backend := newTestEngine(t, mode, window)

	if e.Stage() != EngineStageInitialized || mode.preInits != 1 || mode.inits != 1 || window.started != 1 {
		t.Fatalf("after Initialize: stage %d, mode %+v, window started %d", e.Stage(), mode, window.started)
	}
	if err := e.Initialize(); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("second Initialize = %v", err)
	}

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if mode.loops != 5 {
		t.Fatalf("ran %d frames, want 5", mode.loops)
	}

	for i := 0; i < 2; i++ {
		if err := e.Shutdown(); err != nil {
			t.Fatal(err)
		}
	}
	if mode.exists != 1 || backend.shutdowns != 1 || window.shutdowns != 1 {
		t.Fatalf("shutdown ran mode %d, backend %d, window %d times", mode.exists, backend.shutdowns, window.shutdowns)
	}
}

func TestEngineRunBeforeInitialize(t *testing.T) {
	e := NewWithBackend(app.DefaultConfig(), &fakeMode{}, &fakeWindow{}, newFakeBackend())
	if err := e.Run(); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Run = %v, want ErrInvalidState", err)
	}
}

func TestEngineFrameErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantFatal  error
		wantResize int
		wantLoops  int
	}{
		{"surface out of date", errors.Wrap(core.ErrSurfaceOutOfDate, "present"), nil, 1, 6},
		{"timeout", errors.Wrap(core.ErrTimedOut, "fence"), nil, 0, 6},
		{"generic", errors.New("record failed"), nil, 0, 6},
		{"device lost", errors.Mark(errors.Wrap(core.ErrTimedOut, "fence"), core.ErrDeviceLost), core.ErrDeviceLost, 0, 2},
		{"resource exhausted", errors.Wrap(core.ErrResourceExhausted, "buffer"), core.ErrResourceExhausted, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := &fakeMode{loopErrs: []error{nil, tt.err}}
			window := &fakeWindow{onPump: closeAfter(6)}
			e, backend := newTestEngine(t, mode, window)
			defer e.Shutdown()

			err := e.Run()
			if tt.wantFatal != nil {
				if !errors.Is(err, tt.wantFatal) {
					t.Fatalf("Run = %v, want %v", err, tt.wantFatal)
				}
			} else if err != nil {
				t.Fatalf("Run = %v", err)
			}
			if mode.loops != tt.wantLoops {
				t.Errorf("loops = %d, want %d", mode.loops, tt.wantLoops)
			}
			if mode.resizes != tt.wantResize || len(backend.recreated) != tt.wantResize {
				t.Errorf("resized %d times, recreated %d, want %d", mode.resizes, len(backend.recreated), tt.wantResize)
			}
		})
	}
}

func TestEngineResizeAndMinimize(t *testing.T) {
	mode := &fakeMode{}
	window := &fakeWindow{}
	window.onPump = func(w *fakeWindow, pump int) {
		switch pump {
		case 2:
			w.resize(1024, 768)
		case 3:
			w.resize(0, 0)
		case 6:
			w.resize(640, 480)
		case 8:
			w.closed = true
		}
	}
	e, backend := newTestEngine(t, mode, window)
	defer e.Shutdown()

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	// pumps 3, 4 and 5 are minimized
	if mode.loops != 4 {
		t.Fatalf("loops = %d, want 4", mode.loops)
	}
	want := [][2]uint32{{1024, 768}, {640, 480}}
	if len(backend.recreated) != len(want) {
		t.Fatalf("recreated %v, want %v", backend.recreated, want)
	}
	for i := range want {
		if backend.recreated[i] != want[i] || mode.sizes[i] != want[i] {
			t.Fatalf("resize %d: backend %v, mode %v, want %v", i, backend.recreated[i], mode.sizes[i], want[i])
		}
	}
	if w, h := e.GetFramebufferSize(); w != 640 || h != 480 {
		t.Fatalf("framebuffer size %dx%d", w, h)
	}
}

func TestEngineStop(t *testing.T) {
	mode := &fakeMode{}
	window := &fakeWindow{}
	e, _ := newTestEngine(t, mode, window)
	defer e.Shutdown()
	window.onPump = func(w *fakeWindow, pump int) {
		if pump == 3 {
			e.Stop()
		}
	}

	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if mode.loops != 3 {
		t.Fatalf("loops = %d, want 3", mode.loops)
	}
}

func TestEngineInitializeFailure(t *testing.T) {
	mode := &fakeMode{}
	window := &fakeWindow{}
	cfg := app.DefaultConfig()
	cfg.Assets.Dir = t.TempDir()
	backend := newFakeBackend()
	backend.initFailed = errors.Mark(errors.New("no vulkan device"), core.ErrResourceExhausted)

	e := NewWithBackend(cfg, mode, window, backend)
	err := e.Initialize()
	if !errors.Is(err, core.ErrResourceExhausted) {
		t.Fatalf("Initialize = %v", err)
	}
	if mode.inits != 0 {
		t.Fatal("mode initialized without a device")
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if backend.shutdowns != 1 || window.shutdowns != 1 {
		t.Fatal("partial initialization not released")
	}
}
