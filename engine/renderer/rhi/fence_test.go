package rhi_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi/rhitest"
)

func TestCreateFenceImmediateWait(t *testing.T) {
	tests := []struct {
		name          string
		startSignaled bool
		want          rhi.FenceStatus
	}{
		{"signaled", true, rhi.FenceCompleted},
		{"unsignaled", false, rhi.FenceTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := rhitest.NewDevice(alignment)
			fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
			f, err := fm.CreateFence(tt.startSignaled)
			if err != nil {
				t.Fatal(err)
			}
			// twice: waiting must be idempotent
			for i := 0; i < 2; i++ {
				status, err := fm.WaitForFence(f, 0)
				if err != nil {
					t.Fatal(err)
				}
				if status != tt.want {
					t.Fatalf("WaitForFence = %s, want %s", status, tt.want)
				}
			}
		})
	}
}

func TestCreateFenceResourceExhausted(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	dev.MaxFences = 2
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
	for i := 0; i < 2; i++ {
		if _, err := fm.CreateFence(true); err != nil {
			t.Fatal(err)
		}
	}
	_, err := fm.CreateFence(true)
	if !errors.Is(err, core.ErrResourceExhausted) {
		t.Fatalf("CreateFence past the device limit = %v, want ErrResourceExhausted", err)
	}
}

func TestFencePoolReuse(t *testing.T) {
	tests := []struct {
		name         string
		first        bool
		second       bool
		wantSameID   bool
		wantSignaled bool
	}{
		{"signaled to signaled", true, true, true, true},
		{"signaled to unsignaled", true, false, true, false},
		{"unsignaled to unsignaled", false, false, true, false},
		{"unsignaled to signaled", false, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := rhitest.NewDevice(alignment)
			fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{PoolSize: 2})
			f, _ := fm.CreateFence(tt.first)
			id := f.ID
			if err := fm.ReleaseFence(f); err != nil {
				t.Fatal(err)
			}
			if fm.Pooled() != 1 || fm.Outstanding() != 0 {
				t.Fatalf("pooled=%d outstanding=%d", fm.Pooled(), fm.Outstanding())
			}

			g, err := fm.CreateFence(tt.second)
			if err != nil {
				t.Fatal(err)
			}
			if (g.ID == id) != tt.wantSameID {
				t.Fatalf("reused = %v, want %v", g.ID == id, tt.wantSameID)
			}
			if g.IsSignaled() != tt.wantSignaled {
				t.Fatalf("signaled = %v, want %v", g.IsSignaled(), tt.wantSignaled)
			}
			if dev.Live().Fences != 1 {
				t.Fatalf("live fences = %d, want 1", dev.Live().Fences)
			}
			status, _ := fm.WaitForFence(g, 0)
			if (status == rhi.FenceCompleted) != tt.wantSignaled {
				t.Fatalf("wait = %s", status)
			}
		})
	}
}

func TestFencePoolOverflowDestroys(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{PoolSize: 1})
	a, _ := fm.CreateFence(true)
	b, _ := fm.CreateFence(true)
	_ = fm.ReleaseFence(a)
	_ = fm.ReleaseFence(b)
	if dev.Live().Fences != 1 {
		t.Fatalf("live fences = %d, want 1", dev.Live().Fences)
	}
	if err := fm.Destroy(); err != nil {
		t.Fatal(err)
	}
	if dev.Live().Fences != 0 {
		t.Fatalf("live fences after destroy = %d", dev.Live().Fences)
	}
	dev.AssertClean(t)
}

func TestFenceProtocolViolations(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})

	pending, _ := fm.CreateFence(false)
	submitEmpty(t, dev, fm, pending)

	if err := fm.ResetFence(pending); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("reset of pending fence = %v, want ErrInvalidState", err)
	}
	if err := fm.ReleaseFence(pending); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("release of pending fence = %v, want ErrInvalidState", err)
	}
	if err := fm.Submitted(pending, 1); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("double submit = %v, want ErrInvalidState", err)
	}

	idle, _ := fm.CreateFence(false)
	if _, err := fm.WaitForFence(idle, rhi.InfiniteTimeout); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("infinite wait on unsubmitted fence = %v, want ErrInvalidState", err)
	}

	released, _ := fm.CreateFence(true)
	_ = fm.ReleaseFence(released)
	if _, err := fm.WaitForFence(released, 0); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("wait on released fence = %v, want ErrInvalidState", err)
	}
	if err := fm.ResetFence(nil); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("reset of nil fence = %v, want ErrInvalidState", err)
	}
}

func TestFenceStrictPanics(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{Strict: true})
	f, _ := fm.CreateFence(false)
	submitEmpty(t, dev, fm, f)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("reset of pending fence did not panic in strict mode")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, core.ErrInvalidState) {
			t.Fatalf("panic value = %v", r)
		}
	}()
	_ = fm.ResetFence(f)
}

func TestWaitResetCycle(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
	f, _ := fm.CreateFence(true)

	if err := fm.ResetFence(f); err != nil {
		t.Fatal(err)
	}
	submitEmpty(t, dev, fm, f)
	if f.State() != rhi.FencePending || f.Owner() != 0 {
		t.Fatalf("state=%s owner=%d", f.State(), f.Owner())
	}
	// the fake device finishes the work while the host waits
	status, err := fm.WaitForFence(f, 1_000_000)
	if err != nil || status != rhi.FenceCompleted {
		t.Fatalf("WaitForFence = %s, %v", status, err)
	}
	if err := fm.ResetFence(f); err != nil {
		t.Fatal(err)
	}
	if f.State() != rhi.FenceUnsignaled || f.Owner() != -1 {
		t.Fatalf("after reset state=%s owner=%d", f.State(), f.Owner())
	}
	dev.AssertClean(t)
}

func TestWaitAndReleaseFence(t *testing.T) {
	t.Run("times out on hung device", func(t *testing.T) {
		dev := rhitest.NewDevice(alignment)
		fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
		f, _ := fm.CreateFence(false)
		submitEmpty(t, dev, fm, f)

		dev.Hung = true
		err := fm.WaitAndReleaseFence(f, 1000)
		if !errors.Is(err, core.ErrTimedOut) {
			t.Fatalf("WaitAndReleaseFence = %v, want ErrTimedOut", err)
		}
		if fm.Outstanding() != 1 {
			t.Fatal("timed out fence must not be released")
		}

		dev.Hung = false
		if err := fm.WaitAndReleaseFence(f, rhi.InfiniteTimeout); err != nil {
			t.Fatal(err)
		}
		if fm.Outstanding() != 0 || fm.Pooled() != 1 {
			t.Fatalf("outstanding=%d pooled=%d", fm.Outstanding(), fm.Pooled())
		}
	})

	t.Run("unsubmitted fence released without waiting", func(t *testing.T) {
		dev := rhitest.NewDevice(alignment)
		fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
		f, _ := fm.CreateFence(false)
		if err := fm.WaitAndReleaseFence(f, rhi.InfiniteTimeout); err != nil {
			t.Fatal(err)
		}
		if f.Native().(*rhitest.Fence).Waits != 0 {
			t.Fatal("unsubmitted fence was waited on")
		}
	})

	t.Run("device error marks device lost", func(t *testing.T) {
		dev := rhitest.NewDevice(alignment)
		fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
		f, _ := fm.CreateFence(false)
		submitEmpty(t, dev, fm, f)

		dev.Hung = true
		dev.WaitErr = errors.New("VK_ERROR_DEVICE_LOST")
		err := fm.WaitAndReleaseFence(f, 1000)
		if !errors.Is(err, core.ErrDeviceLost) {
			t.Fatalf("WaitAndReleaseFence = %v, want ErrDeviceLost", err)
		}
		dev.Hung = false
	})
}

func TestFenceManagerDestroyReportsPending(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
	f, _ := fm.CreateFence(false)
	submitEmpty(t, dev, fm, f)
	_, _ = fm.CreateFence(true)

	err := fm.Destroy()
	if !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Destroy with pending fence = %v, want ErrInvalidState", err)
	}
	if dev.Live().Fences != 1 {
		t.Fatalf("live fences = %d, want only the pending one", dev.Live().Fences)
	}
	if _, err := fm.CreateFence(true); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("CreateFence after Destroy = %v", err)
	}
	dev.AssertClean(t)
}
