package rhi_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi/rhitest"
)

func layouts() []rhi.BufferLayout {
	return []rhi.BufferLayout{
		{Name: "mvp", Usage: rhi.BufferUsageUniform, RecordSize: recordSize, InstanceCount: instances},
		{Name: "params", Usage: rhi.BufferUsageUniform, RecordSize: 16, InstanceCount: 1},
	}
}

func TestFrameSlotTableInitialize(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
	table := rhi.NewFrameSlotTable(dev, fm, layouts()...)

	if err := table.Initialize(3); err != nil {
		t.Fatal(err)
	}
	want := rhitest.Counts{Fences: 3, Semaphores: 3, Buffers: 6, CommandBuffers: 3}
	if live := dev.Live(); live != want {
		t.Fatalf("live = %+v, want %+v", live, want)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d", table.Len())
	}
	for i := 0; i < 3; i++ {
		slot, err := table.Acquire(uint32(i))
		if err != nil {
			t.Fatal(err)
		}
		if slot.Index != i || !slot.Fence.IsSignaled() || len(slot.Buffers) != 2 {
			t.Fatalf("slot %d = %+v", i, slot)
		}
		if slot.Buffer(1).Size() != 256 {
			t.Fatalf("params buffer size = %d, want 256", slot.Buffer(1).Size())
		}
	}
	if _, err := table.Acquire(3); !errors.Is(err, core.ErrOutOfBounds) {
		t.Fatalf("Acquire(3) = %v, want ErrOutOfBounds", err)
	}
	if err := table.Initialize(3); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("second Initialize = %v, want ErrInvalidState", err)
	}

	if err := table.Teardown(); err != nil {
		t.Fatal(err)
	}
	if err := fm.Destroy(); err != nil {
		t.Fatal(err)
	}
	if live := dev.Live(); live != (rhitest.Counts{}) {
		t.Fatalf("leaked %+v", live)
	}
	dev.AssertClean(t)
}

func TestFrameSlotTablePartialInitDoesNotLeak(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *rhitest.Device)
		kind  error
	}{
		{"buffer allocation", func(d *rhitest.Device) { d.FailBufferAfter = 3 }, core.ErrResourceExhausted},
		{"fence allocation", func(d *rhitest.Device) { d.MaxFences = 2 }, core.ErrResourceExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := rhitest.NewDevice(alignment)
			tt.setup(dev)
			fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
			table := rhi.NewFrameSlotTable(dev, fm, layouts()...)

			err := table.Initialize(3)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("Initialize = %v, want %v", err, tt.kind)
			}
			if table.Len() != 0 {
				t.Fatalf("Len() = %d after failed init", table.Len())
			}
			if fm.Outstanding() != 0 {
				t.Fatalf("%d fences still held", fm.Outstanding())
			}
			_ = fm.Destroy()
			if live := dev.Live(); live != (rhitest.Counts{}) {
				t.Fatalf("leaked %+v", live)
			}
			dev.AssertClean(t)
		})
	}
}

func TestFrameSlotTableTeardownIdempotent(t *testing.T) {
	h := newHarness(t, 3, rhi.DefaultCycleConfig())
	for i := 0; i < 3; i++ {
		if err := h.cycle.Draw(h.record); err != nil {
			t.Fatal(err)
		}
	}
	if h.dev.InFlight() != 3 {
		t.Fatalf("in flight = %d, want 3", h.dev.InFlight())
	}

	// teardown must drain in-flight frames before freeing slot buffers
	fence := h.slots.Slot(0).Fence.Native().(*rhitest.Fence)
	if err := h.slots.Teardown(); err != nil {
		t.Fatal(err)
	}
	waits := fence.Waits
	if waits == 0 {
		t.Fatal("teardown did not wait on the slot fence")
	}
	if err := h.slots.Teardown(); err != nil {
		t.Fatal(err)
	}
	if fence.Waits != waits || h.slots.Len() != 0 {
		t.Fatal("second teardown was not a no-op")
	}
	h.close(t)
}

func TestFrameSlotTableTeardownKeepsStuckSlots(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	if err := h.cycle.Draw(h.record); err != nil {
		t.Fatal(err)
	}

	h.dev.Hung = true
	h.dev.WaitErr = errors.New("VK_ERROR_DEVICE_LOST")
	err := h.slots.Teardown()
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Teardown = %v, want ErrDeviceLost", err)
	}
	// slot 1 was never submitted and is gone, slot 0 keeps its resources
	if h.slots.Len() != 1 {
		t.Fatalf("Len() = %d after failed teardown, want 1", h.slots.Len())
	}
	stuck := h.slots.Slot(0)
	if stuck.Index != 0 || stuck.Fence == nil || stuck.CommandBuffer == nil || stuck.Buffer(0) == nil {
		t.Fatalf("stuck slot lost its resources: %+v", stuck)
	}
	if err := stuck.Buffer(0).Flush(); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Flush on the stuck slot = %v, want ErrInvalidState", err)
	}

	// once the device recovers the retry frees everything
	h.dev.Hung = false
	h.dev.WaitErr = nil
	h.close(t)
}

func TestSlotBufferRejectsWriteWhilePending(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	if err := h.cycle.Draw(h.record); err != nil {
		t.Fatal(err)
	}
	slot := h.slots.Slot(0)
	if slot.Fence.State() != rhi.FencePending {
		t.Fatalf("slot 0 fence = %s, want pending", slot.Fence.State())
	}
	if err := slot.Buffer(0).WriteInstance(0, pattern(1)); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("write while pending = %v, want ErrInvalidState", err)
	}
	if err := slot.Buffer(0).Flush(); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("flush while pending = %v, want ErrInvalidState", err)
	}
	h.close(t)
}

func TestFakeDeviceDetectsWriteWhilePending(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	if err := h.cycle.Draw(h.record); err != nil {
		t.Fatal(err)
	}
	// bypass the slot guard: the instrumented buffer must notice
	native := h.slots.Slot(0).Buffer(0).Native()
	_, _ = native.Map()
	native.Unmap()
	if len(h.dev.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly one", h.dev.Violations)
	}
	h.dev.Violations = nil
	h.close(t)
}
