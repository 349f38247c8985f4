package rhi_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi/rhitest"
)

func TestFrameCycleSteadyState(t *testing.T) {
	for _, images := range []int{2, 3} {
		h := newHarness(t, images, rhi.DefaultCycleConfig())
		const frames = 30
		for i := 0; i < frames; i++ {
			if err := h.cycle.Draw(h.record); err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if h.cycle.State() != rhi.FrameIdle {
				t.Fatalf("state after Draw = %s", h.cycle.State())
			}
			if h.dev.InFlight() > images {
				t.Fatalf("%d frames in flight with %d slots", h.dev.InFlight(), images)
			}
		}
		if h.cycle.FrameNumber() != frames {
			t.Fatalf("FrameNumber() = %d", h.cycle.FrameNumber())
		}
		if h.dev.Queue().Submissions != frames || len(h.swapchain.Presented) != frames {
			t.Fatalf("submissions=%d presents=%d", h.dev.Queue().Submissions, len(h.swapchain.Presented))
		}
		for i := 0; i < images; i++ {
			cmd := h.slots.Slot(i).CommandBuffer.(*rhitest.CommandBuffer)
			if cmd.Recordings != 1 {
				t.Fatalf("slot %d recorded %d times, want once", i, cmd.Recordings)
			}
		}
		h.close(t)
	}
}

func TestFrameCycleDynamicOffsets(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	if err := h.cycle.Draw(h.record); err != nil {
		t.Fatal(err)
	}
	cmd := h.slots.Slot(0).CommandBuffer.(*rhitest.CommandBuffer)
	offsets := cmd.DynamicOffsets()
	if len(offsets) != instances {
		t.Fatalf("%d descriptor binds, want %d", len(offsets), instances)
	}
	for i, off := range offsets {
		if off != uint32(i*256) {
			t.Fatalf("offset %d = %d, want %d", i, off, i*256)
		}
	}
	if cmd.Count(rhitest.OpDrawIndexed) != instances || cmd.Count(rhitest.OpBindPipeline) != 1 {
		t.Fatal("unexpected command stream")
	}
	h.close(t)
}

func TestFrameCycleStates(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	err := h.cycle.Draw(func(slot *rhi.FrameSlot, imageIndex uint32) error {
		if h.cycle.State() != rhi.FrameRecording {
			t.Errorf("state while recording = %s", h.cycle.State())
		}
		if slot.Fence.State() != rhi.FenceUnsignaled {
			t.Errorf("slot fence while recording = %s, want unsignaled", slot.Fence.State())
		}
		if h.cycle.ImageIndex() != imageIndex {
			t.Errorf("ImageIndex() = %d, want %d", h.cycle.ImageIndex(), imageIndex)
		}
		return h.record(slot, imageIndex)
	})
	if err != nil {
		t.Fatal(err)
	}
	if f := h.slots.Slot(0).Fence; f.State() != rhi.FencePending || f.Owner() != 0 {
		t.Fatalf("fence after submit: state=%s owner=%d", f.State(), f.Owner())
	}
	h.close(t)
}

func TestFrameCycleSurfaceOutOfDate(t *testing.T) {
	t.Run("acquire", func(t *testing.T) {
		h := newHarness(t, 2, rhi.DefaultCycleConfig())
		h.swapchain.OutOfDate = true
		err := h.cycle.Draw(h.record)
		if !errors.Is(err, core.ErrSurfaceOutOfDate) {
			t.Fatalf("Draw = %v, want ErrSurfaceOutOfDate", err)
		}
		if h.dev.Queue().Submissions != 0 || h.cycle.FrameNumber() != 0 {
			t.Fatal("work submitted for a stale surface")
		}
		if !h.slots.Slot(0).Fence.IsSignaled() {
			t.Fatal("slot fence touched by a failed acquire")
		}
		h.close(t)
	})

	t.Run("present", func(t *testing.T) {
		h := newHarness(t, 2, rhi.DefaultCycleConfig())
		h.swapchain.PresentOutOfDate = true
		err := h.cycle.Draw(h.record)
		if !errors.Is(err, core.ErrSurfaceOutOfDate) {
			t.Fatalf("Draw = %v, want ErrSurfaceOutOfDate", err)
		}
		if h.slots.Slot(0).Fence.State() != rhi.FencePending {
			t.Fatal("submitted frame must keep its fence pending")
		}
		// recreation path: drain, rebuild the slots for the new image count
		if err := h.dev.WaitIdle(); err != nil {
			t.Fatal(err)
		}
		for _, s := range h.sets {
			s.Destroy()
		}
		h.sets = nil
		if err := h.slots.Teardown(); err != nil {
			t.Fatal(err)
		}
		h.swapchain = rhitest.NewSwapchain(h.dev, 3, 1024, 768)
		h.cycle.SetSwapchain(h.swapchain)
		if err := h.slots.Initialize(h.swapchain.ImageCount()); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < h.slots.Len(); i++ {
			set, _ := h.dev.CreateDescriptorSet(h.pipeline, h.slots.Slot(i).Buffer(0).Native(), recordSize)
			h.sets = append(h.sets, set)
		}
		for i := 0; i < 6; i++ {
			if err := h.cycle.Draw(h.record); err != nil {
				t.Fatal(err)
			}
		}
		h.close(t)
	})
}

func TestFrameCycleTimeoutEscalation(t *testing.T) {
	h := newHarness(t, 3, rhi.CycleConfig{
		AcquireTimeout:         rhi.InfiniteTimeout,
		FenceTimeout:           1_000_000,
		MaxConsecutiveTimeouts: 3,
	})
	for i := 0; i < 3; i++ {
		if err := h.cycle.Draw(h.record); err != nil {
			t.Fatal(err)
		}
	}

	h.dev.Hung = true
	submissions := h.dev.Queue().Submissions
	for i := 1; i <= 3; i++ {
		err := h.cycle.Draw(h.record)
		if !errors.Is(err, core.ErrTimedOut) {
			t.Fatalf("timeout %d: Draw = %v, want ErrTimedOut", i, err)
		}
		if lost := errors.Is(err, core.ErrDeviceLost); lost != (i == 3) {
			t.Fatalf("timeout %d: device lost = %v", i, lost)
		}
		if h.cycle.ConsecutiveTimeouts() != i {
			t.Fatalf("ConsecutiveTimeouts() = %d, want %d", h.cycle.ConsecutiveTimeouts(), i)
		}
	}
	if h.dev.Queue().Submissions != submissions {
		t.Fatal("a frame was submitted while its slot was still pending")
	}
	// the timed out frames still handed their images back
	if h.dev.Queue().EmptySubmissions != 3 || len(h.swapchain.Presented) != 6 {
		t.Fatalf("released %d images, presented %d", h.dev.Queue().EmptySubmissions, len(h.swapchain.Presented))
	}

	h.dev.Hung = false
	if err := h.cycle.Draw(h.record); err != nil {
		t.Fatal(err)
	}
	if h.cycle.ConsecutiveTimeouts() != 0 {
		t.Fatal("timeout counter not reset by a completed wait")
	}
	h.close(t)
}

func TestFrameCycleAbortedFrameRecovers(t *testing.T) {
	tests := []struct {
		name   string
		inject func(h *harness) rhi.RecordFunc
	}{
		{"record error", func(h *harness) rhi.RecordFunc {
			return func(*rhi.FrameSlot, uint32) error { return errors.New("pipeline missing") }
		}},
		{"submit error", func(h *harness) rhi.RecordFunc {
			h.dev.Queue().FailSubmit = errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
			return h.record
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 2, rhi.DefaultCycleConfig())
			if err := h.cycle.Draw(tt.inject(h)); err == nil {
				t.Fatal("Draw succeeded")
			}
			if f := h.slots.Slot(0).Fence; f.State() != rhi.FenceUnsignaled {
				t.Fatalf("aborted slot fence = %s, want unsignaled", f.State())
			}
			if len(h.swapchain.Presented) != 1 || h.swapchain.Presented[0] != 0 {
				t.Fatalf("presented %v, want the aborted image 0", h.swapchain.Presented)
			}
			if h.dev.Queue().EmptySubmissions != 1 || h.cycle.FrameNumber() != 0 {
				t.Fatalf("empty submissions %d, frame number %d", h.dev.Queue().EmptySubmissions, h.cycle.FrameNumber())
			}
			// the aborted slot comes around again and must not block
			for i := 0; i < 4; i++ {
				if err := h.cycle.Draw(h.record); err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
			}
			h.close(t)
		})
	}
}

func TestFrameCycleRepeatedAbortsKeepImagesCirculating(t *testing.T) {
	h := newHarness(t, 2, rhi.DefaultCycleConfig())
	failing := func(*rhi.FrameSlot, uint32) error { return errors.New("record failed") }

	// more aborts than images and acquire semaphores
	for i := 0; i < 5; i++ {
		if err := h.cycle.Draw(failing); err == nil {
			t.Fatalf("abort %d: Draw succeeded", i)
		}
		if len(h.dev.Violations) != 0 {
			t.Fatalf("abort %d: %v", i, h.dev.Violations)
		}
	}
	want := []uint32{0, 1, 0, 1, 0}
	for i, idx := range want {
		if h.swapchain.Presented[i] != idx {
			t.Fatalf("presented %v, want %v", h.swapchain.Presented, want)
		}
	}

	for i := 0; i < 4; i++ {
		if err := h.cycle.Draw(h.record); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if h.cycle.FrameNumber() != 4 {
		t.Fatalf("FrameNumber() = %d, want 4", h.cycle.FrameNumber())
	}
	h.close(t)
}

func TestFakeSwapchainDetectsUnreleasedImage(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	sc := rhitest.NewSwapchain(dev, 1, 1, 1)
	for i := 0; i < 2; i++ {
		if _, _, err := sc.AcquireNextImage(rhi.InfiniteTimeout); err != nil {
			t.Fatal(err)
		}
	}
	// image held and its acquire semaphore never consumed
	if len(dev.Violations) != 2 {
		t.Fatalf("violations = %v, want two", dev.Violations)
	}
}

func TestFrameCycleWithoutSlots(t *testing.T) {
	dev := rhitest.NewDevice(alignment)
	fm := rhi.NewFenceManager(dev, rhi.FenceManagerConfig{})
	slots := rhi.NewFrameSlotTable(dev, fm)
	cycle := rhi.NewFrameCycle(rhitest.NewSwapchain(dev, 2, 1, 1), dev.Queue(), fm, slots, rhi.CycleConfig{})
	if err := cycle.Draw(func(*rhi.FrameSlot, uint32) error { return nil }); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Draw = %v, want ErrInvalidState", err)
	}
}

func TestFrameStateString(t *testing.T) {
	want := map[rhi.FrameState]string{
		rhi.FrameIdle:         "idle",
		rhi.FrameAcquiring:    "acquiring",
		rhi.FrameWaitingFence: "waiting fence",
		rhi.FrameRecording:    "recording",
		rhi.FrameSubmitted:    "submitted",
		rhi.FramePresenting:   "presenting",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), w)
		}
	}
}
