package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
)

// BufferLayout describes one aligned buffer every slot owns.
type BufferLayout struct {
	Name          string
	Usage         BufferUsage
	RecordSize    uint64
	InstanceCount int
}

// FrameSlot is the set of resources used by one swapchain image.
type FrameSlot struct {
	Index          int
	Fence          *Fence
	CommandBuffer  CommandBuffer
	RenderComplete Semaphore
	Buffers        []*AlignedBuffer

	recorded bool
}

// Buffer returns the slot buffer built from the i-th layout.
func (s *FrameSlot) Buffer(i int) *AlignedBuffer {
	if i < 0 || i >= len(s.Buffers) {
		return nil
	}
	return s.Buffers[i]
}

// Recorded reports whether the command buffer holds a stream that can be
// submitted again as is.
func (s *FrameSlot) Recorded() bool {
	return s.recorded
}

func (s *FrameSlot) MarkRecorded() {
	s.recorded = true
}

func (s *FrameSlot) Invalidate() {
	s.recorded = false
}

func (s *FrameSlot) writable() error {
	if s.Fence != nil && s.Fence.State() == FencePending {
		return errors.Wrapf(core.ErrInvalidState, "frame slot %d is still in flight", s.Index)
	}
	return nil
}

// FrameSlotTable is the fixed set of frame slots, one per swapchain image.
type FrameSlotTable struct {
	device  Device
	fences  *FenceManager
	layouts []BufferLayout
	slots   []FrameSlot
}

func NewFrameSlotTable(device Device, fences *FenceManager, layouts ...BufferLayout) *FrameSlotTable {
	return &FrameSlotTable{
		device:  device,
		fences:  fences,
		layouts: layouts,
	}
}

// Initialize builds slotCount slots. On failure everything built so far is
// released before returning.
func (t *FrameSlotTable) Initialize(slotCount int) (err error) {
	if t.slots != nil {
		return t.fences.invalid("frame slot table initialized twice")
	}
	if slotCount <= 0 {
		return errors.Wrapf(core.ErrInvalidState, "frame slot count %d", slotCount)
	}

	t.slots = make([]FrameSlot, slotCount)
	defer func() {
		if err != nil {
			if rerr := t.release(); rerr != nil {
				core.LogError("failed to release partially built frame slots: %v", rerr)
			}
		}
	}()

	for i := range t.slots {
		slot := &t.slots[i]
		slot.Index = i

		if slot.Fence, err = t.fences.CreateFence(true); err != nil {
			return errors.Wrapf(err, "frame slot %d", i)
		}
		if slot.CommandBuffer, err = t.device.AllocateCommandBuffer(); err != nil {
			return errors.Mark(errors.Wrapf(err, "frame slot %d command buffer", i), core.ErrResourceExhausted)
		}
		if slot.RenderComplete, err = t.device.CreateSemaphore(); err != nil {
			return errors.Mark(errors.Wrapf(err, "frame slot %d semaphore", i), core.ErrResourceExhausted)
		}
		for _, layout := range t.layouts {
			buffer, berr := NewAlignedBuffer(t.device, layout.Usage, layout.RecordSize, layout.InstanceCount)
			if berr != nil {
				return errors.Wrapf(berr, "frame slot %d buffer %q", i, layout.Name)
			}
			buffer.guard = slot.writable
			slot.Buffers = append(slot.Buffers, buffer)
		}
	}

	core.LogDebug("frame slot table initialized with %d slots and %d buffers per slot", slotCount, len(t.layouts))
	return nil
}

// Acquire returns the slot of a swapchain image. It does not wait.
func (t *FrameSlotTable) Acquire(imageIndex uint32) (*FrameSlot, error) {
	if int(imageIndex) >= len(t.slots) {
		return nil, errors.Wrapf(core.ErrOutOfBounds, "image index %d with %d frame slots", imageIndex, len(t.slots))
	}
	return &t.slots[imageIndex], nil
}

func (t *FrameSlotTable) Len() int {
	return len(t.slots)
}

func (t *FrameSlotTable) Slot(i int) *FrameSlot {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return &t.slots[i]
}

// InvalidateAll forces every slot command buffer to be recorded again.
func (t *FrameSlotTable) InvalidateAll() {
	for i := range t.slots {
		t.slots[i].Invalidate()
	}
}

// Teardown waits on every slot fence, then frees the slot resources. Slots
// whose fence wait failed stay in the table with their resources so a later
// Teardown can retry them. A call on an empty table does nothing.
func (t *FrameSlotTable) Teardown() error {
	if t.slots == nil {
		return nil
	}
	return t.release()
}

func (t *FrameSlotTable) release() error {
	var errs error
	var stuck []FrameSlot
	for i := range t.slots {
		slot := &t.slots[i]
		if slot.Fence != nil {
			if err := t.fences.WaitAndReleaseFence(slot.Fence, InfiniteTimeout); err != nil {
				// the device may still read these resources, keep them
				core.LogError("frame slot %d not released, fence %s, %d buffers, command buffer and semaphore kept: %v",
					slot.Index, slot.Fence.ID, len(slot.Buffers), err)
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "frame slot %d", slot.Index))
				stuck = append(stuck, *slot)
				continue
			}
			slot.Fence = nil
		}
		for _, b := range slot.Buffers {
			b.Destroy()
		}
		slot.Buffers = nil
		if slot.RenderComplete != nil {
			slot.RenderComplete.Destroy()
			slot.RenderComplete = nil
		}
		if slot.CommandBuffer != nil {
			slot.CommandBuffer.Free()
			slot.CommandBuffer = nil
		}
		slot.recorded = false
	}
	for i := range stuck {
		for _, b := range stuck[i].Buffers {
			b.guard = stuck[i].writable
		}
	}
	t.slots = stuck
	return errs
}
