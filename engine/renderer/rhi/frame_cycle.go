package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
)

type FrameState int

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameWaitingFence
	FrameRecording
	FrameSubmitted
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameWaitingFence:
		return "waiting fence"
	case FrameRecording:
		return "recording"
	case FrameSubmitted:
		return "submitted"
	case FramePresenting:
		return "presenting"
	}
	return "unknown"
}

type CycleConfig struct {
	AcquireTimeout uint64
	FenceTimeout   uint64
	// MaxConsecutiveTimeouts is the number of fence timeouts in a row after
	// which the device is considered lost.
	MaxConsecutiveTimeouts int
}

func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		AcquireTimeout:         InfiniteTimeout,
		FenceTimeout:           InfiniteTimeout,
		MaxConsecutiveTimeouts: 3,
	}
}

// RecordFunc writes the slot buffers of the frame and records the slot
// command buffer when it is not reusable.
type RecordFunc func(slot *FrameSlot, imageIndex uint32) error

// FrameCycle drives acquire, fence wait, record, submit and present for one
// frame at a time.
type FrameCycle struct {
	swapchain Swapchain
	queue     Queue
	fences    *FenceManager
	slots     *FrameSlotTable
	config    CycleConfig

	state       FrameState
	frameNumber uint64
	imageIndex  uint32
	timeouts    int
}

func NewFrameCycle(swapchain Swapchain, queue Queue, fences *FenceManager, slots *FrameSlotTable, config CycleConfig) *FrameCycle {
	if config.MaxConsecutiveTimeouts <= 0 {
		config.MaxConsecutiveTimeouts = 3
	}
	return &FrameCycle{
		swapchain: swapchain,
		queue:     queue,
		fences:    fences,
		slots:     slots,
		config:    config,
	}
}

// SetSwapchain points the cycle at a recreated swapchain.
func (c *FrameCycle) SetSwapchain(swapchain Swapchain) {
	c.swapchain = swapchain
}

func (c *FrameCycle) State() FrameState {
	return c.state
}

// FrameNumber counts the frames handed to the presentation engine.
func (c *FrameCycle) FrameNumber() uint64 {
	return c.frameNumber
}

// ImageIndex is the image acquired by the last Draw.
func (c *FrameCycle) ImageIndex() uint32 {
	return c.imageIndex
}

func (c *FrameCycle) ConsecutiveTimeouts() int {
	return c.timeouts
}

// Draw runs one frame. Surface errors are returned untouched so the caller can
// recreate the swapchain; every other failure aborts the frame only.
func (c *FrameCycle) Draw(record RecordFunc) error {
	defer func() { c.state = FrameIdle }()

	if c.slots.Len() == 0 {
		return c.fail(errors.Wrap(core.ErrInvalidState, "draw without frame slots"))
	}

	c.state = FrameAcquiring
	imageIndex, imageAvailable, err := c.swapchain.AcquireNextImage(c.config.AcquireTimeout)
	if err != nil {
		if errors.Is(err, core.ErrSurfaceOutOfDate) {
			return err
		}
		return c.fail(errors.Wrap(err, "acquire next image"))
	}
	slot, err := c.slots.Acquire(imageIndex)
	if err != nil {
		// no slot to release the image through, the table no longer matches
		// the swapchain and needs recreating
		return errors.Mark(c.fail(err), core.ErrSurfaceOutOfDate)
	}
	c.imageIndex = imageIndex

	c.state = FrameWaitingFence
	if err := c.waitForSlot(slot); err != nil {
		return c.abandon(imageIndex, imageAvailable, slot, err)
	}

	c.state = FrameRecording
	if err := record(slot, imageIndex); err != nil {
		return c.abandon(imageIndex, imageAvailable, slot, errors.Wrapf(err, "record frame slot %d", slot.Index))
	}

	c.state = FrameSubmitted
	if err := c.queue.Submit(slot.CommandBuffer, imageAvailable, slot.RenderComplete, slot.Fence.native); err != nil {
		return c.abandon(imageIndex, imageAvailable, slot, errors.Wrapf(err, "submit frame slot %d", slot.Index))
	}
	submitErr := c.fences.Submitted(slot.Fence, slot.Index)

	c.state = FramePresenting
	err = c.swapchain.Present(imageIndex, slot.RenderComplete)
	c.frameNumber++
	if err != nil {
		if errors.Is(err, core.ErrSurfaceOutOfDate) {
			return err
		}
		return c.fail(errors.Wrapf(err, "present image %d", imageIndex))
	}
	if submitErr != nil {
		return c.fail(submitErr)
	}
	return nil
}

// abandon hands an acquired image back after the frame failed. An empty batch
// consumes the acquire semaphore and signals the slot render-complete
// semaphore, which the present of the untouched image waits on.
func (c *FrameCycle) abandon(imageIndex uint32, imageAvailable Semaphore, slot *FrameSlot, cause error) error {
	cause = c.fail(cause)
	if err := c.queue.Submit(nil, imageAvailable, slot.RenderComplete, nil); err != nil {
		core.LogError("failed to release image %d: %v", imageIndex, err)
		return cause
	}
	if err := c.swapchain.Present(imageIndex, slot.RenderComplete); err != nil {
		if errors.Is(err, core.ErrSurfaceOutOfDate) {
			if errors.Is(cause, core.ErrDeviceLost) || errors.Is(cause, core.ErrResourceExhausted) {
				return cause
			}
			return errors.Mark(cause, core.ErrSurfaceOutOfDate)
		}
		core.LogError("failed to release image %d: %v", imageIndex, err)
	}
	return cause
}

// waitForSlot blocks until the device is done with the slot, then resets its
// fence for the next submission.
func (c *FrameCycle) waitForSlot(slot *FrameSlot) error {
	fence := slot.Fence
	// reset by a frame that was aborted before submit, nothing is in flight
	if fence.State() == FenceUnsignaled {
		return nil
	}

	status, err := c.fences.WaitForFence(fence, c.config.FenceTimeout)
	if err != nil {
		return err
	}
	if status == FenceTimedOut {
		c.timeouts++
		err := errors.Wrapf(core.ErrTimedOut, "frame slot %d fence %s, %d consecutive timeouts", slot.Index, fence.ID, c.timeouts)
		if c.timeouts >= c.config.MaxConsecutiveTimeouts {
			return errors.Mark(err, core.ErrDeviceLost)
		}
		return err
	}
	c.timeouts = 0
	return c.fences.ResetFence(fence)
}

func (c *FrameCycle) fail(err error) error {
	core.LogError("frame %d aborted in state %s: %v", c.frameNumber, c.state, err)
	return err
}
