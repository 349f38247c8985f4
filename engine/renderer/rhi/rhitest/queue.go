package rhitest

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type Queue struct {
	dev *Device
	// Submissions counts batches carrying a command buffer, EmptySubmissions
	// the ones that only move semaphores.
	Submissions      int
	EmptySubmissions int
	// FailSubmit is returned by the next submission, then cleared.
	FailSubmit error
}

func (q *Queue) Submit(cmd rhi.CommandBuffer, wait rhi.Semaphore, signal rhi.Semaphore, fence rhi.DeviceFence) error {
	if err := q.FailSubmit; err != nil {
		q.FailSubmit = nil
		return err
	}
	// a nil command buffer is an empty batch that only moves semaphores
	var c *CommandBuffer
	if cmd != nil {
		c = cmd.(*CommandBuffer)
		if c.recording {
			q.dev.violate("submit of a command buffer still recording")
		}
		if c.inFlight != nil {
			q.dev.violate("submit of a command buffer the device is executing")
		}
	}

	var f *Fence
	if fence != nil {
		f = fence.(*Fence)
		if f.signaled || f.pending != nil {
			q.dev.violate("submit with a fence that is signaled or in use")
		}
	}
	if wait != nil {
		s := wait.(*Semaphore)
		if !s.signaled {
			q.dev.violate("submit waits on a semaphore nothing signals")
		}
		s.signaled = false
	}
	if signal != nil {
		s := signal.(*Semaphore)
		if s.signaled {
			q.dev.violate("submit signals a semaphore already signaled")
		}
		s.signaled = true
	}

	if c == nil && f == nil {
		// nothing executes, only the semaphores moved
		q.EmptySubmissions++
		return nil
	}

	sub := &submission{fence: f, cmd: c}
	if c != nil {
		sub.buffers = c.referenced()
		c.inFlight = sub
	}
	for _, b := range sub.buffers {
		b.inFlight++
	}
	if f != nil {
		f.pending = sub
	}
	q.dev.pending = append(q.dev.pending, sub)
	if c == nil {
		q.EmptySubmissions++
	} else {
		q.Submissions++
	}
	return nil
}

type Swapchain struct {
	dev           *Device
	images        int
	width, height uint32
	next          uint32
	acquire       []*Semaphore
	// held marks images acquired and not yet presented.
	held []bool

	// OutOfDate fails acquires with core.ErrSurfaceOutOfDate while set.
	OutOfDate bool
	// PresentOutOfDate fails presents with core.ErrSurfaceOutOfDate while set.
	PresentOutOfDate bool
	AcquireErr       error
	Presented        []uint32
}

func NewSwapchain(dev *Device, images int, width, height uint32) *Swapchain {
	sc := &Swapchain{dev: dev, images: images, width: width, height: height}
	for i := 0; i < images; i++ {
		sc.acquire = append(sc.acquire, &Semaphore{dev: dev})
	}
	sc.held = make([]bool, images)
	return sc
}

func (s *Swapchain) AcquireNextImage(timeoutNs uint64) (uint32, rhi.Semaphore, error) {
	if s.OutOfDate {
		return 0, nil, errors.Wrap(core.ErrSurfaceOutOfDate, "acquire next image")
	}
	if s.AcquireErr != nil {
		return 0, nil, s.AcquireErr
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(s.images)
	if s.held[idx] {
		s.dev.violate("image %d acquired again before it was presented", idx)
	}
	sem := s.acquire[idx]
	if sem.signaled {
		s.dev.violate("acquire signals semaphore of image %d that is still signaled", idx)
	}
	sem.signaled = true
	s.held[idx] = true
	return idx, sem, nil
}

func (s *Swapchain) Present(imageIndex uint32, wait rhi.Semaphore) error {
	if wait != nil {
		sem := wait.(*Semaphore)
		if !sem.signaled {
			s.dev.violate("present waits on a semaphore nothing signals")
		}
		sem.signaled = false
	}
	if int(imageIndex) >= s.images || !s.held[imageIndex] {
		s.dev.violate("present of image %d that was not acquired", imageIndex)
	} else {
		s.held[imageIndex] = false
	}
	s.Presented = append(s.Presented, imageIndex)
	if s.PresentOutOfDate {
		return errors.Wrap(core.ErrSurfaceOutOfDate, "present")
	}
	return nil
}

func (s *Swapchain) ImageCount() int {
	return s.images
}

func (s *Swapchain) Width() uint32 {
	return s.width
}

func (s *Swapchain) Height() uint32 {
	return s.height
}
