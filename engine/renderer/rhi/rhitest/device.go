// Package rhitest provides an in-memory rhi device for tests. The fake device
// plays the role of the GPU: submitted work completes when the host waits on
// its fence with a non-zero timeout, when WaitIdle is called, or on
// CompleteAll. Every protocol violation it observes, such as a host write to a
// buffer the device is reading, is recorded in Violations.
package rhitest

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

// Counts is the number of live objects of each kind.
type Counts struct {
	Fences         int
	Semaphores     int
	Buffers        int
	CommandBuffers int
	Pipelines      int
	DescriptorSets int
}

type Device struct {
	limits rhi.Limits

	// MaxFences makes CreateFence fail while this many fences are alive.
	MaxFences int
	// FailBufferAfter makes CreateBuffer fail once this many buffers were
	// created. Negative disables it.
	FailBufferAfter int
	// Hung keeps submitted work from ever completing.
	Hung bool
	// WaitErr is returned by fence waits that do not complete.
	WaitErr error

	Violations []string
	WaitIdles  int

	live           Counts
	createdBuffers int
	pending        []*submission
	queue          *Queue
}

func NewDevice(minUniformAlignment uint64) *Device {
	d := &Device{
		limits: rhi.Limits{
			MinUniformBufferOffsetAlignment: minUniformAlignment,
			NonCoherentAtomSize:             64,
		},
		FailBufferAfter: -1,
	}
	d.queue = &Queue{dev: d}
	return d
}

func (d *Device) violate(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// AssertClean fails the test if a protocol violation was recorded.
func (d *Device) AssertClean(t testing.TB) {
	t.Helper()
	for _, v := range d.Violations {
		t.Errorf("device protocol violation: %s", v)
	}
}

// Live returns the number of objects created and not yet destroyed.
func (d *Device) Live() Counts {
	return d.live
}

func (d *Device) Queue() *Queue {
	return d.queue
}

func (d *Device) Limits() rhi.Limits {
	return d.limits
}

func (d *Device) CreateFence(signaled bool) (rhi.DeviceFence, error) {
	if d.MaxFences > 0 && d.live.Fences >= d.MaxFences {
		return nil, errors.Newf("fence limit of %d reached", d.MaxFences)
	}
	d.live.Fences++
	return &Fence{dev: d, signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (rhi.Semaphore, error) {
	d.live.Semaphores++
	return &Semaphore{dev: d}, nil
}

func (d *Device) CreateBuffer(usage rhi.BufferUsage, size uint64) (rhi.DeviceBuffer, error) {
	if d.FailBufferAfter >= 0 && d.createdBuffers >= d.FailBufferAfter {
		return nil, errors.Newf("out of device memory allocating %d bytes", size)
	}
	d.createdBuffers++
	d.live.Buffers++
	return &Buffer{dev: d, Usage: usage, data: make([]byte, size)}, nil
}

func (d *Device) AllocateCommandBuffer() (rhi.CommandBuffer, error) {
	d.live.CommandBuffers++
	return &CommandBuffer{dev: d}, nil
}

func (d *Device) CreatePipeline(desc *rhi.PipelineDesc) (rhi.Pipeline, error) {
	if len(desc.VertexShader) == 0 || len(desc.FragmentShader) == 0 {
		return nil, errors.Newf("pipeline %q without shader code", desc.Name)
	}
	d.live.Pipelines++
	return &Pipeline{dev: d, Desc: *desc}, nil
}

func (d *Device) CreateDescriptorSet(pipeline rhi.Pipeline, buffer rhi.DeviceBuffer, rangeSize uint64) (rhi.DescriptorSet, error) {
	p := pipeline.(*Pipeline)
	b := buffer.(*Buffer)
	if p.destroyed || b.destroyed {
		d.violate("descriptor set created from a destroyed object")
	}
	if rangeSize > uint64(len(b.data)) {
		return nil, errors.Newf("descriptor range %d larger than buffer of %d bytes", rangeSize, len(b.data))
	}
	d.live.DescriptorSets++
	return &DescriptorSet{dev: d, Buffer: b, Range: rangeSize, Dynamic: p.Desc.DynamicUniform}, nil
}

func (d *Device) WaitIdle() error {
	d.WaitIdles++
	if d.Hung {
		return errors.Mark(errors.New("device hung"), core.ErrDeviceLost)
	}
	d.CompleteAll()
	return nil
}

// CompleteAll finishes every submission still executing.
func (d *Device) CompleteAll() {
	for _, s := range d.pending {
		d.complete(s)
	}
	d.pending = nil
}

// InFlight is the number of submissions not yet complete.
func (d *Device) InFlight() int {
	n := 0
	for _, s := range d.pending {
		if !s.done {
			n++
		}
	}
	return n
}

type submission struct {
	fence   *Fence
	cmd     *CommandBuffer
	buffers []*Buffer
	done    bool
}

func (d *Device) complete(s *submission) {
	if s.done {
		return
	}
	s.done = true
	for _, b := range s.buffers {
		b.inFlight--
	}
	if s.cmd != nil {
		s.cmd.inFlight = nil
	}
	if s.fence != nil {
		s.fence.signaled = true
		s.fence.pending = nil
	}
}
