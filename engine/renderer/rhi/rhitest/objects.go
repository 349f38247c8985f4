package rhitest

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type Fence struct {
	dev       *Device
	signaled  bool
	pending   *submission
	destroyed bool
	Waits     int
}

func (f *Fence) Wait(timeoutNs uint64) (bool, error) {
	f.Waits++
	if f.destroyed {
		f.dev.violate("wait on a destroyed fence")
		return false, errors.New("fence destroyed")
	}
	if f.signaled {
		return true, nil
	}
	if f.pending != nil && !f.dev.Hung && timeoutNs > 0 {
		f.dev.complete(f.pending)
		return true, nil
	}
	return false, f.dev.WaitErr
}

func (f *Fence) Reset() error {
	if f.pending != nil {
		f.dev.violate("reset of a fence the queue still signals")
	}
	f.signaled = false
	return nil
}

func (f *Fence) Destroy() {
	if f.destroyed {
		f.dev.violate("fence destroyed twice")
		return
	}
	if f.pending != nil {
		f.dev.violate("destroy of a fence the queue still signals")
	}
	f.destroyed = true
	f.dev.live.Fences--
}

func (f *Fence) Signaled() bool {
	return f.signaled
}

type Semaphore struct {
	dev       *Device
	signaled  bool
	destroyed bool
}

func (s *Semaphore) Destroy() {
	if s.destroyed {
		s.dev.violate("semaphore destroyed twice")
		return
	}
	s.destroyed = true
	s.dev.live.Semaphores--
}

type Buffer struct {
	dev       *Device
	Usage     rhi.BufferUsage
	data      []byte
	mapped    bool
	inFlight  int
	destroyed bool

	Maps        int
	Flushes     int
	FlushRanges [][2]uint64
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *Buffer) Map() ([]byte, error) {
	if b.destroyed {
		b.dev.violate("map of a destroyed buffer")
		return nil, errors.New("buffer destroyed")
	}
	if b.inFlight > 0 {
		b.dev.violate("host write to a %s buffer the device is reading", b.Usage)
	}
	if b.mapped {
		b.dev.violate("buffer mapped twice")
	}
	b.mapped = true
	b.Maps++
	return b.data, nil
}

func (b *Buffer) Unmap() {
	b.mapped = false
}

func (b *Buffer) Flush(offset, size uint64) error {
	if !b.mapped {
		b.dev.violate("flush of an unmapped buffer")
	}
	if offset+size > uint64(len(b.data)) {
		return errors.Newf("flush range [%d, %d) outside buffer of %d bytes", offset, offset+size, len(b.data))
	}
	b.Flushes++
	b.FlushRanges = append(b.FlushRanges, [2]uint64{offset, size})
	return nil
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		b.dev.violate("buffer destroyed twice")
		return
	}
	if b.inFlight > 0 {
		b.dev.violate("destroy of a %s buffer the device is reading", b.Usage)
	}
	b.destroyed = true
	b.dev.live.Buffers--
}

// Bytes returns what the device would read.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}

type Pipeline struct {
	dev       *Device
	Desc      rhi.PipelineDesc
	destroyed bool
}

func (p *Pipeline) Destroy() {
	if p.destroyed {
		p.dev.violate("pipeline destroyed twice")
		return
	}
	p.destroyed = true
	p.dev.live.Pipelines--
}

type DescriptorSet struct {
	dev       *Device
	Buffer    *Buffer
	Range     uint64
	Dynamic   bool
	destroyed bool
}

func (s *DescriptorSet) Destroy() {
	if s.destroyed {
		s.dev.violate("descriptor set destroyed twice")
		return
	}
	s.destroyed = true
	s.dev.live.DescriptorSets--
}
