package rhi

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/math"
)

// Record is a fixed size value stored in one instance slice.
type Record interface {
	RecordSize() int
	Encode(dst []byte)
}

// FlushRange widens [offset, offset+size) to whole non coherent atoms without
// passing the end of a mapping of mappedSize bytes. A range clamped to the end
// stays valid because flushes may always end at the end of the allocation.
func FlushRange(offset, size, atom, mappedSize uint64) (start, length uint64) {
	if atom == 0 {
		atom = 1
	}
	start = offset / atom * atom
	end := math.Align(offset+size, atom)
	if end > mappedSize {
		end = mappedSize
	}
	if start >= end {
		return end, 0
	}
	return start, end - start
}

// RawRecord is a Record made of already encoded bytes.
type RawRecord []byte

func (r RawRecord) RecordSize() int {
	return len(r)
}

func (r RawRecord) Encode(dst []byte) {
	copy(dst, r)
}

// ComputeStride is the distance between two instance slices.
func ComputeStride(recordSize, minAlignment uint64) uint64 {
	return math.Align(recordSize, minAlignment)
}

// AlignedBuffer is one device buffer split into equally sized slices, one per
// instance. Writes land in a host mirror and reach the device on Flush.
type AlignedBuffer struct {
	native     DeviceBuffer
	usage      BufferUsage
	recordSize uint64
	stride     uint64
	count      int
	mirror     []byte
	// guard rejects host writes while the device may read the buffer.
	guard func() error
}

// NewAlignedBuffer reads the device limits once and allocates
// stride*instanceCount bytes. Only uniform buffers are padded to the dynamic
// offset alignment.
func NewAlignedBuffer(device Device, usage BufferUsage, recordSize uint64, instanceCount int) (*AlignedBuffer, error) {
	if recordSize == 0 || instanceCount <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidState, "aligned buffer of %d records of %d bytes", instanceCount, recordSize)
	}

	alignment := uint64(1)
	if usage == BufferUsageUniform {
		alignment = device.Limits().MinUniformBufferOffsetAlignment
	}
	stride := ComputeStride(recordSize, alignment)
	size := stride * uint64(instanceCount)

	native, err := device.CreateBuffer(usage, size)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create %s buffer of %d bytes", usage, size), core.ErrResourceExhausted)
	}
	return &AlignedBuffer{
		native:     native,
		usage:      usage,
		recordSize: recordSize,
		stride:     stride,
		count:      instanceCount,
		mirror:     make([]byte, size),
	}, nil
}

func (b *AlignedBuffer) checkWritable() error {
	if b.native == nil {
		return errors.Wrap(core.ErrInvalidState, "aligned buffer already destroyed")
	}
	if b.guard != nil {
		return b.guard()
	}
	return nil
}

func (b *AlignedBuffer) checkIndex(index int) error {
	if index < 0 || index >= b.count {
		return errors.Wrapf(core.ErrOutOfBounds, "instance %d of %d", index, b.count)
	}
	return nil
}

// WriteInstance copies record into the mirror at [index*stride, index*stride+recordSize).
func (b *AlignedBuffer) WriteInstance(index int, record Record) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if err := b.checkIndex(index); err != nil {
		return err
	}
	if uint64(record.RecordSize()) != b.recordSize {
		return errors.Wrapf(core.ErrInvalidState, "record of %d bytes in a buffer of %d byte records", record.RecordSize(), b.recordSize)
	}
	offset := uint64(index) * b.stride
	record.Encode(b.mirror[offset : offset+b.recordSize])
	return nil
}

// ReadInstance returns a copy of the mirrored bytes of one instance.
func (b *AlignedBuffer) ReadInstance(index int) ([]byte, error) {
	if err := b.checkIndex(index); err != nil {
		return nil, err
	}
	offset := uint64(index) * b.stride
	out := make([]byte, b.recordSize)
	copy(out, b.mirror[offset:offset+b.recordSize])
	return out, nil
}

// DynamicOffset is the per draw offset addressing one instance.
func (b *AlignedBuffer) DynamicOffset(index int) (uint32, error) {
	if err := b.checkIndex(index); err != nil {
		return 0, err
	}
	return uint32(uint64(index) * b.stride), nil
}

// Flush pushes the whole mirror to the device: one map, one copy, one flush.
func (b *AlignedBuffer) Flush() error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	mapped, err := b.native.Map()
	if err != nil {
		return errors.Wrap(err, "map aligned buffer")
	}
	defer b.native.Unmap()

	copy(mapped, b.mirror)
	if err := b.native.Flush(0, uint64(len(b.mirror))); err != nil {
		return errors.Wrap(err, "flush aligned buffer")
	}
	return nil
}

// Native is the device buffer, for descriptor and vertex bindings.
func (b *AlignedBuffer) Native() DeviceBuffer {
	return b.native
}

func (b *AlignedBuffer) Usage() BufferUsage {
	return b.usage
}

func (b *AlignedBuffer) Stride() uint64 {
	return b.stride
}

func (b *AlignedBuffer) RecordSize() uint64 {
	return b.recordSize
}

func (b *AlignedBuffer) Count() int {
	return b.count
}

func (b *AlignedBuffer) Size() uint64 {
	return b.stride * uint64(b.count)
}

// Destroy frees the device buffer. Calling it again does nothing.
func (b *AlignedBuffer) Destroy() {
	if b.native == nil {
		return
	}
	b.native.Destroy()
	b.native = nil
	b.mirror = nil
}
