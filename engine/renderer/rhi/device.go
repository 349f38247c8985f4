package rhi

import "math"

// InfiniteTimeout makes a wait block until the fence signals.
const InfiniteTimeout uint64 = math.MaxUint64

// Limits is the snapshot of device limits the frame layer depends on.
type Limits struct {
	// MinUniformBufferOffsetAlignment is the required alignment of dynamic
	// uniform buffer offsets.
	MinUniformBufferOffsetAlignment uint64
	// NonCoherentAtomSize is the granularity of mapped range flushes.
	NonCoherentAtomSize uint64
}

type BufferUsage int

const (
	BufferUsageUniform BufferUsage = iota
	BufferUsageVertex
	BufferUsageIndex
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageUniform:
		return "uniform"
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	}
	return "unknown"
}

type IndexType int

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type VertexFormat int

const (
	VertexFormatFloat3 VertexFormat = iota
	VertexFormatFloat4
)

type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// PipelineDesc is everything a backend needs to build the graphics pipeline
// of a render mode. Viewport and scissor are dynamic state.
type PipelineDesc struct {
	Name           string
	VertexShader   []byte
	FragmentShader []byte
	VertexStride   uint32
	Attributes     []VertexAttribute
	// DynamicUniform selects a dynamic uniform buffer binding, addressed by
	// per-draw offsets, instead of a plain uniform buffer.
	DynamicUniform bool
}

type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Device is the owner of every native object the frame layer creates.
type Device interface {
	Limits() Limits
	CreateFence(signaled bool) (DeviceFence, error)
	CreateSemaphore() (Semaphore, error)
	CreateBuffer(usage BufferUsage, size uint64) (DeviceBuffer, error)
	AllocateCommandBuffer() (CommandBuffer, error)
	CreatePipeline(desc *PipelineDesc) (Pipeline, error)
	// CreateDescriptorSet binds rangeSize bytes of buffer at binding 0 of the
	// pipeline's uniform set.
	CreateDescriptorSet(pipeline Pipeline, buffer DeviceBuffer, rangeSize uint64) (DescriptorSet, error)
	WaitIdle() error
}

// DeviceFence is a native host-observable completion signal.
type DeviceFence interface {
	// Wait returns true when the fence signaled within the timeout.
	Wait(timeoutNs uint64) (bool, error)
	Reset() error
	Destroy()
}

// Semaphore orders two device operations. The host never observes it.
type Semaphore interface {
	Destroy()
}

// DeviceBuffer is a host visible device allocation.
type DeviceBuffer interface {
	Size() uint64
	Map() ([]byte, error)
	Unmap()
	Flush(offset, size uint64) error
	Destroy()
}

type CommandBuffer interface {
	Reset() error
	Begin() error
	End() error
	BeginRenderPass(framebuffer int, clear ClearValues)
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(width, height uint32)
	BindPipeline(pipeline Pipeline)
	BindVertexBuffer(buffer DeviceBuffer)
	BindIndexBuffer(buffer DeviceBuffer, indexType IndexType)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet, dynamicOffsets ...uint32)
	DrawIndexed(indexCount uint32)
	Free()
}

type Pipeline interface {
	Destroy()
}

type DescriptorSet interface {
	Destroy()
}

// Queue accepts recorded command buffers. wait may be nil. A nil cmd submits a
// batch that only waits on wait and signals signal.
type Queue interface {
	Submit(cmd CommandBuffer, wait Semaphore, signal Semaphore, fence DeviceFence) error
}

type Swapchain interface {
	// AcquireNextImage returns the index of the next presentable image and the
	// semaphore signaled once the image is ready to be rendered to.
	AcquireNextImage(timeoutNs uint64) (uint32, Semaphore, error)
	Present(imageIndex uint32, wait Semaphore) error
	ImageCount() int
	Width() uint32
	Height() uint32
}
