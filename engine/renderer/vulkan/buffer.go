package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

// VulkanBuffer is a host visible buffer. When the memory type picked is not
// host coherent, writes are flushed explicitly.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Usage  rhi.BufferUsage

	size      uint64
	allocSize uint64
	coherent  bool
	mapped    []byte
	context   *VulkanContext
}

func bufferUsageFlags(usage rhi.BufferUsage) vk.BufferUsageFlags {
	switch usage {
	case rhi.BufferUsageVertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	case rhi.BufferUsageIndex:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
}

func NewBuffer(context *VulkanContext, usage rhi.BufferUsage, size uint64) (*VulkanBuffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	device := context.Device.LogicalDevice
	var handle vk.Buffer
	if err := resultError(vk.CreateBuffer(device, &bufferInfo, context.Allocator, &handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, handle, &requirements)
	requirements.Deref()

	coherent := false
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	memoryIndex, err := context.FindMemoryIndex(requirements.MemoryTypeBits, hostVisible)
	if err != nil {
		vk.DestroyBuffer(device, handle, context.Allocator)
		return nil, err
	}
	if context.Device.Memory.MemoryTypes[memoryIndex].PropertyFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		coherent = true
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	var memory vk.DeviceMemory
	if err := resultError(vk.AllocateMemory(device, &allocInfo, context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		vk.DestroyBuffer(device, handle, context.Allocator)
		return nil, err
	}

	if err := resultError(vk.BindBufferMemory(device, handle, memory, 0), "vkBindBufferMemory"); err != nil {
		vk.FreeMemory(device, memory, context.Allocator)
		vk.DestroyBuffer(device, handle, context.Allocator)
		return nil, err
	}

	core.LogDebug("created %s buffer of %d bytes (coherent: %t)", usage, size, coherent)
	return &VulkanBuffer{
		Handle:    handle,
		Memory:    memory,
		Usage:     usage,
		size:      size,
		allocSize: uint64(requirements.Size),
		coherent:  coherent,
		context:   context,
	}, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return nil, errors.Wrap(core.ErrInvalidState, "buffer is already mapped")
	}
	// the whole allocation is mapped so atom aligned flushes stay inside it
	var data unsafe.Pointer
	if err := resultError(vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.allocSize), 0, &data), "vkMapMemory"); err != nil {
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(data), b.allocSize)[:b.size:b.size]
	return b.mapped, nil
}

func (b *VulkanBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	b.mapped = nil
}

// Flush makes host writes in [offset, offset+size) visible to the device.
// The range is widened to the non coherent atom size.
func (b *VulkanBuffer) Flush(offset, size uint64) error {
	if b.mapped == nil {
		return errors.Wrap(core.ErrInvalidState, "flush of an unmapped buffer")
	}
	if b.coherent {
		return nil
	}
	start, length := rhi.FlushRange(offset, size, b.context.Device.Limits.NonCoherentAtomSize, b.allocSize)
	if length == 0 {
		return nil
	}
	memoryRange := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Memory,
		Offset: vk.DeviceSize(start),
		Size:   vk.DeviceSize(length),
	}
	return resultError(vk.FlushMappedMemoryRanges(b.context.Device.LogicalDevice, 1, []vk.MappedMemoryRange{memoryRange}), "vkFlushMappedMemoryRanges")
}

func (b *VulkanBuffer) Destroy() {
	device := b.context.Device.LogicalDevice
	b.Unmap()
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = nil
	}
}
