package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanDescriptorSet is a uniform descriptor set allocated from a pool of
// its own, so destroying one never touches the sets of another frame slot.
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Pool   vk.DescriptorPool

	context *VulkanContext
}

func NewDescriptorSet(context *VulkanContext, pipeline *VulkanPipeline, buffer *VulkanBuffer, rangeSize uint64) (*VulkanDescriptorSet, error) {
	device := context.Device.LogicalDevice

	poolSizes := []vk.DescriptorPoolSize{{
		Type:            pipeline.DescriptorType,
		DescriptorCount: 1,
	}}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       1,
	}
	var pool vk.DescriptorPool
	if err := resultError(vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	outSet := &VulkanDescriptorSet{Pool: pool, context: context}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{pipeline.DescriptorSetLayout},
	}
	var set vk.DescriptorSet
	if err := resultError(vk.AllocateDescriptorSets(device, &allocInfo, &set), "vkAllocateDescriptorSets"); err != nil {
		outSet.Destroy()
		return nil, err
	}
	outSet.Handle = set

	// For a dynamic binding the range is one record, the offset is supplied
	// at bind time.
	bufferInfo := vk.DescriptorBufferInfo{
		Buffer: buffer.Handle,
		Offset: 0,
		Range:  vk.DeviceSize(rangeSize),
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorType:  pipeline.DescriptorType,
		DescriptorCount: 1,
		PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
	}
	vk.UpdateDescriptorSets(device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return outSet, nil
}

// Destroy frees the set along with its pool.
func (s *VulkanDescriptorSet) Destroy() {
	if s.Pool != nil {
		vk.DestroyDescriptorPool(s.context.Device.LogicalDevice, s.Pool, s.context.Allocator)
		s.Pool = nil
	}
	s.Handle = nil
}
