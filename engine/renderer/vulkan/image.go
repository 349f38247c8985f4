package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

// ImageCreate creates a device local 2D image and, when createView is set,
// a view over the given aspect.
func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, createView bool, aspect vk.ImageAspectFlags) (*VulkanImage, error) {
	device := context.Device.LogicalDevice
	outImage := &VulkanImage{
		Width:  width,
		Height: height,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if err := resultError(vk.CreateImage(device, &imageCreateInfo, context.Allocator, &handle), "vkCreateImage"); err != nil {
		return nil, err
	}
	outImage.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, handle, &requirements)
	requirements.Deref()

	memoryIndex, err := context.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		outImage.ImageDestroy(context)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	var memory vk.DeviceMemory
	if err := resultError(vk.AllocateMemory(device, &allocInfo, context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		outImage.ImageDestroy(context)
		return nil, err
	}
	outImage.Memory = memory

	if err := resultError(vk.BindImageMemory(device, handle, memory, 0), "vkBindImageMemory"); err != nil {
		outImage.ImageDestroy(context)
		return nil, err
	}

	if createView {
		view, err := createImageView(context, handle, format, aspect)
		if err != nil {
			outImage.ImageDestroy(context)
			return nil, err
		}
		outImage.View = view
	}
	return outImage, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := resultError(vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
		return nil, err
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.View != nil {
		vk.DestroyImageView(device, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(device, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}
