package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/core"
	mmath "github.com/spaghettifunk/monkey/engine/math"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// VulkanSwapchain owns the presentable images, their views, the shared depth
// attachment and one framebuffer per image.
type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer

	// Acquire semaphores rotate independently of image indices since the
	// index is only known once the acquire returned.
	imageAvailable []*VulkanSemaphore
	nextSemaphore  int
	vsync          bool

	context *VulkanContext
}

func SwapchainCreate(context *VulkanContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{context: context, vsync: vsync}
	if err := swapchain.create(width, height, nil); err != nil {
		swapchain.destroy()
		return nil, err
	}
	return swapchain, nil
}

// SwapchainRecreate rebuilds the swapchain for a new surface size. The device
// must be idle.
func (vs *VulkanSwapchain) SwapchainRecreate(width, height uint32) error {
	if err := DeviceQuerySwapchainSupport(vs.context.Device.PhysicalDevice, vs.context.Surface, &vs.context.Device.SwapchainSupport); err != nil {
		return err
	}
	old := vs.Handle
	vs.Handle = nil
	vs.destroyImageResources()
	err := vs.create(width, height, old)
	vk.DestroySwapchain(vs.context.Device.LogicalDevice, old, vs.context.Allocator)
	return err
}

func (vs *VulkanSwapchain) SwapchainDestroy() {
	vs.destroy()
}

func (vs *VulkanSwapchain) AcquireNextImage(timeoutNs uint64) (uint32, rhi.Semaphore, error) {
	semaphore := vs.imageAvailable[vs.nextSemaphore]
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, timeoutNs, semaphore.Handle, vk.Fence(vk.NullHandle), &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		vs.nextSemaphore = (vs.nextSemaphore + 1) % len(vs.imageAvailable)
		return imageIndex, semaphore, nil
	case vk.ErrorOutOfDate:
		return 0, nil, core.ErrSurfaceOutOfDate
	case vk.Timeout, vk.NotReady:
		return 0, nil, errors.Wrapf(core.ErrTimedOut, "acquire timed out after %dns", timeoutNs)
	}
	return 0, nil, resultError(result, "vkAcquireNextImageKHR")
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait rhi.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{wait.(*VulkanSemaphore).Handle}
	}

	result := vk.QueuePresent(vs.context.Device.PresentQueue, &presentInfo)
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// The image was queued but the swapchain no longer matches the surface.
		return core.ErrSurfaceOutOfDate
	}
	return resultError(result, "vkQueuePresentKHR")
}

func (vs *VulkanSwapchain) ImageCount() int {
	return len(vs.Images)
}

func (vs *VulkanSwapchain) Width() uint32 {
	return vs.Extent.Width
}

func (vs *VulkanSwapchain) Height() uint32 {
	return vs.Extent.Height
}

func (vs *VulkanSwapchain) create(width, height uint32, old vk.Swapchain) error {
	context := vs.context
	support := &context.Device.SwapchainSupport
	device := context.Device.LogicalDevice

	// Choose a swap surface format.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !vs.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	extent.Width = mmath.Clamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = mmath.Clamp(extent.Height, minExtent.Height, maxExtent.Height)
	vs.Extent = extent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	}

	var handle vk.Swapchain
	if err := resultError(vk.CreateSwapchain(device, &swapchainCreateInfo, context.Allocator, &handle), "vkCreateSwapchainKHR"); err != nil {
		return err
	}
	vs.Handle = handle

	var count uint32
	if err := resultError(vk.GetSwapchainImages(device, handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	vs.Images = make([]vk.Image, count)
	if err := resultError(vk.GetSwapchainImages(device, handle, &count, vs.Images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}

	vs.Views = make([]vk.ImageView, 0, count)
	for _, image := range vs.Images {
		view, err := createImageView(context, image, vs.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		vs.Views = append(vs.Views, view)
	}

	if err := vs.transitionToPresent(); err != nil {
		return err
	}

	depthAttachment, err := ImageCreate(
		context,
		extent.Width,
		extent.Height,
		context.Device.DepthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return err
	}
	vs.DepthAttachment = depthAttachment

	if context.MainRenderpass != nil {
		if err := vs.RegenerateFramebuffers(context.MainRenderpass); err != nil {
			return err
		}
	}

	// One more semaphore than images keeps a free one for the next acquire.
	for len(vs.imageAvailable) < len(vs.Images)+1 {
		semaphore, err := NewSemaphore(context)
		if err != nil {
			return err
		}
		vs.imageAvailable = append(vs.imageAvailable, semaphore)
	}

	core.LogInfo("Swapchain created: %d images of %dx%d.", count, extent.Width, extent.Height)
	return nil
}

// transitionToPresent moves every new image to the present layout, so an
// image released by an aborted frame can be presented without being drawn.
func (vs *VulkanSwapchain) transitionToPresent() error {
	cb, err := AllocateAndBeginSingleUse(vs.context)
	if err != nil {
		return err
	}
	barriers := make([]vk.ImageMemoryBarrier, 0, len(vs.Images))
	for _, image := range vs.Images {
		barriers = append(barriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           vk.ImageLayoutUndefined,
			NewLayout:           vk.ImageLayoutPresentSrc,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil,
		uint32(len(barriers)), barriers)
	return cb.EndSingleUse()
}

// RegenerateFramebuffers creates one framebuffer per swapchain image sharing
// the depth attachment.
func (vs *VulkanSwapchain) RegenerateFramebuffers(renderpass *VulkanRenderpass) error {
	vs.destroyFramebuffers()
	vs.Framebuffers = make([]*VulkanFramebuffer, 0, len(vs.Views))
	for _, view := range vs.Views {
		attachments := []vk.ImageView{view, vs.DepthAttachment.View}
		framebuffer, err := FramebufferCreate(vs.context, renderpass, vs.Extent.Width, vs.Extent.Height, attachments)
		if err != nil {
			return err
		}
		vs.Framebuffers = append(vs.Framebuffers, framebuffer)
	}
	return nil
}

func (vs *VulkanSwapchain) destroyFramebuffers() {
	for _, framebuffer := range vs.Framebuffers {
		framebuffer.Destroy(vs.context)
	}
	vs.Framebuffers = nil
}

// destroyImageResources releases everything tied to the current images. The
// images themselves belong to the swapchain handle.
func (vs *VulkanSwapchain) destroyImageResources() {
	vs.destroyFramebuffers()
	if vs.DepthAttachment != nil {
		vs.DepthAttachment.ImageDestroy(vs.context)
		vs.DepthAttachment = nil
	}
	for _, view := range vs.Views {
		vk.DestroyImageView(vs.context.Device.LogicalDevice, view, vs.context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil
}

func (vs *VulkanSwapchain) destroy() {
	vs.destroyImageResources()
	for _, semaphore := range vs.imageAvailable {
		semaphore.Destroy()
	}
	vs.imageAvailable = nil
	if vs.Handle != nil {
		vk.DestroySwapchain(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = nil
	}
}
