package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/core"
)

// VulkanFence is the native side of an rhi fence. Bookkeeping of the
// signaled state lives in the fence manager, this type only talks to the
// driver.
type VulkanFence struct {
	Handle  vk.Fence
	context *VulkanContext
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if err := resultError(vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return &VulkanFence{Handle: handle, context: context}, nil
}

func (vf *VulkanFence) Wait(timeoutNs uint64) (bool, error) {
	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		core.LogDebug("vk_fence_wait - Timed out")
		return false, nil
	}
	return false, resultError(result, "vkWaitForFences")
}

func (vf *VulkanFence) Reset() error {
	return resultError(vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences")
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = nil
	}
}

type VulkanSemaphore struct {
	Handle  vk.Semaphore
	context *VulkanContext
}

func NewSemaphore(context *VulkanContext) (*VulkanSemaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := resultError(vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &handle), "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return &VulkanSemaphore{Handle: handle, context: context}, nil
}

func (vs *VulkanSemaphore) Destroy() {
	if vs.Handle != nil {
		vk.DestroySemaphore(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = nil
	}
}
