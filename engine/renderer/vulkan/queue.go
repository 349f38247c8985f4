package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

// VulkanQueue submits to the graphics queue.
type VulkanQueue struct {
	context *VulkanContext
}

func (q *VulkanQueue) Submit(cmd rhi.CommandBuffer, wait rhi.Semaphore, signal rhi.Semaphore, fence rhi.DeviceFence) error {
	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}
	// without a command buffer the batch only waits and signals
	var commandBuffer *VulkanCommandBuffer
	if cmd != nil {
		commandBuffer = cmd.(*VulkanCommandBuffer)
		submitInfo.CommandBufferCount = 1
		submitInfo.PCommandBuffers = []vk.CommandBuffer{commandBuffer.Handle}
	}
	if wait != nil {
		// Each semaphore waits on the corresponding pipeline stage to complete.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{wait.(*VulkanSemaphore).Handle}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if signal != nil {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{signal.(*VulkanSemaphore).Handle}
	}

	nativeFence := vk.Fence(vk.NullHandle)
	if fence != nil {
		nativeFence = fence.(*VulkanFence).Handle
	}

	if err := resultError(vk.QueueSubmit(q.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, nativeFence), "vkQueueSubmit"); err != nil {
		return err
	}
	if commandBuffer != nil {
		commandBuffer.UpdateSubmitted()
	}
	return nil
}
