package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	context *VulkanContext
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := resultError(vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle:  handles[0],
		State:   COMMAND_BUFFER_STATE_READY,
		context: context,
	}, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	device := v.context.Device
	vk.FreeCommandBuffers(device.LogicalDevice, device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := resultError(vk.ResetCommandBuffer(v.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := resultError(vk.BeginCommandBuffer(v.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := resultError(vk.EndCommandBuffer(v.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// BeginRenderPass starts the main renderpass on the framebuffer of the given
// swapchain image.
func (v *VulkanCommandBuffer) BeginRenderPass(framebuffer int, clear rhi.ClearValues) {
	swapchain := v.context.Swapchain
	v.context.MainRenderpass.RenderpassBegin(v, swapchain.Framebuffers[framebuffer].Handle, swapchain.Extent.Width, swapchain.Extent.Height, clear)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	v.context.MainRenderpass.RenderpassEnd(v)
}

func (v *VulkanCommandBuffer) SetViewport(viewport rhi.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(width, height uint32) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline rhi.Pipeline) {
	pipeline.(*VulkanPipeline).Bind(v, vk.PipelineBindPointGraphics)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer rhi.DeviceBuffer) {
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{buffer.(*VulkanBuffer).Handle}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer rhi.DeviceBuffer, indexType rhi.IndexType) {
	vkType := vk.IndexTypeUint16
	if indexType == rhi.IndexTypeUint32 {
		vkType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(v.Handle, buffer.(*VulkanBuffer).Handle, 0, vkType)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline rhi.Pipeline, set rhi.DescriptorSet, dynamicOffsets ...uint32) {
	vk.CmdBindDescriptorSets(
		v.Handle,
		vk.PipelineBindPointGraphics,
		pipeline.(*VulkanPipeline).PipelineLayout,
		0,
		1,
		[]vk.DescriptorSet{set.(*VulkanDescriptorSet).Handle},
		uint32(len(dynamicOffsets)),
		dynamicOffsets,
	)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, 1, 0, 0, 0)
}

// AllocateAndBeginSingleUse allocates a command buffer from the graphics pool
// and starts recording it for a single submission.
func AllocateAndBeginSingleUse(context *VulkanContext) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError(vk.BeginCommandBuffer(cb.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		cb.Free()
		return nil, err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return cb, nil
}

// EndSingleUse ends recording, submits, waits for the graphics queue to drain
// and frees the command buffer.
func (v *VulkanCommandBuffer) EndSingleUse() error {
	defer v.Free()
	if err := v.End(); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	queue := v.context.Device.GraphicsQueue
	if err := resultError(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.Fence(vk.NullHandle)), "vkQueueSubmit"); err != nil {
		return err
	}
	return resultError(vk.QueueWaitIdle(queue), "vkQueueWaitIdle")
}
