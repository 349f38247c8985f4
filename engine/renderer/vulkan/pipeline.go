package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

// VulkanPipeline holds a graphics pipeline, its layout and the layout of the
// single uniform descriptor set it reads.
type VulkanPipeline struct {
	Handle              vk.Pipeline
	PipelineLayout      vk.PipelineLayout
	DescriptorSetLayout vk.DescriptorSetLayout
	// DescriptorType is the uniform binding type, dynamic or not.
	DescriptorType vk.DescriptorType
	Name           string

	context *VulkanContext
}

func vertexFormat(format rhi.VertexFormat) vk.Format {
	if format == rhi.VertexFormatFloat4 {
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatR32g32b32Sfloat
}

func NewGraphicsPipeline(context *VulkanContext, desc *rhi.PipelineDesc) (*VulkanPipeline, error) {
	device := context.Device.LogicalDevice
	outPipeline := &VulkanPipeline{
		Name:           desc.Name,
		DescriptorType: vk.DescriptorTypeUniformBuffer,
		context:        context,
	}
	if desc.DynamicUniform {
		outPipeline.DescriptorType = vk.DescriptorTypeUniformBufferDynamic
	}

	vertexStage, err := NewShaderStage(context, desc.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	defer vertexStage.Destroy(context)
	fragmentStage, err := NewShaderStage(context, desc.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, err
	}
	defer fragmentStage.Destroy(context)

	// Binding 0 carries the MVP uniform read by the vertex stage.
	layoutBindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  outPipeline.DescriptorType,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := resultError(vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &setLayout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	outPipeline.DescriptorSetLayout = setLayout

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}
	var pipelineLayout vk.PipelineLayout
	if err := resultError(vk.CreatePipelineLayout(device, &pipelineLayoutCreateInfo, context.Allocator, &pipelineLayout), "vkCreatePipelineLayout"); err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	outPipeline.PipelineLayout = pipelineLayout

	// Viewport and scissor are set per frame, so only counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLessOrEqual,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    desc.VertexStride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, attribute := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: attribute.Location,
			Format:   vertexFormat(attribute.Format),
			Offset:   attribute.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		vertexStage.ShaderStageCreateInfo,
		fragmentStage.ShaderStageCreateInfo,
	}
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          context.MainRenderpass.Handle,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := resultError(vk.CreateGraphicsPipelines(device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		outPipeline.Destroy()
		return nil, err
	}
	outPipeline.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline %q created!", desc.Name)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy() {
	device := pipeline.context.Device.LogicalDevice
	allocator := pipeline.context.Allocator
	if pipeline.Handle != nil {
		vk.DestroyPipeline(device, pipeline.Handle, allocator)
		pipeline.Handle = nil
	}
	if pipeline.PipelineLayout != nil {
		vk.DestroyPipelineLayout(device, pipeline.PipelineLayout, allocator)
		pipeline.PipelineLayout = nil
	}
	if pipeline.DescriptorSetLayout != nil {
		vk.DestroyDescriptorSetLayout(device, pipeline.DescriptorSetLayout, allocator)
		pipeline.DescriptorSetLayout = nil
	}
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) {
	vk.CmdBindPipeline(commandBuffer.Handle, bindPoint, pipeline.Handle)
}
