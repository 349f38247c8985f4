package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/platform"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// VulkanRenderer owns the instance, surface, device, swapchain and main
// renderpass, and is the rhi.Device every frame object is created from.
type VulkanRenderer struct {
	platform *platform.Platform
	context  *VulkanContext
	queue    *VulkanQueue

	validation bool
	vsync      bool
}

var _ rhi.Device = (*VulkanRenderer)(nil)

func New(p *platform.Platform, validation, vsync bool) *VulkanRenderer {
	return &VulkanRenderer{
		platform:   p,
		context:    &VulkanContext{},
		validation: validation,
		vsync:      vsync,
	}
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	vr.context.Allocator = nil
	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	if err := vr.createInstance(appName); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vr.validation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create platform surface")
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vr.context); err != nil {
		return errors.Wrap(err, "failed to create device")
	}
	vr.queue = &VulkanQueue{context: vr.context}

	sc, err := SwapchainCreate(vr.context, appWidth, appHeight, vr.vsync)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	rp, err := RenderpassCreate(vr.context, sc.ImageFormat.Format)
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	if err := sc.RegenerateFramebuffers(rp); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Monkey Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if vr.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var layers []string
	if vr.validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		found, err := instanceHasLayer(validationLayerName)
		if err != nil {
			return err
		}
		if !found {
			return errors.Newf("required validation layer is missing: %s", validationLayerName)
		}
		layers = append(layers, validationLayerName)
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := resultError(vk.CreateInstance(&createInfo, vr.context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	vr.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "failed to load instance functions")
	}
	return nil
}

func instanceHasLayer(name string) (bool, error) {
	var count uint32
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := resultError(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg), "vkCreateDebugReportCallbackEXT"); err != nil {
		return err
	}
	vr.context.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	ctx := vr.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
	}

	// Destroy in the opposite order of creation.
	if ctx.Swapchain != nil {
		core.LogDebug("Destroying Vulkan swapchain...")
		ctx.Swapchain.SwapchainDestroy()
		ctx.Swapchain = nil
	}
	if ctx.MainRenderpass != nil {
		core.LogDebug("Destroying Vulkan renderpass...")
		ctx.MainRenderpass.RenderpassDestroy(ctx)
		ctx.MainRenderpass = nil
	}
	if ctx.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(ctx)
	}
	if ctx.Surface != nil {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = nil
	}
	if ctx.debugCallback != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = nil
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	return nil
}

// RecreateSwapchain waits for the device and rebuilds the swapchain and its
// framebuffers for the new size. Command buffers recorded against the old
// framebuffers must be recorded again.
func (vr *VulkanRenderer) RecreateSwapchain(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.Wrapf(core.ErrInvalidState, "cannot recreate swapchain at %dx%d", width, height)
	}
	if err := vr.WaitIdle(); err != nil {
		return err
	}
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height
	if err := vr.context.Swapchain.SwapchainRecreate(width, height); err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	core.LogInfo("Swapchain recreated at %dx%d.", vr.context.Swapchain.Width(), vr.context.Swapchain.Height())
	return nil
}

func (vr *VulkanRenderer) Queue() rhi.Queue {
	return vr.queue
}

func (vr *VulkanRenderer) Swapchain() rhi.Swapchain {
	return vr.context.Swapchain
}

func (vr *VulkanRenderer) Limits() rhi.Limits {
	return vr.context.Device.Limits
}

func (vr *VulkanRenderer) CreateFence(signaled bool) (rhi.DeviceFence, error) {
	fence, err := NewFence(vr.context, signaled)
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (vr *VulkanRenderer) CreateSemaphore() (rhi.Semaphore, error) {
	semaphore, err := NewSemaphore(vr.context)
	if err != nil {
		return nil, err
	}
	return semaphore, nil
}

func (vr *VulkanRenderer) CreateBuffer(usage rhi.BufferUsage, size uint64) (rhi.DeviceBuffer, error) {
	buffer, err := NewBuffer(vr.context, usage, size)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (vr *VulkanRenderer) AllocateCommandBuffer() (rhi.CommandBuffer, error) {
	cmd, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func (vr *VulkanRenderer) CreatePipeline(desc *rhi.PipelineDesc) (rhi.Pipeline, error) {
	pipeline, err := NewGraphicsPipeline(vr.context, desc)
	if err != nil {
		return nil, err
	}
	return pipeline, nil
}

func (vr *VulkanRenderer) CreateDescriptorSet(pipeline rhi.Pipeline, buffer rhi.DeviceBuffer, rangeSize uint64) (rhi.DescriptorSet, error) {
	set, err := NewDescriptorSet(vr.context, pipeline.(*VulkanPipeline), buffer.(*VulkanBuffer), rangeSize)
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (vr *VulkanRenderer) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(vr.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
