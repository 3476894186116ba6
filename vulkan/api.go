package vulkan

import (
	vk "github.com/vulkan-go/vulkan"
)

// deviceAPI is every native call the package makes on behalf of one logical device and
// its physical device. vkDevice forwards to the Vulkan loader; tests substitute a recorder.
type deviceAPI interface {
	// memory and buffers
	CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error)
	DestroyBuffer(b vk.Buffer)
	BufferMemoryRequirements(b vk.Buffer) vk.MemoryRequirements
	BindBufferMemory(b vk.Buffer, mem vk.DeviceMemory, offset uint64) error
	AllocateMemory(size uint64, memoryType uint32) (vk.DeviceMemory, error)
	FreeMemory(mem vk.DeviceMemory)
	MapMemory(mem vk.DeviceMemory, offset, size uint64) ([]byte, error)
	UnmapMemory(mem vk.DeviceMemory)

	// images
	CreateImage(info *vk.ImageCreateInfo) (vk.Image, error)
	DestroyImage(img vk.Image)
	ImageMemoryRequirements(img vk.Image) vk.MemoryRequirements
	BindImageMemory(img vk.Image, mem vk.DeviceMemory, offset uint64) error
	CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error)
	DestroyImageView(v vk.ImageView)
	CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error)
	DestroySampler(s vk.Sampler)

	// synchronization
	CreateFence(signaled bool) (vk.Fence, error)
	DestroyFence(f vk.Fence)
	FenceStatus(f vk.Fence) vk.Result
	WaitForFence(f vk.Fence, timeout uint64) vk.Result
	ResetFence(f vk.Fence) error
	CreateSemaphore() (vk.Semaphore, error)
	DestroySemaphore(s vk.Semaphore)

	// queues and command buffers
	GetQueue(family uint32) vk.Queue
	CreateCommandPool(family uint32) (vk.CommandPool, error)
	DestroyCommandPool(p vk.CommandPool)
	AllocateCommandBuffer(p vk.CommandPool) (vk.CommandBuffer, error)
	FreeCommandBuffer(p vk.CommandPool, cb vk.CommandBuffer)
	ResetCommandBuffer(cb vk.CommandBuffer) error
	BeginCommandBuffer(cb vk.CommandBuffer, info *vk.CommandBufferBeginInfo) error
	EndCommandBuffer(cb vk.CommandBuffer) error
	QueueSubmit(q vk.Queue, info vk.SubmitInfo, fence vk.Fence) vk.Result
	QueueWaitIdle(q vk.Queue) error
	DeviceWaitIdle() error

	// descriptors and pipelines
	CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error)
	DestroyDescriptorPool(p vk.DescriptorPool)
	ResetDescriptorPool(p vk.DescriptorPool) error
	CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l vk.DescriptorSetLayout)
	AllocateDescriptorSet(p vk.DescriptorPool, l vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result)
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)
	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(l vk.PipelineLayout)
	CreateShaderModule(code []byte) (vk.ShaderModule, error)
	DestroyShaderModule(m vk.ShaderModule)
	CreatePipelineCache() (vk.PipelineCache, error)
	DestroyPipelineCache(c vk.PipelineCache)
	CreateGraphicsPipeline(cache vk.PipelineCache, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	CreateComputePipeline(cache vk.PipelineCache, info vk.ComputePipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(p vk.Pipeline)
	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(r vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(f vk.Framebuffer)

	// presentation
	CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error)
	DestroySwapchain(s vk.Swapchain)
	SwapchainImages(s vk.Swapchain) ([]vk.Image, error)
	AcquireNextImage(s vk.Swapchain, timeout uint64, sem vk.Semaphore) (uint32, vk.Result)
	QueuePresent(q vk.Queue, info *vk.PresentInfo) vk.Result
	SurfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error)
	SurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error)
	PresentModes(surface vk.Surface) ([]vk.PresentMode, error)

	// queries
	CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error)
	DestroyQueryPool(p vk.QueryPool)
	QueryResults(p vk.QueryPool, first, count uint32) ([]uint64, vk.Result)

	// physical device
	FormatProperties(f vk.Format) vk.FormatProperties
	MemoryProperties() vk.PhysicalDeviceMemoryProperties

	// recording
	CmdPipelineBarrier(cb vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier)
	CmdCopyBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, regions []vk.BufferCopy)
	CmdCopyBufferToImage(cb vk.CommandBuffer, src vk.Buffer, dst vk.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy)
	CmdCopyImageToBuffer(cb vk.CommandBuffer, src vk.Image, layout vk.ImageLayout, dst vk.Buffer, regions []vk.BufferImageCopy)
	CmdCopyImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy)
	CmdBlitImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter)
	CmdBindPipeline(cb vk.CommandBuffer, point vk.PipelineBindPoint, p vk.Pipeline)
	CmdBindDescriptorSets(cb vk.CommandBuffer, point vk.PipelineBindPoint, layout vk.PipelineLayout, first uint32, sets []vk.DescriptorSet)
	CmdBindVertexBuffers(cb vk.CommandBuffer, binding uint32, buffers []vk.Buffer, offsets []vk.DeviceSize)
	CmdBindIndexBuffer(cb vk.CommandBuffer, b vk.Buffer, offset uint64, t vk.IndexType)
	CmdBeginRenderPass(cb vk.CommandBuffer, info *vk.RenderPassBeginInfo)
	CmdEndRenderPass(cb vk.CommandBuffer)
	CmdSetViewport(cb vk.CommandBuffer, v vk.Viewport)
	CmdSetScissor(cb vk.CommandBuffer, r vk.Rect2D)
	CmdDraw(cb vk.CommandBuffer, vertices, instances, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb vk.CommandBuffer, indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cb vk.CommandBuffer, x, y, z uint32)
	CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	CmdResetQueryPool(cb vk.CommandBuffer, p vk.QueryPool, first, count uint32)
	CmdWriteTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, p vk.QueryPool, query uint32)

	// DestroyDevice destroys the logical device itself.
	DestroyDevice()
}
