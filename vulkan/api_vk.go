package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// vkDevice implements deviceAPI on top of the Vulkan loader.
type vkDevice struct {
	device   vk.Device
	physical vk.PhysicalDevice
}

var _ deviceAPI = (*vkDevice)(nil)

func (d *vkDevice) CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error) {
	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(d.device, info, nil, &buffer))
	return buffer, err
}

func (d *vkDevice) DestroyBuffer(b vk.Buffer) {
	vk.DestroyBuffer(d.device, b, nil)
}

func (d *vkDevice) BufferMemoryRequirements(b vk.Buffer) vk.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b, &mr)
	mr.Deref()
	return mr
}

func (d *vkDevice) BindBufferMemory(b vk.Buffer, mem vk.DeviceMemory, offset uint64) error {
	return vk.Error(vk.BindBufferMemory(d.device, b, mem, vk.DeviceSize(offset)))
}

func (d *vkDevice) AllocateMemory(size uint64, memoryType uint32) (vk.DeviceMemory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryType,
	}
	var mem vk.DeviceMemory
	err := vk.Error(vk.AllocateMemory(d.device, &allocateInfo, nil, &mem))
	return mem, err
}

func (d *vkDevice) FreeMemory(mem vk.DeviceMemory) {
	vk.FreeMemory(d.device, mem, nil)
}

func (d *vkDevice) MapMemory(mem vk.DeviceMemory, offset, size uint64) ([]byte, error) {
	var ptr unsafe.Pointer
	err := vk.Error(vk.MapMemory(d.device, mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *vkDevice) UnmapMemory(mem vk.DeviceMemory) {
	vk.UnmapMemory(d.device, mem)
}

func (d *vkDevice) CreateImage(info *vk.ImageCreateInfo) (vk.Image, error) {
	var img vk.Image
	err := vk.Error(vk.CreateImage(d.device, info, nil, &img))
	return img, err
}

func (d *vkDevice) DestroyImage(img vk.Image) {
	vk.DestroyImage(d.device, img, nil)
}

func (d *vkDevice) ImageMemoryRequirements(img vk.Image) vk.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &mr)
	mr.Deref()
	return mr
}

func (d *vkDevice) BindImageMemory(img vk.Image, mem vk.DeviceMemory, offset uint64) error {
	return vk.Error(vk.BindImageMemory(d.device, img, mem, vk.DeviceSize(offset)))
}

func (d *vkDevice) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	err := vk.Error(vk.CreateImageView(d.device, info, nil, &view))
	return view, err
}

func (d *vkDevice) DestroyImageView(v vk.ImageView) {
	vk.DestroyImageView(d.device, v, nil)
}

func (d *vkDevice) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	var s vk.Sampler
	err := vk.Error(vk.CreateSampler(d.device, info, nil, &s))
	return s, err
}

func (d *vkDevice) DestroySampler(s vk.Sampler) {
	vk.DestroySampler(d.device, s, nil)
}

func (d *vkDevice) CreateFence(signaled bool) (vk.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	err := vk.Error(vk.CreateFence(d.device, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (d *vkDevice) DestroyFence(f vk.Fence) {
	vk.DestroyFence(d.device, f, nil)
}

func (d *vkDevice) FenceStatus(f vk.Fence) vk.Result {
	return vk.GetFenceStatus(d.device, f)
}

func (d *vkDevice) WaitForFence(f vk.Fence, timeout uint64) vk.Result {
	return vk.WaitForFences(d.device, 1, []vk.Fence{f}, vk.True, timeout)
}

func (d *vkDevice) ResetFence(f vk.Fence) error {
	return vk.Error(vk.ResetFences(d.device, 1, []vk.Fence{f}))
}

func (d *vkDevice) CreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sema vk.Semaphore
	err := vk.Error(vk.CreateSemaphore(d.device, &semaphoreCreateInfo, nil, &sema))
	return sema, err
}

func (d *vkDevice) DestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.device, s, nil)
}

func (d *vkDevice) GetQueue(family uint32) vk.Queue {
	var q vk.Queue
	vk.GetDeviceQueue(d.device, family, 0, &q)
	return q
}

func (d *vkDevice) CreateCommandPool(family uint32) (vk.CommandPool, error) {
	commandPoolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	var pool vk.CommandPool
	err := vk.Error(vk.CreateCommandPool(d.device, &commandPoolCreateInfo, nil, &pool))
	return pool, err
}

func (d *vkDevice) DestroyCommandPool(p vk.CommandPool) {
	vk.DestroyCommandPool(d.device, p, nil)
}

func (d *vkDevice) AllocateCommandBuffer(p vk.CommandPool) (vk.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBuffers := make([]vk.CommandBuffer, 1)
	err := vk.Error(vk.AllocateCommandBuffers(d.device, &allocateInfo, cmdBuffers))
	if err != nil {
		return nil, err
	}
	return cmdBuffers[0], nil
}

func (d *vkDevice) FreeCommandBuffer(p vk.CommandPool, cb vk.CommandBuffer) {
	vk.FreeCommandBuffers(d.device, p, 1, []vk.CommandBuffer{cb})
}

func (d *vkDevice) ResetCommandBuffer(cb vk.CommandBuffer) error {
	return vk.Error(vk.ResetCommandBuffer(cb, 0))
}

func (d *vkDevice) BeginCommandBuffer(cb vk.CommandBuffer, info *vk.CommandBufferBeginInfo) error {
	return vk.Error(vk.BeginCommandBuffer(cb, info))
}

func (d *vkDevice) EndCommandBuffer(cb vk.CommandBuffer) error {
	return vk.Error(vk.EndCommandBuffer(cb))
}

func (d *vkDevice) QueueSubmit(q vk.Queue, info vk.SubmitInfo, fence vk.Fence) vk.Result {
	return vk.QueueSubmit(q, 1, []vk.SubmitInfo{info}, fence)
}

func (d *vkDevice) QueueWaitIdle(q vk.Queue) error {
	return vk.Error(vk.QueueWaitIdle(q))
}

func (d *vkDevice) DeviceWaitIdle() error {
	return vk.Error(vk.DeviceWaitIdle(d.device))
}

func (d *vkDevice) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(d.device, info, nil, &pool))
	return pool, err
}

func (d *vkDevice) DestroyDescriptorPool(p vk.DescriptorPool) {
	vk.DestroyDescriptorPool(d.device, p, nil)
}

func (d *vkDevice) ResetDescriptorPool(p vk.DescriptorPool) error {
	return vk.Error(vk.ResetDescriptorPool(d.device, p, 0))
}

func (d *vkDevice) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var l vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(d.device, info, nil, &l))
	return l, err
}

func (d *vkDevice) DestroyDescriptorSetLayout(l vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.device, l, nil)
}

func (d *vkDevice) AllocateDescriptorSet(p vk.DescriptorPool, l vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device, &allocateInfo, &set)
	return set, res
}

func (d *vkDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
}

func (d *vkDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var l vk.PipelineLayout
	err := vk.Error(vk.CreatePipelineLayout(d.device, info, nil, &l))
	return l, err
}

func (d *vkDevice) DestroyPipelineLayout(l vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.device, l, nil)
}

func (d *vkDevice) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module))
	return module, err
}

func (d *vkDevice) DestroyShaderModule(m vk.ShaderModule) {
	vk.DestroyShaderModule(d.device, m, nil)
}

func (d *vkDevice) CreatePipelineCache() (vk.PipelineCache, error) {
	pipelineCacheCreate := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var cache vk.PipelineCache
	err := vk.Error(vk.CreatePipelineCache(d.device, &pipelineCacheCreate, nil, &cache))
	return cache, err
}

func (d *vkDevice) DestroyPipelineCache(c vk.PipelineCache) {
	vk.DestroyPipelineCache(d.device, c, nil)
}

func (d *vkDevice) CreateGraphicsPipeline(cache vk.PipelineCache, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := vk.Error(vk.CreateGraphicsPipelines(d.device, cache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines))
	if err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

func (d *vkDevice) CreateComputePipeline(cache vk.PipelineCache, info vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := vk.Error(vk.CreateComputePipelines(d.device, cache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines))
	if err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

func (d *vkDevice) DestroyPipeline(p vk.Pipeline) {
	vk.DestroyPipeline(d.device, p, nil)
}

func (d *vkDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var rp vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(d.device, info, nil, &rp))
	return rp, err
}

func (d *vkDevice) DestroyRenderPass(r vk.RenderPass) {
	vk.DestroyRenderPass(d.device, r, nil)
}

func (d *vkDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	err := vk.Error(vk.CreateFramebuffer(d.device, info, nil, &fb))
	return fb, err
}

func (d *vkDevice) DestroyFramebuffer(f vk.Framebuffer) {
	vk.DestroyFramebuffer(d.device, f, nil)
}

func (d *vkDevice) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	var sc vk.Swapchain
	err := vk.Error(vk.CreateSwapchain(d.device, info, nil, &sc))
	return sc, err
}

func (d *vkDevice) DestroySwapchain(s vk.Swapchain) {
	vk.DestroySwapchain(d.device, s, nil)
}

func (d *vkDevice) SwapchainImages(s vk.Swapchain) ([]vk.Image, error) {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(d.device, s, &imageCount, nil))
	if err != nil {
		return nil, err
	}
	images := make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(d.device, s, &imageCount, images))
	return images, err
}

func (d *vkDevice) AcquireNextImage(s vk.Swapchain, timeout uint64, sem vk.Semaphore) (uint32, vk.Result) {
	var index uint32
	res := vk.AcquireNextImage(d.device, s, timeout, sem, vk.NullFence, &index)
	return index, res
}

func (d *vkDevice) QueuePresent(q vk.Queue, info *vk.PresentInfo) vk.Result {
	return vk.QueuePresent(q, info)
}

func (d *vkDevice) SurfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, surface, &caps))
	if err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (d *vkDevice) SurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &count, nil))
	if err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &count, formats))
	if err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (d *vkDevice) PresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &count, nil))
	if err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &count, modes))
	return modes, err
}

func (d *vkDevice) CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error) {
	var pool vk.QueryPool
	err := vk.Error(vk.CreateQueryPool(d.device, info, nil, &pool))
	return pool, err
}

func (d *vkDevice) DestroyQueryPool(p vk.QueryPool) {
	vk.DestroyQueryPool(d.device, p, nil)
}

func (d *vkDevice) QueryResults(p vk.QueryPool, first, count uint32) ([]uint64, vk.Result) {
	data := make([]uint64, count)
	if count == 0 {
		return data, vk.Success
	}
	res := vk.GetQueryPoolResults(d.device, p, first, count, uint(8*count), unsafe.Pointer(&data[0]), 8,
		vk.QueryResultFlags(vk.QueryResult64Bit))
	return data, res
}

func (d *vkDevice) FormatProperties(f vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physical, f, &props)
	props.Deref()
	return props
}

func (d *vkDevice) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &mp)
	mp.Deref()
	for i := range mp.MemoryTypes {
		mp.MemoryTypes[i].Deref()
	}
	for i := range mp.MemoryHeaps {
		mp.MemoryHeaps[i].Deref()
	}
	return mp
}

func (d *vkDevice) CmdPipelineBarrier(cb vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

func (d *vkDevice) CmdCopyBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(cb, src, dst, uint32(len(regions)), regions)
}

func (d *vkDevice) CmdCopyBufferToImage(cb vk.CommandBuffer, src vk.Buffer, dst vk.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(cb, src, dst, layout, uint32(len(regions)), regions)
}

func (d *vkDevice) CmdCopyImageToBuffer(cb vk.CommandBuffer, src vk.Image, layout vk.ImageLayout, dst vk.Buffer, regions []vk.BufferImageCopy) {
	vk.CmdCopyImageToBuffer(cb, src, layout, dst, uint32(len(regions)), regions)
}

func (d *vkDevice) CmdCopyImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(cb, src, srcLayout, dst, dstLayout, uint32(len(regions)), regions)
}

func (d *vkDevice) CmdBlitImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {
	vk.CmdBlitImage(cb, src, srcLayout, dst, dstLayout, uint32(len(regions)), regions, filter)
}

func (d *vkDevice) CmdBindPipeline(cb vk.CommandBuffer, point vk.PipelineBindPoint, p vk.Pipeline) {
	vk.CmdBindPipeline(cb, point, p)
}

func (d *vkDevice) CmdBindDescriptorSets(cb vk.CommandBuffer, point vk.PipelineBindPoint, layout vk.PipelineLayout, first uint32, sets []vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cb, point, layout, first, uint32(len(sets)), sets, 0, nil)
}

func (d *vkDevice) CmdBindVertexBuffers(cb vk.CommandBuffer, binding uint32, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	vk.CmdBindVertexBuffers(cb, binding, uint32(len(buffers)), buffers, offsets)
}

func (d *vkDevice) CmdBindIndexBuffer(cb vk.CommandBuffer, b vk.Buffer, offset uint64, t vk.IndexType) {
	vk.CmdBindIndexBuffer(cb, b, vk.DeviceSize(offset), t)
}

func (d *vkDevice) CmdBeginRenderPass(cb vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cb, info, vk.SubpassContentsInline)
}

func (d *vkDevice) CmdEndRenderPass(cb vk.CommandBuffer) {
	vk.CmdEndRenderPass(cb)
}

func (d *vkDevice) CmdSetViewport(cb vk.CommandBuffer, v vk.Viewport) {
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{v})
}

func (d *vkDevice) CmdSetScissor(cb vk.CommandBuffer, r vk.Rect2D) {
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{r})
}

func (d *vkDevice) CmdDraw(cb vk.CommandBuffer, vertices, instances, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb, vertices, instances, firstVertex, firstInstance)
}

func (d *vkDevice) CmdDrawIndexed(cb vk.CommandBuffer, indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb, indices, instances, firstIndex, vertexOffset, firstInstance)
}

func (d *vkDevice) CmdDispatch(cb vk.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(cb, x, y, z)
}

func (d *vkDevice) CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cb, layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *vkDevice) CmdResetQueryPool(cb vk.CommandBuffer, p vk.QueryPool, first, count uint32) {
	vk.CmdResetQueryPool(cb, p, first, count)
}

func (d *vkDevice) CmdWriteTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, p vk.QueryPool, query uint32) {
	vk.CmdWriteTimestamp(cb, stage, p, query)
}

func (d *vkDevice) DestroyDevice() {
	vk.DestroyDevice(d.device, nil)
}

func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
