package vulkan

import (
	"io"
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// handles keeps every fake handle reachable. Native handle types point to incomplete cgo
// structs, so escape analysis loses track of the allocation behind them.
var handles []*uint64

// handle returns a unique non-nil native handle. It is never passed to the driver.
func handle() unsafe.Pointer {
	h := new(uint64)
	handles = append(handles, h)
	return unsafe.Pointer(h)
}

// fakeAPI records the calls made to it and plays back canned results.
type fakeAPI struct {
	calls map[string]int

	memory      map[vk.DeviceMemory][]byte
	bufferSizes map[vk.Buffer]uint64
	signaled    map[vk.Fence]bool

	// completeOnSubmit signals the fence of every submission right away
	completeOnSubmit bool
	// waitResults are returned by WaitForFence before it succeeds
	waitResults  []vk.Result
	submitResult vk.Result
	submits      []vk.SubmitInfo

	barriers []vk.ImageMemoryBarrier
	// stages holds the source and destination stage of every barrier call
	stages [][2]vk.PipelineStageFlags
	blits  []vk.ImageBlit
	// resetErr fails ResetCommandBuffer
	resetErr error
	writes   []vk.WriteDescriptorSet
	allocSet vk.Result

	surfaceCaps     vk.SurfaceCapabilities
	surfaceFormats  []vk.SurfaceFormat
	presentModes    []vk.PresentMode
	swapchainImages int
	swapchainInfos  []vk.SwapchainCreateInfo
	acquireResults  []vk.Result
	presentResults  []vk.Result
	nextImage       uint32

	queryResults []uint64
	queryResult  vk.Result

	linearBlit bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:           map[string]int{},
		memory:          map[vk.DeviceMemory][]byte{},
		bufferSizes:     map[vk.Buffer]uint64{},
		signaled:        map[vk.Fence]bool{},
		swapchainImages: 3,
		surfaceCaps: vk.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  vk.Extent2D{Width: 640, Height: 480},
			MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
		},
		surfaceFormats: []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}},
		presentModes:   []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox},
	}
}

func (f *fakeAPI) call(name string) { f.calls[name]++ }

// live returns created minus destroyed objects of one kind.
func (f *fakeAPI) live(create, destroy string) int {
	return f.calls[create] - f.calls[destroy]
}

func (f *fakeAPI) CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, error) {
	f.call("CreateBuffer")
	b := vk.Buffer(handle())
	f.bufferSizes[b] = uint64(info.Size)
	return b, nil
}

func (f *fakeAPI) DestroyBuffer(b vk.Buffer) { f.call("DestroyBuffer") }

func (f *fakeAPI) BufferMemoryRequirements(b vk.Buffer) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: vk.DeviceSize(f.bufferSizes[b]), Alignment: 16, MemoryTypeBits: 1}
}

func (f *fakeAPI) BindBufferMemory(b vk.Buffer, mem vk.DeviceMemory, offset uint64) error {
	return nil
}

func (f *fakeAPI) AllocateMemory(size uint64, memoryType uint32) (vk.DeviceMemory, error) {
	f.call("AllocateMemory")
	mem := vk.DeviceMemory(handle())
	f.memory[mem] = make([]byte, size)
	return mem, nil
}

func (f *fakeAPI) FreeMemory(mem vk.DeviceMemory) {
	f.call("FreeMemory")
	delete(f.memory, mem)
}

func (f *fakeAPI) MapMemory(mem vk.DeviceMemory, offset, size uint64) ([]byte, error) {
	f.call("MapMemory")
	return f.memory[mem][offset : offset+size], nil
}

func (f *fakeAPI) UnmapMemory(mem vk.DeviceMemory) { f.call("UnmapMemory") }

func (f *fakeAPI) CreateImage(info *vk.ImageCreateInfo) (vk.Image, error) {
	f.call("CreateImage")
	return vk.Image(handle()), nil
}

func (f *fakeAPI) DestroyImage(img vk.Image) { f.call("DestroyImage") }

func (f *fakeAPI) ImageMemoryRequirements(img vk.Image) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: 4096, Alignment: 256, MemoryTypeBits: 1}
}

func (f *fakeAPI) BindImageMemory(img vk.Image, mem vk.DeviceMemory, offset uint64) error {
	return nil
}

func (f *fakeAPI) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	f.call("CreateImageView")
	return vk.ImageView(handle()), nil
}

func (f *fakeAPI) DestroyImageView(v vk.ImageView) { f.call("DestroyImageView") }

func (f *fakeAPI) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	f.call("CreateSampler")
	return vk.Sampler(handle()), nil
}

func (f *fakeAPI) DestroySampler(s vk.Sampler) { f.call("DestroySampler") }

func (f *fakeAPI) CreateFence(signaled bool) (vk.Fence, error) {
	f.call("CreateFence")
	fence := vk.Fence(handle())
	f.signaled[fence] = signaled
	return fence, nil
}

func (f *fakeAPI) DestroyFence(fence vk.Fence) {
	f.call("DestroyFence")
	delete(f.signaled, fence)
}

func (f *fakeAPI) FenceStatus(fence vk.Fence) vk.Result {
	if f.signaled[fence] {
		return vk.Success
	}
	return vk.NotReady
}

func (f *fakeAPI) WaitForFence(fence vk.Fence, timeout uint64) vk.Result {
	f.call("WaitForFence")
	if len(f.waitResults) > 0 {
		res := f.waitResults[0]
		f.waitResults = f.waitResults[1:]
		return res
	}
	f.signaled[fence] = true
	return vk.Success
}

func (f *fakeAPI) ResetFence(fence vk.Fence) error {
	f.call("ResetFence")
	f.signaled[fence] = false
	return nil
}

func (f *fakeAPI) CreateSemaphore() (vk.Semaphore, error) {
	f.call("CreateSemaphore")
	return vk.Semaphore(handle()), nil
}

func (f *fakeAPI) DestroySemaphore(s vk.Semaphore) { f.call("DestroySemaphore") }

func (f *fakeAPI) GetQueue(family uint32) vk.Queue { return vk.Queue(handle()) }

func (f *fakeAPI) CreateCommandPool(family uint32) (vk.CommandPool, error) {
	f.call("CreateCommandPool")
	return vk.CommandPool(handle()), nil
}

func (f *fakeAPI) DestroyCommandPool(p vk.CommandPool) { f.call("DestroyCommandPool") }

func (f *fakeAPI) AllocateCommandBuffer(p vk.CommandPool) (vk.CommandBuffer, error) {
	f.call("AllocateCommandBuffer")
	return vk.CommandBuffer(handle()), nil
}

func (f *fakeAPI) FreeCommandBuffer(p vk.CommandPool, cb vk.CommandBuffer) {
	f.call("FreeCommandBuffer")
}

func (f *fakeAPI) ResetCommandBuffer(cb vk.CommandBuffer) error {
	f.call("ResetCommandBuffer")
	return f.resetErr
}

func (f *fakeAPI) BeginCommandBuffer(cb vk.CommandBuffer, info *vk.CommandBufferBeginInfo) error {
	f.call("BeginCommandBuffer")
	return nil
}

func (f *fakeAPI) EndCommandBuffer(cb vk.CommandBuffer) error {
	f.call("EndCommandBuffer")
	return nil
}

func (f *fakeAPI) QueueSubmit(q vk.Queue, info vk.SubmitInfo, fence vk.Fence) vk.Result {
	f.call("QueueSubmit")
	if f.submitResult != vk.Success {
		return f.submitResult
	}
	f.submits = append(f.submits, info)
	if f.completeOnSubmit {
		f.signaled[fence] = true
	}
	return vk.Success
}

func (f *fakeAPI) QueueWaitIdle(q vk.Queue) error {
	f.call("QueueWaitIdle")
	return nil
}

func (f *fakeAPI) DeviceWaitIdle() error {
	f.call("DeviceWaitIdle")
	return nil
}

func (f *fakeAPI) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	f.call("CreateDescriptorPool")
	return vk.DescriptorPool(handle()), nil
}

func (f *fakeAPI) DestroyDescriptorPool(p vk.DescriptorPool) { f.call("DestroyDescriptorPool") }

func (f *fakeAPI) ResetDescriptorPool(p vk.DescriptorPool) error {
	f.call("ResetDescriptorPool")
	return nil
}

func (f *fakeAPI) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	f.call("CreateDescriptorSetLayout")
	return vk.DescriptorSetLayout(handle()), nil
}

func (f *fakeAPI) DestroyDescriptorSetLayout(l vk.DescriptorSetLayout) {
	f.call("DestroyDescriptorSetLayout")
}

func (f *fakeAPI) AllocateDescriptorSet(p vk.DescriptorPool, l vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	f.call("AllocateDescriptorSet")
	if f.allocSet != vk.Success {
		return nil, f.allocSet
	}
	return vk.DescriptorSet(handle()), vk.Success
}

func (f *fakeAPI) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	f.call("UpdateDescriptorSets")
	f.writes = append(f.writes, writes...)
}

func (f *fakeAPI) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	f.call("CreatePipelineLayout")
	return vk.PipelineLayout(handle()), nil
}

func (f *fakeAPI) DestroyPipelineLayout(l vk.PipelineLayout) { f.call("DestroyPipelineLayout") }

func (f *fakeAPI) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	f.call("CreateShaderModule")
	return vk.ShaderModule(handle()), nil
}

func (f *fakeAPI) DestroyShaderModule(m vk.ShaderModule) { f.call("DestroyShaderModule") }

func (f *fakeAPI) CreatePipelineCache() (vk.PipelineCache, error) {
	f.call("CreatePipelineCache")
	return vk.PipelineCache(handle()), nil
}

func (f *fakeAPI) DestroyPipelineCache(c vk.PipelineCache) { f.call("DestroyPipelineCache") }

func (f *fakeAPI) CreateGraphicsPipeline(cache vk.PipelineCache, info vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	f.call("CreateGraphicsPipeline")
	return vk.Pipeline(handle()), nil
}

func (f *fakeAPI) CreateComputePipeline(cache vk.PipelineCache, info vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	f.call("CreateComputePipeline")
	return vk.Pipeline(handle()), nil
}

func (f *fakeAPI) DestroyPipeline(p vk.Pipeline) { f.call("DestroyPipeline") }

func (f *fakeAPI) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	f.call("CreateRenderPass")
	return vk.RenderPass(handle()), nil
}

func (f *fakeAPI) DestroyRenderPass(r vk.RenderPass) { f.call("DestroyRenderPass") }

func (f *fakeAPI) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	f.call("CreateFramebuffer")
	return vk.Framebuffer(handle()), nil
}

func (f *fakeAPI) DestroyFramebuffer(fb vk.Framebuffer) { f.call("DestroyFramebuffer") }

func (f *fakeAPI) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	f.call("CreateSwapchain")
	f.swapchainInfos = append(f.swapchainInfos, *info)
	return vk.Swapchain(handle()), nil
}

func (f *fakeAPI) DestroySwapchain(s vk.Swapchain) { f.call("DestroySwapchain") }

func (f *fakeAPI) SwapchainImages(s vk.Swapchain) ([]vk.Image, error) {
	images := make([]vk.Image, f.swapchainImages)
	for i := range images {
		images[i] = vk.Image(handle())
	}
	return images, nil
}

func (f *fakeAPI) AcquireNextImage(s vk.Swapchain, timeout uint64, sem vk.Semaphore) (uint32, vk.Result) {
	f.call("AcquireNextImage")
	index := f.nextImage
	f.nextImage = (f.nextImage + 1) % uint32(f.swapchainImages)
	if len(f.acquireResults) > 0 {
		res := f.acquireResults[0]
		f.acquireResults = f.acquireResults[1:]
		return index, res
	}
	return index, vk.Success
}

func (f *fakeAPI) QueuePresent(q vk.Queue, info *vk.PresentInfo) vk.Result {
	f.call("QueuePresent")
	if len(f.presentResults) > 0 {
		res := f.presentResults[0]
		f.presentResults = f.presentResults[1:]
		return res
	}
	return vk.Success
}

func (f *fakeAPI) SurfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error) {
	return f.surfaceCaps, nil
}

func (f *fakeAPI) SurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	return f.surfaceFormats, nil
}

func (f *fakeAPI) PresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	return f.presentModes, nil
}

func (f *fakeAPI) CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error) {
	f.call("CreateQueryPool")
	return vk.QueryPool(handle()), nil
}

func (f *fakeAPI) DestroyQueryPool(p vk.QueryPool) { f.call("DestroyQueryPool") }

func (f *fakeAPI) QueryResults(p vk.QueryPool, first, count uint32) ([]uint64, vk.Result) {
	f.call("QueryResults")
	if f.queryResult != vk.Success {
		return nil, f.queryResult
	}
	return f.queryResults[first : first+count], vk.Success
}

func (f *fakeAPI) FormatProperties(format vk.Format) vk.FormatProperties {
	f.call("FormatProperties")
	var props vk.FormatProperties
	if f.linearBlit {
		props.OptimalTilingFeatures = vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit)
	}
	return props
}

// MemoryProperties reports a single memory type that is both device local and host
// visible, so every request can be satisfied.
func (f *fakeAPI) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var mp vk.PhysicalDeviceMemoryProperties
	mp.MemoryTypeCount = 1
	mp.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit |
		vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	mp.MemoryHeapCount = 1
	mp.MemoryHeaps[0].Size = 1 << 30
	return mp
}

func (f *fakeAPI) CmdPipelineBarrier(cb vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	f.call("CmdPipelineBarrier")
	f.barriers = append(f.barriers, barriers...)
	f.stages = append(f.stages, [2]vk.PipelineStageFlags{src, dst})
}

func (f *fakeAPI) CmdCopyBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, regions []vk.BufferCopy) {
	f.call("CmdCopyBuffer")
}

func (f *fakeAPI) CmdCopyBufferToImage(cb vk.CommandBuffer, src vk.Buffer, dst vk.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	f.call("CmdCopyBufferToImage")
}

func (f *fakeAPI) CmdCopyImageToBuffer(cb vk.CommandBuffer, src vk.Image, layout vk.ImageLayout, dst vk.Buffer, regions []vk.BufferImageCopy) {
	f.call("CmdCopyImageToBuffer")
}

func (f *fakeAPI) CmdCopyImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	f.call("CmdCopyImage")
}

func (f *fakeAPI) CmdBlitImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout, dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {
	f.call("CmdBlitImage")
	f.blits = append(f.blits, regions...)
}

func (f *fakeAPI) CmdBindPipeline(cb vk.CommandBuffer, point vk.PipelineBindPoint, p vk.Pipeline) {
	f.call("CmdBindPipeline")
}

func (f *fakeAPI) CmdBindDescriptorSets(cb vk.CommandBuffer, point vk.PipelineBindPoint, layout vk.PipelineLayout, first uint32, sets []vk.DescriptorSet) {
	f.call("CmdBindDescriptorSets")
}

func (f *fakeAPI) CmdBindVertexBuffers(cb vk.CommandBuffer, binding uint32, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	f.call("CmdBindVertexBuffers")
}

func (f *fakeAPI) CmdBindIndexBuffer(cb vk.CommandBuffer, b vk.Buffer, offset uint64, t vk.IndexType) {
	f.call("CmdBindIndexBuffer")
}

func (f *fakeAPI) CmdBeginRenderPass(cb vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	f.call("CmdBeginRenderPass")
}

func (f *fakeAPI) CmdEndRenderPass(cb vk.CommandBuffer) { f.call("CmdEndRenderPass") }

func (f *fakeAPI) CmdSetViewport(cb vk.CommandBuffer, v vk.Viewport) { f.call("CmdSetViewport") }

func (f *fakeAPI) CmdSetScissor(cb vk.CommandBuffer, r vk.Rect2D) { f.call("CmdSetScissor") }

func (f *fakeAPI) CmdDraw(cb vk.CommandBuffer, vertices, instances, firstVertex, firstInstance uint32) {
	f.call("CmdDraw")
}

func (f *fakeAPI) CmdDrawIndexed(cb vk.CommandBuffer, indices, instances, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	f.call("CmdDrawIndexed")
}

func (f *fakeAPI) CmdDispatch(cb vk.CommandBuffer, x, y, z uint32) { f.call("CmdDispatch") }

func (f *fakeAPI) CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	f.call("CmdPushConstants")
}

func (f *fakeAPI) CmdResetQueryPool(cb vk.CommandBuffer, p vk.QueryPool, first, count uint32) {
	f.call("CmdResetQueryPool")
}

func (f *fakeAPI) CmdWriteTimestamp(cb vk.CommandBuffer, stage vk.PipelineStageFlagBits, p vk.QueryPool, query uint32) {
	f.call("CmdWriteTimestamp")
}

func (f *fakeAPI) DestroyDevice() { f.call("DestroyDevice") }

var _ deviceAPI = (*fakeAPI)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// universalFamily can do everything, including presenting.
func universalFamily(index int) *QueueFamily {
	return &QueueFamily{
		Index:              index,
		Flags:              vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit),
		Count:              1,
		Present:            true,
		TimestampValidBits: 64,
	}
}

func fakePhysicalDevice(families ...*QueueFamily) *PhysicalDevice {
	if len(families) == 0 {
		families = []*QueueFamily{universalFamily(0)}
	}
	return &PhysicalDevice{
		Name:          "fake",
		Type:          vk.PhysicalDeviceTypeDiscreteGpu,
		QueueFamilies: families,
		Extensions:    []string{swapchainExtension},
		Limits: DeviceLimits{
			MaxImageDimension2D:    4096,
			MaxBoundDescriptorSets: 8,
			MaxPushConstantsSize:   128,
			MaxSamplerAnisotropy:   16,
			TimestampPeriod:        1,
		},
	}
}

// newTestDevice creates a device on a fake API. With no families it has one queue family
// that does everything.
func newTestDevice(t *testing.T, families ...*QueueFamily) (*Device, *fakeAPI) {
	t.Helper()
	pd := fakePhysicalDevice(families...)
	needPresent := false
	for _, f := range pd.QueueFamilies {
		needPresent = needPresent || f.Present
	}
	sel, err := selectQueues(pd.QueueFamilies, needPresent)
	if err != nil {
		t.Fatalf("selecting queues: %v", err)
	}
	api := newFakeAPI()
	d, err := newDevice(api, pd, sel, DeviceOptions{StagingSize: 1 << 16}, discardLogger())
	if err != nil {
		t.Fatalf("creating device: %v", err)
	}
	return d, api
}
