package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

const maxCheckpoints = 64

type semaphoreDependency struct {
	Semaphore *Semaphore
	Kind      gfx.SemaphoreKind
}

// CommandBuffer records work for the queue it was released from. Recording commands do not
// check that the buffer is recording; that is left to the caller.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer

	queue       *Queue
	recording   bool
	staging     []gfx.IDestructable
	semaphores  []semaphoreDependency
	checkpoints []string
	target      renderTarget
}

var _ gfx.ICommandList = (*CommandBuffer)(nil)

// Queue returns the queue the buffer belongs to
func (c *CommandBuffer) Queue() *Queue { return c.queue }

func (c *CommandBuffer) api() deviceAPI { return c.queue.Device.api }

func (c *CommandBuffer) Capabilities() gfx.QueueCapability { return c.queue.Capabilities }

func (c *CommandBuffer) IsRecording() bool { return c.recording }

// Begin starts recording. Every buffer is submitted once per release.
func (c *CommandBuffer) Begin() error {
	if c.recording {
		return errors.Wrap(gfx.ErrContract, "command buffer is already recording")
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := c.api().BeginCommandBuffer(c.VKCommandBuffer, &beginInfo); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.Wrap(gfx.ErrContract, "command buffer is not recording")
	}
	c.recording = false
	return errors.Wrap(c.api().EndCommandBuffer(c.VKCommandBuffer), "end command buffer")
}

// Reset returns the buffer to its initial state, dropping its semaphore dependencies and
// destroying the staging objects it kept alive.
func (c *CommandBuffer) Reset() error {
	c.recording = false
	c.target = nil
	c.semaphores = c.semaphores[:0]
	c.checkpoints = c.checkpoints[:0]
	for _, s := range c.staging {
		s.Destroy()
	}
	c.staging = c.staging[:0]
	return errors.Wrap(c.api().ResetCommandBuffer(c.VKCommandBuffer), "reset command buffer")
}

// AddSemaphore registers a dependency that is merged into the next submission.
func (c *CommandBuffer) AddSemaphore(s *Semaphore, kind gfx.SemaphoreKind) {
	c.semaphores = append(c.semaphores, semaphoreDependency{Semaphore: s, Kind: kind})
}

// AddStaging keeps obj alive until the buffer finishes executing.
func (c *CommandBuffer) AddStaging(obj gfx.IDestructable) {
	c.staging = append(c.staging, obj)
}

func (c *CommandBuffer) Checkpoint(label string) {
	if len(c.checkpoints) == maxCheckpoints {
		copy(c.checkpoints, c.checkpoints[1:])
		c.checkpoints = c.checkpoints[:maxCheckpoints-1]
	}
	c.checkpoints = append(c.checkpoints, label)
}

// Checkpoints returns the breadcrumbs recorded since the last reset, oldest first.
func (c *CommandBuffer) Checkpoints() []string {
	return append([]string(nil), c.checkpoints...)
}

func (c *CommandBuffer) requires(caps gfx.QueueCapability, what string) error {
	if !c.queue.Capabilities.Has(caps) {
		return errors.Wrapf(gfx.ErrMissingCapability, "%s needs %s, queue has %s", what, caps, c.queue.Capabilities)
	}
	return nil
}

// ClearValues are the values a render pass clears its attachments to.
type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// DefaultClear clears to opaque black and the far plane.
var DefaultClear = ClearValues{Color: [4]float32{0, 0, 0, 1}, Depth: 1}

// BeginRenderPass begins the render pass of target on its current framebuffer.
func (c *CommandBuffer) BeginRenderPass(target gfx.IRenderTarget, clear ClearValues) error {
	if err := c.requires(gfx.GraphicsCapability, "render pass"); err != nil {
		return err
	}
	rt, ok := target.(renderTarget)
	if !ok {
		return errors.Wrapf(gfx.ErrWrongBackend, "render target %T", target)
	}

	clearValues := make([]vk.ClearValue, 1, 2)
	clearValues[0].SetColor(clear.Color[:])
	if rt.hasDepth() {
		var depth vk.ClearValue
		depth.SetDepthStencil(clear.Depth, clear.Stencil)
		clearValues = append(clearValues, depth)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rt.renderPass(),
		Framebuffer: rt.currentFramebuffer(),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: uint32(rt.Width()), Height: uint32(rt.Height())},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	c.api().CmdBeginRenderPass(c.VKCommandBuffer, &beginInfo)
	c.target = rt
	return nil
}

// EndRenderPass ends the current render pass. Offscreen targets update the layouts of their
// attachments to what the pass left them in.
func (c *CommandBuffer) EndRenderPass() {
	c.api().CmdEndRenderPass(c.VKCommandBuffer)
	if c.target != nil {
		c.target.renderPassEnded()
		c.target = nil
	}
}

func (c *CommandBuffer) SetViewport(x, y, width, height float32) {
	c.api().CmdSetViewport(c.VKCommandBuffer, vk.Viewport{
		X: x, Y: y, Width: width, Height: height, MinDepth: 0, MaxDepth: 1,
	})
}

func (c *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	c.api().CmdSetScissor(c.VKCommandBuffer, vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	})
}

func (c *CommandBuffer) Draw(vertices, instances int) {
	c.api().CmdDraw(c.VKCommandBuffer, uint32(vertices), uint32(instances), 0, 0)
}

func (c *CommandBuffer) DrawIndexed(indices, instances, firstIndex, vertexOffset int) {
	c.api().CmdDrawIndexed(c.VKCommandBuffer, uint32(indices), uint32(instances), uint32(firstIndex), int32(vertexOffset), 0)
}

func (c *CommandBuffer) Dispatch(x, y, z int) error {
	if err := c.requires(gfx.ComputeCapability, "dispatch"); err != nil {
		return err
	}
	c.api().CmdDispatch(c.VKCommandBuffer, uint32(x), uint32(y), uint32(z))
	return nil
}

// PushConstants writes data into the push constant range of p.
func (c *CommandBuffer) PushConstants(p *Pipeline, offset uint32, data []byte) error {
	if !p.Loaded() {
		return errors.Wrap(gfx.ErrNotLoaded, "push constants")
	}
	if p.desc.PushConstantSize == 0 || offset+uint32(len(data)) > p.desc.PushConstantSize {
		return errors.Wrapf(gfx.ErrContract, "push constant range [%d, %d) outside of %d bytes", offset, offset+uint32(len(data)), p.desc.PushConstantSize)
	}
	c.api().CmdPushConstants(c.VKCommandBuffer, p.VKPipelineLayout, p.stageFlags, offset, data)
	return nil
}
