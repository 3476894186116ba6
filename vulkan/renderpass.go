package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// renderTarget is implemented by the targets of this package: the swapchain and offscreen
// framebuffers.
type renderTarget interface {
	gfx.IRenderTarget
	renderPass() vk.RenderPass
	currentFramebuffer() vk.Framebuffer
	hasDepth() bool
	// renderPassEnded is called after the pass has been recorded.
	renderPassEnded()
}

// renderPassDescription describes a single subpass render pass with one color attachment
// and an optional depth attachment.
type renderPassDescription struct {
	ColorFormat vk.Format
	// DepthFormat is vk.FormatUndefined for no depth attachment
	DepthFormat vk.Format
	// FinalLayout is the layout the color attachment is left in
	FinalLayout vk.ImageLayout
}

func (r renderPassDescription) VKRenderPassCreateInfo() vk.RenderPassCreateInfo {
	attachmentDescriptions := []vk.AttachmentDescription{{
		Format:         r.ColorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    r.FinalLayout,
	}}

	colorAttachments := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachments,
	}

	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}}

	if r.DepthFormat != vk.FormatUndefined {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         r.DepthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		dependencies[0].SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependencies[0].DstStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependencies[0].DstAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	// sampled afterwards
	if r.FinalLayout == vk.ImageLayoutShaderReadOnlyOptimal {
		dependencies = append(dependencies, vk.SubpassDependency{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		})
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func (d *Device) createRenderPass(desc renderPassDescription) (vk.RenderPass, error) {
	info := desc.VKRenderPassCreateInfo()
	rp, err := d.api.CreateRenderPass(&info)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create render pass: %v", err)
	}
	return rp, nil
}

// createFramebuffer creates a framebuffer from image views, color first.
func (d *Device) createFramebuffer(rp vk.RenderPass, width, height int, views ...vk.ImageView) (vk.Framebuffer, error) {
	fbCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		Layers:          1,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(width),
		Height:          uint32(height),
	}
	fb, err := d.api.CreateFramebuffer(&fbCreateInfo)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create %dx%d framebuffer: %v", width, height, err)
	}
	return fb, nil
}
