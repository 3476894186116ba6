package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	vk "github.com/vulkan-go/vulkan"
)

// layoutState is the native layout plus the stage and access that must complete before an
// image leaves that layout (or wait before it is used in it).
type layoutState struct {
	Layout vk.ImageLayout
	Stage  vk.PipelineStageFlags
	Access vk.AccessFlags
}

var layoutStates = map[gfx.Layout]layoutState{
	gfx.Undefined: {
		Layout: vk.ImageLayoutUndefined,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		Access: 0,
	},
	gfx.ShaderReadOnly: {
		Layout: vk.ImageLayoutShaderReadOnlyOptimal,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
		Access: vk.AccessFlags(vk.AccessShaderReadBit),
	},
	gfx.ColorAttachment: {
		Layout: vk.ImageLayoutColorAttachmentOptimal,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		Access: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	},
	gfx.DepthStencilAttachment: {
		Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		Access: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	},
	gfx.CopySource: {
		Layout: vk.ImageLayoutTransferSrcOptimal,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Access: vk.AccessFlags(vk.AccessTransferReadBit),
	},
	gfx.CopyDestination: {
		Layout: vk.ImageLayoutTransferDstOptimal,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Access: vk.AccessFlags(vk.AccessTransferWriteBit),
	},
	gfx.ComputeStorage: {
		Layout: vk.ImageLayoutGeneral,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Access: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
	},
}

func stateOf(l gfx.Layout) layoutState {
	s, ok := layoutStates[l]
	if !ok {
		return layoutStates[gfx.Undefined]
	}
	return s
}

// imageBarrier builds the barrier moving a subresource range from one layout to another.
func imageBarrier(img vk.Image, aspect vk.ImageAspectFlags, from, to gfx.Layout, baseMip, levels, baseLayer, layers int) (vk.ImageMemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	src := stateOf(from)
	dst := stateOf(to)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           src.Layout,
		NewLayout:           dst.Layout,
		SrcAccessMask:       src.Access,
		DstAccessMask:       dst.Access,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   uint32(baseMip),
			LevelCount:     uint32(levels),
			BaseArrayLayer: uint32(baseLayer),
			LayerCount:     uint32(layers),
		},
	}
	return barrier, src.Stage, dst.Stage
}
