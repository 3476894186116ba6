package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	vk "github.com/vulkan-go/vulkan"
)

var vertexFormats = map[gfx.VertexFormat]vk.Format{
	gfx.Float:      vk.FormatR32Sfloat,
	gfx.Float2:     vk.FormatR32g32Sfloat,
	gfx.Float3:     vk.FormatR32g32b32Sfloat,
	gfx.Float4:     vk.FormatR32g32b32a32Sfloat,
	gfx.UByte4Norm: vk.FormatR8g8b8a8Unorm,
}

var topologies = map[gfx.Topology]vk.PrimitiveTopology{
	gfx.TriangleList:  vk.PrimitiveTopologyTriangleList,
	gfx.TriangleStrip: vk.PrimitiveTopologyTriangleStrip,
	gfx.LineList:      vk.PrimitiveTopologyLineList,
	gfx.PointList:     vk.PrimitiveTopologyPointList,
}

// GraphicsPipelineConfig holds the fixed function state of a graphics pipeline.
type GraphicsPipelineConfig struct {
	// PrimitiveTopology defaults to VK_PRIMITIVE_TOPOLOGY_TRIANGLE_LIST
	PrimitiveTopology vk.PrimitiveTopology

	// PolygonMode defaults to VK_POLYGON_MODE_FILL
	PolygonMode vk.PolygonMode

	LineWidth float32

	// CullMode defaults to vk.CullModeBackBit
	CullMode vk.CullModeFlagBits

	// FrontFace defaults to vk.FrontFaceCounterClockwise
	FrontFace vk.FrontFace

	// DynamicState lists the state set while recording. Viewport and scissor always are.
	DynamicState []vk.DynamicState

	// BlendAttachments has one entry per color attachment
	BlendAttachments []vk.PipelineColorBlendAttachmentState

	DepthTestEnable  bool
	DepthWriteEnable bool

	VertexInputBindingDescriptions   []vk.VertexInputBindingDescription
	VertexInputAttributeDescriptions []vk.VertexInputAttributeDescription
}

func blendAttachment(mode gfx.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable:    vk.False,
	}
	switch mode {
	case gfx.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.AlphaBlendOp = vk.BlendOpAdd
	case gfx.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

// newGraphicsPipelineConfig derives the fixed function state from a pipeline description.
func newGraphicsPipelineConfig(desc gfx.PipelineDescription) *GraphicsPipelineConfig {
	g := &GraphicsPipelineConfig{
		PrimitiveTopology: vk.PrimitiveTopologyTriangleList,
		PolygonMode:       vk.PolygonModeFill,
		LineWidth:         1.0,
		CullMode:          vk.CullModeBackBit,
		FrontFace:         vk.FrontFaceCounterClockwise,
		DynamicState:      []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		BlendAttachments:  []vk.PipelineColorBlendAttachmentState{blendAttachment(desc.BlendMode)},
		DepthTestEnable:   desc.DepthTesting,
		DepthWriteEnable:  desc.DepthTesting,
	}
	if t, ok := topologies[desc.Topology]; ok {
		g.PrimitiveTopology = t
	}
	if desc.DisableCulling {
		g.CullMode = vk.CullModeNone
	}
	if desc.FrontFace == gfx.Clockwise {
		g.FrontFace = vk.FrontFaceClockwise
	}

	if desc.Vertex.Stride > 0 {
		g.VertexInputBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.Vertex.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		for _, a := range desc.Vertex.Attributes {
			g.VertexInputAttributeDescriptions = append(g.VertexInputAttributeDescriptions, vk.VertexInputAttributeDescription{
				Location: uint32(a.Location),
				Binding:  0,
				Format:   vertexFormats[a.Format],
				Offset:   a.Offset,
			})
		}
	}
	return g
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// VKGraphicsPipelineCreateInfo builds the create info for the given stages, layout and
// render pass. Viewport and scissor are dynamic.
func (g *GraphicsPipelineConfig) VKGraphicsPipelineCreateInfo(stages []vk.PipelineShaderStageCreateInfo, layout vk.PipelineLayout, renderPass vk.RenderPass) vk.GraphicsPipelineCreateInfo {
	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(g.VertexInputBindingDescriptions)),
		PVertexBindingDescriptions:      g.VertexInputBindingDescriptions,
		VertexAttributeDescriptionCount: uint32(len(g.VertexInputAttributeDescriptions)),
		PVertexAttributeDescriptions:    g.VertexInputAttributeDescriptions,
	}

	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               g.PrimitiveTopology,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             g.PolygonMode,
		LineWidth:               g.LineWidth,
		CullMode:                vk.CullModeFlags(g.CullMode),
		FrontFace:               g.FrontFace,
		DepthBiasEnable:         vk.False,
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(g.BlendAttachments)),
		PAttachments:    g.BlendAttachments,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(g.DynamicState)),
		PDynamicStates:    g.DynamicState,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(g.DepthTestEnable),
		DepthWriteEnable:      vkBool(g.DepthWriteEnable),
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0.0,
		MaxDepthBounds:        1.0,
		StencilTestEnable:     vk.False,
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PDepthStencilState:  &depthStencil,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
	}
}
