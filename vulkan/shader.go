package vulkan

import (
	"os"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

var shaderStages = map[gfx.ShaderStage]vk.ShaderStageFlagBits{
	gfx.VertexStage:   vk.ShaderStageVertexBit,
	gfx.FragmentStage: vk.ShaderStageFragmentBit,
	gfx.ComputeStage:  vk.ShaderStageComputeBit,
}

// ShaderModule is a SPIR-V module for one stage.
type ShaderModule struct {
	Device         *Device
	Stage          gfx.ShaderStage
	EntryPoint     string
	VKShaderModule vk.ShaderModule
}

func (d *Device) createShaderModule(s gfx.IShader) (*ShaderModule, error) {
	code := s.Bytecode()
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(gfx.ErrCompilation, "%s shader: %d bytes is not SPIR-V", s.Stage(), len(code))
	}
	module, err := d.api.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrCompilation, "%s shader module: %v", s.Stage(), err)
	}
	return &ShaderModule{
		Device:         d,
		Stage:          s.Stage(),
		EntryPoint:     s.EntryPoint(),
		VKShaderModule: module,
	}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStages[s.Stage],
		Module: s.VKShaderModule,
		PName:  safeString(s.EntryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	s.Device.api.DestroyShaderModule(s.VKShaderModule)
}

// LoadShader reads a SPIR-V file. The reflection data has to be supplied by the caller.
func LoadShader(file string, stage gfx.ShaderStage, resources ...gfx.ShaderResource) (*gfx.Shader, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s shader", stage)
	}
	return gfx.NewShader(stage, "main", data, resources...), nil
}
