package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// SamplerDescription configures how a sampled image is filtered and addressed.
type SamplerDescription struct {
	// Linear selects linear filtering and mip interpolation, otherwise nearest
	Linear bool
	// Repeat wraps coordinates, otherwise they are clamped to the edge
	Repeat bool
	// Anisotropy above 1 enables anisotropic filtering
	Anisotropy float32
	// MaxLod of 0 allows every mip level
	MaxLod float32
}

// DefaultSampler filters linearly and repeats.
func DefaultSampler() SamplerDescription {
	return SamplerDescription{Linear: true, Repeat: true}
}

func (i *Image) samplerInfo(desc SamplerDescription) vk.SamplerCreateInfo {
	filter := vk.FilterNearest
	mipmapMode := vk.SamplerMipmapModeNearest
	if desc.Linear {
		filter = vk.FilterLinear
		mipmapMode = vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressModeClampToEdge
	if desc.Repeat {
		address = vk.SamplerAddressModeRepeat
	}
	maxLod := desc.MaxLod
	if maxLod <= 0 {
		maxLod = float32(i.mips)
	}

	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmapMode,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		MipLodBias:              0,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  maxLod,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if desc.Anisotropy > 1 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = desc.Anisotropy
		if limit := i.Device.PhysicalDevice.Limits.MaxSamplerAnisotropy; limit > 0 && desc.Anisotropy > limit {
			info.MaxAnisotropy = limit
		}
	}
	return info
}

func (i *Image) createSampler(desc SamplerDescription) error {
	info := i.samplerInfo(desc)
	s, err := i.Device.api.CreateSampler(&info)
	if err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "create sampler: %v", err)
	}
	i.VKSampler = s
	i.sampler = desc
	return nil
}

// Sampler returns the description the current sampler was created from.
func (i *Image) Sampler() SamplerDescription { return i.sampler }

// InvalidateSampler replaces the sampler and rewrites every descriptor the image is bound
// to. The old sampler must not be in use by pending work.
func (i *Image) InvalidateSampler(desc SamplerDescription) error {
	old := i.VKSampler
	if err := i.createSampler(desc); err != nil {
		return err
	}
	if old != nil {
		i.Device.api.DestroySampler(old)
	}
	return i.Rebind()
}
