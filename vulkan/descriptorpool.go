package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	// MaxSets is the number of descriptor sets one pipeline's pool can hold. The pool never
	// grows: running out is an ErrOutOfCapacity error.
	MaxSets = 50
	// descriptorsPerSet is the pool budget of each descriptor type per set.
	descriptorsPerSet = 16

	// VK_ERROR_OUT_OF_POOL_MEMORY, core since 1.1
	errorOutOfPoolMemory vk.Result = -1000069000
)

var descriptorTypes = map[gfx.ResourceKind]vk.DescriptorType{
	gfx.UniformBuffer:  vk.DescriptorTypeUniformBuffer,
	gfx.StorageBuffer:  vk.DescriptorTypeStorageBuffer,
	gfx.CombinedImage:  vk.DescriptorTypeCombinedImageSampler,
	gfx.StorageTexture: vk.DescriptorTypeStorageImage,
}

// DescriptorPool is a fixed size pool of descriptor sets.
type DescriptorPool struct {
	Device               *Device
	VKDescriptorPool     vk.DescriptorPool
	VKDescriptorPoolSize []vk.DescriptorPoolSize
	MaxSets              int

	allocated int
	destroyed bool
}

func (d *Device) createDescriptorPool(maxSets int) (*DescriptorPool, error) {
	pool := &DescriptorPool{Device: d, MaxSets: maxSets}
	for _, kind := range []gfx.ResourceKind{gfx.UniformBuffer, gfx.StorageBuffer, gfx.CombinedImage, gfx.StorageTexture} {
		pool.VKDescriptorPoolSize = append(pool.VKDescriptorPoolSize, vk.DescriptorPoolSize{
			Type:            descriptorTypes[kind],
			DescriptorCount: uint32(maxSets * descriptorsPerSet),
		})
	}

	descriptorPoolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		PoolSizeCount: uint32(len(pool.VKDescriptorPoolSize)),
		PPoolSizes:    pool.VKDescriptorPoolSize,
	}
	p, err := d.api.CreateDescriptorPool(&descriptorPoolCreateInfo)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create descriptor pool: %v", err)
	}
	pool.VKDescriptorPool = p
	return pool, nil
}

// Remaining returns how many more sets can be allocated before the next Reset.
func (p *DescriptorPool) Remaining() int { return p.MaxSets - p.allocated }

// Allocate allocates one set with layout.
func (p *DescriptorPool) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	if p.allocated >= p.MaxSets {
		return nil, errors.Wrapf(gfx.ErrOutOfCapacity, "all %d descriptor sets in use", p.MaxSets)
	}
	set, res := p.Device.api.AllocateDescriptorSet(p.VKDescriptorPool, layout)
	switch res {
	case vk.Success:
	case errorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return nil, errors.Wrapf(gfx.ErrOutOfCapacity, "allocate descriptor set: %v", vk.Error(res))
	default:
		return nil, errors.Wrapf(gfx.ErrAllocation, "allocate descriptor set: %v", vk.Error(res))
	}
	p.allocated++
	return set, nil
}

// Reset returns every set to the pool.
func (p *DescriptorPool) Reset() error {
	p.allocated = 0
	return errors.Wrap(p.Device.api.ResetDescriptorPool(p.VKDescriptorPool), "reset descriptor pool")
}

func (p *DescriptorPool) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.Device.api.DestroyDescriptorPool(p.VKDescriptorPool)
}
