package vulkan

import (
	"sync/atomic"

	units "github.com/docker/go-units"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DeviceMemory is one native allocation, either device local or visible to the host.
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
	HostVisible    bool
	MapCount       int32

	mapped    []byte
	destroyed bool
}

// IsMapped returns true if the memory is currently mapped
func (m *DeviceMemory) IsMapped() bool {
	return atomic.LoadInt32(&m.MapCount) > 0
}

// Map maps the whole allocation. Nested maps share one native mapping.
func (m *DeviceMemory) Map() ([]byte, error) {
	if !m.HostVisible {
		return nil, errors.Wrap(gfx.ErrContract, "mapping device local memory")
	}
	if atomic.AddInt32(&m.MapCount, 1) > 1 && m.mapped != nil {
		return m.mapped, nil
	}
	data, err := m.Device.api.MapMemory(m.VKDeviceMemory, 0, m.Size)
	if err != nil {
		atomic.AddInt32(&m.MapCount, -1)
		return nil, errors.Wrap(err, "map memory")
	}
	m.mapped = data
	return data, nil
}

// Unmap releases one Map. The native mapping goes away with the last one.
func (m *DeviceMemory) Unmap() {
	if atomic.LoadInt32(&m.MapCount) == 0 {
		return
	}
	if atomic.AddInt32(&m.MapCount, -1) == 0 {
		m.mapped = nil
		m.Device.api.UnmapMemory(m.VKDeviceMemory)
	}
}

// MapCopyUnmap copies data into the memory at offset.
func (m *DeviceMemory) MapCopyUnmap(data []byte, offset uint64) error {
	mem, err := m.Map()
	if err != nil {
		return err
	}
	copy(mem[offset:], data)
	m.Unmap()
	return nil
}

// Destroy frees the allocation, unmapping it first if needed.
func (m *DeviceMemory) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	if m.IsMapped() {
		atomic.StoreInt32(&m.MapCount, 0)
		m.mapped = nil
		m.Device.api.UnmapMemory(m.VKDeviceMemory)
	}
	m.Device.api.FreeMemory(m.VKDeviceMemory)
}

func (d *Device) findMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	mp := d.memoryProperties
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		if memoryTypeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Wrapf(gfx.ErrAllocation, "no memory type matches bits %b and properties %b", memoryTypeBits, properties)
}

func (d *Device) allocateMemory(req vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	index, err := d.findMemoryType(req.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	mem, err := d.api.AllocateMemory(uint64(req.Size), index)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "allocate %s: %v", units.BytesSize(float64(req.Size)), err)
	}

	d.log.Debug("allocated device memory",
		"size", units.BytesSize(float64(req.Size)),
		"type", index)

	return &DeviceMemory{
		Device:         d,
		VKDeviceMemory: mem,
		Size:           uint64(req.Size),
		HostVisible:    properties&vk.MemoryPropertyHostVisibleBit != 0,
	}, nil
}
