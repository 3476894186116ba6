package vulkan

import (
	units "github.com/docker/go-units"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Buffer is a linear block of device memory. Uniform and staging buffers live in host
// visible memory and stay mapped for their whole life.
type Buffer struct {
	bindings

	Device   *Device
	VKBuffer vk.Buffer
	Memory   *DeviceMemory

	size      uint64
	usage     gfx.BufferUsage
	mapped    []byte
	destroyed bool
}

var _ gfx.IDeviceBuffer = (*Buffer)(nil)

// bufferUsageFlags maps a usage class to the native usage and memory residency.
func bufferUsageFlags(usage gfx.BufferUsage) (vk.BufferUsageFlags, vk.MemoryPropertyFlagBits, error) {
	transfer := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	deviceLocal := vk.MemoryPropertyDeviceLocalBit
	hostVisible := vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

	switch usage {
	case gfx.Vertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | transfer), deviceLocal, nil
	case gfx.Index:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit | transfer), deviceLocal, nil
	case gfx.Storage:
		return vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | transfer), deviceLocal, nil
	case gfx.Uniform:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), hostVisible, nil
	case gfx.Staging:
		return vk.BufferUsageFlags(transfer), hostVisible, nil
	}
	return 0, 0, errors.Wrapf(gfx.ErrContract, "unknown buffer usage %d", usage)
}

// CreateBuffer creates a buffer of size bytes whose flags and memory follow usage.
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size uint64) (*Buffer, error) {
	if size == 0 {
		return nil, errors.Wrap(gfx.ErrContract, "zero sized buffer")
	}
	flags, properties, err := bufferUsageFlags(usage)
	if err != nil {
		return nil, err
	}

	sharing, families := d.sharing()
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(size),
		Usage:                 flags,
		SharingMode:           sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}
	vkb, err := d.api.CreateBuffer(&bufferCreateInfo)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create %s buffer: %v", usage, err)
	}

	mem, err := d.allocateMemory(d.api.BufferMemoryRequirements(vkb), properties)
	if err != nil {
		d.api.DestroyBuffer(vkb)
		return nil, err
	}
	if err := d.api.BindBufferMemory(vkb, mem.VKDeviceMemory, 0); err != nil {
		mem.Destroy()
		d.api.DestroyBuffer(vkb)
		return nil, errors.Wrapf(gfx.ErrAllocation, "bind buffer memory: %v", err)
	}

	b := &Buffer{Device: d, VKBuffer: vkb, Memory: mem, size: size, usage: usage}
	b.bindings.init(b)

	if usage.HostVisible() {
		if b.mapped, err = mem.Map(); err != nil {
			b.Destroy()
			return nil, err
		}
	}

	d.log.Debug("created buffer", "usage", usage, "size", units.BytesSize(float64(size)))
	return b, nil
}

func (b *Buffer) Size() uint64 { return b.size }
func (b *Buffer) Usage() gfx.BufferUsage { return b.usage }

// CopyFromCPU copies data into the buffer at offset. The range is not checked.
func (b *Buffer) CopyFromCPU(data []byte, offset uint64) error {
	if b.mapped == nil {
		return errors.Wrapf(gfx.ErrContract, "%s buffer is not host visible", b.usage)
	}
	copy(b.mapped[offset:], data)
	return nil
}

// CopyToCPU fills data from the buffer starting at offset. The range is not checked.
func (b *Buffer) CopyToCPU(data []byte, offset uint64) error {
	if b.mapped == nil {
		return errors.Wrapf(gfx.ErrContract, "%s buffer is not host visible", b.usage)
	}
	copy(data, b.mapped[offset:])
	return nil
}

// CopyBuffers records a copy of size bytes from b into dst.
func (b *Buffer) CopyBuffers(cmd *CommandBuffer, dst *Buffer, size, srcOffset, dstOffset uint64) error {
	if dst.Device != b.Device {
		return errors.Wrap(gfx.ErrContract, "copy between buffers of different devices")
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	b.Device.api.CmdCopyBuffer(cmd.VKCommandBuffer, b.VKBuffer, dst.VKBuffer, []vk.BufferCopy{region})
	return nil
}

// BindVertices binds the buffer as the vertex stream at binding.
func (b *Buffer) BindVertices(cmd *CommandBuffer, binding int, offset uint64) {
	b.Device.api.CmdBindVertexBuffers(cmd.VKCommandBuffer, uint32(binding),
		[]vk.Buffer{b.VKBuffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

// BindIndices binds the buffer as the index buffer.
func (b *Buffer) BindIndices(cmd *CommandBuffer, indexType gfx.IndexType, offset uint64) error {
	var t vk.IndexType
	switch indexType {
	case gfx.UInt16:
		t = vk.IndexTypeUint16
	case gfx.UInt32:
		t = vk.IndexTypeUint32
	default:
		return errors.Wrapf(gfx.ErrContract, "index type %d", indexType)
	}
	b.Device.api.CmdBindIndexBuffer(cmd.VKCommandBuffer, b.VKBuffer, offset, t)
	return nil
}

func (b *Buffer) descriptorInfo(kind gfx.ResourceKind) (descriptorInfo, error) {
	switch kind {
	case gfx.UniformBuffer, gfx.StorageBuffer:
	default:
		return descriptorInfo{}, errors.Wrapf(gfx.ErrContract, "buffer bound to resource kind %d", kind)
	}
	return descriptorInfo{Buffer: &vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: 0,
		Range:  vk.DeviceSize(b.size),
	}}, nil
}

// Destroy unbinds the buffer from every pipeline and frees it.
func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.bindings.release()
	b.mapped = nil
	b.Device.api.DestroyBuffer(b.VKBuffer)
	b.Memory.Destroy()
}
