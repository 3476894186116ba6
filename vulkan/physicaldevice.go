package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceLimits are the limits of a physical device the package relies on.
type DeviceLimits struct {
	MaxImageDimension2D    uint32
	MaxBoundDescriptorSets uint32
	MaxPushConstantsSize   uint32
	MaxSamplerAnisotropy   float32
	// TimestampPeriod is the number of nanoseconds per timestamp tick
	TimestampPeriod float32
}

type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// PhysicalDevice is a snapshot of what a physical device reports.
type PhysicalDevice struct {
	VKPhysicalDevice vk.PhysicalDevice
	Name             string
	Type             vk.PhysicalDeviceType
	APIVersion       uint32
	DriverVersion    uint32
	VendorID         uint32
	DeviceID         uint32
	Limits           DeviceLimits
	QueueFamilies    QueueFamilySlice
	Extensions       []string
	Heaps            []MemoryHeap

	// SamplerAnisotropy reports the samplerAnisotropy feature
	SamplerAnisotropy bool
}

func (p *PhysicalDevice) String() string {
	return p.Name
}

// TypeName names the kind of device.
func (p *PhysicalDevice) TypeName() string {
	switch p.Type {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated GPU"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete GPU"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual GPU"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	case vk.PhysicalDeviceTypeOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// VersionString formats a packed Vulkan version.
func VersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

func (p *PhysicalDevice) HasExtension(name string) bool {
	for _, e := range p.Extensions {
		if e == name {
			return true
		}
	}
	return false
}

// DeviceLocalMemory is the total size of the device local heaps.
func (p *PhysicalDevice) DeviceLocalMemory() uint64 {
	var total uint64
	for _, h := range p.Heaps {
		if h.DeviceLocal {
			total += h.Size
		}
	}
	return total
}

var deviceTypeScores = map[vk.PhysicalDeviceType]int{
	vk.PhysicalDeviceTypeDiscreteGpu:   1000,
	vk.PhysicalDeviceTypeIntegratedGpu: 500,
	vk.PhysicalDeviceTypeVirtualGpu:    200,
	vk.PhysicalDeviceTypeCpu:           100,
}

// scoreDevice rates how suitable p is. Bigger is better and 0 means it cannot be used:
// it lacks a required extension, a graphics queue or, with needPresent, a queue able
// to present.
func scoreDevice(p *PhysicalDevice, required []string, needPresent bool) int {
	for _, name := range required {
		if !p.HasExtension(name) {
			return 0
		}
	}
	sel, err := selectQueues(p.QueueFamilies, needPresent)
	if err != nil {
		return 0
	}

	score, ok := deviceTypeScores[p.Type]
	if !ok {
		score = 10
	}
	if sel.Compute != sel.Graphics {
		score += 50
	}
	if sel.Transfer != sel.Graphics {
		score += 25
	}
	if p.SamplerAnisotropy {
		score += 10
	}
	// one point per 4096 texels of maximum image size
	score += int(p.Limits.MaxImageDimension2D / 4096)
	return score
}

// Score rates the device the way Open does when choosing one. 0 means it cannot be used.
func (p *PhysicalDevice) Score(required []string, needPresent bool) int {
	return scoreDevice(p, required, needPresent)
}

// bestDevice returns the highest scoring device, or nil if none is usable.
func bestDevice(devices []*PhysicalDevice, required []string, needPresent bool) (*PhysicalDevice, int) {
	var best *PhysicalDevice
	bestScore := 0
	for _, d := range devices {
		if s := scoreDevice(d, required, needPresent); s > bestScore {
			best, bestScore = d, s
		}
	}
	return best, bestScore
}

// inspectPhysicalDevice reads the properties, queue families, extensions and memory heaps
// of device. Queue families are checked for presentation to surface unless it is nil.
func inspectPhysicalDevice(device vk.PhysicalDevice, surface vk.Surface) (*PhysicalDevice, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	props.Limits.Deref()

	p := &PhysicalDevice{
		VKPhysicalDevice: device,
		Name:             vk.ToString(props.DeviceName[:]),
		Type:             props.DeviceType,
		APIVersion:       props.ApiVersion,
		DriverVersion:    props.DriverVersion,
		VendorID:         props.VendorID,
		DeviceID:         props.DeviceID,
		Limits: DeviceLimits{
			MaxImageDimension2D:    props.Limits.MaxImageDimension2D,
			MaxBoundDescriptorSets: props.Limits.MaxBoundDescriptorSets,
			MaxPushConstantsSize:   props.Limits.MaxPushConstantsSize,
			MaxSamplerAnisotropy:   props.Limits.MaxSamplerAnisotropy,
			TimestampPeriod:        props.Limits.TimestampPeriod,
		},
	}

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()
	p.SamplerAnisotropy = features.SamplerAnisotropy == vk.True

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queues := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queues)
	for i, q := range queues {
		q.Deref()
		family := &QueueFamily{
			Index:              i,
			Flags:              q.QueueFlags,
			Count:              int(q.QueueCount),
			TimestampValidBits: q.TimestampValidBits,
		}
		if surface != nil {
			var supported vk.Bool32
			if err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supported)); err != nil {
				return nil, err
			}
			family.Present = supported == vk.True
		}
		p.QueueFamilies = append(p.QueueFamilies, family)
	}

	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, err
	}
	ext := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, ext)); err != nil {
		return nil, err
	}
	for _, e := range ext {
		e.Deref()
		p.Extensions = append(p.Extensions, vk.ToString(e.ExtensionName[:]))
	}

	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &mp)
	mp.Deref()
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		h := mp.MemoryHeaps[i]
		h.Deref()
		p.Heaps = append(p.Heaps, MemoryHeap{
			Size:        uint64(h.Size),
			DeviceLocal: h.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return p, nil
}
