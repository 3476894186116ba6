package gfx

import "fmt"

// Layout is the usage an image's memory is currently organized for. Backends map every
// layout to a fixed pipeline stage and access mask when recording barriers.
type Layout int

const (
	Undefined Layout = iota
	ShaderReadOnly
	ColorAttachment
	DepthStencilAttachment
	CopySource
	CopyDestination
	ComputeStorage
)

// Layouts lists every layout in declaration order.
var Layouts = []Layout{
	Undefined,
	ShaderReadOnly,
	ColorAttachment,
	DepthStencilAttachment,
	CopySource,
	CopyDestination,
	ComputeStorage,
}

var layoutNames = [...]string{
	Undefined:              "Undefined",
	ShaderReadOnly:         "ShaderReadOnly",
	ColorAttachment:        "ColorAttachment",
	DepthStencilAttachment: "DepthStencilAttachment",
	CopySource:             "CopySource",
	CopyDestination:        "CopyDestination",
	ComputeStorage:         "ComputeStorage",
}

func (l Layout) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return fmt.Sprintf("Layout(%d)", int(l))
	}
	return layoutNames[l]
}

// BufferUsage selects both the native usage flags and where a buffer's memory lives.
type BufferUsage int

const (
	Vertex BufferUsage = iota
	Index
	Uniform
	Storage
	Staging
)

func (u BufferUsage) String() string {
	switch u {
	case Vertex:
		return "Vertex"
	case Index:
		return "Index"
	case Uniform:
		return "Uniform"
	case Storage:
		return "Storage"
	case Staging:
		return "Staging"
	}
	return fmt.Sprintf("BufferUsage(%d)", int(u))
}

// HostVisible reports whether buffers of this usage can be mapped by the CPU.
func (u BufferUsage) HostVisible() bool {
	return u == Uniform || u == Staging
}

// ImageUsage is a set of ways an image will be used.
type ImageUsage uint32

const (
	// Sampled images can be read by shaders through a sampler
	Sampled ImageUsage = 1 << iota
	// Render images are color attachments of a render target
	Render
	// Depth images are depth/stencil attachments
	Depth
	// StorageImage images can be written by compute shaders
	StorageImage
	CopyFrom
	CopyTo
)

// Has reports whether all of the bits in o are set.
func (u ImageUsage) Has(o ImageUsage) bool {
	return u&o == o
}

// PixelFormat is the backend neutral format of an image.
type PixelFormat int

const (
	RGBA8 PixelFormat = iota
	RGBA8SRGB
	BGRA8
	BGRA8SRGB
	R8
	RG8
	R32F
	RGBA16F
	RGBA32F
	Depth32F
	Depth24Stencil8
)

// BytesPerPixel returns the size of one texel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case R8:
		return 1
	case RG8:
		return 2
	case RGBA16F:
		return 8
	case RGBA32F:
		return 16
	}
	return 4
}

// IsDepth reports whether the format has a depth aspect.
func (f PixelFormat) IsDepth() bool {
	return f == Depth32F || f == Depth24Stencil8
}

type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
	ComputeStage
)

func (s ShaderStage) String() string {
	switch s {
	case VertexStage:
		return "Vertex"
	case FragmentStage:
		return "Fragment"
	case ComputeStage:
		return "Compute"
	}
	return fmt.Sprintf("ShaderStage(%d)", int(s))
}

type PipelineType int

const (
	Graphics PipelineType = iota
	Compute
)

type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
)

type FrontFace int

const (
	CounterClockwise FrontFace = iota
	Clockwise
)

type Topology int

const (
	TriangleList Topology = iota
	TriangleStrip
	LineList
	PointList
)

type IndexType int

const (
	UInt16 IndexType = iota
	UInt32
)

// SemaphoreKind tags a semaphore attached to a command list.
type SemaphoreKind int

const (
	// Wait semaphores must be signaled before the command list executes
	Wait SemaphoreKind = iota
	// Signal semaphores are signaled once the command list completes
	Signal
)

// QueueCapability describes the kind of work a queue accepts.
type QueueCapability uint32

const (
	GraphicsCapability QueueCapability = 1 << iota
	ComputeCapability
	TransferCapability
)

func (c QueueCapability) Has(o QueueCapability) bool {
	return c&o == o
}

func (c QueueCapability) String() string {
	s := ""
	for _, n := range []struct {
		c    QueueCapability
		name string
	}{{GraphicsCapability, "graphics"}, {ComputeCapability, "compute"}, {TransferCapability, "transfer"}} {
		if c.Has(n.c) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}
