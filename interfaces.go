package gfx

// IDestructable is anything owning native resources. Destroy may be called more than once.
type IDestructable interface {
	Destroy()
}

// IDeviceBuffer is a linear block of GPU memory.
type IDeviceBuffer interface {
	IDestructable
	Size() uint64
	Usage() BufferUsage
	// CopyFromCPU writes data into the buffer at offset. Only host visible buffers support it
	// and the range is not checked.
	CopyFromCPU(data []byte, offset uint64) error
	// CopyToCPU reads len(data) bytes starting at offset.
	CopyToCPU(data []byte, offset uint64) error
}

// IDeviceImage is a GPU image together with its view and, optionally, a sampler.
type IDeviceImage interface {
	IDestructable
	Width() int
	Height() int
	MipLevels() int
	Layers() int
	Format() PixelFormat
	Usage() ImageUsage
	// Layout is the layout the image is believed to be in.
	Layout() Layout
	SetLayout(l Layout)
}

// ICommandList records GPU work.
type ICommandList interface {
	Begin() error
	End() error
	Reset() error
	IsRecording() bool
	// Checkpoint leaves a named breadcrumb reported if the device is lost.
	Checkpoint(label string)
}

// IRenderTarget is something a graphics pipeline draws into.
type IRenderTarget interface {
	Width() int
	Height() int
	// Frames is the number of framebuffers the target rotates through.
	Frames() int
}

// IPipeline is a compiled set of shaders plus the descriptor sets feeding them.
type IPipeline interface {
	IDestructable
	Description() PipelineDescription
	Load(shaders ...IShader) error
	Loaded() bool
	// Bind binds resource to the shader resource called name at array index. It returns
	// false when no shader declares name.
	Bind(resource IDestructable, name string, index int) (bool, error)
	Unbind(resource IDestructable, name string, index int) error
	// Use records the pipeline and the descriptor sets of frame into cmd.
	Use(cmd ICommandList, frame int) error
	Cleanup()
}

// ISwapchain presents images to a surface.
type ISwapchain interface {
	IRenderTarget
	IDestructable
	AcquireImage() error
	Present(cmd ICommandList) error
	Resize(width, height int)
	Invalidate() error
	CurrentFrame() int
}

// ResizeObserver is notified after a swapchain rebuilds its images.
type ResizeObserver interface {
	Resized(width, height int)
}
