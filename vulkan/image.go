package vulkan

import (
	"math/bits"

	units "github.com/docker/go-units"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

var pixelFormats = map[gfx.PixelFormat]vk.Format{
	gfx.RGBA8:           vk.FormatR8g8b8a8Unorm,
	gfx.RGBA8SRGB:       vk.FormatR8g8b8a8Srgb,
	gfx.BGRA8:           vk.FormatB8g8r8a8Unorm,
	gfx.BGRA8SRGB:       vk.FormatB8g8r8a8Srgb,
	gfx.R8:              vk.FormatR8Unorm,
	gfx.RG8:             vk.FormatR8g8Unorm,
	gfx.R32F:            vk.FormatR32Sfloat,
	gfx.RGBA16F:         vk.FormatR16g16b16a16Sfloat,
	gfx.RGBA32F:         vk.FormatR32g32b32a32Sfloat,
	gfx.Depth32F:        vk.FormatD32Sfloat,
	gfx.Depth24Stencil8: vk.FormatD24UnormS8Uint,
}

// NativeFormat converts a pixel format to its Vulkan format.
func NativeFormat(f gfx.PixelFormat) (vk.Format, error) {
	native, ok := pixelFormats[f]
	if !ok {
		return vk.FormatUndefined, errors.Wrapf(gfx.ErrContract, "pixel format %d", f)
	}
	return native, nil
}

// PixelFormatOf converts back from a Vulkan format.
func PixelFormatOf(f vk.Format) (gfx.PixelFormat, bool) {
	for pf, native := range pixelFormats {
		if native == f {
			return pf, true
		}
	}
	return 0, false
}

// ImageDescription describes an image to create.
type ImageDescription struct {
	Width, Height int
	Format        gfx.PixelFormat
	Usage         gfx.ImageUsage
	// MipLevels of 0 requests the full chain. Depth attachments always get one level.
	MipLevels int
	// Cube creates six array layers viewed as a cube map
	Cube bool
	// Sampler is used when the image is Sampled. nil means DefaultSampler.
	Sampler *SamplerDescription
}

// FullMipChain returns floor(log2(max(width, height))) + 1.
func FullMipChain(width, height int) int {
	m := width
	if height > m {
		m = height
	}
	if m < 1 {
		return 1
	}
	return bits.Len(uint(m))
}

func (desc ImageDescription) mipLevels() int {
	if desc.Usage.Has(gfx.Depth) {
		return 1
	}
	if desc.MipLevels > 0 {
		return desc.MipLevels
	}
	return FullMipChain(desc.Width, desc.Height)
}

// LayoutObserver is told when an image's layout changes.
type LayoutObserver interface {
	LayoutChanged(img *Image, from, to gfx.Layout)
}

// Image is a 2D or cube image with its view, memory and optional sampler.
type Image struct {
	bindings

	Device      *Device
	VKImage     vk.Image
	VKImageView vk.ImageView
	VKSampler   vk.Sampler
	VKFormat    vk.Format
	Memory      *DeviceMemory

	width, height int
	format        gfx.PixelFormat
	usage         gfx.ImageUsage
	mips, layers  int
	cube          bool
	aspect        vk.ImageAspectFlags
	layout        gfx.Layout
	sampler       SamplerDescription
	observers     []LayoutObserver
	// owned is false for images wrapping swapchain images
	owned     bool
	destroyed bool
}

var _ gfx.IDeviceImage = (*Image)(nil)

func aspectOf(f gfx.PixelFormat) vk.ImageAspectFlags {
	switch f {
	case gfx.Depth32F:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case gfx.Depth24Stencil8:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageUsageFlags(u gfx.ImageUsage, mips int) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.Has(gfx.Sampled) {
		flags |= vk.ImageUsageSampledBit
	}
	if u.Has(gfx.Render) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(gfx.Depth) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(gfx.StorageImage) {
		flags |= vk.ImageUsageStorageBit
	}
	if u.Has(gfx.CopyFrom) || mips > 1 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u.Has(gfx.CopyTo) || mips > 1 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

// CreateImage creates a device local image in the Undefined layout.
func (d *Device) CreateImage(desc ImageDescription) (*Image, error) {
	if desc.Width < 1 || desc.Height < 1 {
		return nil, errors.Wrapf(gfx.ErrContract, "image size %dx%d", desc.Width, desc.Height)
	}
	format, err := NativeFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	if desc.Usage.Has(gfx.Depth) != desc.Format.IsDepth() {
		return nil, errors.Wrapf(gfx.ErrContract, "depth usage requires a depth format")
	}

	img := &Image{
		Device:   d,
		VKFormat: format,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		usage:    desc.Usage,
		mips:     desc.mipLevels(),
		layers:   1,
		cube:     desc.Cube,
		aspect:   aspectOf(desc.Format),
		layout:   gfx.Undefined,
		owned:    true,
	}
	img.bindings.init(img)

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
			Depth:  1,
		},
		MipLevels:     uint32(img.mips),
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsageFlags(desc.Usage, img.mips),
		InitialLayout: vk.ImageLayoutUndefined,
	}
	imageInfo.SharingMode, imageInfo.PQueueFamilyIndices = d.sharing()
	imageInfo.QueueFamilyIndexCount = uint32(len(imageInfo.PQueueFamilyIndices))
	if desc.Cube {
		img.layers = 6
		imageInfo.ArrayLayers = 6
		imageInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	if img.VKImage, err = d.api.CreateImage(&imageInfo); err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create %dx%d image: %v", desc.Width, desc.Height, err)
	}
	req := d.api.ImageMemoryRequirements(img.VKImage)
	if img.Memory, err = d.allocateMemory(req, vk.MemoryPropertyDeviceLocalBit); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := d.api.BindImageMemory(img.VKImage, img.Memory.VKDeviceMemory, 0); err != nil {
		img.Destroy()
		return nil, errors.Wrapf(gfx.ErrAllocation, "bind image memory: %v", err)
	}
	if err := img.createView(); err != nil {
		img.Destroy()
		return nil, err
	}

	if desc.Usage.Has(gfx.Sampled) {
		sampler := DefaultSampler()
		if desc.Sampler != nil {
			sampler = *desc.Sampler
		}
		if err := img.createSampler(sampler); err != nil {
			img.Destroy()
			return nil, err
		}
	}

	d.log.Debug("created image",
		"width", desc.Width, "height", desc.Height,
		"mips", img.mips, "layers", img.layers,
		"size", units.BytesSize(float64(req.Size)))
	return img, nil
}

// wrapImage wraps an image owned by someone else, such as a swapchain.
func (d *Device) wrapImage(vkImage vk.Image, format vk.Format, width, height int) (*Image, error) {
	pf, _ := PixelFormatOf(format)
	img := &Image{
		Device:   d,
		VKImage:  vkImage,
		VKFormat: format,
		width:    width,
		height:   height,
		format:   pf,
		usage:    gfx.Render,
		mips:     1,
		layers:   1,
		aspect:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
		layout:   gfx.Undefined,
	}
	img.bindings.init(img)
	if err := img.createView(); err != nil {
		return nil, err
	}
	return img, nil
}

func (i *Image) createView() error {
	viewType := vk.ImageViewType2d
	if i.cube {
		viewType = vk.ImageViewTypeCube
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.VKImage,
		ViewType: viewType,
		Format:   i.VKFormat,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     i.aspect,
			BaseMipLevel:   0,
			LevelCount:     uint32(i.mips),
			BaseArrayLayer: 0,
			LayerCount:     uint32(i.layers),
		},
	}
	view, err := i.Device.api.CreateImageView(&viewInfo)
	if err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "create image view: %v", err)
	}
	i.VKImageView = view
	return nil
}

func (i *Image) Width() int { return i.width }
func (i *Image) Height() int { return i.height }
func (i *Image) MipLevels() int { return i.mips }
func (i *Image) Layers() int { return i.layers }
func (i *Image) Format() gfx.PixelFormat { return i.format }
func (i *Image) Usage() gfx.ImageUsage { return i.usage }
func (i *Image) Layout() gfx.Layout { return i.layout }

// MipSize returns the dimensions of a mip level.
func (i *Image) MipSize(level int) (int, int) {
	w, h := i.width>>level, i.height>>level
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// SetLayout records that the image is now in l. Every descriptor the image is bound to is
// rewritten with the new layout and the observers are told.
func (i *Image) SetLayout(l gfx.Layout) {
	if l == i.layout {
		return
	}
	from := i.layout
	i.layout = l
	if err := i.Rebind(); err != nil {
		i.Device.log.Warn("rebinding image after layout change", "from", from, "to", l, "err", err)
	}
	for _, o := range i.observers {
		o.LayoutChanged(i, from, l)
	}
}

// Watch registers o for layout changes.
func (i *Image) Watch(o LayoutObserver) {
	i.observers = append(i.observers, o)
}

func (i *Image) Unwatch(o LayoutObserver) {
	for n, w := range i.observers {
		if w == o {
			i.observers = append(i.observers[:n], i.observers[n+1:]...)
			return
		}
	}
}

// TransitionLayout records a barrier moving a subresource range from one layout to
// another. It records nothing when from equals to. Layout() is not updated.
func (i *Image) TransitionLayout(cmd *CommandBuffer, from, to gfx.Layout, baseMip, levelCount, baseLayer, layerCount int) {
	if from == to {
		return
	}
	barrier, src, dst := imageBarrier(i.VKImage, i.aspect, from, to, baseMip, levelCount, baseLayer, layerCount)
	i.Device.api.CmdPipelineBarrier(cmd.VKCommandBuffer, src, dst, []vk.ImageMemoryBarrier{barrier})
}

// Transition moves the whole image from Layout() to l and updates Layout().
func (i *Image) Transition(cmd *CommandBuffer, l gfx.Layout) {
	i.TransitionLayout(cmd, i.layout, l, 0, i.mips, 0, i.layers)
	i.SetLayout(l)
}

func (i *Image) layers0() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     i.aspect,
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     uint32(i.layers),
	}
}

// CopyFromBuffer copies tightly packed texels of every layer of mip 0 from buf and
// regenerates the other mips. The image must be in current and is left in current.
func (i *Image) CopyFromBuffer(cmd *CommandBuffer, buf *Buffer, current gfx.Layout) error {
	return i.CopyFromBufferAt(cmd, buf, 0, current)
}

// CopyFromBufferAt is CopyFromBuffer reading from offset into buf.
func (i *Image) CopyFromBufferAt(cmd *CommandBuffer, buf *Buffer, offset uint64, current gfx.Layout) error {
	if buf.Device != i.Device {
		return errors.Wrap(gfx.ErrContract, "copy between objects of different devices")
	}
	i.TransitionLayout(cmd, current, gfx.CopyDestination, 0, i.mips, 0, i.layers)

	region := vk.BufferImageCopy{
		BufferOffset:     vk.DeviceSize(offset),
		ImageSubresource: i.layers0(),
		ImageExtent:      vk.Extent3D{Width: uint32(i.width), Height: uint32(i.height), Depth: 1},
	}
	i.Device.api.CmdCopyBufferToImage(cmd.VKCommandBuffer, buf.VKBuffer, i.VKImage,
		vk.ImageLayoutTransferDstOptimal, []vk.BufferImageCopy{region})

	if i.mips > 1 {
		i.GenerateMipmaps(cmd, current)
		i.TransitionLayout(cmd, gfx.CopyDestination, current, i.mips-1, 1, 0, i.layers)
	} else {
		i.TransitionLayout(cmd, gfx.CopyDestination, current, 0, 1, 0, i.layers)
	}
	return nil
}

// CopyToBuffer copies every layer of mip 0 into buf. The image must be in current and is
// left in current.
func (i *Image) CopyToBuffer(cmd *CommandBuffer, buf *Buffer, current gfx.Layout) error {
	if buf.Device != i.Device {
		return errors.Wrap(gfx.ErrContract, "copy between objects of different devices")
	}
	i.TransitionLayout(cmd, current, gfx.CopySource, 0, 1, 0, i.layers)
	region := vk.BufferImageCopy{
		ImageSubresource: i.layers0(),
		ImageExtent:      vk.Extent3D{Width: uint32(i.width), Height: uint32(i.height), Depth: 1},
	}
	i.Device.api.CmdCopyImageToBuffer(cmd.VKCommandBuffer, i.VKImage,
		vk.ImageLayoutTransferSrcOptimal, buf.VKBuffer, []vk.BufferImageCopy{region})
	i.TransitionLayout(cmd, gfx.CopySource, current, 0, 1, 0, i.layers)
	return nil
}

// GenerateMipmaps fills mips 1..n-1 by blitting each level from the one above it.
// Every level must be in CopyDestination. Afterwards all levels but the last are in
// current and the last one is still in CopyDestination.
func (i *Image) GenerateMipmaps(cmd *CommandBuffer, current gfx.Layout) {
	filter := vk.FilterNearest
	if i.Device.linearFilter(i.VKFormat) {
		filter = vk.FilterLinear
	}

	for level := 1; level < i.mips; level++ {
		srcW, srcH := i.MipSize(level - 1)
		dstW, dstH := i.MipSize(level)

		i.TransitionLayout(cmd, gfx.CopyDestination, gfx.CopySource, level-1, 1, 0, i.layers)

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask:     i.aspect,
				MipLevel:       uint32(level - 1),
				BaseArrayLayer: 0,
				LayerCount:     uint32(i.layers),
			},
			SrcOffsets: [2]vk.Offset3D{{X: 0, Y: 0, Z: 0}, {X: int32(srcW), Y: int32(srcH), Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask:     i.aspect,
				MipLevel:       uint32(level),
				BaseArrayLayer: 0,
				LayerCount:     uint32(i.layers),
			},
			DstOffsets: [2]vk.Offset3D{{X: 0, Y: 0, Z: 0}, {X: int32(dstW), Y: int32(dstH), Z: 1}},
		}
		i.Device.api.CmdBlitImage(cmd.VKCommandBuffer,
			i.VKImage, vk.ImageLayoutTransferSrcOptimal,
			i.VKImage, vk.ImageLayoutTransferDstOptimal,
			[]vk.ImageBlit{blit}, filter)

		i.TransitionLayout(cmd, gfx.CopySource, current, level-1, 1, 0, i.layers)
	}
}

// CopyCubeFace copies mip 0 of the 2D image src into one face of the cube image i.
func (i *Image) CopyCubeFace(cmd *CommandBuffer, src *Image, face int, srcCurrent, current gfx.Layout) error {
	switch {
	case !i.cube:
		return errors.Wrap(gfx.ErrContract, "destination is not a cube map")
	case src.layers != 1:
		return errors.Wrap(gfx.ErrContract, "source must be a 2D image")
	case src.width != i.width || src.height != i.height:
		return errors.Wrapf(gfx.ErrContract, "face size %dx%d, source %dx%d", i.width, i.height, src.width, src.height)
	case face < 0 || face >= i.layers:
		return errors.Wrapf(gfx.ErrContract, "face %d out of range [0, %d)", face, i.layers)
	}

	src.TransitionLayout(cmd, srcCurrent, gfx.CopySource, 0, 1, 0, 1)
	i.TransitionLayout(cmd, current, gfx.CopyDestination, 0, 1, face, 1)

	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: src.aspect, MipLevel: 0, BaseArrayLayer: 0, LayerCount: 1},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: i.aspect, MipLevel: 0, BaseArrayLayer: uint32(face), LayerCount: 1},
		Extent:         vk.Extent3D{Width: uint32(i.width), Height: uint32(i.height), Depth: 1},
	}
	i.Device.api.CmdCopyImage(cmd.VKCommandBuffer,
		src.VKImage, vk.ImageLayoutTransferSrcOptimal,
		i.VKImage, vk.ImageLayoutTransferDstOptimal,
		[]vk.ImageCopy{region})

	i.TransitionLayout(cmd, gfx.CopyDestination, current, 0, 1, face, 1)
	src.TransitionLayout(cmd, gfx.CopySource, srcCurrent, 0, 1, 0, 1)
	return nil
}

// descriptorLayout is the layout descriptors describe the image in. Images that are not
// in a shader readable layout are expected to reach one before the descriptor is used.
func (i *Image) descriptorLayout() vk.ImageLayout {
	switch i.layout {
	case gfx.ShaderReadOnly, gfx.ComputeStorage:
		return stateOf(i.layout).Layout
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func (i *Image) descriptorInfo(kind gfx.ResourceKind) (descriptorInfo, error) {
	switch kind {
	case gfx.CombinedImage:
		if i.VKSampler == nil {
			return descriptorInfo{}, errors.Wrap(gfx.ErrContract, "image has no sampler")
		}
		return descriptorInfo{Image: &vk.DescriptorImageInfo{
			Sampler:     i.VKSampler,
			ImageView:   i.VKImageView,
			ImageLayout: i.descriptorLayout(),
		}}, nil
	case gfx.StorageTexture:
		return descriptorInfo{Image: &vk.DescriptorImageInfo{
			ImageView:   i.VKImageView,
			ImageLayout: vk.ImageLayoutGeneral,
		}}, nil
	}
	return descriptorInfo{}, errors.Wrapf(gfx.ErrContract, "image bound to resource kind %d", kind)
}

// Destroy unbinds the image from every pipeline and frees what it owns.
func (i *Image) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	i.bindings.release()
	i.observers = nil
	api := i.Device.api
	if i.VKSampler != nil {
		api.DestroySampler(i.VKSampler)
	}
	if i.VKImageView != nil {
		api.DestroyImageView(i.VKImageView)
	}
	if !i.owned {
		return
	}
	if i.VKImage != nil {
		api.DestroyImage(i.VKImage)
	}
	if i.Memory != nil {
		i.Memory.Destroy()
	}
}
