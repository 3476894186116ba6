package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// framesInFlight is how many frames the CPU may record ahead of the GPU.
const framesInFlight = 2

// SwapchainOptions configure a swapchain.
type SwapchainOptions struct {
	// Width and Height are used when the surface leaves the extent to the application.
	Width, Height int
	// VSync selects FIFO presentation
	VSync bool
	// ImageCount of 0 requests one image more than the surface minimum
	ImageCount int
	// Depth adds a Depth32F attachment to every framebuffer
	Depth bool
}

// frameSlot holds the synchronization of one frame in flight.
type frameSlot struct {
	fence          *Fence
	imageAvailable *Semaphore
	renderFinished *Semaphore
}

func (f *frameSlot) destroy() {
	f.fence.Destroy()
	f.imageAvailable.Destroy()
	f.renderFinished.Destroy()
}

// Swapchain presents to a surface. It is the render target of pipelines drawing to the
// screen and rotates through framesInFlight frames.
type Swapchain struct {
	Device       *Device
	Surface      vk.Surface
	VKSwapchain  vk.Swapchain
	VKRenderPass vk.RenderPass
	Format       vk.SurfaceFormat
	PresentMode  vk.PresentMode
	Extent       vk.Extent2D

	options       SwapchainOptions
	images        []*Image
	framebuffers  []vk.Framebuffer
	depth         *Image
	slots         []*frameSlot
	imageFences   []*Fence
	frame         int
	imageIndex    int
	pendingResize bool
	observers     []gfx.ResizeObserver
	log           *slog.Logger
	destroyed     bool
}

var _ gfx.ISwapchain = (*Swapchain)(nil)

// CreateSwapchain creates a swapchain for surface. The device must have been created with
// a present queue for the same surface.
func (d *Device) CreateSwapchain(surface vk.Surface, opts SwapchainOptions) (*Swapchain, error) {
	if d.Present == nil {
		return nil, errors.Wrap(gfx.ErrMissingCapability, "device has no present queue")
	}
	s := &Swapchain{
		Device:  d,
		Surface: surface,
		options: opts,
		log:     d.log.With("component", "swapchain"),
	}
	if err := s.Invalidate(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// choosePresentMode picks FIFO for vsync, otherwise the first of mailbox, immediate and FIFO
// the surface supports.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseSurfaceFormat prefers 8 bit BGRA and falls back to whatever is listed first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.Wrap(gfx.ErrMissingCapability, "surface reports no formats")
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm || f.Format == vk.FormatB8g8r8a8Srgb {
			return f, nil
		}
	}
	// VK_FORMAT_UNDEFINED means any format is fine
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: formats[0].ColorSpace}, nil
	}
	return formats[0], nil
}

// imageCount returns requested, or min+1, clamped to what the surface allows. A maximum of
// 0 means there is no limit.
func imageCount(caps vk.SurfaceCapabilities, requested int) uint32 {
	count := uint32(requested)
	if count == 0 {
		count = caps.MinImageCount + 1
	}
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Swapchain) extent(caps vk.SurfaceCapabilities) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(uint32(s.options.Width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(s.options.Height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// Invalidate waits for the device to go idle and rebuilds the swapchain, its framebuffers
// and the depth image at the current surface size. The render pass and the frame slots
// are created the first time only. The frame index restarts at 0.
func (s *Swapchain) Invalidate() error {
	d := s.Device
	api := d.api
	if err := d.WaitIdle(); err != nil {
		return err
	}

	caps, err := api.SurfaceCapabilities(s.Surface)
	if err != nil {
		return errors.Wrap(err, "surface capabilities")
	}
	extent := s.extent(caps)
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Wrap(gfx.ErrContract, "surface has no area")
	}
	formats, err := api.SurfaceFormats(s.Surface)
	if err != nil {
		return errors.Wrap(err, "surface formats")
	}
	format, err := chooseSurfaceFormat(formats)
	if err != nil {
		return err
	}
	modes, err := api.PresentModes(s.Surface)
	if err != nil {
		return errors.Wrap(err, "present modes")
	}

	s.destroyFramebuffers()

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.Surface,
		MinImageCount:    imageCount(caps, s.options.ImageCount),
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      choosePresentMode(modes, s.options.VSync),
		Clipped:          vk.True,
		OldSwapchain:     s.VKSwapchain,
	}
	graphics, present := uint32(d.Graphics.Family.Index), uint32(d.Present.Family.Index)
	if graphics != present {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{graphics, present}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	swapchain, err := api.CreateSwapchain(&createInfo)
	if err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "create swapchain: %v", err)
	}
	old := s.VKSwapchain
	s.destroyImages()
	if old != nil {
		api.DestroySwapchain(old)
	}
	s.VKSwapchain = swapchain
	s.Format = format
	s.PresentMode = createInfo.PresentMode
	s.Extent = extent

	vkImages, err := api.SwapchainImages(swapchain)
	if err != nil {
		return errors.Wrap(err, "swapchain images")
	}
	for _, vkImage := range vkImages {
		img, err := d.wrapImage(vkImage, format.Format, int(extent.Width), int(extent.Height))
		if err != nil {
			return err
		}
		s.images = append(s.images, img)
	}

	if s.VKRenderPass == nil {
		rp := renderPassDescription{
			ColorFormat: format.Format,
			DepthFormat: vk.FormatUndefined,
			FinalLayout: vk.ImageLayoutPresentSrc,
		}
		if s.options.Depth {
			rp.DepthFormat = pixelFormats[gfx.Depth32F]
		}
		if s.VKRenderPass, err = d.createRenderPass(rp); err != nil {
			return err
		}
	}
	if s.slots == nil {
		if err := s.createSlots(); err != nil {
			return err
		}
	}

	if s.options.Depth {
		s.depth, err = d.CreateImage(ImageDescription{
			Width:     int(extent.Width),
			Height:    int(extent.Height),
			Format:    gfx.Depth32F,
			Usage:     gfx.Depth,
			MipLevels: 1,
		})
		if err != nil {
			return err
		}
	}
	for _, img := range s.images {
		views := []vk.ImageView{img.VKImageView}
		if s.depth != nil {
			views = append(views, s.depth.VKImageView)
		}
		fb, err := d.createFramebuffer(s.VKRenderPass, int(extent.Width), int(extent.Height), views...)
		if err != nil {
			return err
		}
		s.framebuffers = append(s.framebuffers, fb)
	}

	s.frame = 0
	s.imageIndex = 0
	s.imageFences = make([]*Fence, len(s.images))
	s.pendingResize = false

	if old != nil {
		s.log.Warn("swapchain invalidated", "width", extent.Width, "height", extent.Height, "images", len(s.images))
	} else {
		s.log.Debug("created swapchain", "width", extent.Width, "height", extent.Height,
			"images", len(s.images), "format", format.Format, "mode", s.PresentMode)
	}
	for _, o := range s.observers {
		o.Resized(s.Width(), s.Height())
	}
	return nil
}

func (s *Swapchain) createSlots() error {
	for i := 0; i < framesInFlight; i++ {
		slot := &frameSlot{}
		var err error
		if slot.fence, err = s.Device.CreateFence(true); err != nil {
			return err
		}
		s.slots = append(s.slots, slot)
		if slot.imageAvailable, err = s.Device.CreateSemaphore(); err != nil {
			return err
		}
		if slot.renderFinished, err = s.Device.CreateSemaphore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Swapchain) destroyFramebuffers() {
	for _, fb := range s.framebuffers {
		s.Device.api.DestroyFramebuffer(fb)
	}
	s.framebuffers = nil
	if s.depth != nil {
		s.depth.Destroy()
		s.depth = nil
	}
}

func (s *Swapchain) destroyImages() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
}

// AcquireImage waits for the current frame slot and acquires the next swapchain image.
// An out of date or suboptimal swapchain is rebuilt and the acquire retried.
func (s *Swapchain) AcquireImage() error {
	api := s.Device.api
	for {
		slot := s.slots[s.frame]
		if err := slot.fence.Wait(); err != nil {
			return err
		}
		index, res := api.AcquireNextImage(s.VKSwapchain, vk.MaxUint64, slot.imageAvailable.VKSemaphore)
		switch res {
		case vk.Success:
		case vk.ErrorOutOfDate:
			if err := s.Invalidate(); err != nil {
				return err
			}
			continue
		case vk.Suboptimal:
			if err := s.Invalidate(); err != nil {
				return err
			}
			// the acquire succeeded, so the semaphore will be signaled with nothing waiting on it
			sem, err := s.Device.CreateSemaphore()
			if err != nil {
				return err
			}
			slot.imageAvailable.Destroy()
			slot.imageAvailable = sem
			continue
		case vk.ErrorDeviceLost:
			return s.Device.deviceLost("acquire image")
		default:
			return errors.Wrap(vk.Error(res), "acquire image")
		}

		s.imageIndex = int(index)
		if f := s.imageFences[index]; f != nil && f != slot.fence {
			if err := f.Wait(); err != nil {
				return err
			}
		}
		s.imageFences[index] = slot.fence
		return nil
	}
}

// Present submits cmd, which must render to the acquired image, and queues the image for
// presentation. The swapchain is rebuilt if it went out of date or a resize is pending.
func (s *Swapchain) Present(list gfx.ICommandList) error {
	cmd, ok := list.(*CommandBuffer)
	if !ok {
		return errors.Wrapf(gfx.ErrWrongBackend, "command list %T", list)
	}
	slot := s.slots[s.frame]
	if err := slot.fence.Reset(); err != nil {
		return err
	}
	err := cmd.Queue().Submit(cmd, SubmitOptions{
		Waits: []SemaphoreWait{{
			Semaphore: slot.imageAvailable,
			Stage:     vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}},
		Signals: []*Semaphore{slot.renderFinished},
		Fence:   slot.fence,
	})
	if err != nil {
		// nothing will signal the reset fence, and the next acquire waits on it
		if !s.Device.Lost() {
			if ferr := s.replaceFence(slot); ferr != nil {
				s.log.Warn("replacing frame fence", "err", ferr)
			}
		}
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.renderFinished.VKSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		PImageIndices:      []uint32{uint32(s.imageIndex)},
	}
	res := s.Device.api.QueuePresent(s.Device.Present.VKQueue, &presentInfo)
	switch {
	case res == vk.ErrorDeviceLost:
		return s.Device.deviceLost("present")
	case res != vk.Success && res != vk.Suboptimal && res != vk.ErrorOutOfDate:
		return errors.Wrap(vk.Error(res), "present")
	case res != vk.Success || s.pendingResize:
		return s.Invalidate()
	}
	s.frame = (s.frame + 1) % framesInFlight
	return nil
}

// replaceFence gives slot a new signaled fence. Images last rendered by the slot point to
// the new fence as well.
func (s *Swapchain) replaceFence(slot *frameSlot) error {
	fence, err := s.Device.CreateFence(true)
	if err != nil {
		return err
	}
	for i, f := range s.imageFences {
		if f == slot.fence {
			s.imageFences[i] = fence
		}
	}
	slot.fence.Destroy()
	slot.fence = fence
	return nil
}

// Resize records the new size of the window. The swapchain is rebuilt after the next
// Present.
func (s *Swapchain) Resize(width, height int) {
	s.options.Width, s.options.Height = width, height
	s.pendingResize = true
}

// Watch registers o to be told about every rebuild.
func (s *Swapchain) Watch(o gfx.ResizeObserver) { s.observers = append(s.observers, o) }

func (s *Swapchain) Width() int { return int(s.Extent.Width) }
func (s *Swapchain) Height() int { return int(s.Extent.Height) }

// Frames is the number of frames in flight, the FrameCount pipelines drawing to the
// swapchain need.
func (s *Swapchain) Frames() int { return framesInFlight }

// CurrentFrame is the frame slot in use, between 0 and Frames.
func (s *Swapchain) CurrentFrame() int { return s.frame }

// ImageIndex is the index of the last acquired image.
func (s *Swapchain) ImageIndex() int { return s.imageIndex }

func (s *Swapchain) Images() []*Image { return s.images }
func (s *Swapchain) RenderPass() vk.RenderPass { return s.VKRenderPass }
func (s *Swapchain) CurrentFramebuffer() vk.Framebuffer { return s.framebuffers[s.imageIndex] }

func (s *Swapchain) renderPass() vk.RenderPass { return s.VKRenderPass }
func (s *Swapchain) currentFramebuffer() vk.Framebuffer { return s.CurrentFramebuffer() }
func (s *Swapchain) hasDepth() bool { return s.options.Depth }

// the render pass leaves swapchain images in the present layout
func (s *Swapchain) renderPassEnded() {}

func (s *Swapchain) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if err := s.Device.WaitIdle(); err != nil {
		s.log.Warn("destroying swapchain on busy device", "err", err)
	}
	s.destroyFramebuffers()
	s.destroyImages()
	for _, slot := range s.slots {
		slot.destroy()
	}
	s.slots = nil
	if s.VKRenderPass != nil {
		s.Device.api.DestroyRenderPass(s.VKRenderPass)
	}
	if s.VKSwapchain != nil {
		s.Device.api.DestroySwapchain(s.VKSwapchain)
	}
}
