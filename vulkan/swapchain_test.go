package vulkan

import (
	"testing"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func newTestSwapchain(t *testing.T, opts SwapchainOptions) (*Swapchain, *fakeAPI) {
	t.Helper()
	d, api := newTestDevice(t)
	s, err := d.CreateSwapchain(vk.Surface(handle()), opts)
	if err != nil {
		t.Fatal(err)
	}
	return s, api
}

// drawFrame acquires, clears and presents one frame.
func drawFrame(t *testing.T, s *Swapchain) {
	t.Helper()
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
	cmd, err := s.Device.Graphics.Release()
	if err != nil {
		t.Fatal(err)
	}
	cmd.Begin()
	if err := cmd.BeginRenderPass(s, DefaultClear); err != nil {
		t.Fatal(err)
	}
	cmd.EndRenderPass()
	if err := s.Present(cmd); err != nil {
		t.Fatal(err)
	}
}

type resizeRecorder struct {
	sizes [][2]int
}

func (r *resizeRecorder) Resized(width, height int) {
	r.sizes = append(r.sizes, [2]int{width, height})
}

func TestCreateSwapchain(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{Depth: true})

	if len(s.Images()) != 3 || len(s.framebuffers) != 3 {
		t.Errorf("%d images, %d framebuffers", len(s.Images()), len(s.framebuffers))
	}
	if s.Width() != 640 || s.Height() != 480 || s.Frames() != framesInFlight {
		t.Errorf("%dx%d with %d frames", s.Width(), s.Height(), s.Frames())
	}
	info := api.swapchainInfos[0]
	if info.MinImageCount != 3 || info.ImageSharingMode != vk.SharingModeExclusive {
		t.Errorf("min images %d sharing %d", info.MinImageCount, info.ImageSharingMode)
	}
	if s.PresentMode != vk.PresentModeMailbox {
		t.Errorf("present mode %d", s.PresentMode)
	}
	if s.depth == nil || !s.hasDepth() {
		t.Error("depth attachment missing")
	}
	if s.Images()[0].Format() != gfx.BGRA8 {
		t.Errorf("images wrapped as format %d", s.Images()[0].Format())
	}
}

func TestSwapchainNeedsPresentQueue(t *testing.T) {
	family := universalFamily(0)
	family.Present = false
	d, _ := newTestDevice(t, family)
	if _, err := d.CreateSwapchain(vk.Surface(handle()), SwapchainOptions{}); !errors.Is(err, gfx.ErrMissingCapability) {
		t.Errorf("expected missing capability, got %v", err)
	}
}

func TestSwapchainSharedFamilies(t *testing.T) {
	graphics := universalFamily(0)
	graphics.Present = false
	present := &QueueFamily{Index: 1, Flags: vk.QueueFlags(vk.QueueTransferBit), Count: 1, Present: true}
	d, api := newTestDevice(t, graphics, present)
	if _, err := d.CreateSwapchain(vk.Surface(handle()), SwapchainOptions{}); err != nil {
		t.Fatal(err)
	}
	info := api.swapchainInfos[0]
	if info.ImageSharingMode != vk.SharingModeConcurrent || info.QueueFamilyIndexCount != 2 {
		t.Errorf("sharing %d across %d families", info.ImageSharingMode, info.QueueFamilyIndexCount)
	}
}

func TestSwapchainFrameLoop(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})

	for i := 0; i < 5; i++ {
		if s.CurrentFrame() != i%framesInFlight {
			t.Fatalf("frame %d uses slot %d", i, s.CurrentFrame())
		}
		drawFrame(t, s)
	}
	if api.calls["QueuePresent"] != 5 || api.calls["QueueSubmit"] != 5 {
		t.Errorf("%d presents, %d submits", api.calls["QueuePresent"], api.calls["QueueSubmit"])
	}
	if api.calls["CreateSwapchain"] != 1 {
		t.Error("swapchain rebuilt without a reason")
	}
	// waiting on a slot fence frees the command buffer of that frame
	if s.Device.Graphics.Allocated() > framesInFlight+1 {
		t.Errorf("%d command buffers allocated", s.Device.Graphics.Allocated())
	}
	submit := api.submits[0]
	if submit.WaitSemaphoreCount != 1 || submit.SignalSemaphoreCount != 1 {
		t.Errorf("submit waits on %d and signals %d semaphores", submit.WaitSemaphoreCount, submit.SignalSemaphoreCount)
	}
}

func TestSwapchainResize(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{Width: 640, Height: 480})
	r := &resizeRecorder{}
	s.Watch(r)

	drawFrame(t, s)
	api.surfaceCaps.CurrentExtent = vk.Extent2D{Width: 800, Height: 600}
	s.Resize(800, 600)
	drawFrame(t, s)

	if len(r.sizes) != 1 || r.sizes[0] != [2]int{800, 600} {
		t.Errorf("observed %v", r.sizes)
	}
	if s.CurrentFrame() != 0 {
		t.Errorf("frame %d after rebuild", s.CurrentFrame())
	}
	if api.calls["CreateSwapchain"] != 2 || api.calls["DestroySwapchain"] != 1 {
		t.Errorf("%d swapchains created, %d destroyed", api.calls["CreateSwapchain"], api.calls["DestroySwapchain"])
	}
	if api.swapchainInfos[1].OldSwapchain == nil {
		t.Error("rebuild did not pass the old swapchain")
	}
	if n := api.live("CreateFramebuffer", "DestroyFramebuffer"); n != 3 {
		t.Errorf("%d framebuffers alive", n)
	}
	if api.calls["CreateRenderPass"] != 1 {
		t.Error("render pass recreated")
	}
}

func TestSwapchainApplicationExtent(t *testing.T) {
	d, api := newTestDevice(t)
	api.surfaceCaps.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	api.surfaceCaps.MaxImageExtent = vk.Extent2D{Width: 1024, Height: 1024}
	s, err := d.CreateSwapchain(vk.Surface(handle()), SwapchainOptions{Width: 2000, Height: 300})
	if err != nil {
		t.Fatal(err)
	}
	if s.Width() != 1024 || s.Height() != 300 {
		t.Errorf("extent %dx%d", s.Width(), s.Height())
	}
}

func TestSwapchainOutOfDate(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})

	api.acquireResults = []vk.Result{vk.ErrorOutOfDate}
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
	if api.calls["AcquireNextImage"] != 2 || api.calls["CreateSwapchain"] != 2 {
		t.Errorf("%d acquires, %d swapchains", api.calls["AcquireNextImage"], api.calls["CreateSwapchain"])
	}

	cmd, _ := s.Device.Graphics.Release()
	cmd.Begin()
	api.presentResults = []vk.Result{vk.Suboptimal}
	if err := s.Present(cmd); err != nil {
		t.Fatal(err)
	}
	if api.calls["CreateSwapchain"] != 3 || s.CurrentFrame() != 0 {
		t.Errorf("%d swapchains, frame %d", api.calls["CreateSwapchain"], s.CurrentFrame())
	}
}

func TestSwapchainSuboptimalAcquire(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})
	old := s.slots[0].imageAvailable

	api.acquireResults = []vk.Result{vk.Suboptimal}
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
	if s.slots[0].imageAvailable == old {
		t.Error("signaled semaphore was kept")
	}
	if api.calls["DestroySemaphore"] != 1 {
		t.Errorf("%d semaphores destroyed", api.calls["DestroySemaphore"])
	}
}

func TestSwapchainMinimized(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})
	api.surfaceCaps.CurrentExtent = vk.Extent2D{}
	if err := s.Invalidate(); !errors.Is(err, gfx.ErrContract) {
		t.Errorf("expected contract error, got %v", err)
	}
}

func TestSwapchainDeviceLost(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
	cmd, _ := s.Device.Graphics.Release()
	cmd.Begin()
	cmd.Checkpoint("clear")
	api.presentResults = []vk.Result{vk.ErrorDeviceLost}
	if err := s.Present(cmd); !errors.Is(err, gfx.ErrDeviceLost) {
		t.Errorf("expected device lost, got %v", err)
	}
	if !s.Device.Lost() {
		t.Error("device not marked lost")
	}
}

func TestSwapchainSubmitFailure(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
	old := s.slots[0].fence
	cmd, _ := s.Device.Graphics.Release()
	cmd.Begin()
	api.submitResult = vk.ErrorOutOfDeviceMemory
	if err := s.Present(cmd); err == nil {
		t.Fatal("expected the submit error")
	}

	// the slot must not wait on a fence nothing will signal
	slot := s.slots[0]
	if slot.fence == old || !slot.fence.Signaled() {
		t.Error("frame fence left unsignaled")
	}
	if s.imageFences[s.ImageIndex()] != slot.fence {
		t.Error("image still tracks the replaced fence")
	}
	if api.calls["DestroyFence"] != 1 {
		t.Errorf("%d fences destroyed", api.calls["DestroyFence"])
	}

	api.submitResult = vk.Success
	if err := s.AcquireImage(); err != nil {
		t.Fatal(err)
	}
}

func TestSwapchainPresentErrorBeforeResize(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{})
	present := func(res vk.Result) error {
		t.Helper()
		if err := s.AcquireImage(); err != nil {
			t.Fatal(err)
		}
		cmd, _ := s.Device.Graphics.Release()
		cmd.Begin()
		s.Resize(800, 600)
		api.presentResults = []vk.Result{res}
		return s.Present(cmd)
	}

	if err := present(vk.ErrorOutOfHostMemory); err == nil || errors.Is(err, gfx.ErrDeviceLost) {
		t.Errorf("expected the present error, got %v", err)
	}
	if api.calls["CreateSwapchain"] != 1 {
		t.Error("failed present rebuilt the swapchain")
	}
	if err := present(vk.ErrorDeviceLost); !errors.Is(err, gfx.ErrDeviceLost) {
		t.Errorf("expected device lost, got %v", err)
	}
	if !s.Device.Lost() {
		t.Error("device not marked lost")
	}
}

func TestSwapchainDestroy(t *testing.T) {
	s, api := newTestSwapchain(t, SwapchainOptions{Depth: true})
	drawFrame(t, s)
	s.Destroy()
	s.Destroy()
	for _, kind := range []string{"Semaphore", "Swapchain", "RenderPass", "Framebuffer", "ImageView", "Image"} {
		if n := api.live("Create"+kind, "Destroy"+kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
	// frames are submitted with the slot fences, so the queue owns none
	if n := api.live("CreateFence", "DestroyFence"); n != 0 {
		t.Errorf("%d fences leaked", n)
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}
	if m := choosePresentMode(all, true); m != vk.PresentModeFifo {
		t.Errorf("vsync picked %d", m)
	}
	if m := choosePresentMode(all, false); m != vk.PresentModeMailbox {
		t.Errorf("picked %d", m)
	}
	if m := choosePresentMode(all[:2], false); m != vk.PresentModeImmediate {
		t.Errorf("picked %d without mailbox", m)
	}
	if m := choosePresentMode(nil, false); m != vk.PresentModeFifo {
		t.Errorf("picked %d from nothing", m)
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	if _, err := chooseSurfaceFormat(nil); !errors.Is(err, gfx.ErrMissingCapability) {
		t.Errorf("no formats: %v", err)
	}
	f, _ := chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined}})
	if f.Format != vk.FormatB8g8r8a8Unorm {
		t.Errorf("undefined resolved to %d", f.Format)
	}
	f, _ = chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatR8g8b8a8Unorm}, {Format: vk.FormatB8g8r8a8Srgb}})
	if f.Format != vk.FormatB8g8r8a8Srgb {
		t.Errorf("picked %d", f.Format)
	}
	f, _ = chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatR8g8b8a8Unorm}})
	if f.Format != vk.FormatR8g8b8a8Unorm {
		t.Errorf("fallback picked %d", f.Format)
	}
}

func TestImageCount(t *testing.T) {
	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}
	cases := []struct {
		requested int
		max       uint32
		want      uint32
	}{
		{0, 3, 3},
		{1, 3, 2},
		{8, 3, 3},
		{8, 0, 8},
	}
	for _, c := range cases {
		caps.MaxImageCount = c.max
		if got := imageCount(caps, c.requested); got != c.want {
			t.Errorf("requested %d max %d: got %d", c.requested, c.max, got)
		}
	}
}
