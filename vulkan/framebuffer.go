package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// FramebufferDescription describes an offscreen render target.
type FramebufferDescription struct {
	Width, Height int
	// Format of the color attachment, the zero value is RGBA8
	Format gfx.PixelFormat
	// Depth adds a Depth32F attachment
	Depth bool
	// Sampler used when the color attachment is sampled
	Sampler *SamplerDescription
}

// Framebuffer is an offscreen render target. After a render pass its color image is in the
// ShaderReadOnly layout and can be bound to a pipeline.
type Framebuffer struct {
	Device        *Device
	Color         *Image
	Depth         *Image
	VKFramebuffer vk.Framebuffer
	VKRenderPass  vk.RenderPass

	destroyed bool
}

var _ gfx.IRenderTarget = (*Framebuffer)(nil)

// CreateFramebuffer creates the attachments, render pass and framebuffer of an offscreen target.
func (d *Device) CreateFramebuffer(desc FramebufferDescription) (*Framebuffer, error) {
	if desc.Format.IsDepth() {
		return nil, errors.Wrapf(gfx.ErrContract, "color attachment format %d is a depth format", desc.Format)
	}
	fb := &Framebuffer{Device: d}

	var err error
	fb.Color, err = d.CreateImage(ImageDescription{
		Width:     desc.Width,
		Height:    desc.Height,
		Format:    desc.Format,
		Usage:     gfx.Render | gfx.Sampled,
		MipLevels: 1,
		Sampler:   desc.Sampler,
	})
	if err != nil {
		return nil, err
	}

	rp := renderPassDescription{
		ColorFormat: fb.Color.VKFormat,
		DepthFormat: vk.FormatUndefined,
		FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
	views := []vk.ImageView{fb.Color.VKImageView}
	if desc.Depth {
		fb.Depth, err = d.CreateImage(ImageDescription{
			Width:     desc.Width,
			Height:    desc.Height,
			Format:    gfx.Depth32F,
			Usage:     gfx.Depth,
			MipLevels: 1,
		})
		if err != nil {
			fb.Destroy()
			return nil, err
		}
		rp.DepthFormat = fb.Depth.VKFormat
		views = append(views, fb.Depth.VKImageView)
	}

	if fb.VKRenderPass, err = d.createRenderPass(rp); err != nil {
		fb.Destroy()
		return nil, err
	}
	if fb.VKFramebuffer, err = d.createFramebuffer(fb.VKRenderPass, desc.Width, desc.Height, views...); err != nil {
		fb.Destroy()
		return nil, err
	}
	d.log.Debug("created framebuffer", "width", desc.Width, "height", desc.Height, "depth", desc.Depth)
	return fb, nil
}

func (f *Framebuffer) Width() int { return f.Color.Width() }
func (f *Framebuffer) Height() int { return f.Color.Height() }

// Frames is always 1.
func (f *Framebuffer) Frames() int { return 1 }

func (f *Framebuffer) renderPass() vk.RenderPass { return f.VKRenderPass }
func (f *Framebuffer) currentFramebuffer() vk.Framebuffer { return f.VKFramebuffer }
func (f *Framebuffer) hasDepth() bool { return f.Depth != nil }

func (f *Framebuffer) renderPassEnded() {
	f.Color.SetLayout(gfx.ShaderReadOnly)
	if f.Depth != nil {
		f.Depth.SetLayout(gfx.DepthStencilAttachment)
	}
}

func (f *Framebuffer) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	api := f.Device.api
	if f.VKFramebuffer != nil {
		api.DestroyFramebuffer(f.VKFramebuffer)
	}
	if f.VKRenderPass != nil {
		api.DestroyRenderPass(f.VKRenderPass)
	}
	if f.Depth != nil {
		f.Depth.Destroy()
	}
	if f.Color != nil {
		f.Color.Destroy()
	}
}
