package vulkan

import (
	"image"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// toRGBA converts src to tightly packed RGBA, scaling it down to fit in maxSize.
func toRGBA(src image.Image, maxSize int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			w, h = maxSize, h*maxSize/w
		} else {
			w, h = w*maxSize/h, maxSize
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return dst
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*w {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Copy(dst, image.Point{}, src, b, draw.Src, nil)
	return dst
}

// CreateTexture uploads src as a sampled RGBA8 image with a full mip chain, left in the
// ShaderReadOnly layout. Images larger than the device allows are scaled down.
func (d *Device) CreateTexture(src image.Image, sampler *SamplerDescription) (*Image, error) {
	if src.Bounds().Empty() {
		return nil, errors.Wrap(gfx.ErrContract, "empty texture")
	}
	rgba := toRGBA(src, int(d.PhysicalDevice.Limits.MaxImageDimension2D))
	img, err := d.CreateImage(ImageDescription{
		Width:   rgba.Rect.Dx(),
		Height:  rgba.Rect.Dy(),
		Format:  gfx.RGBA8,
		Usage:   gfx.Sampled | gfx.CopyTo,
		Sampler: sampler,
	})
	if err != nil {
		return nil, err
	}
	if err := d.UploadImage(img, rgba.Pix, gfx.ShaderReadOnly); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}
