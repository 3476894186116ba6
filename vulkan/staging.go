package vulkan

import (
	units "github.com/docker/go-units"
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
)

// stagingAlignment keeps every range valid as a buffer to image copy source.
const stagingAlignment = 16

// StagingPool sub-allocates uploads from one persistently mapped buffer. A range stays
// reserved until the command buffer that reads it is reset.
type StagingPool struct {
	Device    *Device
	Buffer    *Buffer
	allocator IAllocator
	destroyed bool
}

// stagingRange returns its allocation to the pool when destroyed.
type stagingRange struct {
	pool  *StagingPool
	alloc *Allocation
}

func (r *stagingRange) Destroy() {
	if r.alloc == nil || r.pool.destroyed {
		return
	}
	r.pool.allocator.Free(r.alloc)
	r.alloc = nil
}

func (d *Device) stagingPool() (*StagingPool, error) {
	if d.staging != nil {
		return d.staging, nil
	}
	buf, err := d.CreateBuffer(gfx.Staging, d.options.StagingSize)
	if err != nil {
		return nil, err
	}
	d.staging = &StagingPool{
		Device:    d,
		Buffer:    buf,
		allocator: &LinearAllocator{Size: d.options.StagingSize},
	}
	d.log.Debug("created staging pool", "size", units.BytesSize(float64(d.options.StagingSize)))
	return d.staging, nil
}

// Stage copies data into staging memory read by cmd. Data that does not fit in the pool
// gets a buffer of its own, destroyed with the range when cmd is reset.
func (d *Device) Stage(cmd *CommandBuffer, data []byte) (*Buffer, uint64, error) {
	if len(data) == 0 {
		return nil, 0, errors.Wrap(gfx.ErrContract, "staging no data")
	}
	pool, err := d.stagingPool()
	if err != nil {
		return nil, 0, err
	}
	if alloc := pool.allocator.Allocate(uint64(len(data)), stagingAlignment); alloc != nil {
		if err := pool.Buffer.CopyFromCPU(data, alloc.Offset); err != nil {
			pool.allocator.Free(alloc)
			return nil, 0, err
		}
		cmd.AddStaging(&stagingRange{pool: pool, alloc: alloc})
		return pool.Buffer, alloc.Offset, nil
	}

	d.log.Debug("staging pool exhausted, using a dedicated buffer", "size", units.BytesSize(float64(len(data))))
	buf, err := d.CreateBuffer(gfx.Staging, uint64(len(data)))
	if err != nil {
		return nil, 0, err
	}
	if err := buf.CopyFromCPU(data, 0); err != nil {
		buf.Destroy()
		return nil, 0, err
	}
	cmd.AddStaging(buf)
	return buf, 0, nil
}

// UploadBuffer writes data into dst at offset and waits for the copy. Host visible
// buffers are written directly.
func (d *Device) UploadBuffer(dst *Buffer, data []byte, offset uint64) error {
	if offset+uint64(len(data)) > dst.Size() {
		return errors.Wrapf(gfx.ErrContract, "upload of %d bytes at %d into %d byte buffer", len(data), offset, dst.Size())
	}
	if dst.Usage().HostVisible() {
		return dst.CopyFromCPU(data, offset)
	}
	q, err := d.QueueFor(gfx.TransferCapability)
	if err != nil {
		return err
	}
	return d.submitNow(q, "upload buffer", func(cmd *CommandBuffer) error {
		src, srcOffset, err := d.Stage(cmd, data)
		if err != nil {
			return err
		}
		return src.CopyBuffers(cmd, dst, uint64(len(data)), srcOffset, offset)
	})
}

// DownloadBuffer reads len(data) bytes of src starting at offset. Buffers the host cannot
// map are copied into a temporary staging buffer first.
func (d *Device) DownloadBuffer(src *Buffer, data []byte, offset uint64) error {
	if offset+uint64(len(data)) > src.Size() {
		return errors.Wrapf(gfx.ErrContract, "download of %d bytes at %d from %d byte buffer", len(data), offset, src.Size())
	}
	if src.Usage().HostVisible() {
		return src.CopyToCPU(data, offset)
	}
	q, err := d.QueueFor(gfx.TransferCapability)
	if err != nil {
		return err
	}
	readback, err := d.CreateBuffer(gfx.Staging, uint64(len(data)))
	if err != nil {
		return err
	}
	defer readback.Destroy()
	err = d.submitNow(q, "download buffer", func(cmd *CommandBuffer) error {
		return src.CopyBuffers(cmd, readback, uint64(len(data)), offset, 0)
	})
	if err != nil {
		return err
	}
	return readback.CopyToCPU(data, 0)
}

// UploadImage replaces mip 0 of every layer with data, regenerates the other mips and
// leaves the image in final.
func (d *Device) UploadImage(img *Image, data []byte, final gfx.Layout) error {
	want := img.width * img.height * img.layers * img.format.BytesPerPixel()
	if len(data) != want {
		return errors.Wrapf(gfx.ErrContract, "image upload of %d bytes, expected %d", len(data), want)
	}
	caps := gfx.TransferCapability
	if img.mips > 1 {
		// blits need a graphics queue
		caps = gfx.GraphicsCapability
	}
	q, err := d.QueueFor(caps)
	if err != nil {
		return err
	}
	err = d.submitNow(q, "upload image", func(cmd *CommandBuffer) error {
		src, srcOffset, err := d.Stage(cmd, data)
		if err != nil {
			return err
		}
		img.TransitionLayout(cmd, img.layout, final, 0, img.mips, 0, img.layers)
		return img.CopyFromBufferAt(cmd, src, srcOffset, final)
	})
	if err != nil {
		return err
	}
	img.SetLayout(final)
	return nil
}

// submitNow records with record on a buffer from q, submits it and waits.
func (d *Device) submitNow(q *Queue, label string, record func(cmd *CommandBuffer) error) error {
	cmd, err := q.Release()
	if err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.Checkpoint(label)
	if err := record(cmd); err != nil {
		if rerr := q.Recycle(cmd); rerr != nil {
			d.log.Warn("recycling command buffer", "err", rerr)
		}
		return err
	}
	return q.Submit(cmd, SubmitOptions{Wait: true})
}

func (p *StagingPool) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.allocator.Reset()
	p.Buffer.Destroy()
}
