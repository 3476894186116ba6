package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Fence is a CPU visible completion signal.
type Fence struct {
	Device  *Device
	VKFence vk.Fence

	destroyed bool
}

// CreateFence creates a fence, optionally already signaled.
func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	fence, err := d.api.CreateFence(signaled)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create fence: %v", err)
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// Wait blocks until the fence is signaled. Timeouts are retried.
func (f *Fence) Wait() error {
	return f.Device.waitFence(f.VKFence)
}

// Signaled polls the fence without blocking.
func (f *Fence) Signaled() bool {
	return f.Device.api.FenceStatus(f.VKFence) == vk.Success
}

func (f *Fence) Reset() error {
	return errors.Wrap(f.Device.api.ResetFence(f.VKFence), "reset fence")
}

func (f *Fence) Destroy() {
	if f == nil || f.destroyed {
		return
	}
	f.destroyed = true
	f.Device.api.DestroyFence(f.VKFence)
}

// Semaphore orders work between submissions on the GPU.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore

	destroyed bool
}

func (d *Device) CreateSemaphore() (*Semaphore, error) {
	s, err := d.api.CreateSemaphore()
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create semaphore: %v", err)
	}
	return &Semaphore{Device: d, VKSemaphore: s}, nil
}

func (s *Semaphore) Destroy() {
	if s == nil || s.destroyed {
		return
	}
	s.destroyed = true
	s.Device.api.DestroySemaphore(s.VKSemaphore)
}

// waitFence blocks on a native fence. A timeout is a transient condition: it is logged and
// the wait starts over.
func (d *Device) waitFence(f vk.Fence) error {
	for {
		res := d.api.WaitForFence(f, uint64(d.options.FenceTimeout.Nanoseconds()))
		switch res {
		case vk.Success:
			return nil
		case vk.Timeout:
			d.log.Warn("fence wait timed out, retrying", "timeout", d.options.FenceTimeout)
		case vk.ErrorDeviceLost:
			return d.deviceLost("waiting for fence")
		default:
			return errors.Wrap(vk.Error(res), "wait for fence")
		}
	}
}
