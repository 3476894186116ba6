package vulkan

import (
	"fmt"
	"time"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// DeviceOptions tune a logical device.
type DeviceOptions struct {
	// CommandListCap is copied to every queue, see Queue.CommandListCap.
	CommandListCap int
	// FenceTimeout is the length of one fence wait before it is logged and retried.
	FenceTimeout time.Duration
	// StagingSize is the size of the shared upload buffer.
	StagingSize uint64
}

const (
	defaultFenceTimeout = 5 * time.Second
	defaultStagingSize  = 16 << 20
)

func (o DeviceOptions) withDefaults() DeviceOptions {
	if o.FenceTimeout <= 0 {
		o.FenceTimeout = defaultFenceTimeout
	}
	if o.StagingSize == 0 {
		o.StagingSize = defaultStagingSize
	}
	return o
}

// Device is a logical device and the queues created on it.
type Device struct {
	PhysicalDevice *PhysicalDevice
	// Graphics, Compute and Transfer may be the same queue. Present is nil without a surface.
	Graphics, Compute, Transfer, Present *Queue
	PipelineCache                        vk.PipelineCache

	api              deviceAPI
	log              *slog.Logger
	options          DeviceOptions
	memoryProperties vk.PhysicalDeviceMemoryProperties
	linearBlit       map[vk.Format]bool
	queues           []*Queue
	staging          *StagingPool
	lost             bool
	destroyed        bool
}

func newDevice(api deviceAPI, pd *PhysicalDevice, sel queueSelection, opts DeviceOptions, log *slog.Logger) (*Device, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Device{
		PhysicalDevice:   pd,
		api:              api,
		log:              log.With("component", "device", "device", pd.Name),
		options:          opts.withDefaults(),
		memoryProperties: api.MemoryProperties(),
		linearBlit:       map[vk.Format]bool{},
	}

	byFamily := map[int]*Queue{}
	for _, index := range sel.families() {
		var family *QueueFamily
		for _, f := range pd.QueueFamilies {
			if f.Index == index {
				family = f
			}
		}
		if family == nil {
			d.Destroy()
			return nil, errors.Wrapf(gfx.ErrNoDevice, "queue family %d does not exist", index)
		}
		q, err := d.newQueue(family)
		if err != nil {
			d.Destroy()
			return nil, err
		}
		byFamily[index] = q
		d.queues = append(d.queues, q)
	}
	d.Graphics = byFamily[sel.Graphics]
	d.Compute = byFamily[sel.Compute]
	d.Transfer = byFamily[sel.Transfer]
	if sel.Present >= 0 {
		d.Present = byFamily[sel.Present]
	}

	cache, err := api.CreatePipelineCache()
	if err != nil {
		d.Destroy()
		return nil, errors.Wrapf(gfx.ErrAllocation, "create pipeline cache: %v", err)
	}
	d.PipelineCache = cache

	d.log.Debug("created device", "queues", len(d.queues), "graphics", sel.Graphics,
		"compute", sel.Compute, "transfer", sel.Transfer, "present", sel.Present)
	return d, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s Queues: %d }", d.PhysicalDevice, len(d.queues))
}

// Logger returns the device's logger
func (d *Device) Logger() *slog.Logger { return d.log }

// QueueFor returns a queue with all of caps, preferring the dedicated ones.
func (d *Device) QueueFor(caps gfx.QueueCapability) (*Queue, error) {
	var candidates []*Queue
	switch {
	case caps.Has(gfx.GraphicsCapability):
		candidates = []*Queue{d.Graphics}
	case caps.Has(gfx.ComputeCapability):
		candidates = []*Queue{d.Compute, d.Graphics}
	default:
		candidates = []*Queue{d.Transfer, d.Compute, d.Graphics}
	}
	for _, q := range candidates {
		if q != nil && q.Capabilities.Has(caps) {
			return q, nil
		}
	}
	return nil, errors.Wrapf(gfx.ErrMissingCapability, "no queue supports %s", caps)
}

// sharing returns how buffers and images are shared between the queue families of the
// device. Resources move between queues without ownership transfers, so they are
// concurrent as soon as there is more than one family.
func (d *Device) sharing() (vk.SharingMode, []uint32) {
	if len(d.queues) < 2 {
		return vk.SharingModeExclusive, nil
	}
	indices := make([]uint32, len(d.queues))
	for i, q := range d.queues {
		indices[i] = uint32(q.Family.Index)
	}
	return vk.SharingModeConcurrent, indices
}

// WaitIdle blocks until the device has finished all work.
func (d *Device) WaitIdle() error {
	if err := d.api.DeviceWaitIdle(); err != nil {
		return errors.Wrap(err, "device wait idle")
	}
	return nil
}

// ClearQueues waits for every queue and recycles all of their command buffers. Call it
// before mutating resources that in-flight work may still reference.
func (d *Device) ClearQueues() error {
	for _, q := range d.queues {
		if err := q.ClearCache(); err != nil {
			return err
		}
	}
	return nil
}

// linearFilter reports whether images of format can be blitted with linear filtering.
func (d *Device) linearFilter(format vk.Format) bool {
	if ok, cached := d.linearBlit[format]; cached {
		return ok
	}
	props := d.api.FormatProperties(format)
	ok := props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit) != 0
	d.linearBlit[format] = ok
	return ok
}

// Destroy waits for the device to go idle and destroys the queues and the device.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	if !d.lost {
		if err := d.WaitIdle(); err != nil {
			d.log.Warn("destroying busy device", "err", err)
		}
	}
	if d.staging != nil {
		d.staging.Destroy()
	}
	for _, q := range d.queues {
		q.Destroy()
	}
	if d.PipelineCache != nil {
		d.api.DestroyPipelineCache(d.PipelineCache)
	}
	d.api.DestroyDevice()
	d.log.Debug("destroyed device")
}
