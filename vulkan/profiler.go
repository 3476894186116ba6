package vulkan

import (
	"time"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ProfileSample is the GPU time spent between a Begin and End pair.
type ProfileSample struct {
	Label    string
	Duration time.Duration
}

// Profiler measures GPU time with timestamp queries. Each scope uses two queries.
type Profiler struct {
	Device      *Device
	VKQueryPool vk.QueryPool
	Capacity    int

	labels    []string
	open      map[string]int
	validBits uint32
	destroyed bool
}

// CreateProfiler creates a profiler for up to capacity scopes per Reset.
func (d *Device) CreateProfiler(capacity int) (*Profiler, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(gfx.ErrContract, "profiler capacity %d", capacity)
	}
	if d.PhysicalDevice.Limits.TimestampPeriod == 0 {
		return nil, errors.Wrap(gfx.ErrMissingCapability, "device does not support timestamps")
	}
	info := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: uint32(2 * capacity),
	}
	pool, err := d.api.CreateQueryPool(&info)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create query pool: %v", err)
	}
	return &Profiler{
		Device:      d,
		VKQueryPool: pool,
		Capacity:    capacity,
		open:        map[string]int{},
	}, nil
}

// Reset records a reset of every query. It must be recorded before the first Begin.
func (p *Profiler) Reset(cmd *CommandBuffer) {
	p.Device.api.CmdResetQueryPool(cmd.VKCommandBuffer, p.VKQueryPool, 0, uint32(2*p.Capacity))
	p.labels = p.labels[:0]
	p.open = map[string]int{}
}

// Begin opens the scope label.
func (p *Profiler) Begin(cmd *CommandBuffer, label string) error {
	bits := cmd.queue.Family.TimestampValidBits
	if bits == 0 {
		return errors.Wrapf(gfx.ErrMissingCapability, "queue family %d has no timestamps", cmd.queue.Family.Index)
	}
	if _, ok := p.open[label]; ok {
		return errors.Wrapf(gfx.ErrContract, "scope %s already open", label)
	}
	if len(p.labels) == p.Capacity {
		return errors.Wrapf(gfx.ErrOutOfCapacity, "profiler holds %d scopes", p.Capacity)
	}
	i := len(p.labels)
	p.labels = append(p.labels, label)
	p.open[label] = i
	p.validBits = bits
	p.Device.api.CmdWriteTimestamp(cmd.VKCommandBuffer, vk.PipelineStageTopOfPipeBit, p.VKQueryPool, uint32(2*i))
	return nil
}

// End closes the scope label.
func (p *Profiler) End(cmd *CommandBuffer, label string) error {
	i, ok := p.open[label]
	if !ok {
		return errors.Wrapf(gfx.ErrContract, "scope %s is not open", label)
	}
	delete(p.open, label)
	p.Device.api.CmdWriteTimestamp(cmd.VKCommandBuffer, vk.PipelineStageBottomOfPipeBit, p.VKQueryPool, uint32(2*i+1))
	return nil
}

// Resolve reads back the scopes recorded since the last Reset. The bool is false while
// the GPU has not finished writing them.
func (p *Profiler) Resolve() ([]ProfileSample, bool, error) {
	if len(p.open) > 0 {
		return nil, false, errors.Wrapf(gfx.ErrContract, "%d scopes still open", len(p.open))
	}
	if len(p.labels) == 0 {
		return nil, true, nil
	}
	ticks, res := p.Device.api.QueryResults(p.VKQueryPool, 0, uint32(2*len(p.labels)))
	switch res {
	case vk.Success:
	case vk.NotReady:
		return nil, false, nil
	case vk.ErrorDeviceLost:
		return nil, false, p.Device.deviceLost("reading timestamps")
	default:
		return nil, false, errors.Wrap(vk.Error(res), "query results")
	}

	mask := ^uint64(0)
	if p.validBits < 64 {
		mask = 1<<p.validBits - 1
	}
	period := float64(p.Device.PhysicalDevice.Limits.TimestampPeriod)
	samples := make([]ProfileSample, len(p.labels))
	for i, label := range p.labels {
		delta := (ticks[2*i+1] - ticks[2*i]) & mask
		samples[i] = ProfileSample{
			Label:    label,
			Duration: time.Duration(float64(delta) * period),
		}
	}
	return samples, true, nil
}

func (p *Profiler) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.Device.api.DestroyQueryPool(p.VKQueryPool)
}
