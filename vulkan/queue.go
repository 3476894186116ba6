package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// submission is a command buffer in flight together with the fence that tells when it is
// done. ownsFence is true when the fence came from the queue's pool.
type submission struct {
	cmd       *CommandBuffer
	fence     *Fence
	ownsFence bool
}

// Queue submits command buffers to one device queue and recycles them once their fences
// signal. A Queue is not safe for concurrent use.
type Queue struct {
	Device       *Device
	Family       *QueueFamily
	VKQueue      vk.Queue
	Capabilities gfx.QueueCapability
	// CommandListCap bounds the number of command buffers the queue allocates. Release blocks
	// on the oldest submission once it is reached. Zero means unbounded.
	CommandListCap int

	pool      vk.CommandPool
	pending   []submission
	free      []*CommandBuffer
	fences    []*Fence
	allocated int
	log       *slog.Logger
	destroyed bool
}

func (d *Device) newQueue(family *QueueFamily) (*Queue, error) {
	pool, err := d.api.CreateCommandPool(uint32(family.Index))
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "create command pool for family %d: %v", family.Index, err)
	}
	q := &Queue{
		Device:         d,
		Family:         family,
		VKQueue:        d.api.GetQueue(uint32(family.Index)),
		Capabilities:   family.Capabilities(),
		CommandListCap: d.options.CommandListCap,
		pool:           pool,
	}
	q.log = d.log.With("component", "queue", "family", family.Index)
	return q, nil
}

// Pending returns the number of submissions not yet reclaimed.
func (q *Queue) Pending() int { return len(q.pending) }

// Allocated returns the number of command buffers allocated from the queue's pool.
func (q *Queue) Allocated() int { return q.allocated }

// Release returns a command buffer ready for Begin. It reuses, in order, a never submitted
// buffer, the oldest submission if its fence has signaled, and the oldest submission after
// waiting on it when the cap is reached. Otherwise a new buffer is allocated.
func (q *Queue) Release() (*CommandBuffer, error) {
	if q.destroyed {
		return nil, errors.Wrap(gfx.ErrContract, "release from destroyed queue")
	}

	if n := len(q.free); n > 0 {
		cmd := q.free[n-1]
		q.free = q.free[:n-1]
		return cmd, nil
	}

	if len(q.pending) > 0 && q.pending[0].fence.Signaled() {
		return q.reclaimOldest()
	}

	if q.CommandListCap > 0 && q.allocated >= q.CommandListCap && len(q.pending) > 0 {
		q.log.Debug("command list cap reached, waiting on oldest submission", "cap", q.CommandListCap)
		if err := q.pending[0].fence.Wait(); err != nil {
			return nil, err
		}
		return q.reclaimOldest()
	}

	vkcb, err := q.Device.api.AllocateCommandBuffer(q.pool)
	if err != nil {
		return nil, errors.Wrapf(gfx.ErrAllocation, "allocate command buffer: %v", err)
	}
	q.allocated++
	return &CommandBuffer{VKCommandBuffer: vkcb, queue: q}, nil
}

// reclaimOldest pops the oldest submission, whose fence must be signaled.
func (q *Queue) reclaimOldest() (*CommandBuffer, error) {
	s := q.pending[0]
	q.pending[0] = submission{}
	q.pending = q.pending[1:]

	if s.ownsFence {
		if err := s.fence.Reset(); err != nil {
			s.fence.Destroy()
		} else {
			q.fences = append(q.fences, s.fence)
		}
	}
	if err := s.cmd.Reset(); err != nil {
		q.Device.api.FreeCommandBuffer(q.pool, s.cmd.VKCommandBuffer)
		q.allocated--
		return nil, err
	}
	return s.cmd, nil
}

// Recycle hands back a buffer that was released but never submitted.
func (q *Queue) Recycle(cmd *CommandBuffer) error {
	if cmd.queue != q {
		return errors.Wrap(gfx.ErrContract, "command buffer belongs to another queue")
	}
	if err := cmd.Reset(); err != nil {
		return err
	}
	q.free = append(q.free, cmd)
	return nil
}

// SemaphoreWait makes a submission wait on Semaphore at Stage.
type SemaphoreWait struct {
	Semaphore *Semaphore
	Stage     vk.PipelineStageFlags
}

// SubmitOptions are the extra dependencies of a submission.
type SubmitOptions struct {
	Waits   []SemaphoreWait
	Signals []*Semaphore
	// Fence is signaled when the work completes. When nil the queue uses one of its own.
	Fence *Fence
	// Wait blocks until the work completes
	Wait bool
}

func (q *Queue) ownedFence() (*Fence, error) {
	if n := len(q.fences); n > 0 {
		f := q.fences[n-1]
		q.fences = q.fences[:n-1]
		return f, nil
	}
	return q.Device.CreateFence(false)
}

// Submit ends cmd if it is still recording and submits it. The buffer's own semaphore
// registrations are merged with the options, its waits applying to all commands.
func (q *Queue) Submit(list gfx.ICommandList, opts SubmitOptions) error {
	cmd, ok := list.(*CommandBuffer)
	if !ok {
		return errors.Wrapf(gfx.ErrWrongBackend, "command list %T", list)
	}
	if cmd.queue != q {
		return errors.Wrap(gfx.ErrContract, "command buffer belongs to another queue")
	}
	if cmd.recording {
		if err := cmd.End(); err != nil {
			return err
		}
	}

	var waits []vk.Semaphore
	var stages []vk.PipelineStageFlags
	var signals []vk.Semaphore
	for _, dep := range cmd.semaphores {
		switch dep.Kind {
		case gfx.Wait:
			waits = append(waits, dep.Semaphore.VKSemaphore)
			stages = append(stages, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
		case gfx.Signal:
			signals = append(signals, dep.Semaphore.VKSemaphore)
		}
	}
	for _, w := range opts.Waits {
		waits = append(waits, w.Semaphore.VKSemaphore)
		stages = append(stages, w.Stage)
	}
	for _, s := range opts.Signals {
		signals = append(signals, s.VKSemaphore)
	}

	fence, owned := opts.Fence, false
	if fence == nil {
		var err error
		if fence, err = q.ownedFence(); err != nil {
			return err
		}
		owned = true
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.VKCommandBuffer},
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}

	// tracked before submitting so device loss diagnostics can see it
	q.pending = append(q.pending, submission{cmd: cmd, fence: fence, ownsFence: owned})

	res := q.Device.api.QueueSubmit(q.VKQueue, submitInfo, fence.VKFence)
	switch res {
	case vk.Success:
	case vk.ErrorDeviceLost:
		return q.Device.deviceLost("queue submit")
	default:
		q.pending = q.pending[:len(q.pending)-1]
		if owned {
			q.fences = append(q.fences, fence)
		}
		return errors.Wrap(vk.Error(res), "queue submit")
	}

	if opts.Wait {
		return fence.Wait()
	}
	return nil
}

// WaitIdle blocks until the queue has finished all submitted work.
func (q *Queue) WaitIdle() error {
	return errors.Wrap(q.Device.api.QueueWaitIdle(q.VKQueue), "queue wait idle")
}

// ClearCache waits for every submission and frees all command buffers and owned fences.
func (q *Queue) ClearCache() error {
	var firstErr error
	for _, s := range q.pending {
		if err := s.fence.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
		q.free = append(q.free, s.cmd)
		if s.ownsFence {
			s.fence.Destroy()
		}
	}
	q.pending = nil

	for _, cmd := range q.free {
		for _, s := range cmd.staging {
			s.Destroy()
		}
		cmd.staging = nil
		q.Device.api.FreeCommandBuffer(q.pool, cmd.VKCommandBuffer)
	}
	q.allocated -= len(q.free)
	q.free = nil

	for _, f := range q.fences {
		f.Destroy()
	}
	q.fences = nil
	return firstErr
}

func (q *Queue) Destroy() {
	if q.destroyed {
		return
	}
	if err := q.ClearCache(); err != nil {
		q.log.Warn("clearing queue cache", "err", err)
	}
	q.Device.api.DestroyCommandPool(q.pool)
	q.destroyed = true
}
