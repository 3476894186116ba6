package vulkan

import (
	"testing"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func submitEmpty(t *testing.T, q *Queue) *CommandBuffer {
	t.Helper()
	cmd, err := q.Release()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(cmd, SubmitOptions{}); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestFenceWaitRetriesTimeout(t *testing.T) {
	d, api := newTestDevice(t)
	f, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	api.waitResults = []vk.Result{vk.Timeout, vk.Timeout}
	if err := f.Wait(); err != nil {
		t.Fatal(err)
	}
	if api.calls["WaitForFence"] != 3 {
		t.Errorf("waited %d times", api.calls["WaitForFence"])
	}
	if !f.Signaled() {
		t.Error("fence should be signaled after the wait")
	}
}

func TestFenceWaitDeviceLost(t *testing.T) {
	d, api := newTestDevice(t)
	f, _ := d.CreateFence(false)
	api.waitResults = []vk.Result{vk.ErrorDeviceLost}
	if err := f.Wait(); !errors.Is(err, gfx.ErrDeviceLost) {
		t.Errorf("expected device lost, got %v", err)
	}
	if !d.Lost() {
		t.Error("device should be marked lost")
	}
}

func TestFencesAreIndependent(t *testing.T) {
	d, _ := newTestDevice(t)
	unsignaled, _ := d.CreateFence(false)
	signaled, _ := d.CreateFence(true)
	if unsignaled.VKFence == signaled.VKFence {
		t.Fatal("two fences share a handle")
	}
	if unsignaled.Signaled() || !signaled.Signaled() {
		t.Errorf("signaled states %v and %v", unsignaled.Signaled(), signaled.Signaled())
	}
	if err := signaled.Reset(); err != nil {
		t.Fatal(err)
	}
	if signaled.Signaled() {
		t.Error("reset fence still signaled")
	}
}

func TestQueueReleaseReusesSignaled(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics

	first := submitEmpty(t, q)
	second, err := q.Release()
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("unfinished command buffer was reused")
	}
	if q.Allocated() != 2 {
		t.Errorf("allocated %d command buffers", q.Allocated())
	}
	if err := q.Recycle(second); err != nil {
		t.Fatal(err)
	}

	// recycled buffers come back before anything is reclaimed
	again, _ := q.Release()
	if again != second {
		t.Error("recycled buffer was not reused")
	}
	q.Recycle(again)
	q.Release()

	api.signaled[q.pending[0].fence.VKFence] = true
	reused, err := q.Release()
	if err != nil {
		t.Fatal(err)
	}
	if reused != first {
		t.Error("signaled submission was not reclaimed")
	}
	if q.Pending() != 0 || q.Allocated() != 2 {
		t.Errorf("pending %d allocated %d", q.Pending(), q.Allocated())
	}
	if reused.IsRecording() {
		t.Error("reclaimed buffer still recording")
	}
}

func TestQueueCommandListCap(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics
	q.CommandListCap = 1

	first := submitEmpty(t, q)
	cmd, err := q.Release()
	if err != nil {
		t.Fatal(err)
	}
	if cmd != first {
		t.Error("expected the oldest submission once the cap is reached")
	}
	if api.calls["WaitForFence"] != 1 {
		t.Errorf("waited %d times", api.calls["WaitForFence"])
	}
	if q.Allocated() != 1 {
		t.Errorf("allocated %d command buffers", q.Allocated())
	}
}

func TestReclaimFreesBufferThatFailsReset(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics
	api.completeOnSubmit = true
	submitEmpty(t, q)

	api.resetErr = errors.New("reset failed")
	if _, err := q.Release(); err == nil {
		t.Fatal("expected the reset error")
	}
	if q.Pending() != 0 || q.Allocated() != 0 {
		t.Errorf("pending %d allocated %d", q.Pending(), q.Allocated())
	}
	if api.calls["FreeCommandBuffer"] != 1 {
		t.Errorf("freed %d command buffers", api.calls["FreeCommandBuffer"])
	}

	api.resetErr = nil
	if _, err := q.Release(); err != nil {
		t.Fatal(err)
	}
	if q.Allocated() != 1 {
		t.Errorf("allocated %d command buffers", q.Allocated())
	}
}

func TestQueueReclaimKeepsFences(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics
	api.completeOnSubmit = true

	for i := 0; i < 5; i++ {
		submitEmpty(t, q)
	}
	if q.Allocated() != 1 {
		t.Errorf("allocated %d command buffers", q.Allocated())
	}
	if api.calls["CreateFence"] != 1 {
		t.Errorf("created %d fences", api.calls["CreateFence"])
	}
}

func TestSubmitMergesSemaphores(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics

	wait, _ := d.CreateSemaphore()
	signal, _ := d.CreateSemaphore()
	extra, _ := d.CreateSemaphore()

	cmd, _ := q.Release()
	cmd.Begin()
	cmd.AddSemaphore(wait, gfx.Wait)
	cmd.AddSemaphore(signal, gfx.Signal)
	err := q.Submit(cmd, SubmitOptions{
		Waits: []SemaphoreWait{{Semaphore: extra, Stage: vk.PipelineStageFlags(vk.PipelineStageTransferBit)}},
		Wait:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	info := api.submits[0]
	if info.WaitSemaphoreCount != 2 || len(info.PWaitDstStageMask) != 2 {
		t.Errorf("%d waits", info.WaitSemaphoreCount)
	}
	if info.SignalSemaphoreCount != 1 {
		t.Errorf("%d signals", info.SignalSemaphoreCount)
	}
	if api.calls["EndCommandBuffer"] != 1 {
		t.Error("submit should end a recording buffer")
	}
}

func TestSubmitChecksOwnership(t *testing.T) {
	transfer := &QueueFamily{Index: 1, Flags: vk.QueueFlags(vk.QueueTransferBit), Count: 1}
	d, _ := newTestDevice(t, universalFamily(0), transfer)
	if d.Transfer == d.Graphics {
		t.Fatal("expected a dedicated transfer queue")
	}

	cmd, _ := d.Transfer.Release()
	cmd.Begin()
	if err := d.Graphics.Submit(cmd, SubmitOptions{}); !errors.Is(err, gfx.ErrContract) {
		t.Errorf("expected contract error, got %v", err)
	}
	if err := d.Graphics.Recycle(cmd); !errors.Is(err, gfx.ErrContract) {
		t.Errorf("expected contract error, got %v", err)
	}
	if err := cmd.Dispatch(1, 1, 1); !errors.Is(err, gfx.ErrMissingCapability) {
		t.Errorf("dispatch on a transfer queue: %v", err)
	}
}

func TestSubmitFailure(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics
	api.submitResult = vk.ErrorOutOfDeviceMemory

	cmd, _ := q.Release()
	cmd.Begin()
	if err := q.Submit(cmd, SubmitOptions{}); err == nil {
		t.Fatal("expected an error")
	}
	if q.Pending() != 0 {
		t.Errorf("failed submission is pending")
	}

	api.submitResult = vk.ErrorDeviceLost
	cmd, _ = q.Release()
	cmd.Begin()
	cmd.Checkpoint("draw")
	if err := q.Submit(cmd, SubmitOptions{}); !errors.Is(err, gfx.ErrDeviceLost) {
		t.Errorf("expected device lost, got %v", err)
	}
}

func TestCheckpointsAreBounded(t *testing.T) {
	d, _ := newTestDevice(t)
	cmd, _ := d.Graphics.Release()
	for i := 0; i < maxCheckpoints+10; i++ {
		cmd.Checkpoint("step")
	}
	cmd.Checkpoint("last")
	cps := cmd.Checkpoints()
	if len(cps) != maxCheckpoints {
		t.Errorf("%d checkpoints", len(cps))
	}
	if cps[len(cps)-1] != "last" {
		t.Errorf("newest checkpoint is %s", cps[len(cps)-1])
	}
}

func TestClearCache(t *testing.T) {
	d, api := newTestDevice(t)
	q := d.Graphics
	submitEmpty(t, q)
	submitEmpty(t, q)

	if err := d.ClearQueues(); err != nil {
		t.Fatal(err)
	}
	if q.Pending() != 0 || q.Allocated() != 0 {
		t.Errorf("pending %d allocated %d", q.Pending(), q.Allocated())
	}
	if api.calls["FreeCommandBuffer"] != 2 {
		t.Errorf("freed %d command buffers", api.calls["FreeCommandBuffer"])
	}
	if n := api.live("CreateFence", "DestroyFence"); n != 0 {
		t.Errorf("%d fences leaked", n)
	}
}

func TestQueueFor(t *testing.T) {
	compute := &QueueFamily{Index: 1, Flags: vk.QueueFlags(vk.QueueComputeBit), Count: 1}
	d, _ := newTestDevice(t, universalFamily(0), compute)

	q, err := d.QueueFor(gfx.ComputeCapability)
	if err != nil || q != d.Compute || q == d.Graphics {
		t.Errorf("compute queue %v, %v", q, err)
	}
	q, err = d.QueueFor(gfx.GraphicsCapability | gfx.ComputeCapability)
	if err != nil || q != d.Graphics {
		t.Errorf("graphics queue %v, %v", q, err)
	}
	q, err = d.QueueFor(gfx.TransferCapability)
	if err != nil || q == nil {
		t.Errorf("transfer queue %v, %v", q, err)
	}
}

func TestDeviceDestroy(t *testing.T) {
	d, api := newTestDevice(t)
	submitEmpty(t, d.Graphics)
	d.Destroy()
	d.Destroy()
	if api.calls["DestroyDevice"] != 1 {
		t.Errorf("device destroyed %d times", api.calls["DestroyDevice"])
	}
	if n := api.live("CreateCommandPool", "DestroyCommandPool"); n != 0 {
		t.Errorf("%d command pools leaked", n)
	}
	if _, err := d.Graphics.Release(); !errors.Is(err, gfx.ErrContract) {
		t.Errorf("release after destroy: %v", err)
	}
}
