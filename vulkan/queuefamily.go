package vulkan

import (
	"fmt"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type QueueFamily struct {
	Index int
	Flags vk.QueueFlags
	Count int
	// Present is true if the family can present to the context's surface
	Present            bool
	TimestampValidBits uint32
}

func (q *QueueFamily) has(bit vk.QueueFlagBits) bool {
	return q.Flags&vk.QueueFlags(bit) == vk.QueueFlags(bit)
}

func (q *QueueFamily) IsGraphics() bool { return q.has(vk.QueueGraphicsBit) }
func (q *QueueFamily) IsCompute() bool { return q.has(vk.QueueComputeBit) }

// IsTransfer reports transfer support. Graphics and compute families support transfers
// even when they do not advertise it.
func (q *QueueFamily) IsTransfer() bool {
	return q.has(vk.QueueTransferBit) || q.IsGraphics() || q.IsCompute()
}

// Capabilities converts the family flags into the backend neutral form.
func (q *QueueFamily) Capabilities() gfx.QueueCapability {
	var c gfx.QueueCapability
	if q.IsGraphics() {
		c |= gfx.GraphicsCapability
	}
	if q.IsCompute() {
		c |= gfx.ComputeCapability
	}
	if q.IsTransfer() {
		c |= gfx.TransferCapability
	}
	return c
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Caps: %s Present: %v }", q.Index, q.Capabilities(), q.Present)
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

// first returns the first family, or nil.
func (ql QueueFamilySlice) first() *QueueFamily {
	if len(ql) == 0 {
		return nil
	}
	return ql[0]
}

// queueSelection is the family index used for each role.
type queueSelection struct {
	Graphics, Compute, Transfer int
	// Present is -1 when the context has no surface
	Present int
}

// families lists the distinct indices of the selection.
func (s queueSelection) families() []int {
	ret := []int{}
	seen := map[int]bool{}
	for _, i := range []int{s.Graphics, s.Compute, s.Transfer, s.Present} {
		if i < 0 || seen[i] {
			continue
		}
		seen[i] = true
		ret = append(ret, i)
	}
	return ret
}

// selectQueues picks a family per role, preferring dedicated compute and transfer families
// so that uploads and dispatches can overlap with rendering.
func selectQueues(families QueueFamilySlice, needPresent bool) (queueSelection, error) {
	sel := queueSelection{Present: -1}

	graphics := families.Filter(func(q *QueueFamily) bool { return q.IsGraphics() })
	if needPresent {
		both := graphics.Filter(func(q *QueueFamily) bool { return q.Present })
		if len(both) > 0 {
			graphics = both
		}
	}
	g := graphics.first()
	if g == nil {
		return sel, errors.Wrap(gfx.ErrNoDevice, "no graphics queue family")
	}
	sel.Graphics = g.Index

	if needPresent {
		p := families.Filter(func(q *QueueFamily) bool { return q.Present })
		if g.Present {
			sel.Present = g.Index
		} else if len(p) > 0 {
			sel.Present = p[0].Index
		} else {
			return sel, errors.Wrap(gfx.ErrNoDevice, "no queue family can present")
		}
	}

	sel.Compute = g.Index
	if c := families.Filter(func(q *QueueFamily) bool { return q.IsCompute() && !q.IsGraphics() }).first(); c != nil {
		sel.Compute = c.Index
	} else if !g.IsCompute() {
		if c := families.Filter(func(q *QueueFamily) bool { return q.IsCompute() }).first(); c != nil {
			sel.Compute = c.Index
		}
	}

	sel.Transfer = g.Index
	if t := families.Filter(func(q *QueueFamily) bool {
		return q.has(vk.QueueTransferBit) && !q.IsGraphics() && !q.IsCompute()
	}).first(); t != nil {
		sel.Transfer = t.Index
	}

	return sel, nil
}
