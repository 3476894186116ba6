package vulkan

import (
	"fmt"
)

// Allocation is a range of a larger block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// IAllocator hands out ranges of a fixed size block. Allocate returns nil when no range fits.
type IAllocator interface {
	Free(a *Allocation)
	Allocate(size uint64, align uint64) *Allocation
	Reset()
}

// LinearAllocator is a first fit allocator keeping its allocations sorted by offset.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

var _ IAllocator = (*LinearAllocator)(nil)

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

// Reset frees every allocation.
func (p *LinearAllocator) Reset() {
	p.allocs = nil
}

// Used returns the number of live allocations.
func (p *LinearAllocator) Used() int { return len(p.allocs) }

func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}
	if len(p.allocs) == 0 {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	// room at the head of the block
	if p.allocs[0].Offset >= size {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append([]*Allocation{na}, p.allocs...)
		return na
	}

	for i := 0; i+1 < len(p.allocs); i++ {
		c, n := p.allocs[i], p.allocs[i+1]
		l := makeAlignUp(c.Offset+c.Size, align)
		h := n.Offset
		if h >= l && h-l >= size {
			na := &Allocation{Offset: l, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*Allocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	last := p.allocs[len(p.allocs)-1]
	nl := makeAlignUp(last.Offset+last.Size, align)
	if nl <= p.Size && p.Size-nl >= size {
		na := &Allocation{Offset: nl, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}
	return nil
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
