package vulkan

import (
	gfx "github.com/heyallnorahere/code-playground-sub000"
	vk "github.com/vulkan-go/vulkan"
)

// bindable is a resource that can be written into descriptor sets.
type bindable interface {
	gfx.IDestructable
	// descriptorInfo fills the buffer or image part of a descriptor write for kind.
	descriptorInfo(kind gfx.ResourceKind) (descriptorInfo, error)
	tracker() *bindings
}

type descriptorInfo struct {
	Buffer *vk.DescriptorBufferInfo
	Image  *vk.DescriptorImageInfo
}

// bindings remembers every descriptor slot a resource is written to, so the writes can be
// replayed when the resource changes. A slot is tracked iff the resource is bound there.
// Binding the same slot twice is one entry.
type bindings struct {
	owner bindable
	// pipeline -> set -> binding -> array index
	bound   map[*Pipeline]map[int]map[int]map[int]struct{}
	dynamic map[*Pipeline]map[int]struct{}
}

func (b *bindings) tracker() *bindings { return b }

func (b *bindings) init(owner bindable) {
	b.owner = owner
	b.bound = map[*Pipeline]map[int]map[int]map[int]struct{}{}
	b.dynamic = map[*Pipeline]map[int]struct{}{}
}

// bind writes the descriptor and records the slot, or the dynamic id when dynamicID is not
// negative. Nothing is recorded if the write fails.
func (b *bindings) bind(p *Pipeline, set, binding, index, dynamicID int) error {
	if dynamicID >= 0 {
		if err := p.writeDynamic(b.owner, dynamicID); err != nil {
			return err
		}
		ids := b.dynamic[p]
		if ids == nil {
			ids = map[int]struct{}{}
			b.dynamic[p] = ids
		}
		ids[dynamicID] = struct{}{}
		p.track(b.owner)
		return nil
	}

	if err := p.write(b.owner, set, binding, index); err != nil {
		return err
	}
	sets := b.bound[p]
	if sets == nil {
		sets = map[int]map[int]map[int]struct{}{}
		b.bound[p] = sets
	}
	bindingMap := sets[set]
	if bindingMap == nil {
		bindingMap = map[int]map[int]struct{}{}
		sets[set] = bindingMap
	}
	indices := bindingMap[binding]
	if indices == nil {
		indices = map[int]struct{}{}
		bindingMap[binding] = indices
	}
	indices[index] = struct{}{}
	p.track(b.owner)
	return nil
}

// unbind forgets a slot, pruning every level left empty. Unknown slots are ignored.
func (b *bindings) unbind(p *Pipeline, set, binding, index int) {
	sets, ok := b.bound[p]
	if !ok {
		return
	}
	bindingMap, ok := sets[set]
	if !ok {
		return
	}
	indices, ok := bindingMap[binding]
	if !ok {
		return
	}
	delete(indices, index)
	if len(indices) == 0 {
		delete(bindingMap, binding)
	}
	if len(bindingMap) == 0 {
		delete(sets, set)
	}
	if len(sets) == 0 {
		delete(b.bound, p)
	}
	b.untrackIfUnused(p)
}

func (b *bindings) unbindDynamic(p *Pipeline, id int) {
	ids, ok := b.dynamic[p]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(b.dynamic, p)
	}
	b.untrackIfUnused(p)
}

func (b *bindings) untrackIfUnused(p *Pipeline) {
	_, bound := b.bound[p]
	_, dynamic := b.dynamic[p]
	if !bound && !dynamic {
		p.untrack(b.owner)
	}
}

// forget drops everything recorded for p without touching its descriptor sets.
func (b *bindings) forget(p *Pipeline) {
	delete(b.bound, p)
	delete(b.dynamic, p)
}

// isBound reports whether the slot is tracked.
func (b *bindings) isBound(p *Pipeline, set, binding, index int) bool {
	_, ok := b.bound[p][set][binding][index]
	return ok
}

// BoundSlots returns the number of tracked descriptor slots and dynamic ids.
func (b *bindings) BoundSlots() int {
	n := 0
	for _, sets := range b.bound {
		for _, bindingMap := range sets {
			for _, indices := range bindingMap {
				n += len(indices)
			}
		}
	}
	for _, ids := range b.dynamic {
		n += len(ids)
	}
	return n
}

// Rebind writes the resource again into every slot it is bound to. Resources call it after
// their view, sampler or layout changed.
func (b *bindings) Rebind() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for p, sets := range b.bound {
		for set, bindingMap := range sets {
			for binding, indices := range bindingMap {
				for index := range indices {
					keep(p.write(b.owner, set, binding, index))
				}
			}
		}
	}
	for p, ids := range b.dynamic {
		for id := range ids {
			keep(p.writeDynamic(b.owner, id))
		}
	}
	return firstErr
}

// release detaches the resource from every pipeline. Called when the resource is destroyed.
func (b *bindings) release() {
	for p := range b.bound {
		p.untrack(b.owner)
	}
	for p := range b.dynamic {
		p.untrack(b.owner)
	}
	b.bound = map[*Pipeline]map[int]map[int]map[int]struct{}{}
	b.dynamic = map[*Pipeline]map[int]struct{}{}
}
