package vulkan

import (
	"sort"

	gfx "github.com/heyallnorahere/code-playground-sub000"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// resourceSlot is where a named shader resource lives.
type resourceSlot struct {
	Name    string
	Set     int
	Binding int
	Kind    gfx.ResourceKind
	Count   int
	Stages  vk.ShaderStageFlags
}

func (r resourceSlot) count() int {
	if r.Count < 1 {
		return 1
	}
	return r.Count
}

type slotKey struct{ set, binding int }

// descriptorSetGroup is one set index: its layout and a copy of the set per frame.
type descriptorSetGroup struct {
	layout vk.DescriptorSetLayout
	frames []vk.DescriptorSet
}

// Pipeline is a graphics or compute pipeline with its descriptor sets. Resources bound to
// it are written into the sets of every frame.
type Pipeline struct {
	Device           *Device
	VKPipeline       vk.Pipeline
	VKPipelineLayout vk.PipelineLayout

	desc       gfx.PipelineDescription
	pool       *DescriptorPool
	groups     []descriptorSetGroup
	resources  map[string]resourceSlot
	slots      map[slotKey]resourceSlot
	modules    []*ShaderModule
	stageFlags vk.ShaderStageFlags
	dynamic    map[int]vk.DescriptorSet
	tracked    map[bindable]struct{}
	loaded     bool
	destroyed  bool
}

var _ gfx.IPipeline = (*Pipeline)(nil)

// CreatePipeline creates an unloaded pipeline and its descriptor pool.
func (d *Device) CreatePipeline(desc gfx.PipelineDescription) (*Pipeline, error) {
	if desc.Type == gfx.Graphics {
		if desc.RenderTarget == nil {
			return nil, errors.Wrap(gfx.ErrContract, "graphics pipeline without a render target")
		}
		if _, ok := desc.RenderTarget.(renderTarget); !ok {
			return nil, errors.Wrapf(gfx.ErrWrongBackend, "render target %T", desc.RenderTarget)
		}
	}
	pool, err := d.createDescriptorPool(MaxSets)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Device:  d,
		desc:    desc,
		pool:    pool,
		tracked: map[bindable]struct{}{},
	}, nil
}

func (p *Pipeline) Description() gfx.PipelineDescription { return p.desc }
func (p *Pipeline) Loaded() bool { return p.loaded }

// Resource returns the reflected slot of a named resource.
func (p *Pipeline) Resource(name string) (set, binding int, ok bool) {
	r, ok := p.resources[name]
	return r.Set, r.Binding, ok
}

// mergeResources combines the reflection data of every stage. A resource used by several
// stages must agree on its slot, and a slot cannot hold two resources.
func mergeResources(shaders []gfx.IShader) (map[string]resourceSlot, map[slotKey]resourceSlot, error) {
	byName := map[string]resourceSlot{}
	bySlot := map[slotKey]resourceSlot{}
	for _, s := range shaders {
		stage := vk.ShaderStageFlags(shaderStages[s.Stage()])
		for _, r := range s.Resources() {
			if r.Set < 0 || r.Binding < 0 {
				return nil, nil, errors.Wrapf(gfx.ErrCompilation, "resource %s has slot (%d, %d)", r.Name, r.Set, r.Binding)
			}
			if _, ok := descriptorTypes[r.Kind]; !ok {
				return nil, nil, errors.Wrapf(gfx.ErrCompilation, "resource %s has unknown kind %d", r.Name, r.Kind)
			}
			key := slotKey{r.Set, r.Binding}
			if existing, ok := byName[r.Name]; ok {
				if existing.Set != r.Set || existing.Binding != r.Binding || existing.Kind != r.Kind {
					return nil, nil, errors.Wrapf(gfx.ErrCompilation, "resource %s declared differently by %s stage", r.Name, s.Stage())
				}
				existing.Stages |= stage
				byName[r.Name] = existing
				bySlot[key] = existing
				continue
			}
			if other, ok := bySlot[key]; ok {
				return nil, nil, errors.Wrapf(gfx.ErrCompilation, "resources %s and %s share set %d binding %d", other.Name, r.Name, r.Set, r.Binding)
			}
			slot := resourceSlot{Name: r.Name, Set: r.Set, Binding: r.Binding, Kind: r.Kind, Count: r.Count, Stages: stage}
			byName[r.Name] = slot
			bySlot[key] = slot
		}
	}
	return byName, bySlot, nil
}

// Load builds the pipeline from shaders, replacing whatever was loaded before. Bindings
// made before the call are dropped.
func (p *Pipeline) Load(shaders ...gfx.IShader) error {
	if p.destroyed {
		return errors.Wrap(gfx.ErrContract, "load on destroyed pipeline")
	}
	p.Cleanup()

	if err := p.desc.ValidateStages(shaders); err != nil {
		return err
	}
	resources, slots, err := mergeResources(shaders)
	if err != nil {
		return err
	}
	p.resources, p.slots = resources, slots

	if err := p.load(shaders); err != nil {
		p.Cleanup()
		return err
	}
	p.loaded = true
	p.Device.log.Debug("loaded pipeline", "resources", len(p.resources), "sets", len(p.groups), "frames", p.desc.Frames())
	return nil
}

func (p *Pipeline) load(shaders []gfx.IShader) error {
	api := p.Device.api

	setCount := 0
	for key := range p.slots {
		if key.set+1 > setCount {
			setCount = key.set + 1
		}
	}
	frames := p.desc.Frames()
	if needed := setCount * frames; needed > p.pool.Remaining() {
		return errors.Wrapf(gfx.ErrOutOfCapacity, "%d sets for %d frames need %d descriptor sets, pool has %d", setCount, frames, needed, p.pool.Remaining())
	}

	// sets without resources still need a layout so later sets keep their index
	p.groups = make([]descriptorSetGroup, setCount)
	for set := range p.groups {
		var bindings []vk.DescriptorSetLayoutBinding
		for key, slot := range p.slots {
			if key.set != set {
				continue
			}
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(slot.Binding),
				DescriptorType:  descriptorTypes[slot.Kind],
				DescriptorCount: uint32(slot.count()),
				StageFlags:      slot.Stages,
			})
		}
		sort.Slice(bindings, func(i, j int) bool { return bindings[i].Binding < bindings[j].Binding })

		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		layout, err := api.CreateDescriptorSetLayout(&layoutInfo)
		if err != nil {
			return errors.Wrapf(gfx.ErrAllocation, "create layout of set %d: %v", set, err)
		}
		p.groups[set].layout = layout

		for f := 0; f < frames; f++ {
			ds, err := p.pool.Allocate(layout)
			if err != nil {
				return err
			}
			p.groups[set].frames = append(p.groups[set].frames, ds)
		}
	}

	for _, s := range shaders {
		module, err := p.Device.createShaderModule(s)
		if err != nil {
			return err
		}
		p.modules = append(p.modules, module)
		p.stageFlags |= vk.ShaderStageFlags(shaderStages[s.Stage()])
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(p.groups))
	for i, g := range p.groups {
		setLayouts[i] = g.layout
	}
	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if p.desc.PushConstantSize > 0 {
		pipelineLayoutInfo.PushConstantRangeCount = 1
		pipelineLayoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.stageFlags,
			Offset:     0,
			Size:       p.desc.PushConstantSize,
		}}
	}
	layout, err := api.CreatePipelineLayout(&pipelineLayoutInfo)
	if err != nil {
		return errors.Wrapf(gfx.ErrAllocation, "create pipeline layout: %v", err)
	}
	p.VKPipelineLayout = layout

	stages := make([]vk.PipelineShaderStageCreateInfo, len(p.modules))
	for i, m := range p.modules {
		stages[i] = m.VKPipelineShaderStageCreateInfo()
	}

	switch p.desc.Type {
	case gfx.Graphics:
		rt := p.desc.RenderTarget.(renderTarget)
		config := newGraphicsPipelineConfig(p.desc)
		info := config.VKGraphicsPipelineCreateInfo(stages, layout, rt.renderPass())
		p.VKPipeline, err = api.CreateGraphicsPipeline(p.Device.PipelineCache, info)
	case gfx.Compute:
		info := vk.ComputePipelineCreateInfo{
			SType:  vk.StructureTypeComputePipelineCreateInfo,
			Stage:  stages[0],
			Layout: layout,
		}
		p.VKPipeline, err = api.CreateComputePipeline(p.Device.PipelineCache, info)
	}
	if err != nil {
		return errors.Wrapf(gfx.ErrCompilation, "create pipeline: %v", err)
	}
	return nil
}

func (p *Pipeline) resolve(resource gfx.IDestructable, name string, index int) (bindable, resourceSlot, bool, error) {
	if !p.loaded {
		return nil, resourceSlot{}, false, errors.Wrapf(gfx.ErrNotLoaded, "binding %s", name)
	}
	slot, ok := p.resources[name]
	if !ok {
		return nil, slot, false, nil
	}
	b, ok := resource.(bindable)
	if !ok {
		return nil, slot, false, errors.Wrapf(gfx.ErrWrongBackend, "resource %T bound to %s", resource, name)
	}
	if index < 0 || index >= slot.count() {
		return nil, slot, false, errors.Wrapf(gfx.ErrContract, "index %d out of range for %s[%d]", index, name, slot.count())
	}
	return b, slot, true, nil
}

// Bind writes resource into the named slot at index for every frame. It returns false
// when no stage declares name.
func (p *Pipeline) Bind(resource gfx.IDestructable, name string, index int) (bool, error) {
	b, slot, ok, err := p.resolve(resource, name, index)
	if !ok || err != nil {
		return false, err
	}
	return true, b.tracker().bind(p, slot.Set, slot.Binding, index, -1)
}

// Unbind stops tracking resource at the named slot. The descriptor keeps its contents.
func (p *Pipeline) Unbind(resource gfx.IDestructable, name string, index int) error {
	b, slot, ok, err := p.resolve(resource, name, index)
	if !ok || err != nil {
		return err
	}
	b.tracker().unbind(p, slot.Set, slot.Binding, index)
	return nil
}

// BindDynamic writes resource into a set of its own, identified by id, built from the
// layout of set 0. UseDynamic selects it per draw.
func (p *Pipeline) BindDynamic(resource gfx.IDestructable, id int) error {
	if !p.loaded {
		return errors.Wrap(gfx.ErrNotLoaded, "dynamic binding")
	}
	if id < 0 {
		return errors.Wrapf(gfx.ErrContract, "dynamic id %d", id)
	}
	b, ok := resource.(bindable)
	if !ok {
		return errors.Wrapf(gfx.ErrWrongBackend, "resource %T", resource)
	}
	return b.tracker().bind(p, 0, 0, 0, id)
}

func (p *Pipeline) UnbindDynamic(resource gfx.IDestructable, id int) error {
	b, ok := resource.(bindable)
	if !ok {
		return errors.Wrapf(gfx.ErrWrongBackend, "resource %T", resource)
	}
	b.tracker().unbindDynamic(p, id)
	return nil
}

func (p *Pipeline) track(b bindable) { p.tracked[b] = struct{}{} }
func (p *Pipeline) untrack(b bindable) { delete(p.tracked, b) }

func (p *Pipeline) descriptorWrite(b bindable, set vk.DescriptorSet, slot resourceSlot, index int) (vk.WriteDescriptorSet, error) {
	info, err := b.descriptorInfo(slot.Kind)
	if err != nil {
		return vk.WriteDescriptorSet{}, errors.Wrapf(err, "resource %s", slot.Name)
	}
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      uint32(slot.Binding),
		DstArrayElement: uint32(index),
		DescriptorCount: 1,
		DescriptorType:  descriptorTypes[slot.Kind],
	}
	if info.Buffer != nil {
		w.PBufferInfo = []vk.DescriptorBufferInfo{*info.Buffer}
	}
	if info.Image != nil {
		w.PImageInfo = []vk.DescriptorImageInfo{*info.Image}
	}
	return w, nil
}

// write updates one slot in the sets of every frame.
func (p *Pipeline) write(b bindable, set, binding, index int) error {
	if !p.loaded {
		return errors.Wrap(gfx.ErrNotLoaded, "descriptor write")
	}
	slot, ok := p.slots[slotKey{set, binding}]
	if !ok {
		return errors.Wrapf(gfx.ErrContract, "no resource at set %d binding %d", set, binding)
	}
	writes := make([]vk.WriteDescriptorSet, 0, len(p.groups[set].frames))
	for _, ds := range p.groups[set].frames {
		w, err := p.descriptorWrite(b, ds, slot, index)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	p.Device.api.UpdateDescriptorSets(writes)
	return nil
}

func (p *Pipeline) writeDynamic(b bindable, id int) error {
	if !p.loaded {
		return errors.Wrap(gfx.ErrNotLoaded, "descriptor write")
	}
	slot, ok := p.slots[slotKey{0, 0}]
	if !ok {
		return errors.Wrap(gfx.ErrContract, "dynamic binding needs a resource at set 0 binding 0")
	}
	ds, ok := p.dynamic[id]
	if !ok {
		var err error
		if ds, err = p.pool.Allocate(p.groups[0].layout); err != nil {
			return err
		}
		if p.dynamic == nil {
			p.dynamic = map[int]vk.DescriptorSet{}
		}
		p.dynamic[id] = ds
	}
	w, err := p.descriptorWrite(b, ds, slot, 0)
	if err != nil {
		return err
	}
	p.Device.api.UpdateDescriptorSets([]vk.WriteDescriptorSet{w})
	return nil
}

func (p *Pipeline) bindPoint() (vk.PipelineBindPoint, gfx.QueueCapability) {
	if p.desc.Type == gfx.Compute {
		return vk.PipelineBindPointCompute, gfx.ComputeCapability
	}
	return vk.PipelineBindPointGraphics, gfx.GraphicsCapability
}

func (p *Pipeline) checkUse(list gfx.ICommandList) (*CommandBuffer, error) {
	cmd, ok := list.(*CommandBuffer)
	if !ok {
		return nil, errors.Wrapf(gfx.ErrWrongBackend, "command list %T", list)
	}
	if !p.loaded {
		return nil, errors.Wrap(gfx.ErrNotLoaded, "use pipeline")
	}
	_, caps := p.bindPoint()
	if err := cmd.requires(caps, "pipeline"); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Use records the pipeline and the descriptor sets of frame. Graphics pipelines also set
// the viewport and scissor to cover the render target.
func (p *Pipeline) Use(list gfx.ICommandList, frame int) error {
	cmd, err := p.checkUse(list)
	if err != nil {
		return err
	}
	if frame < 0 || frame >= p.desc.Frames() {
		return errors.Wrapf(gfx.ErrContract, "frame %d of %d", frame, p.desc.Frames())
	}

	point, _ := p.bindPoint()
	api := p.Device.api
	api.CmdBindPipeline(cmd.VKCommandBuffer, point, p.VKPipeline)
	if len(p.groups) > 0 {
		sets := make([]vk.DescriptorSet, len(p.groups))
		for i, g := range p.groups {
			sets[i] = g.frames[frame]
		}
		api.CmdBindDescriptorSets(cmd.VKCommandBuffer, point, p.VKPipelineLayout, 0, sets)
	}
	if p.desc.Type == gfx.Graphics {
		rt := p.desc.RenderTarget
		cmd.SetViewport(0, 0, float32(rt.Width()), float32(rt.Height()))
		cmd.SetScissor(0, 0, uint32(rt.Width()), uint32(rt.Height()))
	}
	return nil
}

// UseDynamic binds the dynamic set id in place of set 0.
func (p *Pipeline) UseDynamic(list gfx.ICommandList, id int) error {
	cmd, err := p.checkUse(list)
	if err != nil {
		return err
	}
	ds, ok := p.dynamic[id]
	if !ok {
		return errors.Wrapf(gfx.ErrContract, "no dynamic binding %d", id)
	}
	point, _ := p.bindPoint()
	p.Device.api.CmdBindDescriptorSets(cmd.VKCommandBuffer, point, p.VKPipelineLayout, 0, []vk.DescriptorSet{ds})
	return nil
}

// Cleanup drops every binding and destroys the compiled pipeline, keeping the descriptor
// pool for the next Load.
func (p *Pipeline) Cleanup() {
	for b := range p.tracked {
		b.tracker().forget(p)
	}
	p.tracked = map[bindable]struct{}{}
	p.dynamic = nil

	api := p.Device.api
	if p.VKPipeline != nil {
		api.DestroyPipeline(p.VKPipeline)
		p.VKPipeline = nil
	}
	if p.VKPipelineLayout != nil {
		api.DestroyPipelineLayout(p.VKPipelineLayout)
		p.VKPipelineLayout = nil
	}
	for _, g := range p.groups {
		if g.layout != nil {
			api.DestroyDescriptorSetLayout(g.layout)
		}
	}
	p.groups = nil
	for _, m := range p.modules {
		m.Destroy()
	}
	p.modules = nil
	p.stageFlags = 0
	p.resources, p.slots = nil, nil

	if p.pool.allocated > 0 {
		if err := p.pool.Reset(); err != nil {
			p.Device.log.Warn("reset descriptor pool", "err", err)
		}
	}
	p.loaded = false
}

func (p *Pipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.Cleanup()
	p.pool.Destroy()
	p.destroyed = true
}
