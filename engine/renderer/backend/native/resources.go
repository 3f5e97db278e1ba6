package native

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

type image struct {
	desc    gpu.ImageDesc
	texture hal.Texture
	view    hal.TextureView
}

func (i *image) Label() string            { return i.desc.Name }
func (i *image) Extent() common.Extent2D { return i.desc.Extent }
func (i *image) Format() gpu.Format      { return i.desc.Format }

type buffer struct {
	desc gpu.BufferDesc
	buf  hal.Buffer
}

func (b *buffer) Label() string { return b.desc.Name }
func (b *buffer) Size() uint64  { return b.desc.Size }

type program struct {
	desc     gpu.ProgramDesc
	module   hal.ShaderModule
	groups   []hal.BindGroupLayout
	layout   hal.PipelineLayout
	compute  hal.ComputePipeline
	graphics hal.RenderPipeline
}

func (p *program) Label() string { return p.desc.Name }

var formatMap = map[gpu.Format]gputypes.TextureFormat{
	gpu.FormatR8Unorm:        gputypes.TextureFormatR8Unorm,
	gpu.FormatRGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	gpu.FormatRGBA8UnormSrgb: gputypes.TextureFormatRGBA8UnormSrgb,
	gpu.FormatBGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	gpu.FormatBGRA8UnormSrgb: gputypes.TextureFormatBGRA8UnormSrgb,
	gpu.FormatRGBA16Float:    gputypes.TextureFormatRGBA16Float,
	gpu.FormatRGBA32Float:    gputypes.TextureFormatRGBA32Float,
	gpu.FormatR32Uint:        gputypes.TextureFormatR32Uint,
	gpu.FormatR32Float:       gputypes.TextureFormatR32Float,
	gpu.FormatDepth32Float:   gputypes.TextureFormatDepth32Float,
}

func textureFormat(f gpu.Format) (gputypes.TextureFormat, bool) {
	tf, ok := formatMap[f]
	return tf, ok
}

func textureUsage(caps gpu.ImageCapability) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if caps.Has(gpu.ImageCapSampled) {
		u |= gputypes.TextureUsageTextureBinding
	}
	if caps.Has(gpu.ImageCapStorage) {
		u |= gputypes.TextureUsageStorageBinding
	}
	if caps.Has(gpu.ImageCapColorAttachment) || caps.Has(gpu.ImageCapDepthAttachment) {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if caps.Has(gpu.ImageCapTransferSrc) {
		u |= gputypes.TextureUsageCopySrc
	}
	if caps.Has(gpu.ImageCapTransferDst) {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

// textureUsageOf maps a recorded usage state to the hal usage a texture transitions into.
func textureUsageOf(u gpu.ImageUsage) gputypes.TextureUsage {
	switch u {
	case gpu.ImageUsageGraphicsShaderRead, gpu.ImageUsageComputeShaderRead:
		return gputypes.TextureUsageTextureBinding
	case gpu.ImageUsageGraphicsShaderReadWrite, gpu.ImageUsageComputeShaderReadWrite:
		return gputypes.TextureUsageStorageBinding
	case gpu.ImageUsageTransferDst:
		return gputypes.TextureUsageCopyDst
	case gpu.ImageUsageTransferSrc:
		return gputypes.TextureUsageCopySrc
	case gpu.ImageUsageColorAttachment, gpu.ImageUsageDepthAttachment:
		return gputypes.TextureUsageRenderAttachment
	}
	return 0
}

func bufferUsage(caps gpu.BufferCapability) gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if caps.Has(gpu.BufferCapStorage) {
		u |= gputypes.BufferUsageStorage
	}
	if caps.Has(gpu.BufferCapUniform) {
		u |= gputypes.BufferUsageUniform
	}
	if caps.Has(gpu.BufferCapIndex) {
		u |= gputypes.BufferUsageIndex
	}
	if caps.Has(gpu.BufferCapVertex) {
		u |= gputypes.BufferUsageVertex
	}
	if caps.Has(gpu.BufferCapIndirect) {
		u |= gputypes.BufferUsageIndirect
	}
	if caps.Has(gpu.BufferCapTransferSrc) {
		u |= gputypes.BufferUsageCopySrc
	}
	if caps.Has(gpu.BufferCapTransferDst) || caps.Has(gpu.BufferCapHostWrite) {
		u |= gputypes.BufferUsageCopyDst
	}
	return u
}

// layoutEntry turns one reflected binding into a bind group layout entry.
func layoutEntry(b gpu.BindingLayout, visibility gputypes.ShaderStage) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: visibility}
	switch b.Kind {
	case gpu.BindingUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: b.MinSize}
	case gpu.BindingStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, MinBindingSize: b.MinSize}
	case gpu.BindingReadOnlyStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage, MinBindingSize: b.MinSize}
	case gpu.BindingSampledImage:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpu.BindingStorageImage:
		format, ok := textureFormat(b.StorageFormat)
		if !ok {
			return e, errors.Newf("binding %s has unsupported storage format %s", b.Name, b.StorageFormat)
		}
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpu.BindingSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	default:
		return e, errors.Newf("binding %s has unknown kind %d", b.Name, b.Kind)
	}
	return e, nil
}

// CreateProgram builds one bind group layout per reflected group, the pipeline layout and the
// pipeline. Bindings must be declared in ascending group order with no gaps.
func (d *Device) CreateProgram(desc gpu.ProgramDesc) (gpu.Program, error) {
	p := &program{desc: desc}
	if err := d.buildProgram(p); err != nil {
		d.DestroyProgram(p)
		return nil, errors.Wrapf(err, "native: create program %q", desc.Name)
	}
	return p, nil
}

func (d *Device) buildProgram(p *program) error {
	desc := p.desc
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Name,
		Source: hal.ShaderSource{WGSL: desc.WGSL},
	})
	if err != nil {
		return errors.Wrap(err, "shader module")
	}
	p.module = module

	visibility := gputypes.ShaderStageCompute
	if desc.Kind == gpu.ProgramGraphics {
		visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	}
	var groups [][]gputypes.BindGroupLayoutEntry
	for _, b := range desc.Bindings {
		for uint32(len(groups)) <= b.Group {
			groups = append(groups, nil)
		}
		entry, err := layoutEntry(b, visibility)
		if err != nil {
			return err
		}
		groups[b.Group] = append(groups[b.Group], entry)
	}
	for i, entries := range groups {
		layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   desc.Name,
			Entries: entries,
		})
		if err != nil {
			return errors.Wrapf(err, "bind group layout %d", i)
		}
		p.groups = append(p.groups, layout)
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Name,
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		return errors.Wrap(err, "pipeline layout")
	}
	p.layout = layout

	if desc.Kind == gpu.ProgramCompute {
		p.compute, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   desc.Name,
			Layout:  layout,
			Compute: hal.ComputeState{Module: module, EntryPoint: desc.ComputeEntry},
		})
		return errors.Wrap(err, "compute pipeline")
	}

	targets := make([]gputypes.ColorTargetState, 0, len(desc.ColorFormats))
	for _, f := range desc.ColorFormats {
		format, ok := textureFormat(f)
		if !ok {
			return errors.Newf("unsupported color format %s", f)
		}
		target := gputypes.ColorTargetState{Format: format, WriteMask: gputypes.ColorWriteMaskAll}
		if desc.Blend {
			blend := gputypes.BlendStatePremultiplied()
			target.Blend = &blend
		}
		targets = append(targets, target)
	}
	rp := &hal.RenderPipelineDescriptor{
		Label:  desc.Name,
		Layout: layout,
		Vertex: hal.VertexState{Module: module, EntryPoint: desc.VertexEntry},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if desc.DepthFormat != gpu.FormatUndefined {
		format, ok := textureFormat(desc.DepthFormat)
		if !ok {
			return errors.Newf("unsupported depth format %s", desc.DepthFormat)
		}
		compare := gputypes.CompareFunctionAlways
		if desc.DepthTest {
			compare = gputypes.CompareFunctionLess
		}
		rp.DepthStencil = &hal.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      compare,
		}
	}
	p.graphics, err = d.device.CreateRenderPipeline(rp)
	return errors.Wrap(err, "render pipeline")
}

func (d *Device) DestroyProgram(gp gpu.Program) {
	p := gp.(*program)
	if p.compute != nil {
		d.device.DestroyComputePipeline(p.compute)
	}
	if p.graphics != nil {
		d.device.DestroyRenderPipeline(p.graphics)
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
	}
	for _, l := range p.groups {
		d.device.DestroyBindGroupLayout(l)
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
	}
	*p = program{desc: p.desc}
}
