package webgpu

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type image struct {
	desc    gpu.ImageDesc
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (i *image) Label() string            { return i.desc.Name }
func (i *image) Extent() common.Extent2D { return i.desc.Extent }
func (i *image) Format() gpu.Format      { return i.desc.Format }

func (i *image) release() {
	if i.view != nil {
		i.view.Release()
		i.view = nil
	}
	if i.texture != nil {
		i.texture.Release()
		i.texture = nil
	}
}

type buffer struct {
	desc gpu.BufferDesc
	buf  *wgpu.Buffer
}

func (b *buffer) Label() string { return b.desc.Name }
func (b *buffer) Size() uint64  { return b.desc.Size }

type program struct {
	desc     gpu.ProgramDesc
	module   *wgpu.ShaderModule
	groups   []*wgpu.BindGroupLayout
	layout   *wgpu.PipelineLayout
	compute  *wgpu.ComputePipeline
	graphics *wgpu.RenderPipeline
}

func (p *program) Label() string { return p.desc.Name }

var formatMap = map[gpu.Format]wgpu.TextureFormat{
	gpu.FormatR8Unorm:        wgpu.TextureFormatR8Unorm,
	gpu.FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gpu.FormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gpu.FormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gpu.FormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	gpu.FormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	gpu.FormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	gpu.FormatR32Uint:        wgpu.TextureFormatR32Uint,
	gpu.FormatR32Float:       wgpu.TextureFormatR32Float,
	gpu.FormatDepth32Float:   wgpu.TextureFormatDepth32Float,
}

func textureFormat(f gpu.Format) (wgpu.TextureFormat, bool) {
	tf, ok := formatMap[f]
	return tf, ok
}

func textureUsage(caps gpu.ImageCapability) wgpu.TextureUsage {
	var u wgpu.TextureUsage
	if caps.Has(gpu.ImageCapSampled) {
		u |= wgpu.TextureUsageTextureBinding
	}
	if caps.Has(gpu.ImageCapStorage) {
		u |= wgpu.TextureUsageStorageBinding
	}
	if caps.Has(gpu.ImageCapColorAttachment) || caps.Has(gpu.ImageCapDepthAttachment) {
		u |= wgpu.TextureUsageRenderAttachment
	}
	if caps.Has(gpu.ImageCapTransferSrc) {
		u |= wgpu.TextureUsageCopySrc
	}
	if caps.Has(gpu.ImageCapTransferDst) {
		u |= wgpu.TextureUsageCopyDst
	}
	return u
}

func bufferUsage(caps gpu.BufferCapability) wgpu.BufferUsage {
	var u wgpu.BufferUsage
	if caps.Has(gpu.BufferCapStorage) {
		u |= wgpu.BufferUsageStorage
	}
	if caps.Has(gpu.BufferCapUniform) {
		u |= wgpu.BufferUsageUniform
	}
	if caps.Has(gpu.BufferCapIndex) {
		u |= wgpu.BufferUsageIndex
	}
	if caps.Has(gpu.BufferCapVertex) {
		u |= wgpu.BufferUsageVertex
	}
	if caps.Has(gpu.BufferCapIndirect) {
		u |= wgpu.BufferUsageIndirect
	}
	if caps.Has(gpu.BufferCapTransferSrc) {
		u |= wgpu.BufferUsageCopySrc
	}
	if caps.Has(gpu.BufferCapTransferDst) || caps.Has(gpu.BufferCapHostWrite) {
		u |= wgpu.BufferUsageCopyDst
	}
	return u
}

// layoutEntry classifies one reflected binding into the matching layout field.
func layoutEntry(b gpu.BindingLayout, visibility wgpu.ShaderStage) (wgpu.BindGroupLayoutEntry, error) {
	e := wgpu.BindGroupLayoutEntry{Binding: b.Binding, Visibility: visibility}
	switch b.Kind {
	case gpu.BindingUniformBuffer:
		e.Buffer.Type = wgpu.BufferBindingTypeUniform
		e.Buffer.MinBindingSize = b.MinSize
	case gpu.BindingStorageBuffer:
		e.Buffer.Type = wgpu.BufferBindingTypeStorage
		e.Buffer.MinBindingSize = b.MinSize
	case gpu.BindingReadOnlyStorageBuffer:
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		e.Buffer.MinBindingSize = b.MinSize
	case gpu.BindingSampledImage:
		e.Texture.SampleType = wgpu.TextureSampleTypeFloat
		e.Texture.ViewDimension = wgpu.TextureViewDimension2D
	case gpu.BindingStorageImage:
		format, ok := textureFormat(b.StorageFormat)
		if !ok {
			return e, errors.Newf("binding %s has unsupported storage format %s", b.Name, b.StorageFormat)
		}
		e.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		e.StorageTexture.Format = format
		e.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
	case gpu.BindingSampler:
		e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	default:
		return e, errors.Newf("binding %s has unknown kind %d", b.Name, b.Kind)
	}
	return e, nil
}

// premultipliedBlend composites premultiplied color over the target.
var premultipliedBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
	Alpha: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
	},
}

// CreateProgram compiles the WGSL module and builds the bind group layouts, pipeline layout and
// pipeline of a program.
//
// Parameters:
//   - desc: the program description with its reflected bindings
//
// Returns:
//   - gpu.Program: the program
//   - error: an error if any stage of pipeline creation fails
func (d *Device) CreateProgram(desc gpu.ProgramDesc) (gpu.Program, error) {
	p := &program{desc: desc}
	if err := d.buildProgram(p); err != nil {
		d.DestroyProgram(p)
		return nil, errors.Wrapf(err, "webgpu: create program %q", desc.Name)
	}
	return p, nil
}

func (d *Device) buildProgram(p *program) error {
	desc := p.desc
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.WGSL,
		},
	})
	if err != nil {
		return errors.Wrap(err, "shader module")
	}
	p.module = module

	visibility := wgpu.ShaderStageCompute
	if desc.Kind == gpu.ProgramGraphics {
		visibility = wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	}
	var groups [][]wgpu.BindGroupLayoutEntry
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
	for g, entries := range groups {
		layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   desc.Name,
			Entries: entries,
		})
		if err != nil {
			return errors.Wrapf(err, "bind group layout for group %d", g)
		}
		p.groups = append(p.groups, layout)
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Name,
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		return errors.Wrap(err, "pipeline layout")
	}
	p.layout = layout

	if desc.Kind == gpu.ProgramCompute {
		p.compute, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  desc.Name + " Compute Pipeline",
			Layout: layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: desc.ComputeEntry,
			},
		})
		return errors.Wrap(err, "compute pipeline")
	}

	targets := make([]wgpu.ColorTargetState, 0, len(desc.ColorFormats))
	for _, f := range desc.ColorFormats {
		format, ok := textureFormat(f)
		if !ok {
			return errors.Newf("unsupported color format %s", f)
		}
		state := wgpu.ColorTargetState{Format: format, WriteMask: wgpu.ColorWriteMaskAll}
		if desc.Blend {
			blend := premultipliedBlend
			state.Blend = &blend
		}
		targets = append(targets, state)
	}

	rp := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Name + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if desc.DepthFormat != gpu.FormatUndefined {
		format, ok := textureFormat(desc.DepthFormat)
		if !ok {
			return errors.Newf("unsupported depth format %s", desc.DepthFormat)
		}
		depthCompare := wgpu.CompareFunctionLess
		if !desc.DepthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		rp.DepthStencil = &wgpu.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	p.graphics, err = d.device.CreateRenderPipeline(rp)
	return errors.Wrap(err, "render pipeline")
}

func (d *Device) DestroyProgram(gp gpu.Program) {
	p := gp.(*program)
	if p.compute != nil {
		p.compute.Release()
	}
	if p.graphics != nil {
		p.graphics.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	for _, l := range p.groups {
		l.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
	*p = program{desc: p.desc}
}
