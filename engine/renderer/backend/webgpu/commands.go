package webgpu

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// commandList records into one wgpu command encoder. Bind groups made while recording are kept
// until the slot is reused.
type commandList struct {
	device  *Device
	encoder *wgpu.CommandEncoder
	label   string

	bindGroups []*wgpu.BindGroup
	err        error
}

func (c *commandList) Label() string { return c.label }

func (c *commandList) fail(err error) {
	c.err = errors.CombineErrors(c.err, err)
}

func (c *commandList) release() {
	for _, bg := range c.bindGroups {
		bg.Release()
	}
	c.bindGroups = nil
	if c.encoder != nil {
		c.encoder.Release()
		c.encoder = nil
	}
}

// Barriers is a no-op; wgpu-native inserts transitions from pass usage.
func (c *commandList) Barriers(gpu.BarrierBatch) {}

func (c *commandList) CopyBuffer(src, dst gpu.Buffer, srcOffset, dstOffset, size uint64) {
	c.encoder.CopyBufferToBuffer(src.(*buffer).buf, srcOffset, dst.(*buffer).buf, dstOffset, size)
}

// FillBuffer supports zero fills only.
func (c *commandList) FillBuffer(dst gpu.Buffer, offset, size uint64, value uint32) {
	if value != 0 {
		c.fail(errors.AssertionFailedf("fill of %q with %#x: only zero fills are supported", dst.Label(), value))
		return
	}
	c.encoder.ClearBuffer(dst.(*buffer).buf, offset, size)
}

func (c *commandList) BeginComputePass(label string) gpu.ComputePass {
	return &computePass{list: c, pass: c.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})}
}

func (c *commandList) BeginRenderPass(desc gpu.RenderPassDesc) gpu.RenderPass {
	rp := &wgpu.RenderPassDescriptor{Label: desc.Label}
	for _, a := range desc.Color {
		rp.ColorAttachments = append(rp.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    a.Image.(*image).view,
			LoadOp:  loadOp(a.Load),
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: a.ClearColor[0], G: a.ClearColor[1], B: a.ClearColor[2], A: a.ClearColor[3],
			},
		})
	}
	if d := desc.Depth; d != nil {
		rp.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            d.Image.(*image).view,
			DepthLoadOp:     loadOp(d.Load),
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: d.ClearDepth,
		}
	}
	return &renderPass{list: c, pass: c.encoder.BeginRenderPass(rp)}
}

func loadOp(op gpu.LoadOp) wgpu.LoadOp {
	if op == gpu.LoadOpLoad {
		return wgpu.LoadOpLoad
	}
	return wgpu.LoadOpClear
}

// bindGroupsFor creates the bind groups of p from bindings, one per group.
func (c *commandList) bindGroupsFor(p *program, bindings []gpu.Binding) []*wgpu.BindGroup {
	if p == nil {
		c.fail(errors.AssertionFailedf("bindings set before a program"))
		return nil
	}
	entries := make([][]wgpu.BindGroupEntry, len(p.groups))
	for _, b := range bindings {
		if int(b.Group) >= len(entries) {
			c.fail(errors.AssertionFailedf("program %q has no bind group %d", p.desc.Name, b.Group))
			return nil
		}
		entry := wgpu.BindGroupEntry{Binding: b.Binding}
		switch {
		case b.Buffer != nil:
			entry.Buffer = b.Buffer.(*buffer).buf
			entry.Offset = b.Offset
			entry.Size = wgpu.WholeSize
			if b.Size != 0 {
				entry.Size = b.Size
			}
		case b.Image != nil:
			entry.TextureView = b.Image.(*image).view
		default:
			c.fail(errors.AssertionFailedf("binding %d.%d of %q is empty", b.Group, b.Binding, p.desc.Name))
			return nil
		}
		entries[b.Group] = append(entries[b.Group], entry)
	}
	for _, l := range p.desc.Bindings {
		if l.Kind == gpu.BindingSampler {
			entries[l.Group] = append(entries[l.Group], wgpu.BindGroupEntry{
				Binding: l.Binding,
				Sampler: c.device.sampler,
			})
		}
	}

	groups := make([]*wgpu.BindGroup, 0, len(entries))
	for g, e := range entries {
		bg, err := c.device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   p.desc.Name + " Bind Group",
			Layout:  p.groups[g],
			Entries: e,
		})
		if err != nil {
			c.fail(errors.Wrapf(err, "bind group %d of %q", g, p.desc.Name))
			return nil
		}
		c.bindGroups = append(c.bindGroups, bg)
		groups = append(groups, bg)
	}
	return groups
}

type computePass struct {
	list    *commandList
	pass    *wgpu.ComputePassEncoder
	program *program
}

func (p *computePass) SetProgram(gp gpu.Program) {
	p.program = gp.(*program)
	p.pass.SetPipeline(p.program.compute)
}

func (p *computePass) SetBindings(bindings ...gpu.Binding) {
	for i, bg := range p.list.bindGroupsFor(p.program, bindings) {
		p.pass.SetBindGroup(uint32(i), bg, nil)
	}
}

func (p *computePass) Dispatch(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *computePass) End() {
	p.pass.End()
	p.pass.Release()
}

type renderPass struct {
	list    *commandList
	pass    *wgpu.RenderPassEncoder
	program *program
}

func (p *renderPass) SetProgram(gp gpu.Program) {
	p.program = gp.(*program)
	p.pass.SetPipeline(p.program.graphics)
}

func (p *renderPass) SetBindings(bindings ...gpu.Binding) {
	for i, bg := range p.list.bindGroupsFor(p.program, bindings) {
		p.pass.SetBindGroup(uint32(i), bg, nil)
	}
}

func (p *renderPass) SetIndexBuffer(buf gpu.Buffer, offset uint64) {
	p.pass.SetIndexBuffer(buf.(*buffer).buf, wgpu.IndexFormatUint32, offset, wgpu.WholeSize)
}

func (p *renderPass) SetScissor(r common.Rect) {
	p.pass.SetScissorRect(uint32(max(r.X, 0)), uint32(max(r.Y, 0)), r.Width, r.Height)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// DrawIndexedIndirectCount issues one indirect draw per argument slot. The count buffer is
// ignored; unused slots are zeroed and draw nothing.
func (p *renderPass) DrawIndexedIndirectCount(args gpu.Buffer, argsOffset uint64, _ gpu.Buffer, _ uint64, maxDraws uint32) {
	buf := args.(*buffer).buf
	for i := uint32(0); i < maxDraws; i++ {
		p.pass.DrawIndexedIndirect(buf, argsOffset+uint64(i)*drawIndexedArgsStride)
	}
}

func (p *renderPass) End() {
	p.pass.End()
	p.pass.Release()
}

const drawIndexedArgsStride = 20

var (
	_ gpu.CommandList = (*commandList)(nil)
	_ gpu.ComputePass = (*computePass)(nil)
	_ gpu.RenderPass  = (*renderPass)(nil)
)
