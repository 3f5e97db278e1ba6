package native

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// commandList records into one hal command encoder. Bind groups created while recording live
// until the slot is reused, when the timeline has already waited on its fence.
//
// Recording errors are kept and returned by Submit, since the gpu.CommandList methods do not
// return errors.
type commandList struct {
	device   *Device
	encoder  hal.CommandEncoder
	commands hal.CommandBuffer
	label    string

	bindGroups []hal.BindGroup
	err        error
}

func (c *commandList) Label() string { return c.label }

func (c *commandList) fail(err error) {
	c.err = errors.CombineErrors(c.err, err)
}

// release frees the command buffer and bind groups of the previous use of the slot.
func (c *commandList) release() {
	dev := c.device.device
	for _, bg := range c.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	c.bindGroups = nil
	if c.commands != nil {
		dev.FreeCommandBuffer(c.commands)
		c.commands = nil
	}
}

// Barriers transitions every image of the batch. Buffer hazards are tracked by the hal queue.
func (c *commandList) Barriers(batch gpu.BarrierBatch) {
	barriers := make([]hal.TextureBarrier, 0, len(batch.Images))
	for _, ib := range batch.Images {
		next := textureUsageOf(ib.Transition.To)
		if next == 0 {
			continue
		}
		old := textureUsageOf(ib.Transition.From)
		if ib.Discard {
			old = 0
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: ib.Image.(*image).texture,
			Usage:   hal.TextureUsageTransition{OldUsage: old, NewUsage: next},
		})
	}
	if len(barriers) > 0 {
		c.encoder.TransitionTextures(barriers)
	}
}

func (c *commandList) CopyBuffer(src, dst gpu.Buffer, srcOffset, dstOffset, size uint64) {
	c.encoder.CopyBufferToBuffer(src.(*buffer).buf, dst.(*buffer).buf, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

// FillBuffer supports zero fills only; hal clears buffers but has no fill pattern.
func (c *commandList) FillBuffer(dst gpu.Buffer, offset, size uint64, value uint32) {
	if value != 0 {
		c.fail(errors.AssertionFailedf("fill of %q with %#x: only zero fills are supported", dst.Label(), value))
		return
	}
	c.encoder.ClearBuffer(dst.(*buffer).buf, offset, size)
}

func (c *commandList) BeginComputePass(label string) gpu.ComputePass {
	return &computePass{list: c, pass: c.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})}
}

func (c *commandList) BeginRenderPass(desc gpu.RenderPassDesc) gpu.RenderPass {
	rp := &hal.RenderPassDescriptor{Label: desc.Label}
	for _, a := range desc.Color {
		load := loadOp(a.Load)
		rp.ColorAttachments = append(rp.ColorAttachments, hal.RenderPassColorAttachment{
			View:    a.Image.(*image).view,
			LoadOp:  load,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: a.ClearColor[0], G: a.ClearColor[1], B: a.ClearColor[2], A: a.ClearColor[3],
			},
		})
	}
	if d := desc.Depth; d != nil {
		rp.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            d.Image.(*image).view,
			DepthLoadOp:     loadOp(d.Load),
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: d.ClearDepth,
		}
	}
	return &renderPass{list: c, pass: c.encoder.BeginRenderPass(rp)}
}

// loadOp maps a load op; hal has no don't-care load, so those clear.
func loadOp(op gpu.LoadOp) gputypes.LoadOp {
	if op == gpu.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

// bindGroupsFor creates one bind group per group of the program from the given bindings. Sampler
// slots get the default sampler.
func (c *commandList) bindGroupsFor(p *program, bindings []gpu.Binding) []hal.BindGroup {
	if p == nil {
		c.fail(errors.AssertionFailedf("bindings set before a program"))
		return nil
	}
	entries := make([][]gputypes.BindGroupEntry, len(p.groups))
	for _, b := range bindings {
		if int(b.Group) >= len(entries) {
			c.fail(errors.AssertionFailedf("program %q has no bind group %d", p.desc.Name, b.Group))
			return nil
		}
		entry := gputypes.BindGroupEntry{Binding: b.Binding}
		switch {
		case b.Buffer != nil:
			buf := b.Buffer.(*buffer)
			size := b.Size
			if size == 0 {
				size = buf.desc.Size - b.Offset
			}
			entry.Resource = gputypes.BufferBinding{Buffer: buf.buf.NativeHandle(), Offset: b.Offset, Size: size}
		case b.Image != nil:
			entry.Resource = gputypes.TextureViewBinding{
				TextureView: uintptr(b.Image.(*image).view.NativeHandle()),
			}
		default:
			c.fail(errors.AssertionFailedf("binding %d.%d of %q is empty", b.Group, b.Binding, p.desc.Name))
			return nil
		}
		entries[b.Group] = append(entries[b.Group], entry)
	}
	for _, l := range p.desc.Bindings {
		if l.Kind == gpu.BindingSampler {
			entries[l.Group] = append(entries[l.Group], gputypes.BindGroupEntry{
				Binding:  l.Binding,
				Resource: gputypes.SamplerBinding{Sampler: uintptr(c.device.sampler.NativeHandle())},
			})
		}
	}

	groups := make([]hal.BindGroup, 0, len(entries))
	for i, e := range entries {
		bg, err := c.device.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   p.desc.Name,
			Layout:  p.groups[i],
			Entries: e,
		})
		if err != nil {
			c.fail(errors.Wrapf(err, "bind group %d of %q", i, p.desc.Name))
			return nil
		}
		c.bindGroups = append(c.bindGroups, bg)
		groups = append(groups, bg)
	}
	return groups
}

type computePass struct {
	list    *commandList
	pass    hal.ComputePassEncoder
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
	p.pass.Dispatch(x, y, z)
}

func (p *computePass) End() { p.pass.End() }

type renderPass struct {
	list    *commandList
	pass    hal.RenderPassEncoder
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
	p.pass.SetIndexBuffer(buf.(*buffer).buf, gputypes.IndexFormatUint32, offset)
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

// DrawIndexedIndirectCount walks every argument slot up to maxDraws. Slots past the GPU written
// count hold zero index counts and draw nothing.
func (p *renderPass) DrawIndexedIndirectCount(args gpu.Buffer, argsOffset uint64, _ gpu.Buffer, _ uint64, maxDraws uint32) {
	buf := args.(*buffer).buf
	for i := uint32(0); i < maxDraws; i++ {
		p.pass.DrawIndexedIndirect(buf, argsOffset+uint64(i)*drawIndexedArgsStride)
	}
}

func (p *renderPass) End() { p.pass.End() }

// drawIndexedArgsStride is the size of one indexed indirect draw: five 32-bit words.
const drawIndexedArgsStride = 20

var (
	_ gpu.CommandList = (*commandList)(nil)
	_ gpu.ComputePass = (*computePass)(nil)
	_ gpu.RenderPass  = (*renderPass)(nil)
)
