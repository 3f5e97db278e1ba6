package graph

import (
	"context"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/cockroachdb/errors"
)

type textureUse struct {
	texture Texture
	usage   gpu.ImageUsage
}

type bufferUse struct {
	buffer Buffer
	usage  gpu.BufferUsage
}

// declaredImages lists the image usages a pass declares, in declaration order.
func (g *graph) declaredImages(p *Pass) []textureUse {
	read, write := gpu.ImageUsageComputeShaderRead, gpu.ImageUsageComputeShaderReadWrite
	if p.Type == PassGraphics {
		read, write = gpu.ImageUsageGraphicsShaderRead, gpu.ImageUsageGraphicsShaderReadWrite
	}
	var uses []textureUse
	for _, t := range p.SampledImages {
		uses = append(uses, textureUse{t, read})
	}
	for _, t := range p.StorageImages {
		uses = append(uses, textureUse{t, write})
	}
	for _, c := range p.ColorAttachments {
		uses = append(uses, textureUse{c.Texture, gpu.ImageUsageColorAttachment})
	}
	if p.DepthAttachment != nil {
		uses = append(uses, textureUse{p.DepthAttachment.Texture, gpu.ImageUsageDepthAttachment})
	}
	return uses
}

// declaredBuffers lists the buffer usages a pass declares, in declaration order.
func (g *graph) declaredBuffers(p *Pass) []bufferUse {
	read, write := gpu.BufferUsageComputeShaderRead, gpu.BufferUsageComputeShaderReadWrite
	if p.Type == PassGraphics {
		read, write = gpu.BufferUsageGraphicsShaderRead, gpu.BufferUsageGraphicsShaderReadWrite
	}
	var uses []bufferUse
	for _, b := range p.ReadBuffers {
		uses = append(uses, bufferUse{b, read})
	}
	for _, b := range p.StorageBuffers {
		uses = append(uses, bufferUse{b, write})
	}
	for _, b := range p.UniformBuffers {
		uses = append(uses, bufferUse{b, gpu.BufferUsageUniformBuffer})
	}
	if p.IndexBuffer.IsValid() {
		uses = append(uses, bufferUse{p.IndexBuffer, gpu.BufferUsageIndexBuffer})
	}
	for _, b := range p.IndirectBuffers {
		uses = append(uses, bufferUse{b, gpu.BufferUsageIndirectBuffer})
	}
	for _, b := range p.CopySrcBuffers {
		uses = append(uses, bufferUse{b, gpu.BufferUsageTransferSrc})
	}
	for _, b := range p.CopyDstBuffers {
		uses = append(uses, bufferUse{b, gpu.BufferUsageTransferDst})
	}
	return uses
}

// passImageUses resolves the declared images of p and merges duplicates: when a pass declares a
// read and a write of the same image the write wins. Two different writes are a contract
// violation.
func (g *graph) passImageUses(p *Pass) ([]registry.ImageUse, error) {
	declared := g.declaredImages(p)
	merged := make([]textureUse, 0, len(declared))
	index := make(map[Texture]int, len(declared))
	for _, u := range declared {
		i, seen := index[u.texture]
		if !seen {
			index[u.texture] = len(merged)
			merged = append(merged, u)
			continue
		}
		prev := merged[i].usage
		switch {
		case prev == u.usage:
		case u.usage.IsWrite() && prev.IsWrite():
			return nil, errors.AssertionFailedf("pass %q writes %q as both %v and %v",
				p.Name, g.textureName(u.texture), prev, u.usage)
		case u.usage.IsWrite():
			merged[i].usage = u.usage
		}
	}
	uses := make([]registry.ImageUse, 0, len(merged))
	for _, u := range merged {
		if _, err := g.resolveImage(u.texture); err != nil {
			return nil, err
		}
		uses = append(uses, g.imageUse(u.texture, u.usage))
	}
	return uses, nil
}

// passBufferUses is passImageUses for buffers. Buffers have no discard step.
func (g *graph) passBufferUses(p *Pass) ([]registry.BufferUse, error) {
	declared := g.declaredBuffers(p)
	merged := make([]bufferUse, 0, len(declared))
	index := make(map[Buffer]int, len(declared))
	for _, u := range declared {
		i, seen := index[u.buffer]
		if !seen {
			index[u.buffer] = len(merged)
			merged = append(merged, u)
			continue
		}
		prev := merged[i].usage
		switch {
		case prev == u.usage:
		case u.usage.IsWrite() && prev.IsWrite():
			return nil, errors.AssertionFailedf("pass %q writes %q as both %v and %v",
				p.Name, g.buffer(u.buffer).desc.Name, prev, u.usage)
		case u.usage.IsWrite():
			merged[i].usage = u.usage
		}
	}
	uses := make([]registry.BufferUse, 0, len(merged))
	for _, u := range merged {
		h, err := g.resolveBuffer(u.buffer)
		if err != nil {
			return nil, err
		}
		uses = append(uses, registry.BufferUse{Handle: h, Usage: u.usage})
	}
	return uses, nil
}

func (g *graph) Execute(ctx context.Context, cmd gpu.CommandList) error {
	defer g.endFrame()
	g.stats = Stats{}
	for i := range g.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &g.passes[i]
		if err := g.runPass(cmd, p); err != nil {
			return errors.Wrapf(err, "pass %q", p.Name)
		}
		g.stats.Passes++
	}
	return nil
}

func (g *graph) runPass(cmd gpu.CommandList, p *Pass) (err error) {
	// Resolution helpers panic on contract violations; surface those as the pass's error.
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok || !(errors.HasAssertionFailure(rerr) || errors.Is(rerr, common.ErrInvalidHandle)) {
				panic(r)
			}
			err = rerr
		}
	}()

	images, err := g.passImageUses(p)
	if err != nil {
		return err
	}
	buffers, err := g.passBufferUses(p)
	if err != nil {
		return err
	}
	n := g.registry.Barriers(cmd, images, buffers)
	g.stats.Barriers += n
	if n > 0 {
		common.Logger().Debug("graph: barriers", "pass", p.Name, "count", n)
	}

	pc := &PassContext{Name: p.Name, Cmd: cmd, Frame: g.frame, graph: g}
	if g.observer != nil {
		g.observer.BeginPass(p.Name, cmd)
		defer g.observer.EndPass(cmd)
	}

	switch p.Type {
	case PassGraphics:
		desc, err := g.renderPassDesc(p)
		if err != nil {
			return err
		}
		pc.Render = cmd.BeginRenderPass(desc)
		defer pc.Render.End()
	case PassCompute:
		pc.Compute = cmd.BeginComputePass(p.Name)
		defer pc.Compute.End()
	}
	return p.Exec.Execute(pc)
}

// renderPassDesc builds the attachments of a graphics pass and checks that they agree in extent.
func (g *graph) renderPassDesc(p *Pass) (gpu.RenderPassDesc, error) {
	desc := gpu.RenderPassDesc{Label: p.Name}
	var first Texture
	check := func(t Texture) error {
		if !first.IsValid() {
			first = t
			return nil
		}
		if a, b := g.Extent(first), g.Extent(t); a != b {
			return errors.AssertionFailedf("pass %q: attachment %q is %s but %q is %s",
				p.Name, g.textureName(t), b, g.textureName(first), a)
		}
		return nil
	}
	for _, c := range p.ColorAttachments {
		if err := check(c.Texture); err != nil {
			return desc, err
		}
		desc.Color = append(desc.Color, gpu.ColorAttachment{
			Image:      g.registry.MustImage(g.image(c.Texture).physical).Object,
			Load:       c.Load,
			ClearColor: c.ClearColor,
		})
	}
	if d := p.DepthAttachment; d != nil {
		if err := check(d.Texture); err != nil {
			return desc, err
		}
		desc.Depth = &gpu.DepthAttachment{
			Image:      g.registry.MustImage(g.image(d.Texture).physical).Object,
			Load:       d.Load,
			ClearDepth: d.ClearDepth,
		}
	}
	if len(desc.Color) == 0 && desc.Depth == nil {
		return desc, errors.AssertionFailedf("graphics pass %q has no attachments", p.Name)
	}
	return desc, nil
}
