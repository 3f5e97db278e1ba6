package graph

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/cockroachdb/errors"
)

// resolveImage returns the physical image of t for the current frame, taking one from the pool
// or creating it on first access. The result is memoized until the end of the frame.
func (g *graph) resolveImage(t Texture) (registry.ImageHandle, error) {
	v := g.image(t)
	if v.resolved || v.imported {
		v.resolved = true
		return v.physical, nil
	}
	extent := v.desc.Size.Resolve(g.output)
	if extent.IsZero() {
		return v.physical, errors.AssertionFailedf("graph: texture %q resolves to an empty extent", v.desc.Name)
	}
	shape := imageShape{extent: extent, format: v.desc.Format, caps: v.caps}

	var phys physicalImage
	if list := g.freeImages[shape]; len(list) > 0 {
		phys = list[len(list)-1]
		g.freeImages[shape] = list[:len(list)-1]
	} else {
		h, err := g.registry.CreateImage(gpu.ImageDesc{
			Name:         v.desc.Name,
			Extent:       extent,
			MipLevels:    1,
			Format:       v.desc.Format,
			Capabilities: v.caps,
		})
		if err != nil {
			return v.physical, errors.Wrapf(err, "graph: resolve texture %q", v.desc.Name)
		}
		phys = physicalImage{
			handle:         h,
			shape:          shape,
			screenRelative: v.desc.Size.Kind == SizeScreenRelative,
		}
		common.Logger().Debug("graph: physical image created", "name", v.desc.Name, "extent", extent.String())
	}
	g.usedImages = append(g.usedImages, phys)
	v.physical = phys.handle
	v.resolved = true
	g.stats.Resolves++
	return v.physical, nil
}

// resolveBuffer is resolveImage for buffers.
func (g *graph) resolveBuffer(b Buffer) (registry.BufferHandle, error) {
	v := g.buffer(b)
	if v.resolved || v.imported {
		v.resolved = true
		return v.physical, nil
	}
	shape := bufferShape{size: v.desc.Size, caps: v.caps}

	var phys physicalBuffer
	if list := g.freeBuffers[shape]; len(list) > 0 {
		phys = list[len(list)-1]
		g.freeBuffers[shape] = list[:len(list)-1]
	} else {
		h, err := g.registry.CreateBuffer(gpu.BufferDesc{
			Name:         v.desc.Name,
			Size:         v.desc.Size,
			Capabilities: v.caps,
		})
		if err != nil {
			return v.physical, errors.Wrapf(err, "graph: resolve buffer %q", v.desc.Name)
		}
		phys = physicalBuffer{handle: h, shape: shape}
		common.Logger().Debug("graph: physical buffer created", "name", v.desc.Name, "size", v.desc.Size)
	}
	g.usedBuffers = append(g.usedBuffers, phys)
	v.physical = phys.handle
	v.resolved = true
	g.stats.Resolves++
	return v.physical, nil
}

// imageUse resolves t and builds its registry use. The first write of a transient texture in a
// frame discards its previous contents.
func (g *graph) imageUse(t Texture, usage gpu.ImageUsage) registry.ImageUse {
	h, err := g.resolveImage(t)
	if err != nil {
		panic(err)
	}
	v := g.image(t)
	discard := !v.imported && !v.touched && usage.IsWrite()
	v.touched = true
	return registry.ImageUse{Handle: h, Usage: usage, Discard: discard}
}

// endFrame returns this frame's physical resources to the pool, clears the memo and destroys
// resources idle for longer than maxIdleFrames.
func (g *graph) endFrame() {
	for _, p := range g.usedImages {
		p.lastUsed = g.frame
		g.freeImages[p.shape] = append(g.freeImages[p.shape], p)
	}
	for _, p := range g.usedBuffers {
		p.lastUsed = g.frame
		g.freeBuffers[p.shape] = append(g.freeBuffers[p.shape], p)
	}
	g.usedImages = g.usedImages[:0]
	g.usedBuffers = g.usedBuffers[:0]

	for i := range g.images {
		v := &g.images[i]
		v.resolved = false
		v.touched = false
		if !v.imported {
			v.physical = handle.None[registry.Image]()
		}
	}
	for i := range g.buffers {
		v := &g.buffers[i]
		v.resolved = false
		if !v.imported {
			v.physical = handle.None[registry.Buffer]()
		}
	}
	g.passes = g.passes[:0]

	for shape, list := range g.freeImages {
		kept := list[:0]
		for _, p := range list {
			if g.frame-p.lastUsed > g.maxIdleFrames {
				g.destroyImage(p)
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(g.freeImages, shape)
		} else {
			g.freeImages[shape] = kept
		}
	}
	for shape, list := range g.freeBuffers {
		kept := list[:0]
		for _, p := range list {
			if g.frame-p.lastUsed > g.maxIdleFrames {
				g.destroyBuffer(p)
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(g.freeBuffers, shape)
		} else {
			g.freeBuffers[shape] = kept
		}
	}
	g.frame++
}
