// Package graph is the render graph: passes declare the virtual images and buffers they touch,
// and the graph resolves them to pooled physical resources, inserts the barriers between passes
// and runs the passes in declaration order.
package graph

import (
	"context"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/cockroachdb/errors"
)

// DefaultMaxIdleFrames is how many executions a pooled physical resource may go unused before
// it is destroyed.
const DefaultMaxIdleFrames = 8

// PassObserver is notified around every pass, for timing labels.
type PassObserver interface {
	BeginPass(name string, cmd gpu.CommandList)
	EndPass(cmd gpu.CommandList)
}

// Stats are counters of the last execution.
type Stats struct {
	Passes          int
	Barriers        int
	Resolves        int
	PhysicalImages  int
	PhysicalBuffers int
}

// Graph is the render graph. Passes are added every frame and cleared by Execute; virtual
// handles persist across frames.
type Graph interface {
	// Output registers or returns the virtual texture for desc.
	Output(desc TextureDesc) Texture
	// OutputBuffer registers or returns the virtual buffer for desc.
	OutputBuffer(desc BufferDesc) Buffer
	// Import binds a registry image owned elsewhere to a virtual texture named name.
	// Importing the same name again rebinds it and returns the same handle.
	Import(name string, h registry.ImageHandle) Texture
	// ImportBuffer is Import for buffers.
	ImportBuffer(name string, h registry.BufferHandle) Buffer

	AddPass(p Pass)
	// RawPass appends a pass whose executable issues its own barriers through the context.
	RawPass(name string, fn ExecFunc)
	// Execute records every pass in declaration order into cmd, then clears the pass list and
	// returns this frame's physical resources to the pool.
	Execute(ctx context.Context, cmd gpu.CommandList) error
	// Reset drops the passes added since the last Execute without recording them.
	Reset()

	// OnResize sets the output extent and drops pooled screen-relative resources.
	OnResize(output common.Extent2D)
	OutputExtent() common.Extent2D
	// Extent returns the extent t resolves to, without allocating it.
	Extent(t Texture) common.Extent2D

	PassNames() []string
	Stats() Stats
	// Destroy releases every pooled resource through the registry.
	Destroy()
}

type graph struct {
	registry      registry.Registry
	output        common.Extent2D
	observer      PassObserver
	maxIdleFrames uint64

	images       []virtualImage
	buffers      []virtualBuffer
	imageIDs     map[TextureDesc]Texture
	bufferIDs    map[BufferDesc]Buffer
	importIDs    map[string]Texture
	bufImportIDs map[string]Buffer

	freeImages  map[imageShape][]physicalImage
	freeBuffers map[bufferShape][]physicalBuffer
	usedImages  []physicalImage
	usedBuffers []physicalBuffer

	passes []Pass
	frame  uint64
	stats  Stats
}

var _ Graph = &graph{}

// NewGraph creates an empty graph resolving into reg.
//
// Parameters:
//   - reg: the registry physical resources are created in
//   - output: the initial output extent screen-relative sizes follow
//   - options: functional options applied in order
//
// Returns:
//   - Graph: the new graph
func NewGraph(reg registry.Registry, output common.Extent2D, options ...GraphBuilderOption) Graph {
	g := &graph{
		registry:      reg,
		output:        output,
		maxIdleFrames: DefaultMaxIdleFrames,
		imageIDs:      make(map[TextureDesc]Texture),
		bufferIDs:     make(map[BufferDesc]Buffer),
		importIDs:     make(map[string]Texture),
		bufImportIDs:  make(map[string]Buffer),
		freeImages:    make(map[imageShape][]physicalImage),
		freeBuffers:   make(map[bufferShape][]physicalBuffer),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *graph) Output(desc TextureDesc) Texture {
	if t, ok := g.imageIDs[desc]; ok {
		return t
	}
	g.images = append(g.images, virtualImage{
		desc:     desc,
		caps:     desc.Capabilities,
		physical: handle.None[registry.Image](),
	})
	t := Texture{id: uint32(len(g.images))}
	g.imageIDs[desc] = t
	return t
}

func (g *graph) OutputBuffer(desc BufferDesc) Buffer {
	if b, ok := g.bufferIDs[desc]; ok {
		return b
	}
	g.buffers = append(g.buffers, virtualBuffer{
		desc:     desc,
		caps:     desc.Capabilities,
		physical: handle.None[registry.Buffer](),
	})
	b := Buffer{id: uint32(len(g.buffers))}
	g.bufferIDs[desc] = b
	return b
}

func (g *graph) Import(name string, h registry.ImageHandle) Texture {
	if t, ok := g.importIDs[name]; ok {
		g.images[t.id-1].physical = h
		return t
	}
	g.images = append(g.images, virtualImage{
		desc:     TextureDesc{Name: name},
		imported: true,
		physical: h,
	})
	t := Texture{id: uint32(len(g.images))}
	g.importIDs[name] = t
	return t
}

func (g *graph) ImportBuffer(name string, h registry.BufferHandle) Buffer {
	if b, ok := g.bufImportIDs[name]; ok {
		g.buffers[b.id-1].physical = h
		return b
	}
	g.buffers = append(g.buffers, virtualBuffer{
		desc:     BufferDesc{Name: name},
		imported: true,
		physical: h,
	})
	b := Buffer{id: uint32(len(g.buffers))}
	g.bufImportIDs[name] = b
	return b
}

func (g *graph) image(t Texture) *virtualImage {
	if !t.IsValid() || int(t.id) > len(g.images) {
		panic(errors.AssertionFailedf("graph: unknown texture %d", t.id))
	}
	return &g.images[t.id-1]
}

func (g *graph) buffer(b Buffer) *virtualBuffer {
	if !b.IsValid() || int(b.id) > len(g.buffers) {
		panic(errors.AssertionFailedf("graph: unknown buffer %d", b.id))
	}
	return &g.buffers[b.id-1]
}

func (g *graph) textureName(t Texture) string {
	return g.image(t).desc.Name
}

func (g *graph) AddPass(p Pass) {
	if p.Exec == nil {
		panic(errors.AssertionFailedf("graph: pass %q has no executable", p.Name))
	}
	for _, u := range g.declaredImages(&p) {
		v := g.image(u.texture)
		if !v.imported {
			v.caps |= u.usage.Capability()
		}
	}
	for _, u := range g.declaredBuffers(&p) {
		v := g.buffer(u.buffer)
		if !v.imported {
			v.caps |= u.usage.Capability()
		}
	}
	g.passes = append(g.passes, p)
}

func (g *graph) RawPass(name string, fn ExecFunc) {
	g.passes = append(g.passes, Pass{Name: name, Type: PassRaw, Exec: fn})
}

func (g *graph) Reset() {
	g.passes = g.passes[:0]
}

func (g *graph) OutputExtent() common.Extent2D { return g.output }

func (g *graph) Extent(t Texture) common.Extent2D {
	v := g.image(t)
	if v.imported {
		return g.registry.MustImage(v.physical).Desc.Extent
	}
	return v.desc.Size.Resolve(g.output)
}

func (g *graph) OnResize(output common.Extent2D) {
	g.output = output
	for shape, list := range g.freeImages {
		kept := list[:0]
		for _, p := range list {
			if p.screenRelative {
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
	common.Logger().Info("render graph resized", "output", output.String())
}

func (g *graph) PassNames() []string {
	names := make([]string, len(g.passes))
	for i := range g.passes {
		names[i] = g.passes[i].Name
	}
	return names
}

func (g *graph) Stats() Stats {
	s := g.stats
	s.PhysicalImages = len(g.usedImages)
	for _, list := range g.freeImages {
		s.PhysicalImages += len(list)
	}
	s.PhysicalBuffers = len(g.usedBuffers)
	for _, list := range g.freeBuffers {
		s.PhysicalBuffers += len(list)
	}
	return s
}

func (g *graph) Destroy() {
	g.endFrame()
	for shape, list := range g.freeImages {
		for _, p := range list {
			g.destroyImage(p)
		}
		delete(g.freeImages, shape)
	}
	for shape, list := range g.freeBuffers {
		for _, p := range list {
			g.destroyBuffer(p)
		}
		delete(g.freeBuffers, shape)
	}
}

func (g *graph) destroyImage(p physicalImage) {
	if err := g.registry.DestroyImage(p.handle); err != nil {
		common.Logger().Warn("graph: destroy pooled image", "handle", p.handle.String(), "error", err)
	}
}

func (g *graph) destroyBuffer(p physicalBuffer) {
	if err := g.registry.DestroyBuffer(p.handle); err != nil {
		common.Logger().Warn("graph: destroy pooled buffer", "handle", p.handle.String(), "error", err)
	}
}
