package graph

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/cockroachdb/errors"
)

// PassType selects what the graph opens around a pass's executable.
type PassType uint8

const (
	// PassGraphics opens a render pass on the declared attachments.
	PassGraphics PassType = iota
	// PassCompute opens a compute pass.
	PassCompute
	// PassTransfer runs with the bare command list for copies and fills.
	PassTransfer
	// PassRaw runs with the bare command list and issues its own barriers.
	PassRaw
)

func (t PassType) String() string {
	switch t {
	case PassGraphics:
		return "graphics"
	case PassCompute:
		return "compute"
	case PassTransfer:
		return "transfer"
	case PassRaw:
		return "raw"
	}
	return "PassType(?)"
}

// ColorTarget is a color attachment of a graphics pass.
type ColorTarget struct {
	Texture    Texture
	Load       gpu.LoadOp
	ClearColor [4]float64
}

// DepthTarget is the depth attachment of a graphics pass.
type DepthTarget struct {
	Texture    Texture
	Load       gpu.LoadOp
	ClearDepth float32
}

// Pass declares the resources a unit of work touches and how, plus the work itself.
// The usage of each declared resource follows from the list it appears in and the pass type.
type Pass struct {
	Name string
	Type PassType

	SampledImages    []Texture
	StorageImages    []Texture
	ColorAttachments []ColorTarget
	DepthAttachment  *DepthTarget

	ReadBuffers     []Buffer
	StorageBuffers  []Buffer
	UniformBuffers  []Buffer
	IndexBuffer     Buffer
	IndirectBuffers []Buffer
	CopySrcBuffers  []Buffer
	CopyDstBuffers  []Buffer

	Exec Executable
}

// Executable records the commands of a pass once its resources are resolved and transitioned.
type Executable interface {
	Execute(ctx *PassContext) error
}

// ExecFunc adapts a function to Executable.
type ExecFunc func(ctx *PassContext) error

// Execute calls f(ctx).
func (f ExecFunc) Execute(ctx *PassContext) error {
	return f(ctx)
}

// PassContext gives an executable its resolved resources and the command target to record into.
// Exactly one of Render and Compute is set for graphics and compute passes; neither for
// transfer and raw passes.
type PassContext struct {
	Name    string
	Cmd     gpu.CommandList
	Render  gpu.RenderPass
	Compute gpu.ComputePass
	Frame   uint64

	graph *graph
}

// Image resolves t to its backend image.
func (c *PassContext) Image(t Texture) gpu.Image {
	h := c.ImageHandle(t)
	return c.graph.registry.MustImage(h).Object
}

// ImageHandle resolves t to its registry handle.
func (c *PassContext) ImageHandle(t Texture) registry.ImageHandle {
	h, err := c.graph.resolveImage(t)
	if err != nil {
		panic(err)
	}
	return h
}

// Buffer resolves b to its backend buffer.
func (c *PassContext) Buffer(b Buffer) gpu.Buffer {
	h := c.BufferHandle(b)
	return c.graph.registry.MustBuffer(h).Object
}

// BufferHandle resolves b to its registry handle.
func (c *PassContext) BufferHandle(b Buffer) registry.BufferHandle {
	h, err := c.graph.resolveBuffer(b)
	if err != nil {
		panic(err)
	}
	return h
}

// Extent returns the resolved extent of t.
func (c *PassContext) Extent(t Texture) common.Extent2D {
	return c.graph.Extent(t)
}

// Barrier transitions t into usage. Raw passes call it before touching an undeclared image.
func (c *PassContext) Barrier(t Texture, usage gpu.ImageUsage) {
	c.graph.stats.Barriers += c.graph.registry.Barriers(c.Cmd, []registry.ImageUse{c.graph.imageUse(t, usage)}, nil)
}

// BufferBarrier transitions b into usage.
func (c *PassContext) BufferBarrier(b Buffer, usage gpu.BufferUsage) {
	h := c.BufferHandle(b)
	c.graph.stats.Barriers += c.graph.registry.Barriers(c.Cmd, nil, []registry.BufferUse{{Handle: h, Usage: usage}})
}

// AssertSameExtent fails with an assertion error if a and b resolve to different extents.
//
// Parameters:
//   - a: first texture
//   - b: second texture
//
// Returns:
//   - error: nil if the extents match
func (c *PassContext) AssertSameExtent(a, b Texture) error {
	ea, eb := c.Extent(a), c.Extent(b)
	if ea != eb {
		return errors.AssertionFailedf("pass %q: %s is %s but %s is %s",
			c.Name, c.graph.textureName(a), ea, c.graph.textureName(b), eb)
	}
	return nil
}
