package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
)

// SizeKind selects how a texture's extent is determined.
type SizeKind uint8

const (
	SizeFixed SizeKind = iota
	SizeScreenRelative
)

// TextureSize is either a fixed extent or a fraction of the graph's output extent.
type TextureSize struct {
	Kind   SizeKind
	Width  uint32
	Height uint32
	ScaleX float32
	ScaleY float32
}

// Fixed returns a size of exactly width x height texels.
func Fixed(width, height uint32) TextureSize {
	return TextureSize{Kind: SizeFixed, Width: width, Height: height}
}

// ScreenRelative returns a size that follows the output extent scaled by sx and sy.
func ScreenRelative(sx, sy float32) TextureSize {
	return TextureSize{Kind: SizeScreenRelative, ScaleX: sx, ScaleY: sy}
}

// Resolve returns the concrete extent for the given output extent.
func (s TextureSize) Resolve(output common.Extent2D) common.Extent2D {
	if s.Kind == SizeFixed {
		return common.Extent2D{Width: s.Width, Height: s.Height}
	}
	return output.Scale(s.ScaleX, s.ScaleY)
}

func (s TextureSize) String() string {
	if s.Kind == SizeFixed {
		return fmt.Sprintf("%dx%d", s.Width, s.Height)
	}
	return fmt.Sprintf("screen*(%.3g,%.3g)", s.ScaleX, s.ScaleY)
}

// TextureDesc identifies a transient texture. Two equal descriptors name the same virtual texture.
type TextureDesc struct {
	Name   string
	Size   TextureSize
	Format gpu.Format
	// Capabilities are added to those implied by the passes that use the texture, for access
	// the passes do not declare (such as a raw pass sampling it).
	Capabilities gpu.ImageCapability
}

// BufferDesc identifies a transient buffer. Two equal descriptors name the same virtual buffer.
type BufferDesc struct {
	Name         string
	Size         uint64
	Capabilities gpu.BufferCapability
}

// Texture is a virtual image handle. It stays valid for the lifetime of the graph.
type Texture struct {
	id uint32
}

// IsValid reports whether t was returned by the graph.
func (t Texture) IsValid() bool { return t.id != 0 }

// Buffer is a virtual buffer handle. It stays valid for the lifetime of the graph.
type Buffer struct {
	id uint32
}

// IsValid reports whether b was returned by the graph.
func (b Buffer) IsValid() bool { return b.id != 0 }

type virtualImage struct {
	desc     TextureDesc
	caps     gpu.ImageCapability
	imported bool
	physical registry.ImageHandle
	resolved bool
	touched  bool
}

type virtualBuffer struct {
	desc     BufferDesc
	caps     gpu.BufferCapability
	imported bool
	physical registry.BufferHandle
	resolved bool
}

type imageShape struct {
	extent common.Extent2D
	format gpu.Format
	caps   gpu.ImageCapability
}

type bufferShape struct {
	size uint64
	caps gpu.BufferCapability
}

type physicalImage struct {
	handle         registry.ImageHandle
	shape          imageShape
	screenRelative bool
	lastUsed       uint64
}

type physicalBuffer struct {
	handle   registry.BufferHandle
	shape    bufferShape
	lastUsed uint64
}
