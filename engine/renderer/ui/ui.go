// Package ui records the overlay pass that draws immediate-mode UI geometry on top of the
// tonemapped image. Geometry is streamed through the vertex and index rings every frame.
package ui

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// ProgramName is the overlay program.
const ProgramName = "ui"

// VertexSize is the packed size of one Vertex.
const VertexSize = 20

// storageAlignment is the offset alignment of storage buffer bindings.
const storageAlignment = 256

// Vertex is one UI vertex in screen pixels.
type Vertex struct {
	Position mgl32.Vec2
	UV       mgl32.Vec2
	// Color is RGBA8, red in the low byte.
	Color uint32
}

// DrawCommand draws IndexCount indices starting at FirstIndex, offset by VertexOffset, with
// the texture registered as TextureID, clipped to ClipRect.
type DrawCommand struct {
	ClipRect     common.Rect
	TextureID    uint32
	IndexCount   uint32
	FirstIndex   uint32
	VertexOffset int32
}

// DrawData is the UI geometry of one frame.
type DrawData struct {
	// DisplaySize is the extent the vertex positions are expressed in. Zero means the output
	// extent.
	DisplaySize mgl32.Vec2
	Vertices    []Vertex
	Indices     []uint32
	Commands    []DrawCommand
}

// Empty reports whether there is nothing to draw.
func (d *DrawData) Empty() bool {
	return d == nil || len(d.Commands) == 0 || len(d.Indices) == 0
}

func (d *DrawData) vertexBytes() []byte {
	out := make([]byte, len(d.Vertices)*VertexSize)
	for i, v := range d.Vertices {
		b := out[i*VertexSize:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.Position[0]))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Position[1]))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.UV[0]))
		binary.LittleEndian.PutUint32(b[12:], math.Float32bits(v.UV[1]))
		binary.LittleEndian.PutUint32(b[16:], v.Color)
	}
	return out
}

// Renderer records the UI overlay.
type Renderer interface {
	// RegisterTexture makes a registry image addressable by DrawCommand.TextureID.
	//
	// Parameters:
	//   - h: the image, sampled by the overlay
	//
	// Returns:
	//   - uint32: the texture id
	RegisterTexture(h registry.ImageHandle) uint32

	// SetDrawData replaces the geometry drawn by the next RegisterGraph. Nil clears it.
	SetDrawData(data *DrawData)

	// RegisterGraph adds the overlay pass drawing onto output. Nothing is added when there is
	// no geometry.
	//
	// Parameters:
	//   - g: the frame's render graph
	//   - output: the color target, loaded and drawn over
	//
	// Returns:
	//   - error: the geometry does not fit the rings or a texture id is unknown
	RegisterGraph(g graph.Graph, output graph.Texture) error
}

type renderer struct {
	programs program.Registry
	prog     program.Handle
	uniforms *ring.Ring
	vertices *ring.Ring
	indices  *ring.Ring

	textures []registry.ImageHandle
	data     *DrawData
}

var _ Renderer = &renderer{}

// NewRenderer loads the overlay program.
//
// Parameters:
//   - programs: the program registry
//   - format: the format of the target the overlay draws onto
//   - uniforms: ring for the projection parameters
//   - vertices: storage-capable ring for vertex data
//   - indices: index-capable ring for index data
//
// Returns:
//   - Renderer: the overlay renderer
//   - error: the program failed to load
func NewRenderer(programs program.Registry, format gpu.Format, uniforms, vertices, indices *ring.Ring) (Renderer, error) {
	h, err := programs.Load(ProgramName, program.WithColorFormats(format), program.WithBlend())
	if err != nil {
		return nil, errors.Wrap(err, "ui")
	}
	return &renderer{programs: programs, prog: h, uniforms: uniforms, vertices: vertices, indices: indices}, nil
}

func (r *renderer) RegisterTexture(h registry.ImageHandle) uint32 {
	r.textures = append(r.textures, h)
	return uint32(len(r.textures) - 1)
}

func (r *renderer) SetDrawData(data *DrawData) {
	r.data = data
}

func (r *renderer) RegisterGraph(g graph.Graph, output graph.Texture) error {
	data := r.data
	if data.Empty() {
		return nil
	}

	sampled := make([]graph.Texture, 0, len(r.textures))
	views := make(map[uint32]graph.Texture)
	for _, cmd := range data.Commands {
		if _, ok := views[cmd.TextureID]; ok {
			continue
		}
		if int(cmd.TextureID) >= len(r.textures) {
			return errors.AssertionFailedf("ui: unknown texture id %d", cmd.TextureID)
		}
		t := g.Import(textureName(cmd.TextureID), r.textures[cmd.TextureID])
		views[cmd.TextureID] = t
		sampled = append(sampled, t)
	}

	extent := g.Extent(output)
	size := data.DisplaySize
	if size[0] == 0 || size[1] == 0 {
		size = mgl32.Vec2{float32(extent.Width), float32(extent.Height)}
	}
	params := make([]byte, 16)
	common.PutVec4(params, mgl32.Vec4{2 / size[0], -2 / size[1], -1, 1})
	pu, err := r.uniforms.Upload(params, storageAlignment)
	if err != nil {
		return errors.Wrap(err, "ui: parameters")
	}
	vu, err := r.vertices.Upload(data.vertexBytes(), storageAlignment)
	if err != nil {
		return errors.Wrap(err, "ui: vertices")
	}
	iu, err := r.indices.Upload(common.Uint32sToBytes(data.Indices), 4)
	if err != nil {
		return errors.Wrap(err, "ui: indices")
	}

	commands := append([]DrawCommand(nil), data.Commands...)
	g.AddPass(graph.Pass{
		Name:             "ui",
		Type:             graph.PassGraphics,
		SampledImages:    sampled,
		ColorAttachments: []graph.ColorTarget{{Texture: output, Load: gpu.LoadOpLoad}},
		Exec: graph.ExecFunc(func(ctx *graph.PassContext) error {
			rp := ctx.Render
			rp.SetProgram(r.programs.MustProgram(r.prog).Object)
			rp.SetIndexBuffer(r.indices.Buffer(), iu.Offset)
			for _, cmd := range commands {
				clip := cmd.ClipRect.Clamp(extent)
				if clip.Empty() || cmd.IndexCount == 0 {
					continue
				}
				rp.SetBindings(
					gpu.BufferBinding(0, 0, r.uniforms.Buffer(), pu.Offset, pu.Size),
					gpu.BufferBinding(0, 1, r.vertices.Buffer(), vu.Offset, vu.Size),
					gpu.ImageBinding(0, 2, ctx.Image(views[cmd.TextureID])),
				)
				rp.SetScissor(clip)
				rp.DrawIndexed(cmd.IndexCount, 1, cmd.FirstIndex, cmd.VertexOffset, 0)
			}
			return nil
		}),
	})
	return nil
}

func textureName(id uint32) string {
	return "ui_texture_" + strconv.FormatUint(uint64(id), 10)
}
