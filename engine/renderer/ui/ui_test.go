package ui

import (
	"context"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

type fixture struct {
	dev    *gputest.Device
	reg    registry.Registry
	g      graph.Graph
	ui     Renderer
	target graph.Texture
	atlas  uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	extent := common.Extent2D{Width: 64, Height: 32}
	dev := gputest.NewDevice(extent)
	reg := registry.NewRegistry(dev)
	programs := program.NewRegistry(dev, program.FSSource(shaders.FS, "."), reg,
		program.WithCompiler(func(string) ([]byte, error) { return make([]byte, 8), nil }))
	newRing := func(name string, caps gpu.BufferCapability) *ring.Ring {
		r, err := ring.New(dev, name, 16*1024, 1, caps)
		if err != nil {
			t.Fatalf("ring.New(%s): %v", name, err)
		}
		return r
	}
	r, err := NewRenderer(programs, gpu.FormatRGBA8Unorm,
		newRing("uniforms", gpu.BufferCapUniform),
		newRing("vertices", gpu.BufferCapStorage),
		newRing("indices", gpu.BufferCapIndex))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	atlas, err := reg.CreateImage(gpu.ImageDesc{
		Name:         "atlas",
		Extent:       common.Extent2D{Width: 4, Height: 4},
		Format:       gpu.FormatRGBA8Unorm,
		Capabilities: gpu.ImageCapSampled,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	g := graph.NewGraph(reg, extent)
	target := g.Output(graph.TextureDesc{Name: "ldr", Size: graph.ScreenRelative(1, 1), Format: gpu.FormatRGBA8Unorm})
	return &fixture{dev: dev, reg: reg, g: g, ui: r, target: target, atlas: r.RegisterTexture(atlas)}
}

func (f *fixture) execute(t *testing.T) *gputest.CommandList {
	t.Helper()
	cmd, err := f.dev.BeginCommands(0, "test")
	if err != nil {
		t.Fatalf("BeginCommands: %v", err)
	}
	if err := f.g.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return cmd.(*gputest.CommandList)
}

func quad(texture uint32, clip common.Rect) *DrawData {
	return &DrawData{
		Vertices: []Vertex{
			{Position: mgl32.Vec2{0, 0}, Color: 0xffffffff},
			{Position: mgl32.Vec2{8, 0}, UV: mgl32.Vec2{1, 0}, Color: 0xffffffff},
			{Position: mgl32.Vec2{8, 8}, UV: mgl32.Vec2{1, 1}, Color: 0xffffffff},
			{Position: mgl32.Vec2{0, 8}, UV: mgl32.Vec2{0, 1}, Color: 0xffffffff},
		},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
		Commands: []DrawCommand{{ClipRect: clip, TextureID: texture, IndexCount: 6}},
	}
}

func TestEmptyDrawDataAddsNoPass(t *testing.T) {
	f := newFixture(t)
	f.ui.SetDrawData(nil)
	if err := f.ui.RegisterGraph(f.g, f.target); err != nil {
		t.Fatalf("RegisterGraph: %v", err)
	}
	if names := f.g.PassNames(); len(names) != 0 {
		t.Errorf("passes = %v, want none", names)
	}
}

func TestDrawCommandsAreScissored(t *testing.T) {
	f := newFixture(t)
	f.ui.SetDrawData(quad(f.atlas, common.Rect{X: 4, Y: 4, Width: 200, Height: 200}))
	if err := f.ui.RegisterGraph(f.g, f.target); err != nil {
		t.Fatalf("RegisterGraph: %v", err)
	}
	cl := f.execute(t)
	if !slices.Equal(cl.Passes(), []string{"ui"}) {
		t.Fatalf("passes = %v, want [ui]", cl.Passes())
	}
	scissors := cl.Filter(gputest.OpSetScissor)
	if len(scissors) != 1 {
		t.Fatalf("expected one scissor, got %d", len(scissors))
	}
	if want := (common.Rect{X: 4, Y: 4, Width: 60, Height: 28}); scissors[0].Scissor != want {
		t.Errorf("scissor = %+v, want %+v", scissors[0].Scissor, want)
	}
	draws := cl.Filter(gputest.OpDrawIndexed)
	if len(draws) != 1 || draws[0].Counts[0] != 6 {
		t.Fatalf("draws = %+v, want one draw of 6 indices", draws)
	}
	begin := cl.Filter(gputest.OpBeginRender)[0]
	if begin.Render.Color[0].Load != gpu.LoadOpLoad {
		t.Error("overlay must load the existing target contents")
	}
}

func TestClippedOutCommandIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.ui.SetDrawData(quad(f.atlas, common.Rect{X: 100, Y: 100, Width: 10, Height: 10}))
	if err := f.ui.RegisterGraph(f.g, f.target); err != nil {
		t.Fatalf("RegisterGraph: %v", err)
	}
	if n := len(f.execute(t).Filter(gputest.OpDrawIndexed)); n != 0 {
		t.Errorf("%d draws recorded for a command outside the target", n)
	}
}

func TestUnknownTextureFails(t *testing.T) {
	f := newFixture(t)
	f.ui.SetDrawData(quad(f.atlas+5, common.Rect{Width: 8, Height: 8}))
	if err := f.ui.RegisterGraph(f.g, f.target); err == nil {
		t.Error("unknown texture id accepted")
	}
}

func TestVertexPacking(t *testing.T) {
	d := quad(0, common.Rect{})
	buf := d.vertexBytes()
	if len(buf) != 4*VertexSize {
		t.Fatalf("packed %d bytes, want %d", len(buf), 4*VertexSize)
	}
	words := common.BytesToUint32s(buf[VertexSize:][:VertexSize])
	if words[4] != 0xffffffff {
		t.Errorf("color word = %#x", words[4])
	}
}
