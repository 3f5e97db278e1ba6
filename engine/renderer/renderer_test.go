package renderer

import (
	"context"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/culling"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ui"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

func fakeCompile(string) ([]byte, error) { return make([]byte, 8), nil }

func newTestRenderer(t *testing.T, dev *gputest.Device, options ...RendererBuilderOption) Renderer {
	t.Helper()
	options = append([]RendererBuilderOption{
		WithRingSizes(64*1024, 256*1024, 64*1024),
		WithProgramOptions(program.WithCompiler(fakeCompile)),
	}, options...)
	r, err := NewRenderer(dev, options...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

func newTestDevice() *gputest.Device {
	return gputest.NewDevice(common.Extent2D{Width: 64, Height: 48})
}

func lastList(t *testing.T, dev *gputest.Device) *gputest.CommandList {
	t.Helper()
	if len(dev.Submissions) == 0 {
		t.Fatal("no submissions")
	}
	return dev.Submissions[len(dev.Submissions)-1].List
}

func render(t *testing.T, r Renderer, list *scene.DrawList, overlay *ui.DrawData) {
	t.Helper()
	if err := r.Render(context.Background(), list, overlay); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func dispatchesIn(cl *gputest.CommandList, pass string) []gputest.Command {
	var out []gputest.Command
	for _, c := range cl.Filter(gputest.OpDispatch) {
		if c.Pass == pass {
			out = append(out, c)
		}
	}
	return out
}

// triangleList is one instance of one single-submesh mesh drawn with three indices.
func triangleList() *scene.DrawList {
	return &scene.DrawList{
		Instances: []scene.RenderInstance{{
			ObjectToWorld: mgl32.Ident4(),
			WorldToObject: mgl32.Ident4(),
			Material:      scene.NoMaterial,
		}},
		SubMeshInstances: []scene.SubMeshInstance{{}},
		Draws:            []scene.DrawCall{{IndexCount: 3, InstanceCount: 1}},
		Meshes:           []scene.RenderMesh{{SubMeshCount: 1, Bounds: mgl32.Vec4{0, 0, 0, 1}}},
	}
}

func TestEmptyFrameIssuesNoCullingDispatch(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	render(t, r, nil, nil)

	cl := lastList(t, dev)
	if got, want := cl.Passes(), []string{PassOpaque, PassTAA, PassTonemap, PassSrgb}; !slices.Equal(got, want) {
		t.Fatalf("passes = %v, want %v", got, want)
	}
	for _, c := range cl.Filter(gputest.OpDispatch) {
		if c.Counts[0] == 0 || c.Counts[1] == 0 || c.Counts[2] == 0 {
			t.Errorf("zero-sized dispatch in pass %q: %v", c.Pass, c.Counts)
		}
	}
	if n := len(cl.Filter(gputest.OpDrawIndexedIndirectCount)); n != 0 {
		t.Errorf("%d indirect draws recorded for an empty scene", n)
	}
	if fills := cl.Filter(gputest.OpFillBuffer); len(fills) != 1 || fills[0].Size != culling.DrawCountHeader {
		t.Errorf("expected the draw count to be cleared once, got %+v", fills)
	}
	if presents := dev.FakeSwapchain().Presents; presents != 1 {
		t.Errorf("presents = %d, want 1", presents)
	}
	if r.FrameCount() != 1 {
		t.Errorf("FrameCount = %d, want 1", r.FrameCount())
	}
}

func TestDrawListFrameDrawsIndirect(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	r.UploadGeometry([]mgl32.Vec4{{0, 0, 0, 1}, {1, 0, 0, 1}, {0, 1, 0, 1}}, []uint32{0, 1, 2})
	render(t, r, triangleList(), nil)

	cl := lastList(t, dev)
	draws := cl.Filter(gputest.OpDrawIndexedIndirectCount)
	if len(draws) != 1 {
		t.Fatalf("expected one indirect draw, got %d", len(draws))
	}
	d := draws[0]
	if d.Pass != PassOpaque || d.Value != 1 {
		t.Errorf("draw in pass %q with max %d, want %q with max 1", d.Pass, d.Value, PassOpaque)
	}
	if d.Offsets[0] != culling.DrawCountHeader || d.Offsets[1] != 0 {
		t.Errorf("draw offsets = %v, want [%d 0]", d.Offsets, culling.DrawCountHeader)
	}
	if d.Src != d.Dst {
		t.Error("draw arguments and count should share the compacted buffer")
	}
	if len(dispatchesIn(cl, culling.ProgramInstancesCulling)) != 1 {
		t.Error("culling kernel not dispatched")
	}
	if len(cl.Filter(gputest.OpCopyBuffer)) == 0 {
		t.Error("staged uploads were not copied")
	}
}

func TestDrawListWithoutGeometrySkipsDraw(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	render(t, r, triangleList(), nil)

	cl := lastList(t, dev)
	if n := len(cl.Filter(gputest.OpDrawIndexedIndirectCount)); n != 0 {
		t.Errorf("%d indirect draws recorded without geometry", n)
	}
	if !slices.Contains(cl.Passes(), PassOpaque) {
		t.Error("opaque pass should still clear its targets")
	}
}

func TestOutOfDateSwapchainSkipsFrame(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	sc := dev.FakeSwapchain()
	sc.OutOfDate = true

	render(t, r, nil, nil)
	if sc.Resizes != 1 {
		t.Errorf("resizes = %d, want 1", sc.Resizes)
	}
	if len(dev.Submissions) != 0 {
		t.Errorf("skipped frame submitted %d times", len(dev.Submissions))
	}
	render(t, r, nil, nil)
	if len(dev.Submissions) != 1 || sc.Presents != 1 {
		t.Errorf("frame after resize: submissions %d, presents %d", len(dev.Submissions), sc.Presents)
	}
}

func TestSuboptimalPresentResizes(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	sc := dev.FakeSwapchain()
	sc.Suboptimal = true

	render(t, r, nil, nil)
	if sc.Presents != 1 || sc.Resizes != 1 {
		t.Errorf("presents %d, resizes %d, want 1 and 1", sc.Presents, sc.Resizes)
	}
}

func TestResizeRecreatesSwapchain(t *testing.T) {
	dev := newTestDevice()
	cam := camera.NewCamera()
	r := newTestRenderer(t, dev, WithCamera(cam))
	render(t, r, nil, nil)

	r.Resize(common.Extent2D{Width: 32, Height: 32})
	render(t, r, nil, nil)
	want := common.Extent2D{Width: 32, Height: 32}
	if r.OutputExtent() != want || dev.FakeSwapchain().Extent() != want {
		t.Errorf("output %s, swapchain %s, want %s", r.OutputExtent(), dev.FakeSwapchain().Extent(), want)
	}
	if cam.Aspect() != 1 {
		t.Errorf("camera aspect = %v, want 1", cam.Aspect())
	}
	if dev.IdleWaits() == 0 {
		t.Error("resize did not wait for the GPU")
	}
	tonemap := dispatchesIn(lastList(t, dev), PassTonemap)
	if len(tonemap) != 1 || tonemap[0].Counts[0] != 2 || tonemap[0].Counts[1] != 2 {
		t.Errorf("tonemap dispatch = %+v, want 2x2 groups", tonemap)
	}
}

func TestResolutionScale(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	render(t, r, nil, nil)

	s := r.Settings()
	s.ResolutionScale = 0.5
	r.SetSettings(s)
	if got := r.RenderResolution(); got != (common.Extent2D{Width: 32, Height: 24}) {
		t.Fatalf("RenderResolution = %s, want 32x24", got)
	}
	render(t, r, nil, nil)

	cl := lastList(t, dev)
	taa := dispatchesIn(cl, PassTAA)
	if len(taa) != 1 || taa[0].Counts[0] != 2 || taa[0].Counts[1] != 2 {
		t.Errorf("taa dispatch = %+v, want 2x2 groups at half resolution", taa)
	}
	tonemap := dispatchesIn(cl, PassTonemap)
	if len(tonemap) != 1 || tonemap[0].Counts[0] != 4 || tonemap[0].Counts[1] != 3 {
		t.Errorf("tonemap dispatch = %+v, want 4x3 groups at output resolution", tonemap)
	}
}

func TestInvalidSettingsFallBack(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev, WithSettings(Settings{ResolutionScale: -1, Exposure: 0, TAABlend: 3}))
	s := r.Settings()
	d := DefaultSettings()
	if s.ResolutionScale != d.ResolutionScale || s.Exposure != d.Exposure || s.TAABlend != d.TAABlend {
		t.Errorf("settings = %+v, want defaults for out of range values", s)
	}
}

func TestPathTracingReplacesRaster(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	s := r.Settings()
	s.EnablePathTracing = true
	r.SetSettings(s)
	render(t, r, triangleList(), nil)

	passes := lastList(t, dev).Passes()
	if got, want := passes, []string{PassPathTracing, PassTonemap, PassSrgb}; !slices.Equal(got, want) {
		t.Errorf("passes = %v, want %v", got, want)
	}
}

func TestHeadlessSkipsPresent(t *testing.T) {
	dev := newTestDevice()
	dev.Headless = true
	r := newTestRenderer(t, dev, WithOutputExtent(common.Extent2D{Width: 32, Height: 16}))
	render(t, r, nil, nil)

	if got := r.OutputExtent(); got != (common.Extent2D{Width: 32, Height: 16}) {
		t.Errorf("OutputExtent = %s, want 32x16", got)
	}
	if slices.Contains(lastList(t, dev).Passes(), PassSrgb) {
		t.Error("headless frame recorded the srgb pass")
	}
	if dev.FakeSwapchain().Presents != 0 {
		t.Error("headless frame presented")
	}
}

func TestOverlayDrawsOnLDR(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	overlay := &ui.DrawData{
		Vertices: []ui.Vertex{{Position: mgl32.Vec2{0, 0}}, {Position: mgl32.Vec2{10, 0}}, {Position: mgl32.Vec2{0, 10}}},
		Indices:  []uint32{0, 1, 2},
		Commands: []ui.DrawCommand{{
			ClipRect:   common.Rect{Width: 64, Height: 48},
			TextureID:  r.GlyphAtlasIndex(),
			IndexCount: 3,
		}},
	}
	render(t, r, nil, overlay)

	cl := lastList(t, dev)
	if got, want := cl.Passes(), []string{PassOpaque, PassTAA, PassTonemap, ui.ProgramName, PassSrgb}; !slices.Equal(got, want) {
		t.Fatalf("passes = %v, want %v", got, want)
	}
	if n := len(cl.Filter(gputest.OpDrawIndexed)); n != 1 {
		t.Errorf("%d overlay draws, want 1", n)
	}
}

func TestSetGlyphAtlas(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	before := r.GlyphAtlasIndex()
	if err := r.SetGlyphAtlas(common.Extent2D{Width: 2, Height: 2}, make([]byte, 3)); err == nil {
		t.Error("atlas with the wrong byte count accepted")
	}
	if err := r.SetGlyphAtlas(common.Extent2D{Width: 2, Height: 2}, make([]byte, 16)); err != nil {
		t.Fatalf("SetGlyphAtlas: %v", err)
	}
	if r.GlyphAtlasIndex() == before {
		t.Error("glyph atlas index not updated")
	}
}

func TestReloadShader(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	h, ok := r.Programs().Lookup(ProgramTonemap)
	if !ok {
		t.Fatal("tonemap program not loaded")
	}
	if err := r.ReloadShader(ProgramTonemap); err != nil {
		t.Fatalf("ReloadShader: %v", err)
	}
	if h2, _ := r.Programs().Lookup(ProgramTonemap); h2 != h {
		t.Error("reload changed the program handle")
	}
	if err := r.ReloadShader("missing"); err == nil {
		t.Error("reloading an unknown program succeeded")
	}
	render(t, r, nil, nil)
}

func TestDeviceLostIsFatal(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	render(t, r, nil, nil)

	dev.Lost = true
	err := r.Render(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("Render on a lost device succeeded")
	}
	if !common.IsFatal(err) {
		t.Errorf("expected a fatal error, got %v", err)
	}
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	dev := newTestDevice()
	dev.Hold = true
	r := newTestRenderer(t, dev)
	render(t, r, nil, nil)
	render(t, r, nil, nil)

	err := r.Render(context.Background(), nil, nil)
	if !common.IsFatal(err) {
		t.Fatalf("expected a fatal fence timeout, got %v", err)
	}
	dev.Complete()
}

func TestTimingsResolveAfterSlotReuse(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	for i := 0; i < 3; i++ {
		render(t, r, nil, nil)
	}
	var names []string
	for _, tm := range r.Timings() {
		names = append(names, tm.Label)
		if !tm.HasGPU {
			t.Errorf("%s has no GPU time", tm.Label)
		}
	}
	if !slices.Contains(names, PassTonemap) {
		t.Errorf("timings = %v, want %s among them", names, PassTonemap)
	}
}

func TestDestroyReleasesResources(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	r.UploadGeometry([]mgl32.Vec4{{0, 0, 0, 1}}, []uint32{0, 0, 0})
	render(t, r, triangleList(), nil)

	r.Destroy()
	if n := len(dev.LiveImages()); n != 0 {
		t.Errorf("%d images alive after Destroy", n)
	}
	if n := len(dev.LiveBuffers()); n != 0 {
		t.Errorf("%d buffers alive after Destroy", n)
	}
	if err := r.Render(context.Background(), nil, nil); err == nil {
		t.Error("Render after Destroy succeeded")
	}
}

func TestJitterStaysInPixel(t *testing.T) {
	seen := map[mgl32.Vec2]bool{}
	for i := uint64(0); i < jitterSequenceLength; i++ {
		j := Jitter(i)
		if j[0] < -0.5 || j[0] >= 0.5 || j[1] < -0.5 || j[1] >= 0.5 {
			t.Errorf("jitter %d = %v out of range", i, j)
		}
		seen[j] = true
	}
	if len(seen) != jitterSequenceLength {
		t.Errorf("%d distinct offsets, want %d", len(seen), jitterSequenceLength)
	}
	if Jitter(0) != Jitter(jitterSequenceLength) {
		t.Error("jitter sequence does not repeat")
	}
}

func TestGlobalUniformLayout(t *testing.T) {
	u := GlobalUniform{FrameCount: 7, EnableTAA: true, SubMeshInstanceCount: 3, RenderResolution: mgl32.Vec2{64, 48}}
	buf := u.Marshal()
	if len(buf) != GlobalUniformSize {
		t.Fatalf("size = %d, want %d", len(buf), GlobalUniformSize)
	}
	words := common.BytesToUint32s(buf[336:])
	if words[0] != 7 || words[1] != 1 || words[2] != 3 {
		t.Errorf("trailing words = %v", words[:3])
	}
}

func TestDefaultImagesSurviveHistoryRecreation(t *testing.T) {
	dev := newTestDevice()
	r := newTestRenderer(t, dev)
	impl := r.(*renderer)
	if !r.Settings().EnableTAA {
		t.Fatal("TAA should be on by default")
	}
	if _, err := r.Registry().Image(impl.emptyImage); err != nil {
		t.Fatalf("empty image lost during init: %v", err)
	}
	render(t, r, nil, nil)

	before := impl.history
	s := r.Settings()
	s.ResolutionScale = 0.5
	r.SetSettings(s)
	render(t, r, nil, nil)

	for _, h := range []struct {
		name string
		err  error
	}{
		{"empty", imageErr(r, impl.emptyImage)},
		{"glyph atlas", imageErr(r, impl.glyphAtlas)},
		{"history 0", imageErr(r, impl.history[0])},
		{"history 1", imageErr(r, impl.history[1])},
	} {
		if h.err != nil {
			t.Errorf("%s image: %v", h.name, h.err)
		}
	}
	if impl.history == before {
		t.Error("history was not recreated for the new resolution")
	}
}

func imageErr(r Renderer, h registry.ImageHandle) error {
	_, err := r.Registry().Image(h)
	return err
}
