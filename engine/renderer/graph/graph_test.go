package graph

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/cockroachdb/errors"
)

var testOutput = common.Extent2D{Width: 1280, Height: 720}

type fixture struct {
	dev *gputest.Device
	reg registry.Registry
	g   Graph
}

func newFixture(options ...GraphBuilderOption) *fixture {
	dev := gputest.NewDevice(testOutput)
	reg := registry.NewRegistry(dev)
	return &fixture{dev: dev, reg: reg, g: NewGraph(reg, testOutput, options...)}
}

func (f *fixture) execute(t *testing.T) *gputest.CommandList {
	t.Helper()
	cmd, err := f.dev.BeginCommands(0, "test")
	if err != nil {
		t.Fatalf("BeginCommands failed: %v", err)
	}
	if err := f.g.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return cmd.(*gputest.CommandList)
}

func nop(*PassContext) error { return nil }

var hdrDesc = TextureDesc{Name: "hdr", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA16Float}

// imageBarriers returns the transitions recorded for obj, in order.
func imageBarriers(cl *gputest.CommandList, obj gpu.Image) []gpu.ImageTransition {
	var out []gpu.ImageTransition
	for _, c := range cl.Filter(gputest.OpBarriers) {
		for _, ib := range c.Barriers.Images {
			if ib.Image == obj {
				out = append(out, ib.Transition)
			}
		}
	}
	return out
}

func TestOneBarrierBetweenPasses(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	var h registry.ImageHandle
	f.g.AddPass(Pass{
		Name:             "opaque",
		Type:             PassGraphics,
		ColorAttachments: []ColorTarget{{Texture: hdr, Load: gpu.LoadOpClear}},
		Exec:             ExecFunc(nop),
	})
	f.g.AddPass(Pass{
		Name:          "tonemap",
		Type:          PassCompute,
		SampledImages: []Texture{hdr},
		Exec: ExecFunc(func(ctx *PassContext) error {
			h = ctx.ImageHandle(hdr)
			return nil
		}),
	})
	cl := f.execute(t)

	img := f.reg.MustImage(h)
	trs := imageBarriers(cl, img.Object)
	if len(trs) != 2 {
		t.Fatalf("expected 2 transitions (initial and between passes), got %d", len(trs))
	}
	if trs[1].From != gpu.ImageUsageColorAttachment || trs[1].To != gpu.ImageUsageComputeShaderRead {
		t.Errorf("unexpected transition %v -> %v", trs[1].From, trs[1].To)
	}
	if img.Usage != gpu.ImageUsageComputeShaderRead {
		t.Errorf("recorded usage not updated, got %v", img.Usage)
	}
}

func TestSameReadNeedsNoBarrier(t *testing.T) {
	f := newFixture()
	ldr := f.g.Output(TextureDesc{Name: "ldr", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA8Unorm})
	var obj gpu.Image
	f.g.AddPass(Pass{Name: "write", Type: PassCompute, StorageImages: []Texture{ldr}, Exec: ExecFunc(nop)})
	for _, name := range []string{"read_a", "read_b"} {
		f.g.AddPass(Pass{Name: name, Type: PassCompute, SampledImages: []Texture{ldr}, Exec: ExecFunc(func(ctx *PassContext) error {
			obj = ctx.Image(ldr)
			return nil
		})})
	}
	cl := f.execute(t)
	if got := len(imageBarriers(cl, obj)); got != 2 {
		t.Errorf("expected 2 transitions, got %d", got)
	}
}

func TestWriteAfterWriteIsOrdered(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	var obj gpu.Image
	exec := ExecFunc(func(ctx *PassContext) error {
		obj = ctx.Image(hdr)
		return nil
	})
	f.g.AddPass(Pass{Name: "a", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: exec})
	f.g.AddPass(Pass{Name: "b", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: exec})
	cl := f.execute(t)
	trs := imageBarriers(cl, obj)
	if len(trs) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(trs))
	}
	if !trs[1].MemoryOnly() {
		t.Error("expected a memory-only barrier between the two writes")
	}
}

func TestWriteWinsOverRead(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	var h registry.ImageHandle
	f.g.AddPass(Pass{
		Name:          "taa",
		Type:          PassCompute,
		SampledImages: []Texture{hdr},
		StorageImages: []Texture{hdr},
		Exec: ExecFunc(func(ctx *PassContext) error {
			h = ctx.ImageHandle(hdr)
			return nil
		}),
	})
	cl := f.execute(t)
	img := f.reg.MustImage(h)
	trs := imageBarriers(cl, img.Object)
	if len(trs) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(trs))
	}
	if trs[0].To != gpu.ImageUsageComputeShaderReadWrite || img.Usage != gpu.ImageUsageComputeShaderReadWrite {
		t.Errorf("expected read-write usage, got %v", trs[0].To)
	}
}

func TestConflictingWritesFail(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	f.g.AddPass(Pass{
		Name:             "bad",
		Type:             PassGraphics,
		StorageImages:    []Texture{hdr},
		ColorAttachments: []ColorTarget{{Texture: hdr}},
		Exec:             ExecFunc(nop),
	})
	cmd, _ := f.dev.BeginCommands(0, "test")
	err := f.g.Execute(context.Background(), cmd)
	if err == nil || !errors.HasAssertionFailure(err) {
		t.Fatalf("expected assertion failure, got %v", err)
	}
}

func TestResolutionIsMemoized(t *testing.T) {
	f := newFixture()
	a := f.g.Output(hdrDesc)
	b := f.g.Output(hdrDesc)
	if a != b {
		t.Fatal("equal descriptors returned different virtual handles")
	}
	var first, second registry.ImageHandle
	f.g.AddPass(Pass{Name: "a", Type: PassCompute, StorageImages: []Texture{a}, Exec: ExecFunc(func(ctx *PassContext) error {
		first = ctx.ImageHandle(a)
		second = ctx.ImageHandle(b)
		return nil
	})})
	f.execute(t)
	if first != second {
		t.Error("repeated resolution returned different physical handles")
	}
	if f.g.Stats().Resolves != 1 {
		t.Errorf("expected 1 resolve, got %d", f.g.Stats().Resolves)
	}
	if len(f.dev.Images) != 1 {
		t.Errorf("expected one physical image, got %d", len(f.dev.Images))
	}
}

func TestDistinctDescriptorsDoNotAlias(t *testing.T) {
	f := newFixture()
	a := f.g.Output(TextureDesc{Name: "a", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA16Float})
	b := f.g.Output(TextureDesc{Name: "b", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA16Float})
	var ha, hb registry.ImageHandle
	f.g.AddPass(Pass{Name: "p", Type: PassCompute, StorageImages: []Texture{a, b}, Exec: ExecFunc(func(ctx *PassContext) error {
		ha, hb = ctx.ImageHandle(a), ctx.ImageHandle(b)
		return nil
	})})
	f.execute(t)
	if ha == hb {
		t.Error("two live virtual textures share a physical image")
	}
}

func TestPhysicalResourcesArePooledAcrossFrames(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	var handles []registry.ImageHandle
	for frame := 0; frame < 3; frame++ {
		f.g.AddPass(Pass{Name: "p", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: ExecFunc(func(ctx *PassContext) error {
			handles = append(handles, ctx.ImageHandle(hdr))
			return nil
		})})
		f.execute(t)
	}
	if handles[0] != handles[1] || handles[1] != handles[2] {
		t.Error("pooled image not reused across frames")
	}
	if n := f.g.Stats().PhysicalImages; n != 1 {
		t.Errorf("expected 1 pooled image, got %d", n)
	}
}

func TestFirstWriteDiscards(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	for frame := 0; frame < 2; frame++ {
		f.g.AddPass(Pass{Name: "w", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: ExecFunc(nop)})
		f.g.AddPass(Pass{Name: "r", Type: PassCompute, SampledImages: []Texture{hdr}, Exec: ExecFunc(nop)})
		cl := f.execute(t)
		barriers := cl.Filter(gputest.OpBarriers)
		first := barriers[0].Barriers.Images[0]
		if !first.Discard || first.Transition.Src.Layout != gpu.LayoutUndefined {
			t.Errorf("frame %d: first write should discard", frame)
		}
		if frame == 1 && first.Transition.From != gpu.ImageUsageComputeShaderRead {
			t.Errorf("reused image should wait on its last usage, got %v", first.Transition.From)
		}
		if barriers[1].Barriers.Images[0].Discard {
			t.Errorf("frame %d: read discarded contents", frame)
		}
	}
}

func TestScreenRelativeFollowsResize(t *testing.T) {
	f := newFixture()
	half := f.g.Output(TextureDesc{Name: "half", Size: ScreenRelative(0.5, 0.5), Format: gpu.FormatRGBA16Float})
	fixed := f.g.Output(TextureDesc{Name: "lut", Size: Fixed(32, 32), Format: gpu.FormatRGBA8Unorm})
	if got := f.g.Extent(half); got != (common.Extent2D{Width: 640, Height: 360}) {
		t.Errorf("unexpected screen-relative extent %v", got)
	}
	f.g.AddPass(Pass{Name: "p", Type: PassCompute, StorageImages: []Texture{half, fixed}, Exec: ExecFunc(nop)})
	f.execute(t)

	f.g.OnResize(common.Extent2D{Width: 800, Height: 600})
	if got := f.g.Extent(half); got != (common.Extent2D{Width: 400, Height: 300}) {
		t.Errorf("unexpected extent after resize %v", got)
	}
	if got := f.g.Extent(fixed); got != (common.Extent2D{Width: 32, Height: 32}) {
		t.Errorf("fixed extent changed on resize: %v", got)
	}
	if n := f.g.Stats().PhysicalImages; n != 1 {
		t.Errorf("expected only the fixed image pooled after resize, got %d", n)
	}
	f.reg.CollectGarbage(^uint64(0))
	if n := len(f.dev.LiveImages()); n != 1 {
		t.Errorf("expected the screen-relative image destroyed, %d live", n)
	}
}

func TestPassesRunInDeclarationOrder(t *testing.T) {
	f := newFixture()
	hdr := f.g.Output(hdrDesc)
	var order []string
	for _, name := range []string{"culling", "opaque", "taa", "tonemap"} {
		name := name
		typ := PassCompute
		var colors []ColorTarget
		var storage []Texture
		if name == "opaque" {
			typ = PassGraphics
			colors = []ColorTarget{{Texture: hdr}}
		} else {
			storage = []Texture{hdr}
		}
		f.g.AddPass(Pass{Name: name, Type: typ, ColorAttachments: colors, StorageImages: storage, Exec: ExecFunc(func(*PassContext) error {
			order = append(order, name)
			return nil
		})})
	}
	names := f.g.PassNames()
	cl := f.execute(t)
	for i := range names {
		if order[i] != names[i] {
			t.Fatalf("execution order %v differs from declaration order %v", order, names)
		}
	}
	recorded := cl.Passes()
	if len(recorded) != 4 || recorded[1] != "opaque" {
		t.Errorf("unexpected recorded passes %v", recorded)
	}
	if len(f.g.PassNames()) != 0 {
		t.Error("pass list not cleared after Execute")
	}
}

func TestRawPassIssuesItsOwnBarriers(t *testing.T) {
	f := newFixture()
	ldr := f.g.Output(TextureDesc{Name: "ldr", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA8Unorm, Capabilities: gpu.ImageCapSampled})
	f.g.AddPass(Pass{Name: "tonemap", Type: PassCompute, StorageImages: []Texture{ldr}, Exec: ExecFunc(nop)})
	var h registry.ImageHandle
	f.g.RawPass("srgb", func(ctx *PassContext) error {
		ctx.Barrier(ldr, gpu.ImageUsageGraphicsShaderRead)
		h = ctx.ImageHandle(ldr)
		return nil
	})
	f.execute(t)
	img := f.reg.MustImage(h)
	if img.Usage != gpu.ImageUsageGraphicsShaderRead {
		t.Errorf("raw pass barrier not recorded, usage %v", img.Usage)
	}
	if !img.Desc.Capabilities.Has(gpu.ImageCapSampled | gpu.ImageCapStorage) {
		t.Errorf("capabilities not accumulated: %b", img.Desc.Capabilities)
	}
}

func TestAssertSameExtent(t *testing.T) {
	f := newFixture()
	ldr := f.g.Output(TextureDesc{Name: "ldr", Size: ScreenRelative(1, 1), Format: gpu.FormatRGBA8Unorm})
	small := f.g.Output(TextureDesc{Name: "small", Size: ScreenRelative(0.5, 0.5), Format: gpu.FormatRGBA8Unorm})
	f.g.RawPass("srgb", func(ctx *PassContext) error {
		if err := ctx.AssertSameExtent(ldr, ldr); err != nil {
			return err
		}
		return ctx.AssertSameExtent(ldr, small)
	})
	cmd, _ := f.dev.BeginCommands(0, "test")
	err := f.g.Execute(context.Background(), cmd)
	if err == nil || !errors.HasAssertionFailure(err) {
		t.Fatalf("expected extent assertion, got %v", err)
	}
}

func TestMismatchedAttachmentsFail(t *testing.T) {
	f := newFixture()
	color := f.g.Output(hdrDesc)
	depth := f.g.Output(TextureDesc{Name: "depth", Size: Fixed(16, 16), Format: gpu.FormatDepth32Float})
	f.g.AddPass(Pass{
		Name:             "opaque",
		Type:             PassGraphics,
		ColorAttachments: []ColorTarget{{Texture: color}},
		DepthAttachment:  &DepthTarget{Texture: depth},
		Exec:             ExecFunc(nop),
	})
	cmd, _ := f.dev.BeginCommands(0, "test")
	if err := f.g.Execute(context.Background(), cmd); err == nil || !errors.HasAssertionFailure(err) {
		t.Fatalf("expected attachment extent assertion, got %v", err)
	}
}

func TestImportedResources(t *testing.T) {
	f := newFixture()
	h, err := f.reg.CreateImage(gpu.ImageDesc{
		Name:         "history",
		Extent:       testOutput,
		Format:       gpu.FormatRGBA16Float,
		Capabilities: gpu.ImageCapStorage,
	})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}
	bh, _ := f.reg.CreateBuffer(gpu.BufferDesc{Name: "args", Size: 64, Capabilities: gpu.BufferCapIndirect | gpu.BufferCapStorage})
	history := f.g.Import("history", h)
	if again := f.g.Import("history", h); again != history {
		t.Error("re-import returned a new virtual handle")
	}
	args := f.g.ImportBuffer("args", bh)
	f.g.AddPass(Pass{Name: "fill", Type: PassCompute, StorageImages: []Texture{history}, StorageBuffers: []Buffer{args}, Exec: ExecFunc(nop)})
	f.g.AddPass(Pass{Name: "draw", Type: PassTransfer, IndirectBuffers: []Buffer{args}, Exec: ExecFunc(nop)})
	cl := f.execute(t)

	if got := f.reg.MustBuffer(bh).Usage; got != gpu.BufferUsageIndirectBuffer {
		t.Errorf("imported buffer usage %v", got)
	}
	for _, c := range cl.Filter(gputest.OpBarriers) {
		for _, ib := range c.Barriers.Images {
			if ib.Discard {
				t.Error("imported image was discarded")
			}
		}
	}
	if n := f.g.Stats().PhysicalImages; n != 0 {
		t.Errorf("imported image entered the pool, %d pooled", n)
	}
}

func TestIdleResourcesAreTrimmed(t *testing.T) {
	f := newFixture(WithMaxIdleFrames(1))
	hdr := f.g.Output(hdrDesc)
	f.g.AddPass(Pass{Name: "p", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: ExecFunc(nop)})
	f.execute(t)
	for i := 0; i < 3; i++ {
		f.execute(t)
	}
	if n := f.g.Stats().PhysicalImages; n != 0 {
		t.Errorf("expected idle image trimmed, %d pooled", n)
	}
}

func TestTransientBuffers(t *testing.T) {
	f := newFixture()
	pred := f.g.OutputBuffer(BufferDesc{Name: "predicate", Size: 4096})
	var first gpu.Buffer
	f.g.AddPass(Pass{Name: "fill", Type: PassCompute, StorageBuffers: []Buffer{pred}, Exec: ExecFunc(func(ctx *PassContext) error {
		first = ctx.Buffer(pred)
		return nil
	})})
	f.g.AddPass(Pass{Name: "scan", Type: PassCompute, ReadBuffers: []Buffer{pred}, Exec: ExecFunc(nop)})
	cl := f.execute(t)
	if first.Size() != 4096 {
		t.Errorf("unexpected size %d", first.Size())
	}
	var count int
	for _, c := range cl.Filter(gputest.OpBarriers) {
		for _, bb := range c.Barriers.Buffers {
			if bb.Buffer == first {
				count++
			}
		}
	}
	if count != 2 {
		t.Errorf("expected 2 buffer barriers, got %d", count)
	}
}

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) BeginPass(name string, _ gpu.CommandList) { o.events = append(o.events, "begin:"+name) }
func (o *recordingObserver) EndPass(gpu.CommandList)                  { o.events = append(o.events, "end") }

func TestPassObserver(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(WithPassObserver(obs))
	hdr := f.g.Output(hdrDesc)
	f.g.AddPass(Pass{Name: "a", Type: PassCompute, StorageImages: []Texture{hdr}, Exec: ExecFunc(nop)})
	f.g.RawPass("b", nop)
	f.execute(t)
	want := []string{"begin:a", "end", "begin:b", "end"}
	if len(obs.events) != len(want) {
		t.Fatalf("got events %v", obs.events)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, obs.events[i], want[i])
		}
	}
}
