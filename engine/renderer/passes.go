package renderer

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/culling"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Pass names.
const (
	PassOpaque      = "opaque"
	PassPathTracing = "path_tracing"
	PassTAA         = "taa"
	PassTonemap     = "tonemap"
	PassSrgb        = "srgb"
)

// record registers every pass of the frame:
//
//	uploads -> culling + opaque | path tracing -> taa -> tonemap -> ui -> srgb
func (r *renderer) record(in frameInputs) error {
	if err := r.stage(in.list); err != nil {
		return err
	}
	globals, err := r.uploadGlobals(in)
	if err != nil {
		return err
	}
	r.streamer.Record(r.graph)

	scale := in.settings.ResolutionScale
	hdr := r.graph.Output(graph.TextureDesc{
		Name:         "hdr",
		Size:         graph.ScreenRelative(scale, scale),
		Format:       HDRFormat,
		Capabilities: gpu.ImageCapColorAttachment | gpu.ImageCapStorage,
	})
	if in.settings.EnablePathTracing {
		if err := r.addPathTracingPass(hdr, globals); err != nil {
			return err
		}
	} else if err := r.addScenePasses(in, hdr, globals); err != nil {
		return err
	}

	resolved := hdr
	if in.settings.EnableTAA && !in.settings.EnablePathTracing {
		if resolved, err = r.addTAAPass(in, hdr); err != nil {
			return err
		}
	}

	ldr := r.graph.Output(graph.TextureDesc{
		Name:         "ldr",
		Size:         graph.ScreenRelative(1, 1),
		Format:       LDRFormat,
		Capabilities: gpu.ImageCapSampled,
	})
	if err := r.addTonemapPass(in, resolved, ldr); err != nil {
		return err
	}

	r.ui.SetDrawData(in.overlay)
	if err := r.ui.RegisterGraph(r.graph, ldr); err != nil {
		return err
	}

	if in.frame.Swapchain.IsValid() {
		return r.addSrgbPass(in, ldr)
	}
	return nil
}

func (r *renderer) uploadGlobals(in frameInputs) (ring.Allocation, error) {
	res := in.settings.RenderResolution(r.output)
	u := GlobalUniform{
		View:                   in.camera.view,
		Projection:             in.camera.projection,
		ViewInverse:            in.camera.view.Inv(),
		ProjectionInverse:      in.camera.projection.Inv(),
		PreviousViewProjection: r.frame.previousViewProjection,
		RenderResolution:       mgl32.Vec2{float32(res.Width), float32(res.Height)},
		JitterOffset:           in.camera.jitter,
		FrameCount:             uint32(in.frame.Number),
		EnableTAA:              in.settings.EnableTAA,
		SubMeshInstanceCount:   uint32(len(in.list.SubMeshInstances)),
	}
	if r.frame.previousViewProjection == (mgl32.Mat4{}) {
		u.PreviousViewProjection = in.camera.viewProjection
	}
	alloc, err := r.uniforms.Upload(u.Marshal(), culling.UniformAlignment)
	if err != nil {
		return alloc, errors.Wrap(err, "global uniform")
	}
	return alloc, nil
}

// addScenePasses runs culling and draws the surviving instances into hdr. The pass always clears
// hdr and depth; the indirect draw is recorded only when there is something to draw.
func (r *renderer) addScenePasses(in frameInputs, hdr graph.Texture, globals ring.Allocation) error {
	list := in.list
	cin := culling.Inputs{
		SubMeshInstanceCount: uint32(len(list.SubMeshInstances)),
		DrawCount:            uint32(len(list.Draws)),
		Frustum:              in.camera.frustum,
		Enabled:              in.camera.cull,
	}
	if !list.Empty() {
		cin.Instances = r.streamer.Import(r.graph, bufferInstances)
		cin.SubMeshInstances = r.streamer.Import(r.graph, bufferSubMeshInstances)
		cin.Meshes = r.streamer.Import(r.graph, bufferMeshes)
		cin.Draws = r.streamer.Import(r.graph, bufferDraws)
	}
	out, err := r.culling.Record(r.graph, cin)
	if err != nil {
		return err
	}

	scale := in.settings.ResolutionScale
	depth := r.graph.Output(graph.TextureDesc{
		Name:   "depth",
		Size:   graph.ScreenRelative(scale, scale),
		Format: DepthFormat,
	})
	pass := graph.Pass{
		Name:             PassOpaque,
		Type:             graph.PassGraphics,
		ColorAttachments: []graph.ColorTarget{{Texture: hdr, Load: gpu.LoadOpClear, ClearColor: [4]float64{0, 0, 0, 1}}},
		DepthAttachment:  &graph.DepthTarget{Texture: depth, Load: gpu.LoadOpClear, ClearDepth: 1},
	}

	positions := r.streamer.Import(r.graph, bufferPositions)
	indices := r.streamer.Import(r.graph, bufferIndices)
	if out.MaxDraws == 0 || !positions.IsValid() || !indices.IsValid() {
		pass.Exec = graph.ExecFunc(func(*graph.PassContext) error { return nil })
		r.graph.AddPass(pass)
		return nil
	}

	pass.ReadBuffers = []graph.Buffer{cin.Instances, cin.SubMeshInstances, out.CulledInstances, positions}
	pass.IndexBuffer = indices
	pass.IndirectBuffers = []graph.Buffer{out.CulledDraws}
	maxDraws := out.MaxDraws
	pass.Exec = graph.ExecFunc(func(ctx *graph.PassContext) error {
		rp := ctx.Render
		draws := ctx.Buffer(out.CulledDraws)
		rp.SetProgram(r.programs.MustProgram(r.opaque).Object)
		rp.SetBindings(
			gpu.BufferBinding(0, 0, r.uniforms.Buffer(), globals.Offset, globals.Size),
			gpu.BufferBinding(0, 1, ctx.Buffer(cin.Instances), 0, 0),
			gpu.BufferBinding(0, 2, ctx.Buffer(cin.SubMeshInstances), 0, 0),
			gpu.BufferBinding(0, 3, ctx.Buffer(out.CulledInstances), 0, 0),
			gpu.BufferBinding(0, 4, ctx.Buffer(positions), 0, 0),
		)
		rp.SetIndexBuffer(ctx.Buffer(indices), 0)
		rp.DrawIndexedIndirectCount(draws, culling.DrawCountHeader, draws, 0, maxDraws)
		return nil
	})
	r.graph.AddPass(pass)
	return nil
}

func (r *renderer) addPathTracingPass(hdr graph.Texture, globals ring.Allocation) error {
	x, y := culling.DispatchSize(r.graph.Extent(hdr), culling.TileSize2D)
	r.addComputePass(PassPathTracing, r.pathTracing, x, y, graph.Pass{StorageImages: []graph.Texture{hdr}},
		func(ctx *graph.PassContext) []gpu.Binding {
			return []gpu.Binding{
				gpu.BufferBinding(0, 0, r.uniforms.Buffer(), globals.Offset, globals.Size),
				gpu.ImageBinding(0, 1, ctx.Image(hdr)),
			}
		})
	return nil
}

// addTAAPass blends hdr with the previous frame's history into the current history image, which
// becomes the next frame's previous. Invalid history is replaced with the empty image.
func (r *renderer) addTAAPass(in frameInputs, hdr graph.Texture) (graph.Texture, error) {
	write := r.history[in.frame.Number%2]
	read := r.history[(in.frame.Number+1)%2]
	var valid uint32 = 1
	if !r.historyOK {
		read = r.emptyImage
		valid = 0
	}
	current := r.graph.Import("taa_history", write)
	previous := r.graph.Import("taa_previous", read)

	params := make([]byte, 16)
	common.PutFloat32s(params, in.settings.TAABlend)
	common.PutUint32s(params[4:], valid)
	alloc, err := r.uniforms.Upload(params, culling.UniformAlignment)
	if err != nil {
		return current, errors.Wrap(err, "taa parameters")
	}

	x, y := culling.DispatchSize(r.graph.Extent(hdr), culling.TileSize2D)
	r.addComputePass(PassTAA, r.taa, x, y, graph.Pass{
		SampledImages: []graph.Texture{hdr, previous},
		StorageImages: []graph.Texture{current},
	}, func(ctx *graph.PassContext) []gpu.Binding {
		return []gpu.Binding{
			gpu.BufferBinding(0, 0, r.uniforms.Buffer(), alloc.Offset, alloc.Size),
			gpu.ImageBinding(0, 1, ctx.Image(hdr)),
			gpu.ImageBinding(0, 2, ctx.Image(previous)),
			gpu.ImageBinding(0, 3, ctx.Image(current)),
		}
	})
	return current, nil
}

// addTonemapPass maps src to display range at the output resolution.
func (r *renderer) addTonemapPass(in frameInputs, src, ldr graph.Texture) error {
	params := make([]byte, 16)
	common.PutFloat32s(params, in.settings.Exposure)
	alloc, err := r.uniforms.Upload(params, culling.UniformAlignment)
	if err != nil {
		return errors.Wrap(err, "tonemap parameters")
	}
	x, y := culling.DispatchSize(r.graph.Extent(ldr), culling.TileSize2D)
	r.addComputePass(PassTonemap, r.tonemap, x, y, graph.Pass{
		SampledImages: []graph.Texture{src},
		StorageImages: []graph.Texture{ldr},
	}, func(ctx *graph.PassContext) []gpu.Binding {
		return []gpu.Binding{
			gpu.BufferBinding(0, 0, r.uniforms.Buffer(), alloc.Offset, alloc.Size),
			gpu.ImageBinding(0, 1, ctx.Image(src)),
			gpu.ImageBinding(0, 3, ctx.Image(ldr)),
		}
	})
	return nil
}

// addComputePass adds a two-dimensional compute pass. Nothing is added for an empty grid.
func (r *renderer) addComputePass(name string, prog program.Handle, x, y uint32, pass graph.Pass,
	bindings func(ctx *graph.PassContext) []gpu.Binding) {
	if x == 0 || y == 0 {
		common.Logger().Debug("renderer: empty dispatch skipped", "pass", name)
		return
	}
	pass.Name = name
	pass.Type = graph.PassCompute
	pass.Exec = graph.ExecFunc(func(ctx *graph.PassContext) error {
		ctx.Compute.SetProgram(r.programs.MustProgram(prog).Object)
		ctx.Compute.SetBindings(bindings(ctx)...)
		ctx.Compute.Dispatch(x, y, 1)
		return nil
	})
	r.graph.AddPass(pass)
}

// addSrgbPass copies ldr onto the swapchain image, encoding to sRGB unless the swapchain format
// already does. It issues its own barriers since the swapchain image is rebound every frame.
func (r *renderer) addSrgbPass(in frameInputs, ldr graph.Texture) error {
	swapchain := r.graph.Import("swapchain", in.frame.Swapchain)
	format := r.registry.MustImage(in.frame.Swapchain).Desc.Format

	var encode uint32
	if !format.IsSrgb() {
		encode = 1
	}
	params := make([]byte, 16)
	common.PutUint32s(params, encode)
	alloc, err := r.uniforms.Upload(params, culling.UniformAlignment)
	if err != nil {
		return errors.Wrap(err, "srgb parameters")
	}

	r.graph.RawPass(PassSrgb, func(ctx *graph.PassContext) error {
		if err := ctx.AssertSameExtent(ldr, swapchain); err != nil {
			return err
		}
		ctx.Barrier(ldr, gpu.ImageUsageGraphicsShaderRead)
		ctx.Barrier(swapchain, gpu.ImageUsageColorAttachment)
		rp := ctx.Cmd.BeginRenderPass(gpu.RenderPassDesc{
			Label: PassSrgb,
			Color: []gpu.ColorAttachment{{Image: ctx.Image(swapchain), Load: gpu.LoadOpDontCare}},
		})
		rp.SetProgram(r.programs.MustProgram(r.srgb).Object)
		rp.SetBindings(
			gpu.BufferBinding(0, 0, r.uniforms.Buffer(), alloc.Offset, alloc.Size),
			gpu.ImageBinding(0, 1, ctx.Image(ldr)),
		)
		rp.Draw(3, 1, 0, 0)
		rp.End()
		return nil
	})
	return nil
}
