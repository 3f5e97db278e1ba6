// Package renderer is the render core's context object. It owns the resource registry, the
// per-frame rings, the frame timeline, the render graph and the culling pipeline, and turns
// one draw list per frame into a presented image.
package renderer

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/culling"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shaders"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/streamer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timings"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ui"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Default ring region sizes, per frame slot.
const (
	DefaultUniformRingSize = 1 << 20
	DefaultVertexRingSize  = 16 << 20
	DefaultIndexRingSize   = 4 << 20
)

// Program names of the scene passes.
const (
	ProgramOpaque      = "opaque"
	ProgramPathTracing = "path_tracing"
	ProgramTAA         = "taa"
	ProgramTonemap     = "tonemap"
	ProgramSrgb        = "srgb"
)

// Formats of the intermediate targets.
const (
	HDRFormat   = gpu.FormatRGBA16Float
	DepthFormat = gpu.FormatDepth32Float
	LDRFormat   = gpu.FormatRGBA8Unorm
)

// Renderer defines the interface for the render core.
//
// Render is called from a single goroutine. Upload, Resize, SetSettings and SetCamera may be
// called from any goroutine; they take effect at the start of the next frame.
type Renderer interface {
	// Render records, submits and presents one frame.
	//
	// A swapchain that needs to be recreated is handled internally and the frame is skipped.
	// Fatal errors (common.IsFatal) mean the renderer can no longer be used.
	//
	// Parameters:
	//   - ctx: cancels the fence wait between frames
	//   - list: the draw list, nil for an empty scene
	//   - overlay: the UI geometry, nil for none
	//
	// Returns:
	//   - error: a fatal error, or a recording error of this frame
	Render(ctx context.Context, list *scene.DrawList, overlay *ui.DrawData) error

	// Upload queues data for the named device-local buffer. It is staged at the start of the
	// next frame.
	//
	// Parameters:
	//   - name: the buffer name
	//   - data: bytes to upload, copied
	//   - caps: capabilities the buffer needs
	Upload(name string, data []byte, caps gpu.BufferCapability)

	// UploadGeometry queues the shared vertex positions and indices the draw list refers to.
	//
	// Parameters:
	//   - positions: vertex positions, w unused
	//   - indices: mesh-local vertex indices
	UploadGeometry(positions []mgl32.Vec4, indices []uint32)

	// ReloadShader rebuilds a program from its source, keeping its handle. On failure the
	// previous program stays in use.
	//
	// Parameters:
	//   - name: the program name
	//
	// Returns:
	//   - error: the program is unknown or failed to rebuild
	ReloadShader(name string) error

	// Resize notifies the renderer of a new surface extent.
	Resize(extent common.Extent2D)

	// WaitIdle blocks until the GPU has finished every submitted frame.
	WaitIdle() error

	Settings() Settings
	SetSettings(s Settings)
	SetCamera(c camera.Camera)

	// GlyphAtlasIndex is the UI texture id of the glyph atlas.
	GlyphAtlasIndex() uint32
	// SetGlyphAtlas replaces the glyph atlas with RGBA8 pixels.
	SetGlyphAtlas(extent common.Extent2D, rgba []byte) error
	// RegisterUITexture makes an image addressable by UI draw commands.
	RegisterUITexture(h registry.ImageHandle) uint32

	OutputExtent() common.Extent2D
	RenderResolution() common.Extent2D
	FrameCount() uint64
	// Timings returns the pass timings of the most recently completed frame.
	Timings() []timings.Timing
	// Stats returns the graph counters of the last frame.
	Stats() graph.Stats

	Registry() registry.Registry
	Programs() program.Registry

	// Destroy waits for the GPU and releases everything in reverse creation order. The device
	// stays owned by the caller.
	Destroy()
}

type upload struct {
	name string
	data []byte
	caps gpu.BufferCapability
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	device   gpu.Device
	registry registry.Registry
	uniforms *ring.Ring
	vertices *ring.Ring
	indices  *ring.Ring
	timeline timeline.Timeline
	graph    graph.Graph
	programs program.Registry
	culling  culling.Culling
	streamer streamer.Streamer
	timings  timings.Timings
	ui       ui.Renderer

	// Pre-creation config collected from builder options
	queueLength     int
	fenceTimeout    time.Duration
	uniformRingSize uint64
	vertexRingSize  uint64
	indexRingSize   uint64
	source          program.Source
	programOptions  []program.RegistryBuilderOption
	timingOptions   []timings.TimingsBuilderOption

	// Guarded by mu
	settings        Settings
	resolutionDirty bool
	pendingExtent   common.Extent2D
	uploads         []upload
	camera          camera.Camera

	output      common.Extent2D
	frame       frameState
	emptyImage  registry.ImageHandle
	glyphAtlas  registry.ImageHandle
	glyphIndex  uint32
	history     [2]registry.ImageHandle
	historyOK   bool
	stats       graph.Stats
	opaque      program.Handle
	pathTracing program.Handle
	taa         program.Handle
	tonemap     program.Handle
	srgb        program.Handle
}

// frameState is carried from one frame to the next.
type frameState struct {
	previousViewProjection mgl32.Mat4
	frozenFrustum          common.Frustum
	frozen                 bool
}

var _ Renderer = &renderer{}

// NewRenderer creates the render core on device.
//
// Components are created in dependency order: registry, rings, timeline, graph, programs and
// culling, then the streamer, UI and default images. A failure tears down what was created.
//
// Parameters:
//   - device: the device to render with, owned by the caller
//   - options: functional options applied before creation
//
// Returns:
//   - Renderer: the renderer
//   - error: a component failed to initialize
func NewRenderer(device gpu.Device, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:              &sync.Mutex{},
		device:          device,
		queueLength:     timeline.FrameQueueLength,
		fenceTimeout:    timeline.DefaultFenceTimeout,
		uniformRingSize: DefaultUniformRingSize,
		vertexRingSize:  DefaultVertexRingSize,
		indexRingSize:   DefaultIndexRingSize,
		source:          program.FSSource(shaders.FS, "."),
		settings:        DefaultSettings(),
		output:          common.Extent2D{Width: 1280, Height: 720},
		emptyImage:      handle.None[registry.Image](),
		glyphAtlas:      handle.None[registry.Image](),
		history:         [2]registry.ImageHandle{handle.None[registry.Image](), handle.None[registry.Image]()},
	}
	for _, option := range options {
		option(r)
	}
	r.settings = r.settings.normalize()
	if sc := device.Swapchain(); sc != nil {
		r.output = sc.Extent()
	}

	if err := r.init(); err != nil {
		r.Destroy()
		return nil, err
	}
	common.Logger().Info("renderer initialized", "device", device.Name(), "output", r.output.String(),
		"frames_in_flight", r.queueLength)
	return r, nil
}

func (r *renderer) init() error {
	r.registry = registry.NewRegistry(r.device)

	var err error
	if r.uniforms, err = ring.New(r.device, "uniform_ring", r.uniformRingSize, r.queueLength, gpu.BufferCapUniform); err != nil {
		return err
	}
	if r.vertices, err = ring.New(r.device, "vertex_ring", r.vertexRingSize, r.queueLength,
		gpu.BufferCapVertex|gpu.BufferCapStorage|gpu.BufferCapTransferSrc); err != nil {
		return err
	}
	if r.indices, err = ring.New(r.device, "index_ring", r.indexRingSize, r.queueLength, gpu.BufferCapIndex); err != nil {
		return err
	}

	r.timings = timings.NewTimings(r.device, r.queueLength, r.timingOptions...)
	r.timeline = timeline.NewTimeline(r.device, r.registry,
		timeline.WithQueueLength(r.queueLength),
		timeline.WithFenceTimeout(r.fenceTimeout),
		timeline.WithRings(r.uniforms, r.vertices, r.indices),
		timeline.WithSlotResetHook(r.timings.Reset),
	)
	r.graph = graph.NewGraph(r.registry, r.output, graph.WithPassObserver(r.timings))

	r.programs = program.NewRegistry(r.device, r.source, r.registry, r.programOptions...)
	if r.culling, err = culling.NewCulling(r.programs, r.uniforms); err != nil {
		return err
	}
	if err := r.loadPrograms(); err != nil {
		return err
	}

	r.streamer = streamer.NewStreamer(r.device, r.registry, r.vertices)
	if r.ui, err = ui.NewRenderer(r.programs, LDRFormat, r.uniforms, r.vertices, r.indices); err != nil {
		return err
	}
	return r.createDefaultImages()
}

func (r *renderer) loadPrograms() error {
	var err error
	if r.opaque, err = r.programs.Load(ProgramOpaque,
		program.WithColorFormats(HDRFormat), program.WithDepth(DepthFormat, true, true)); err != nil {
		return err
	}
	if r.pathTracing, err = r.programs.Load(ProgramPathTracing); err != nil {
		return err
	}
	if r.taa, err = r.programs.Load(ProgramTAA); err != nil {
		return err
	}
	if r.tonemap, err = r.programs.Load(ProgramTonemap); err != nil {
		return err
	}
	format := LDRFormat
	if sc := r.device.Swapchain(); sc != nil {
		format = sc.Format()
	}
	r.srgb, err = r.programs.Load(ProgramSrgb, program.WithColorFormats(format))
	return err
}

// createDefaultImages creates the empty image sampled in place of absent inputs and a white
// glyph atlas so untextured UI draws work before an atlas is set.
func (r *renderer) createDefaultImages() error {
	var err error
	r.emptyImage, err = r.createImage("empty", common.Extent2D{Width: 1, Height: 1}, []byte{0, 0, 0, 0})
	if err != nil {
		return err
	}
	r.glyphAtlas, err = r.createImage("glyph_atlas", common.Extent2D{Width: 1, Height: 1}, []byte{255, 255, 255, 255})
	if err != nil {
		return err
	}
	r.glyphIndex = r.ui.RegisterTexture(r.glyphAtlas)
	return r.createHistory()
}

func (r *renderer) createImage(name string, extent common.Extent2D, rgba []byte) (registry.ImageHandle, error) {
	h, err := r.registry.CreateImage(gpu.ImageDesc{
		Name:         name,
		Extent:       extent,
		Format:       gpu.FormatRGBA8Unorm,
		Capabilities: gpu.ImageCapSampled | gpu.ImageCapTransferDst,
	})
	if err != nil {
		return h, errors.Wrapf(err, "create %s image", name)
	}
	if err := r.device.WriteImage(r.registry.MustImage(h).Object, rgba); err != nil {
		return h, errors.Wrapf(err, "write %s image", name)
	}
	return h, nil
}

// createHistory (re)creates the two TAA history images at the render resolution.
func (r *renderer) createHistory() error {
	for i, h := range r.history {
		if h.IsValid() {
			if err := r.registry.DestroyImage(h); err != nil {
				return errors.Wrap(err, "destroy TAA history")
			}
			r.history[i] = handle.None[registry.Image]()
		}
		created, err := r.registry.CreateImage(gpu.ImageDesc{
			Name:         "taa_history",
			Extent:       r.RenderResolution(),
			Format:       HDRFormat,
			Capabilities: gpu.ImageCapSampled | gpu.ImageCapStorage,
		})
		if err != nil {
			return errors.Wrap(err, "create TAA history")
		}
		r.history[i] = created
	}
	r.historyOK = false
	return nil
}

func (r *renderer) Upload(name string, data []byte, caps gpu.BufferCapability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, upload{name: name, data: append([]byte(nil), data...), caps: caps})
}

func (r *renderer) UploadGeometry(positions []mgl32.Vec4, indices []uint32) {
	buf := make([]byte, len(positions)*16)
	for i, p := range positions {
		common.PutVec4(buf[i*16:], p)
	}
	r.Upload(bufferPositions, buf, gpu.BufferCapStorage)
	r.Upload(bufferIndices, common.Uint32sToBytes(indices), gpu.BufferCapIndex)
}

func (r *renderer) ReloadShader(name string) error {
	if err := r.programs.Reload(name); err != nil {
		return err
	}
	common.Logger().Info("shader reloaded", "program", name)
	return nil
}

func (r *renderer) Resize(extent common.Extent2D) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingExtent = extent
}

func (r *renderer) WaitIdle() error {
	return r.timeline.WaitIdle()
}

func (r *renderer) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *renderer) SetSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s = s.normalize()
	if s.ResolutionScale != r.settings.ResolutionScale {
		r.resolutionDirty = true
	}
	r.settings = s
}

func (r *renderer) SetCamera(c camera.Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera = c
}

func (r *renderer) GlyphAtlasIndex() uint32 {
	return r.glyphIndex
}

func (r *renderer) SetGlyphAtlas(extent common.Extent2D, rgba []byte) error {
	if uint64(len(rgba)) != uint64(extent.Width)*uint64(extent.Height)*4 {
		return errors.AssertionFailedf("glyph atlas of %s needs %d bytes, got %d",
			extent, uint64(extent.Width)*uint64(extent.Height)*4, len(rgba))
	}
	h, err := r.createImage("glyph_atlas", extent, rgba)
	if err != nil {
		return err
	}
	_ = r.registry.DestroyImage(r.glyphAtlas)
	r.glyphAtlas = h
	r.glyphIndex = r.ui.RegisterTexture(h)
	return nil
}

func (r *renderer) RegisterUITexture(h registry.ImageHandle) uint32 {
	return r.ui.RegisterTexture(h)
}

func (r *renderer) OutputExtent() common.Extent2D {
	return r.output
}

func (r *renderer) RenderResolution() common.Extent2D {
	return r.Settings().RenderResolution(r.output)
}

func (r *renderer) FrameCount() uint64 {
	return r.timeline.FrameCount()
}

func (r *renderer) Timings() []timings.Timing {
	return r.timings.Results()
}

func (r *renderer) Stats() graph.Stats {
	return r.stats
}

func (r *renderer) Registry() registry.Registry {
	return r.registry
}

func (r *renderer) Programs() program.Registry {
	return r.programs
}

func (r *renderer) Destroy() {
	if r.timeline != nil {
		if err := r.timeline.WaitIdle(); err != nil {
			common.Logger().Warn("renderer: wait idle before destroy", "error", err)
		}
	}
	if r.streamer != nil {
		r.streamer.Destroy()
	}
	if r.programs != nil {
		r.programs.Destroy()
	}
	if r.graph != nil {
		r.graph.Destroy()
	}
	for _, rg := range []*ring.Ring{r.indices, r.vertices, r.uniforms} {
		if rg != nil {
			rg.Destroy()
		}
	}
	if r.registry != nil {
		r.registry.DestroyAll()
	}
	r.timeline = nil
	r.streamer = nil
	r.programs = nil
	r.graph = nil
	r.indices, r.vertices, r.uniforms = nil, nil, nil
	r.registry = nil
}
