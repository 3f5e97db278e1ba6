package renderer

import (
	"context"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ui"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Names of the streamed scene buffers.
const (
	bufferInstances        = "instances"
	bufferSubMeshInstances = "submesh_instances"
	bufferDraws            = "draws"
	bufferMeshes           = "meshes"
	bufferPositions        = "positions"
	bufferIndices          = "indices"
)

// frameInputs is the state one frame is recorded from, snapshotted under the lock.
type frameInputs struct {
	settings Settings
	camera   cameraState
	list     *scene.DrawList
	overlay  *ui.DrawData
	frame    *timeline.Frame
}

func (r *renderer) Render(ctx context.Context, list *scene.DrawList, overlay *ui.DrawData) error {
	if r.timeline == nil {
		return errors.AssertionFailedf("renderer: Render after Destroy")
	}

	r.mu.Lock()
	settings := r.settings
	extent := r.pendingExtent
	r.pendingExtent = common.Extent2D{}
	resolutionDirty := r.resolutionDirty
	r.resolutionDirty = false
	cam := r.camera
	r.mu.Unlock()

	if !extent.IsZero() && extent != r.output {
		if err := r.resize(extent); err != nil {
			return err
		}
	} else if resolutionDirty {
		common.Logger().Debug("renderer: render resolution changed", "scale", settings.ResolutionScale)
		r.graph.OnResize(r.output)
		if err := r.createHistory(); err != nil {
			return err
		}
	}

	frame, err := r.timeline.StartFrame(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNeedsResize) {
			common.Logger().Debug("renderer: swapchain out of date, frame skipped", "error", err)
			return r.resize(r.surfaceExtent())
		}
		return err
	}

	if list == nil {
		list = &scene.DrawList{}
	}
	in := frameInputs{
		settings: settings,
		camera:   r.snapshotCamera(cam, settings),
		list:     list,
		overlay:  overlay,
		frame:    frame,
	}
	if err := r.record(in); err != nil {
		r.graph.Reset()
		return r.abort(frame, err)
	}
	if err := r.graph.Execute(ctx, frame.Commands); err != nil {
		return r.abort(frame, err)
	}
	r.stats = r.graph.Stats()
	for _, rg := range []*ring.Ring{r.uniforms, r.vertices, r.indices} {
		if err := rg.Flush(); err != nil {
			return r.abort(frame, errors.Wrapf(err, "flush %s", rg.Name()))
		}
	}

	needsResize, err := r.timeline.EndFrame(frame, true)
	if err != nil {
		return err
	}
	if settings.EnableTAA && !settings.EnablePathTracing {
		r.historyOK = true
	} else {
		r.historyOK = false
	}
	r.frame.previousViewProjection = in.camera.viewProjection
	if needsResize {
		common.Logger().Debug("renderer: swapchain suboptimal after present")
		return r.resize(r.surfaceExtent())
	}
	return nil
}

// abort submits the frame without presenting so the slot returns to the timeline, and returns
// cause.
func (r *renderer) abort(frame *timeline.Frame, cause error) error {
	if _, err := r.timeline.EndFrame(frame, false); err != nil {
		common.Logger().Warn("renderer: end of aborted frame failed", "frame", frame.Number, "error", err)
		return errors.CombineErrors(cause, err)
	}
	return cause
}

// surfaceExtent is the extent to recreate the swapchain at: the pending extent when one was
// requested, otherwise the current output.
func (r *renderer) surfaceExtent() common.Extent2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pendingExtent.IsZero() {
		extent := r.pendingExtent
		r.pendingExtent = common.Extent2D{}
		return extent
	}
	return r.output
}

// resize waits for the GPU, recreates the swapchain and every screen-relative resource.
func (r *renderer) resize(extent common.Extent2D) error {
	if extent.IsZero() {
		return nil
	}
	if err := r.timeline.WaitIdle(); err != nil {
		return err
	}
	if sc := r.device.Swapchain(); sc != nil {
		if err := sc.Resize(extent); err != nil {
			return errors.Wrapf(err, "resize swapchain to %s", extent)
		}
		extent = sc.Extent()
	}
	r.output = extent
	r.graph.OnResize(extent)
	if err := r.createHistory(); err != nil {
		return err
	}

	r.mu.Lock()
	cam := r.camera
	r.mu.Unlock()
	if cam != nil {
		cam.SetAspect(float32(extent.Width) / float32(extent.Height))
	}
	common.Logger().Info("renderer resized", "output", extent.String(), "render", r.RenderResolution().String())
	return nil
}

// cameraState is the camera data of one frame.
type cameraState struct {
	view, projection, viewProjection mgl32.Mat4
	jitter                           mgl32.Vec2
	frustum                          common.Frustum
	cull                             bool
}

// snapshotCamera updates the camera and derives this frame's matrices. The projection is
// jittered when TAA runs; the culling frustum is taken from the unjittered one and held while
// FreezeCameraCulling is set.
func (r *renderer) snapshotCamera(cam camera.Camera, settings Settings) cameraState {
	s := cameraState{view: mgl32.Ident4(), projection: mgl32.Ident4()}
	if cam != nil {
		cam.Update()
		s.view = cam.View()
		s.projection = cam.Projection()
		s.cull = true
	}
	s.viewProjection = s.projection.Mul4(s.view)
	s.frustum = common.ExtractFrustum(s.viewProjection)

	if settings.FreezeCameraCulling {
		if !r.frame.frozen {
			r.frame.frozenFrustum = s.frustum
			r.frame.frozen = true
		}
		s.frustum = r.frame.frozenFrustum
	} else {
		r.frame.frozen = false
	}

	if settings.EnableTAA && !settings.EnablePathTracing {
		s.jitter = Jitter(r.timeline.FrameCount())
		s.projection = jitterProjection(s.projection, s.jitter, settings.RenderResolution(r.output))
	}
	return s
}

// stage queues the pending uploads and the draw list buffers into the streamer.
func (r *renderer) stage(list *scene.DrawList) error {
	r.mu.Lock()
	uploads := r.uploads
	r.uploads = nil
	r.mu.Unlock()

	for _, u := range uploads {
		if err := r.streamer.Stage(u.name, u.data, u.caps); err != nil {
			return errors.Wrapf(err, "upload %q", u.name)
		}
	}
	if list.Empty() {
		return nil
	}
	for _, b := range []struct {
		name string
		data []byte
	}{
		{bufferInstances, list.InstanceBytes()},
		{bufferSubMeshInstances, list.SubMeshInstanceBytes()},
		{bufferDraws, list.DrawBytes()},
		{bufferMeshes, list.MeshBytes()},
	} {
		if err := r.streamer.Stage(b.name, b.data, gpu.BufferCapStorage); err != nil {
			return errors.Wrapf(err, "stage %s", b.name)
		}
	}
	return nil
}
