package webgpu

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// Swapchain presents to a wgpu surface. WebGPU exposes one acquired texture at a time, so the
// per-slot semaphores are placeholders and the acquired image is tracked by slot.
type Swapchain struct {
	device  *Device
	surface *wgpu.Surface

	extent common.Extent2D
	format wgpu.TextureFormat

	acquired       map[int]*image
	imageAcquired  []*semaphore
	renderFinished []*semaphore
}

func newSwapchain(d *Device, surface *wgpu.Surface) *Swapchain {
	return &Swapchain{device: d, surface: surface, acquired: make(map[int]*image)}
}

func (s *Swapchain) semaphores(slot int) {
	for len(s.imageAcquired) <= slot {
		s.imageAcquired = append(s.imageAcquired, &semaphore{label: "image_acquired"})
		s.renderFinished = append(s.renderFinished, &semaphore{label: "render_finished"})
	}
}

// Acquire returns the current surface texture. Any acquisition failure is reported as needing a
// resize, since wgpu-native reports outdated and lost surfaces the same way.
func (s *Swapchain) Acquire(slot int) (gpu.Image, error) {
	if prev := s.acquired[slot]; prev != nil {
		prev.release()
		delete(s.acquired, slot)
	}
	tex, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, common.MarkNeedsResize(errors.Wrap(err, "webgpu: acquire surface texture"))
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, errors.Wrap(err, "webgpu: create surface view")
	}
	img := &image{
		desc: gpu.ImageDesc{
			Name:         "swapchain",
			Extent:       s.extent,
			MipLevels:    1,
			Format:       s.Format(),
			Capabilities: gpu.ImageCapColorAttachment | gpu.ImageCapPresent,
		},
		texture: tex,
		view:    view,
	}
	s.acquired[slot] = img
	return img, nil
}

func (s *Swapchain) ImageAcquired(slot int) gpu.Semaphore {
	s.semaphores(slot)
	return s.imageAcquired[slot]
}

func (s *Swapchain) RenderFinished(slot int) gpu.Semaphore {
	s.semaphores(slot)
	return s.renderFinished[slot]
}

func (s *Swapchain) Present(slot int) error {
	img := s.acquired[slot]
	if img == nil {
		return errors.AssertionFailedf("webgpu: present of slot %d without an acquired image", slot)
	}
	s.surface.Present()
	img.release()
	delete(s.acquired, slot)
	return nil
}

// Resize reconfigures the surface. The format is the first one the surface reports.
func (s *Swapchain) Resize(extent common.Extent2D) error {
	if extent.IsZero() {
		return errors.AssertionFailedf("webgpu: resize to zero extent")
	}
	for slot, img := range s.acquired {
		img.release()
		delete(s.acquired, slot)
	}
	capabilities := s.surface.GetCapabilities(s.device.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("webgpu: surface reports no formats")
	}
	s.format = capabilities.Formats[0]
	s.surface.Configure(s.device.adapter, s.device.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      s.format,
		Width:       extent.Width,
		Height:      extent.Height,
		PresentMode: s.device.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	s.extent = extent
	common.Logger().Debug("surface configured", "extent", extent, "format", s.Format())
	return nil
}

func (s *Swapchain) Extent() common.Extent2D { return s.extent }

func (s *Swapchain) Format() gpu.Format {
	for f, tf := range formatMap {
		if tf == s.format {
			return f
		}
	}
	return gpu.FormatUndefined
}

func (s *Swapchain) release() {
	for slot, img := range s.acquired {
		img.release()
		delete(s.acquired, slot)
	}
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
}

var _ gpu.Swapchain = (*Swapchain)(nil)
