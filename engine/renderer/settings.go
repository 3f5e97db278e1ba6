package renderer

import "github.com/Carmen-Shannon/oxy-graph/common"

// Settings are the runtime render settings. They may change between frames.
type Settings struct {
	// ResolutionScale scales the output extent into the render resolution. Changing it drops
	// every screen-relative resource at the start of the next frame.
	ResolutionScale float32
	EnableTAA       bool
	// EnablePathTracing replaces the culling and raster passes with the path tracing pass.
	EnablePathTracing bool
	// FreezeCameraCulling keeps culling against the frustum of the frame it was enabled on.
	FreezeCameraCulling bool
	Exposure            float32
	// TAABlend is the weight of the current frame in the temporal resolve.
	TAABlend float32
}

// DefaultSettings returns native resolution with TAA on.
//
// Returns:
//   - Settings: the defaults
func DefaultSettings() Settings {
	return Settings{
		ResolutionScale: 1,
		EnableTAA:       true,
		Exposure:        1,
		TAABlend:        0.1,
	}
}

// normalize replaces out of range values with their defaults.
func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.ResolutionScale <= 0 || s.ResolutionScale > 4 {
		s.ResolutionScale = d.ResolutionScale
	}
	if s.Exposure <= 0 {
		s.Exposure = d.Exposure
	}
	if s.TAABlend <= 0 || s.TAABlend > 1 {
		s.TAABlend = d.TAABlend
	}
	return s
}

// RenderResolution returns the extent the scene is rendered at for an output extent.
//
// Parameters:
//   - output: the swapchain or offscreen output extent
//
// Returns:
//   - common.Extent2D: output scaled by ResolutionScale, at least 1x1
func (s Settings) RenderResolution(output common.Extent2D) common.Extent2D {
	return output.Scale(s.ResolutionScale, s.ResolutionScale)
}
