package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timings"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSettings sets the initial render settings. Out of range values fall back to the defaults.
//
// Parameters:
//   - s: the settings
//
// Returns:
//   - RendererBuilderOption: a function that applies the settings option to a renderer
func WithSettings(s Settings) RendererBuilderOption {
	return func(r *renderer) {
		r.settings = s
	}
}

// WithQueueLength sets the number of frames in flight.
//
// Parameters:
//   - n: frames in flight, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the queue length option to a renderer
func WithQueueLength(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.queueLength = n
		}
	}
}

// WithFenceTimeout bounds the wait on a frame slot's fence before the device is considered lost.
//
// Parameters:
//   - d: the timeout
//
// Returns:
//   - RendererBuilderOption: a function that applies the timeout option to a renderer
func WithFenceTimeout(d time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		if d > 0 {
			r.fenceTimeout = d
		}
	}
}

// WithRingSizes sets the per-slot region sizes of the uniform, vertex and index rings. Zero keeps
// the default for that ring.
//
// Parameters:
//   - uniforms: uniform ring region size in bytes
//   - vertices: vertex and staging ring region size in bytes
//   - indices: index ring region size in bytes
//
// Returns:
//   - RendererBuilderOption: a function that applies the ring size option to a renderer
func WithRingSizes(uniforms, vertices, indices uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.uniformRingSize = common.Coalesce(uniforms, r.uniformRingSize)
		r.vertexRingSize = common.Coalesce(vertices, r.vertexRingSize)
		r.indexRingSize = common.Coalesce(indices, r.indexRingSize)
	}
}

// WithProgramSource replaces the embedded shader sources, for development reloads from disk.
func WithProgramSource(source program.Source) RendererBuilderOption {
	return func(r *renderer) {
		r.source = source
	}
}

// WithProgramOptions passes options to the program registry.
func WithProgramOptions(options ...program.RegistryBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.programOptions = append(r.programOptions, options...)
	}
}

// WithTimingOptions passes options to the pass timings.
func WithTimingOptions(options ...timings.TimingsBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.timingOptions = append(r.timingOptions, options...)
	}
}

// WithOutputExtent sets the output extent of a device without a swapchain. A swapchain's extent
// takes precedence.
//
// Parameters:
//   - extent: the output extent
//
// Returns:
//   - RendererBuilderOption: a function that applies the extent option to a renderer
func WithOutputExtent(extent common.Extent2D) RendererBuilderOption {
	return func(r *renderer) {
		if !extent.IsZero() {
			r.output = extent
		}
	}
}

// WithCamera sets the camera the scene is rendered from.
func WithCamera(c camera.Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.camera = c
	}
}
