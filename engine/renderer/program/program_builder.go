package program

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

// ProgramBuilderOption configures the pipeline state of a program at load time. The state is
// kept and reapplied on every reload.
type ProgramBuilderOption func(*gpu.ProgramDesc)

// WithColorFormats sets the color attachment formats of a graphics program.
//
// Parameters:
//   - formats: one format per color attachment
//
// Returns:
//   - ProgramBuilderOption: a function that applies the color formats to a program
func WithColorFormats(formats ...gpu.Format) ProgramBuilderOption {
	return func(d *gpu.ProgramDesc) {
		d.ColorFormats = formats
	}
}

// WithDepth sets the depth attachment format and depth state of a graphics program.
//
// Parameters:
//   - format: the depth format
//   - test: whether depth testing is enabled
//   - write: whether depth writes are enabled
//
// Returns:
//   - ProgramBuilderOption: a function that applies the depth state to a program
func WithDepth(format gpu.Format, test, write bool) ProgramBuilderOption {
	return func(d *gpu.ProgramDesc) {
		d.DepthFormat = format
		d.DepthTest = test
		d.DepthWrite = write
	}
}

// WithBlend enables premultiplied alpha blending on the color attachments.
//
// Returns:
//   - ProgramBuilderOption: a function that enables blending on a program
func WithBlend() ProgramBuilderOption {
	return func(d *gpu.ProgramDesc) {
		d.Blend = true
	}
}

// RegistryBuilderOption configures a Registry.
type RegistryBuilderOption func(*registryImpl)

// WithCompiler replaces the WGSL compiler, naga by default.
//
// Parameters:
//   - c: the compiler
//
// Returns:
//   - RegistryBuilderOption: a function that sets the compiler on a registry
func WithCompiler(c Compiler) RegistryBuilderOption {
	return func(r *registryImpl) {
		r.compile = c
	}
}

// WithPreProcessor replaces the include pre-processor.
//
// Parameters:
//   - p: the pre-processor
//
// Returns:
//   - RegistryBuilderOption: a function that sets the pre-processor on a registry
func WithPreProcessor(p shader.PreProcessor) RegistryBuilderOption {
	return func(r *registryImpl) {
		r.pre = p
	}
}
