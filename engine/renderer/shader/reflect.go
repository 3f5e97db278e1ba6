// Package shader pre-processes WGSL sources and reflects what the program registry needs from
// them: entry points, compute workgroup size and the binding layout.
package shader

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
)

// Reflection is the pipeline-relevant information extracted from one WGSL source.
type Reflection struct {
	Kind          gpu.ProgramKind
	ComputeEntry  string
	VertexEntry   string
	FragmentEntry string
	WorkgroupSize [3]uint32
	Bindings      []gpu.BindingLayout
}

// Reflect extracts entry points, workgroup size and bindings from WGSL source. A source with a
// @compute entry point is a compute program; one with @vertex and @fragment entry points is a
// graphics program. Anything else is rejected.
//
// Parameters:
//   - name: program name used in errors
//   - source: pre-processed WGSL source
//
// Returns:
//   - Reflection: the reflected information
//   - error: the source declares no usable entry points
func Reflect(name, source string) (Reflection, error) {
	cleaned := stripComments(source)
	r := Reflection{
		ComputeEntry:  parseEntryPoint(cleaned, computeEntryRegex),
		VertexEntry:   parseEntryPoint(cleaned, vertexEntryRegex),
		FragmentEntry: parseEntryPoint(cleaned, fragmentEntryRegex),
		Bindings:      parseBindings(cleaned),
	}
	switch {
	case r.ComputeEntry != "":
		r.Kind = gpu.ProgramCompute
		r.WorkgroupSize = parseWorkgroupSize(cleaned)
	case r.VertexEntry != "" && r.FragmentEntry != "":
		r.Kind = gpu.ProgramGraphics
	default:
		return r, errors.Newf("shader %q: no @compute or @vertex/@fragment entry points", name)
	}
	return r, nil
}

// Binding returns the layout of the binding named varName, if declared.
func (r Reflection) Binding(varName string) (gpu.BindingLayout, bool) {
	for _, b := range r.Bindings {
		if b.Name == varName {
			return b, true
		}
	}
	return gpu.BindingLayout{}, false
}

// Groups returns the number of bind groups the bindings span.
func (r Reflection) Groups() uint32 {
	var n uint32
	for _, b := range r.Bindings {
		if b.Group+1 > n {
			n = b.Group + 1
		}
	}
	return n
}
