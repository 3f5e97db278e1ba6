// Package culling records the GPU culling and stream compaction pipeline. Submesh instances
// are frustum tested into a predicate buffer, compacted with a two-level exclusive scan, and
// counted per draw; draws that kept at least one instance are compacted into a count-prefixed
// indirect argument buffer consumed by DrawIndexedIndirectCount.
package culling

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/cockroachdb/errors"
)

const (
	// ScanGroupSize is the workgroup size of every culling kernel.
	ScanGroupSize = 256
	// ScanTileSize is the number of elements one prefix sum workgroup scans.
	ScanTileSize = 1024
	// MaxScanElements is the largest count the two-level scan supports.
	MaxScanElements = ScanTileSize * ScanTileSize
	// TileSize2D is the workgroup edge of screen-space compute passes.
	TileSize2D = 16

	// DrawArgsStride is the size of one indexed indirect draw.
	DrawArgsStride = 20
	// DrawCountHeader is the offset of the first draw after the leading draw count.
	DrawCountHeader = 16
	// UniformAlignment is the alignment of per-pass parameters in the uniform ring.
	UniformAlignment = 256

	minBufferSize = 256
)

// Program names.
const (
	ProgramInitDrawCalls          = "init_draw_calls"
	ProgramInstancesCulling       = "instances_culling"
	ProgramPrefixSum              = "parallel_prefix_sum"
	ProgramPrefixSumFold          = "parallel_prefix_sum_fold"
	ProgramCopyCulledInstances    = "copy_culled_instances_index"
	ProgramDrawCallsFillPredicate = "drawcalls_fill_predicate"
	ProgramCopyDrawCalls          = "copy_draw_calls"
)

// DispatchSize returns the workgroup counts covering extent with tile x tile groups.
func DispatchSize(extent common.Extent2D, tile uint32) (uint32, uint32) {
	return common.DivCeil(extent.Width, tile), common.DivCeil(extent.Height, tile)
}

// Inputs are the draw list buffers and counts of one frame.
type Inputs struct {
	Instances        graph.Buffer // array<RenderInstance>
	SubMeshInstances graph.Buffer // array<SubMeshInstance>, grouped by draw
	Meshes           graph.Buffer // array<RenderMesh>
	Draws            graph.Buffer // array<DrawCall>

	SubMeshInstanceCount uint32
	DrawCount            uint32

	Frustum common.Frustum
	// Enabled false marks every submesh instance visible.
	Enabled bool
}

// Outputs are the buffers the opaque pass draws from.
type Outputs struct {
	// CulledInstances holds the visible submesh instance indices, grouped by draw.
	CulledInstances graph.Buffer
	// DrawArguments holds one DrawIndexedArgs per draw before compaction.
	DrawArguments graph.Buffer
	// CulledDraws holds the draw count at offset 0 and the compacted arguments from
	// DrawCountHeader on.
	CulledDraws graph.Buffer
	// MaxDraws bounds the draw count; zero when there is nothing to draw.
	MaxDraws uint32
}

// Culling records the culling pipeline into a render graph.
type Culling interface {
	// Record registers the culling passes of one frame. With no submesh instances it registers
	// only a transfer pass clearing the draw count, so no compute dispatch is issued.
	//
	// Parameters:
	//   - g: the frame's render graph
	//   - in: the frame's draw list buffers
	//
	// Returns:
	//   - Outputs: buffers for the draw pass
	//   - error: the counts exceed MaxScanElements or the parameters do not fit the uniform ring
	Record(g graph.Graph, in Inputs) (Outputs, error)
}

type culling struct {
	programs program.Registry
	uniforms *ring.Ring

	initDrawCalls, instancesCulling, prefixSum, prefixSumFold program.Handle
	copyCulledInstances, drawCallsFillPredicate, copyDrawCalls program.Handle
}

var _ Culling = &culling{}

// NewCulling loads the culling programs.
//
// Parameters:
//   - programs: the program registry
//   - uniforms: the per-frame uniform ring for pass parameters
//
// Returns:
//   - Culling: the culling pipeline
//   - error: a program failed to load
func NewCulling(programs program.Registry, uniforms *ring.Ring) (Culling, error) {
	c := &culling{programs: programs, uniforms: uniforms}
	for _, p := range []struct {
		name string
		h    *program.Handle
	}{
		{ProgramInitDrawCalls, &c.initDrawCalls},
		{ProgramInstancesCulling, &c.instancesCulling},
		{ProgramPrefixSum, &c.prefixSum},
		{ProgramPrefixSumFold, &c.prefixSumFold},
		{ProgramCopyCulledInstances, &c.copyCulledInstances},
		{ProgramDrawCallsFillPredicate, &c.drawCallsFillPredicate},
		{ProgramCopyDrawCalls, &c.copyDrawCalls},
	} {
		h, err := programs.Load(p.name)
		if err != nil {
			return nil, errors.Wrap(err, "culling")
		}
		*p.h = h
	}
	return c, nil
}

// slot is one storage buffer binding of a kernel, bound from binding 1 on in order.
type slot struct {
	buffer graph.Buffer
	write  bool
}

func read(b graph.Buffer) slot  { return slot{buffer: b} }
func write(b graph.Buffer) slot { return slot{buffer: b, write: true} }

func bufferSize(n uint32, stride uint64) uint64 {
	return max(common.NextPowerOfTwo(uint64(n)*stride), minBufferSize)
}

func (c *culling) Record(g graph.Graph, in Inputs) (Outputs, error) {
	n, d := in.SubMeshInstanceCount, in.DrawCount
	if n > MaxScanElements || d > MaxScanElements {
		return Outputs{}, errors.AssertionFailedf("culling: %d submesh instances / %d draws exceed %d", n, d, MaxScanElements)
	}

	out := Outputs{
		CulledInstances: g.OutputBuffer(graph.BufferDesc{Name: "culled_instances", Size: bufferSize(n, 4)}),
		DrawArguments:   g.OutputBuffer(graph.BufferDesc{Name: "draw_arguments", Size: bufferSize(d, DrawArgsStride)}),
		CulledDraws: g.OutputBuffer(graph.BufferDesc{
			Name: "culled_draw_arguments",
			Size: max(common.NextPowerOfTwo(DrawCountHeader+uint64(d)*DrawArgsStride), minBufferSize),
		}),
	}
	if n == 0 || d == 0 {
		g.AddPass(graph.Pass{
			Name:           "clear_draw_count",
			Type:           graph.PassTransfer,
			CopyDstBuffers: []graph.Buffer{out.CulledDraws},
			Exec: graph.ExecFunc(func(ctx *graph.PassContext) error {
				ctx.Cmd.FillBuffer(ctx.Buffer(out.CulledDraws), 0, DrawCountHeader, 0)
				return nil
			}),
		})
		return out, nil
	}
	out.MaxDraws = d

	predicate := g.OutputBuffer(graph.BufferDesc{Name: "predicate", Size: bufferSize(n, 4)})
	scanned := g.OutputBuffer(graph.BufferDesc{Name: "scanned_indices", Size: bufferSize(n, 4)})

	if err := c.dispatch(g, ProgramInitDrawCalls, c.initDrawCalls, d, scanParams(d),
		read(in.Draws), write(out.DrawArguments)); err != nil {
		return out, err
	}
	if err := c.dispatch(g, ProgramInstancesCulling, c.instancesCulling, n, cullParams(in, n),
		read(in.Instances), read(in.SubMeshInstances), read(in.Meshes), write(predicate)); err != nil {
		return out, err
	}
	if err := c.compactBuffer(g, "instances", n, predicate, scanned, c.copyCulledInstances, ProgramCopyCulledInstances,
		read(in.SubMeshInstances), write(out.CulledInstances), write(out.DrawArguments)); err != nil {
		return out, err
	}
	if err := c.dispatch(g, ProgramDrawCallsFillPredicate, c.drawCallsFillPredicate, d, scanParams(d),
		read(in.Draws), read(scanned), write(out.DrawArguments), write(predicate)); err != nil {
		return out, err
	}
	// Backends without a count draw walk every slot up to MaxDraws, so the tail must read as
	// zero-index draws.
	g.AddPass(graph.Pass{
		Name:           "clear_culled_draws",
		Type:           graph.PassTransfer,
		CopyDstBuffers: []graph.Buffer{out.CulledDraws},
		Exec: graph.ExecFunc(func(ctx *graph.PassContext) error {
			buf := ctx.Buffer(out.CulledDraws)
			ctx.Cmd.FillBuffer(buf, 0, buf.Size(), 0)
			return nil
		}),
	})
	if err := c.compactBuffer(g, "draws", d, predicate, scanned, c.copyDrawCalls, ProgramCopyDrawCalls,
		read(out.DrawArguments), write(out.CulledDraws)); err != nil {
		return out, err
	}
	return out, nil
}

// compactBuffer scans predicate into scanned over count elements, then runs copyProgram with
// bindings (params, predicate, scanned, extra...) to move every selected element to its
// scanned position.
func (c *culling) compactBuffer(g graph.Graph, name string, count uint32, predicate, scanned graph.Buffer,
	copyProgram program.Handle, copyName string, extra ...slot) error {
	groups := common.DivCeil(count, ScanTileSize)
	groupSums := g.OutputBuffer(graph.BufferDesc{Name: name + "_group_sums", Size: bufferSize(groups, 4)})

	params := scanParams(count)
	common.PutUint32s(params[4:], groups)
	if err := c.dispatchGroups(g, name+"_prefix_sum", c.prefixSum, groups, params,
		read(predicate), write(scanned), write(groupSums)); err != nil {
		return err
	}
	if groups > 1 {
		if err := c.dispatchGroups(g, name+"_prefix_sum_fold", c.prefixSumFold, groups, params,
			read(groupSums), write(scanned)); err != nil {
			return err
		}
	}
	slots := append([]slot{read(predicate), read(scanned)}, extra...)
	return c.dispatch(g, copyName, copyProgram, count, scanParams(count), slots...)
}

// dispatch records a one-dimensional kernel over count elements.
func (c *culling) dispatch(g graph.Graph, name string, prog program.Handle, count uint32, params []byte, slots ...slot) error {
	return c.dispatchGroups(g, name, prog, common.DivCeil(count, ScanGroupSize), params, slots...)
}

// dispatchGroups adds a compute pass dispatching groups workgroups. Nothing is recorded for
// zero groups.
func (c *culling) dispatchGroups(g graph.Graph, name string, prog program.Handle, groups uint32, params []byte, slots ...slot) error {
	if groups == 0 {
		common.Logger().Debug("culling: empty dispatch skipped", "pass", name)
		return nil
	}
	alloc, err := c.uniforms.Upload(params, UniformAlignment)
	if err != nil {
		return errors.Wrapf(err, "culling: parameters of %s", name)
	}

	pass := graph.Pass{Name: name, Type: graph.PassCompute}
	for _, s := range slots {
		if s.write {
			pass.StorageBuffers = append(pass.StorageBuffers, s.buffer)
		} else {
			pass.ReadBuffers = append(pass.ReadBuffers, s.buffer)
		}
	}
	pass.Exec = graph.ExecFunc(func(ctx *graph.PassContext) error {
		bindings := make([]gpu.Binding, 0, len(slots)+1)
		bindings = append(bindings, gpu.BufferBinding(0, 0, c.uniforms.Buffer(), alloc.Offset, alloc.Size))
		for i, s := range slots {
			bindings = append(bindings, gpu.BufferBinding(0, uint32(i+1), ctx.Buffer(s.buffer), 0, 0))
		}
		ctx.Compute.SetProgram(c.programs.MustProgram(prog).Object)
		ctx.Compute.SetBindings(bindings...)
		ctx.Compute.Dispatch(groups, 1, 1)
		return nil
	})
	g.AddPass(pass)
	return nil
}

// scanParams packs ScanParams{count, groups, 0, 0}.
func scanParams(count uint32) []byte {
	buf := make([]byte, 16)
	common.PutUint32s(buf, count, common.DivCeil(count, ScanGroupSize))
	return buf
}

// cullParams packs CullParams{planes, count, enabled}.
func cullParams(in Inputs, count uint32) []byte {
	buf := make([]byte, 112)
	for i, p := range in.Frustum.Planes {
		common.PutVec4(buf[i*16:], p.Normal.Vec4(p.Distance))
	}
	var enabled uint32
	if in.Enabled {
		enabled = 1
	}
	common.PutUint32s(buf[96:], count, enabled)
	return buf
}
