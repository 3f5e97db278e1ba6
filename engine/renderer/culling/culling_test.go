package culling

import (
	"context"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shaders"
	"github.com/cockroachdb/errors"
)

type fixture struct {
	dev      *gputest.Device
	g        graph.Graph
	uniforms *ring.Ring
	c        Culling
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.NewDevice(common.Extent2D{Width: 64, Height: 64})
	reg := registry.NewRegistry(dev)
	programs := program.NewRegistry(dev, program.FSSource(shaders.FS, "."), reg,
		program.WithCompiler(func(string) ([]byte, error) { return make([]byte, 8), nil }))
	uniforms, err := ring.New(dev, "uniforms", 64*1024, 2, gpu.BufferCapUniform)
	if err != nil {
		t.Fatalf("ring.New: %v", err)
	}
	c, err := NewCulling(programs, uniforms)
	if err != nil {
		t.Fatalf("NewCulling: %v", err)
	}
	return &fixture{dev: dev, g: graph.NewGraph(reg, common.Extent2D{Width: 64, Height: 64}), uniforms: uniforms, c: c}
}

func (f *fixture) inputs(n, d uint32) Inputs {
	in := Inputs{SubMeshInstanceCount: n, DrawCount: d, Enabled: true}
	in.Instances = f.g.OutputBuffer(graph.BufferDesc{Name: "instances", Size: 4096})
	in.SubMeshInstances = f.g.OutputBuffer(graph.BufferDesc{Name: "submesh_instances", Size: 4096})
	in.Meshes = f.g.OutputBuffer(graph.BufferDesc{Name: "meshes", Size: 4096})
	in.Draws = f.g.OutputBuffer(graph.BufferDesc{Name: "draws", Size: 4096})
	return in
}

func (f *fixture) execute(t *testing.T) *gputest.CommandList {
	t.Helper()
	cmd, err := f.dev.BeginCommands(0, "test")
	if err != nil {
		t.Fatalf("BeginCommands: %v", err)
	}
	if err := f.g.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return cmd.(*gputest.CommandList)
}

func TestZeroInstancesIssuesNoDispatch(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Record(f.g, f.inputs(0, 0))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.MaxDraws != 0 {
		t.Errorf("MaxDraws = %d, want 0", out.MaxDraws)
	}
	if names := f.g.PassNames(); !slices.Equal(names, []string{"clear_draw_count"}) {
		t.Fatalf("passes = %v, want [clear_draw_count]", names)
	}
	cl := f.execute(t)
	if n := len(cl.Filter(gputest.OpDispatch)); n != 0 {
		t.Errorf("%d dispatches recorded, want 0", n)
	}
	fills := cl.Filter(gputest.OpFillBuffer)
	if len(fills) != 1 || fills[0].Offsets[0] != 0 || fills[0].Size != DrawCountHeader || fills[0].Value != 0 {
		t.Fatalf("fills = %+v", fills)
	}
}

func TestRecordPassOrder(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Record(f.g, f.inputs(5, 2))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.MaxDraws != 2 {
		t.Errorf("MaxDraws = %d, want 2", out.MaxDraws)
	}
	want := []string{
		"init_draw_calls",
		"instances_culling",
		"instances_prefix_sum",
		"copy_culled_instances_index",
		"drawcalls_fill_predicate",
		"draws_prefix_sum",
		"copy_draw_calls",
	}
	cl := f.execute(t)
	if got := cl.Passes(); !slices.Equal(got, want) {
		t.Fatalf("passes = %v\nwant %v", got, want)
	}
	for _, c := range cl.Filter(gputest.OpDispatch) {
		if c.Counts != [4]uint32{1, 1, 1, 0} {
			t.Errorf("%s dispatched %v, want one group", c.Pass, c.Counts)
		}
	}
	for _, c := range cl.Filter(gputest.OpSetProgram) {
		if c.Program != c.Pass && c.Program != ProgramPrefixSum {
			t.Errorf("pass %s bound program %s", c.Pass, c.Program)
		}
	}
	if len(cl.Filter(gputest.OpBarriers)) == 0 {
		t.Error("no barriers recorded between dependent kernels")
	}
	fills := cl.Filter(gputest.OpFillBuffer)
	if len(fills) != 1 || fills[0].Size != fills[0].Dst.Size() {
		t.Errorf("culled draws not cleared in full, fills = %+v", fills)
	}
}

func TestLargeScanFolds(t *testing.T) {
	f := newFixture(t)
	if _, err := f.c.Record(f.g, f.inputs(3000, 10)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	cl := f.execute(t)
	groups := map[string]uint32{}
	for _, c := range cl.Filter(gputest.OpDispatch) {
		groups[c.Pass] = c.Counts[0]
	}
	want := map[string]uint32{
		"init_draw_calls":             1,
		"instances_culling":           12,
		"instances_prefix_sum":        3,
		"instances_prefix_sum_fold":   3,
		"copy_culled_instances_index": 12,
		"drawcalls_fill_predicate":    1,
		"draws_prefix_sum":            1,
		"copy_draw_calls":             1,
	}
	for name, n := range want {
		if groups[name] != n {
			t.Errorf("%s: %d groups, want %d", name, groups[name], n)
		}
	}
	if _, ok := groups["draws_prefix_sum_fold"]; ok {
		t.Error("fold recorded for a single-tile scan")
	}
}

func TestRecordRejectsOversizedScan(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Record(f.g, f.inputs(MaxScanElements+1, 1))
	if err == nil || !errors.HasAssertionFailure(err) {
		t.Fatalf("err = %v, want assertion failure", err)
	}
}

func TestParametersUseUniformRing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.c.Record(f.g, f.inputs(5, 2)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	cl := f.execute(t)
	for _, c := range cl.Filter(gputest.OpSetBindings) {
		u := c.Bindings[0]
		if u.Buffer != f.uniforms.Buffer() || u.Offset%UniformAlignment != 0 {
			t.Errorf("%s: parameters bound at %d of %v", c.Pass, u.Offset, u.Buffer)
		}
	}
}

func TestDispatchSize(t *testing.T) {
	x, y := DispatchSize(common.Extent2D{Width: 1920, Height: 1080}, TileSize2D)
	if x != 120 || y != 68 {
		t.Errorf("DispatchSize = %d, %d; want 120, 68", x, y)
	}
	x, y = DispatchSize(common.Extent2D{}, TileSize2D)
	if x != 0 || y != 0 {
		t.Errorf("zero extent dispatch = %d, %d", x, y)
	}
}
