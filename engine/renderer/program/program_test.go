package program

import (
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
	"github.com/cockroachdb/errors"
)

const fillSource = `
//@oxy:include scan
@group(0) @binding(0) var<uniform> params: ScanParams;
@group(0) @binding(1) var<storage, read_write> out: array<u32>;
@compute @workgroup_size(64)
fn fill(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < params.count) { out[id.x] = 1u; }
}
`

const opaqueSource = `
@vertex fn vs(@builtin(vertex_index) v: u32) -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }
@fragment fn fs() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`

type releaser struct {
	released []gpu.Program
}

func (r *releaser) ReleaseProgram(p gpu.Program) { r.released = append(r.released, p) }

// fakeCompile returns a fixed SPIR-V header so tests do not depend on the compiler.
func fakeCompile(string) ([]byte, error) {
	return common.Uint32sToBytes([]uint32{0x07230203, 0x00010000}), nil
}

func newTestRegistry(files fstest.MapFS) (*gputest.Device, *releaser, Registry) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	rel := &releaser{}
	reg := NewRegistry(dev, FSSource(files, "shaders"), rel, WithCompiler(fakeCompile))
	return dev, rel, reg
}

func TestLoadReflectsProgram(t *testing.T) {
	dev, _, reg := newTestRegistry(fstest.MapFS{
		"shaders/fill.wgsl": {Data: []byte(fillSource)},
	})
	h, err := reg.Load("fill")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := reg.MustProgram(h)
	if p.Desc.Kind != gpu.ProgramCompute || p.Desc.ComputeEntry != "fill" {
		t.Fatalf("desc = %+v", p.Desc)
	}
	if p.Desc.WorkgroupSize != [3]uint32{64, 1, 1} {
		t.Errorf("workgroup size = %v", p.Desc.WorkgroupSize)
	}
	if len(p.Desc.Bindings) != 2 || p.Desc.Bindings[0].MinSize != 16 {
		t.Errorf("bindings = %+v", p.Desc.Bindings)
	}
	if len(p.Desc.SPIRV) != 2 || p.Desc.SPIRV[0] != 0x07230203 {
		t.Errorf("SPIRV = %v", p.Desc.SPIRV)
	}
	if len(dev.Programs) != 1 {
		t.Errorf("device has %d programs, want 1", len(dev.Programs))
	}
	again, err := reg.Load("fill")
	if err != nil || again != h {
		t.Errorf("second Load = %v, %v; want %v", again, err, h)
	}
}

func TestLoadGraphicsKeepsOptions(t *testing.T) {
	_, _, reg := newTestRegistry(fstest.MapFS{
		"shaders/opaque.wgsl": {Data: []byte(opaqueSource)},
	})
	h, err := reg.Load("opaque", WithColorFormats(gpu.FormatRGBA16Float), WithDepth(gpu.FormatDepth32Float, true, true))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := reg.Reload("opaque"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	d := reg.MustProgram(h).Desc
	if d.Kind != gpu.ProgramGraphics || len(d.ColorFormats) != 1 || d.DepthFormat != gpu.FormatDepth32Float || !d.DepthWrite {
		t.Errorf("desc after reload = %+v", d)
	}
}

func TestReloadKeepsHandle(t *testing.T) {
	files := fstest.MapFS{"shaders/fill.wgsl": {Data: []byte(fillSource)}}
	dev, rel, reg := newTestRegistry(files)
	h, _ := reg.Load("fill")
	old := reg.MustProgram(h).Object

	files["shaders/fill.wgsl"] = &fstest.MapFile{Data: []byte(fillSource + "\n// edited\n")}
	if err := reg.Reload("fill"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	p, err := reg.Program(h)
	if err != nil {
		t.Fatalf("handle invalid after reload: %v", err)
	}
	if p.Object == old || p.Version != 2 {
		t.Errorf("program not replaced: version %d", p.Version)
	}
	if len(rel.released) != 1 || rel.released[0] != old {
		t.Errorf("old program not released: %v", rel.released)
	}
	if old.(*gputest.Program).Destroyed {
		t.Error("old program destroyed immediately instead of deferred")
	}
	if len(dev.Programs) != 2 {
		t.Errorf("device has %d programs, want 2", len(dev.Programs))
	}
}

func TestReloadFailureKeepsPrevious(t *testing.T) {
	files := fstest.MapFS{"shaders/fill.wgsl": {Data: []byte(fillSource)}}
	_, rel, reg := newTestRegistry(files)
	h, _ := reg.Load("fill")
	old := reg.MustProgram(h).Object

	files["shaders/fill.wgsl"] = &fstest.MapFile{Data: []byte("//@oxy:include nope\n" + fillSource)}
	if err := reg.Reload("fill"); err == nil {
		t.Fatal("expected reload error")
	}
	if reg.MustProgram(h).Object != old || len(rel.released) != 0 {
		t.Error("failed reload replaced the program")
	}

	if err := reg.Reload("missing"); err == nil {
		t.Error("expected error reloading an unknown program")
	}
}

func TestCompileErrorIsReturned(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	boom := errors.New("boom")
	reg := NewRegistry(dev, SourceFunc(func(string) (string, error) { return fillSource, nil }), &releaser{},
		WithCompiler(func(string) ([]byte, error) { return nil, boom }))
	h, err := reg.Load("fill")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if h.IsValid() {
		t.Error("failed load returned a valid handle")
	}
}

func TestDestroy(t *testing.T) {
	dev, _, reg := newTestRegistry(fstest.MapFS{
		"shaders/fill.wgsl":   {Data: []byte(fillSource)},
		"shaders/opaque.wgsl": {Data: []byte(opaqueSource)},
	})
	_, _ = reg.Load("opaque")
	_, _ = reg.Load("fill")
	if names := reg.Names(); len(names) != 2 || names[0] != "fill" {
		t.Errorf("Names() = %v", names)
	}
	reg.Destroy()
	for _, p := range dev.Programs {
		if !p.Destroyed {
			t.Errorf("program %s not destroyed", p.Desc.Name)
		}
	}
	if _, ok := reg.Lookup("fill"); ok {
		t.Error("Lookup succeeded after Destroy")
	}
}
