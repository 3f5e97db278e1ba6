package native

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
)

func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	d, err := NewNoopDevice()
	if err != nil {
		t.Fatalf("NewNoopDevice failed: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func submit(t *testing.T, d *Device, cmd gpu.CommandList, value uint64) {
	t.Helper()
	info := gpu.SubmitInfo{Signals: []gpu.SemaphoreSignal{{Semaphore: d.Fence(), Value: value}}}
	if err := d.Submit(cmd, info); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestNoopDeviceIsHeadless(t *testing.T) {
	d := newNoopDevice(t)
	if d.Swapchain() != nil {
		t.Error("hal device reported a swapchain")
	}
	if d.Name() != "native" {
		t.Errorf("Name() = %q", d.Name())
	}
}

func TestCreateResources(t *testing.T) {
	d := newNoopDevice(t)

	buf, err := d.CreateBuffer(gpu.BufferDesc{Name: "params", Size: 6, Capabilities: gpu.BufferCapUniform | gpu.BufferCapHostWrite})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	if buf.Size() != 6 {
		t.Errorf("Size() = %d, want the requested 6", buf.Size())
	}
	if err := d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Errorf("WriteBuffer failed: %v", err)
	}
	if err := d.WriteBuffer(buf, 4, []byte{1, 2, 3}); err == nil {
		t.Error("overflowing write succeeded")
	}

	img, err := d.CreateImage(gpu.ImageDesc{
		Name:         "atlas",
		Extent:       common.Extent2D{Width: 2, Height: 2},
		Format:       gpu.FormatRGBA8Unorm,
		Capabilities: gpu.ImageCapSampled | gpu.ImageCapTransferDst,
	})
	if err != nil {
		t.Fatalf("CreateImage failed: %v", err)
	}
	if img.Extent() != (common.Extent2D{Width: 2, Height: 2}) || img.Format() != gpu.FormatRGBA8Unorm {
		t.Errorf("image reports %s %s", img.Extent(), img.Format())
	}
	if err := d.WriteImage(img, make([]byte, 16)); err != nil {
		t.Errorf("WriteImage failed: %v", err)
	}
	if err := d.WriteImage(img, make([]byte, 15)); err == nil {
		t.Error("short image write succeeded")
	}
	d.DestroyImage(img)
	d.DestroyBuffer(buf)

	if _, err := d.CreateImage(gpu.ImageDesc{Name: "empty", Format: gpu.FormatRGBA8Unorm}); err == nil {
		t.Error("zero extent image created")
	}
}

func TestSubmitAdvancesTimeline(t *testing.T) {
	d := newNoopDevice(t)
	src, _ := d.CreateBuffer(gpu.BufferDesc{Name: "src", Size: 64, Capabilities: gpu.BufferCapTransferSrc | gpu.BufferCapHostWrite})
	dst, _ := d.CreateBuffer(gpu.BufferDesc{Name: "dst", Size: 64, Capabilities: gpu.BufferCapTransferDst | gpu.BufferCapStorage})

	for frame := uint64(1); frame <= 3; frame++ {
		cmd, err := d.BeginCommands(int(frame%2), "frame")
		if err != nil {
			t.Fatalf("BeginCommands failed: %v", err)
		}
		cmd.CopyBuffer(src, dst, 0, 0, 64)
		cmd.FillBuffer(dst, 0, 16, 0)
		submit(t, d, cmd, frame)

		ok, err := d.WaitFence(frame, time.Second)
		if err != nil || !ok {
			t.Fatalf("WaitFence(%d) = %v, %v", frame, ok, err)
		}
	}
	completed, err := d.CompletedValue()
	if err != nil {
		t.Fatalf("CompletedValue failed: %v", err)
	}
	if completed != 3 {
		t.Errorf("CompletedValue() = %d, want 3", completed)
	}
	if err := d.WaitIdle(); err != nil {
		t.Errorf("WaitIdle failed: %v", err)
	}
}

func TestNonZeroFillFailsSubmit(t *testing.T) {
	d := newNoopDevice(t)
	buf, _ := d.CreateBuffer(gpu.BufferDesc{Name: "count", Size: 16, Capabilities: gpu.BufferCapTransferDst})
	cmd, _ := d.BeginCommands(0, "fill")
	cmd.FillBuffer(buf, 0, 16, 7)
	err := d.Submit(cmd, gpu.SubmitInfo{})
	if err == nil {
		t.Fatal("non-zero fill submitted")
	}
	if common.IsFatal(err) {
		t.Errorf("recording error should not be fatal: %v", err)
	}
}

func TestComputeProgram(t *testing.T) {
	d := newNoopDevice(t)
	prog, err := d.CreateProgram(gpu.ProgramDesc{
		Name:          "clear",
		Kind:          gpu.ProgramCompute,
		ComputeEntry:  "main",
		WorkgroupSize: [3]uint32{64, 1, 1},
		WGSL: `@group(0) @binding(0) var<uniform> count: u32;
@group(0) @binding(1) var<storage, read_write> data: array<u32>;
@compute @workgroup_size(64) fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < count) { data[id.x] = 0u; }
}`,
		Bindings: []gpu.BindingLayout{
			{Group: 0, Binding: 0, Kind: gpu.BindingUniformBuffer, Name: "count", MinSize: 4},
			{Group: 0, Binding: 1, Kind: gpu.BindingStorageBuffer, Name: "data"},
		},
	})
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	defer d.DestroyProgram(prog)

	params, _ := d.CreateBuffer(gpu.BufferDesc{Name: "params", Size: 256, Capabilities: gpu.BufferCapUniform | gpu.BufferCapHostWrite})
	data, _ := d.CreateBuffer(gpu.BufferDesc{Name: "data", Size: 256, Capabilities: gpu.BufferCapStorage})
	_ = d.WriteBuffer(params, 0, common.Uint32sToBytes([]uint32{64}))

	cmd, _ := d.BeginCommands(0, "compute")
	pass := cmd.BeginComputePass("clear")
	pass.SetProgram(prog)
	pass.SetBindings(gpu.BufferBinding(0, 0, params, 0, 4), gpu.BufferBinding(0, 1, data, 0, 0))
	pass.Dispatch(1, 1, 1)
	pass.End()
	submit(t, d, cmd, 1)

	cl := cmd.(*commandList)
	if len(cl.bindGroups) != 1 {
		t.Errorf("expected one bind group, got %d", len(cl.bindGroups))
	}

	// Reusing the slot releases the bind groups of its previous recording.
	if _, err := d.BeginCommands(0, "next"); err != nil {
		t.Fatalf("BeginCommands failed: %v", err)
	}
	if cl.bindGroups != nil {
		t.Error("bind groups of the previous recording were not released")
	}
}

func TestBindingsWithoutProgramFail(t *testing.T) {
	d := newNoopDevice(t)
	buf, _ := d.CreateBuffer(gpu.BufferDesc{Name: "b", Size: 16, Capabilities: gpu.BufferCapStorage})
	cmd, _ := d.BeginCommands(0, "broken")
	pass := cmd.BeginComputePass("broken")
	pass.SetBindings(gpu.BufferBinding(0, 0, buf, 0, 0))
	pass.End()
	err := d.Submit(cmd, gpu.SubmitInfo{})
	if err == nil {
		t.Fatal("recording error was not reported by Submit")
	}
	if !errors.HasAssertionFailure(err) {
		t.Errorf("expected an assertion failure, got %v", err)
	}
}

func TestBarriersSkipPresent(t *testing.T) {
	d := newNoopDevice(t)
	img, _ := d.CreateImage(gpu.ImageDesc{
		Name:         "color",
		Extent:       common.Extent2D{Width: 4, Height: 4},
		Format:       gpu.FormatRGBA8Unorm,
		Capabilities: gpu.ImageCapColorAttachment | gpu.ImageCapSampled,
	})
	cmd, _ := d.BeginCommands(0, "barriers")
	toColor, _ := gpu.ComputeImageBarrier(gpu.ImageUsageNone, gpu.ImageUsageColorAttachment)
	toPresent, _ := gpu.ComputeImageBarrier(gpu.ImageUsageColorAttachment, gpu.ImageUsagePresent)
	cmd.Barriers(gpu.BarrierBatch{Images: []gpu.ImageBarrier{{Image: img, Transition: toColor}}})
	rp := cmd.BeginRenderPass(gpu.RenderPassDesc{
		Label: "clear",
		Color: []gpu.ColorAttachment{{Image: img, Load: gpu.LoadOpClear, ClearColor: [4]float64{0, 0, 0, 1}}},
	})
	rp.End()
	cmd.Barriers(gpu.BarrierBatch{Images: []gpu.ImageBarrier{{Image: img, Transition: toPresent}}})
	submit(t, d, cmd, 1)
	if textureUsageOf(gpu.ImageUsagePresent) != 0 {
		t.Error("present should map to no hal usage")
	}
}
