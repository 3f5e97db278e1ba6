package gpu

import "testing"

func TestComputeImageBarrierReadAfterWrite(t *testing.T) {
	tr, ok := ComputeImageBarrier(ImageUsageColorAttachment, ImageUsageComputeShaderRead)
	if !ok {
		t.Fatal("expected a barrier from ColorAttachment to ComputeShaderRead")
	}
	if tr.Src.Stage != StageColorAttachmentOutput || tr.Dst.Stage != StageComputeShader {
		t.Errorf("unexpected stages %v -> %v", tr.Src.Stage, tr.Dst.Stage)
	}
	if tr.Src.Layout != LayoutColorAttachment || tr.Dst.Layout != LayoutShaderReadOnly {
		t.Errorf("unexpected layouts %v -> %v", tr.Src.Layout, tr.Dst.Layout)
	}
	if tr.MemoryOnly() {
		t.Error("layout change reported as memory-only")
	}
}

func TestComputeImageBarrierSameRead(t *testing.T) {
	reads := []ImageUsage{
		ImageUsageNone,
		ImageUsageGraphicsShaderRead,
		ImageUsageComputeShaderRead,
		ImageUsageTransferSrc,
		ImageUsagePresent,
	}
	for _, u := range reads {
		if _, ok := ComputeImageBarrier(u, u); ok {
			t.Errorf("%v -> %v: expected no barrier", u, u)
		}
	}
}

func TestComputeImageBarrierSameWrite(t *testing.T) {
	writes := []ImageUsage{
		ImageUsageGraphicsShaderReadWrite,
		ImageUsageComputeShaderReadWrite,
		ImageUsageTransferDst,
		ImageUsageColorAttachment,
		ImageUsageDepthAttachment,
	}
	for _, u := range writes {
		tr, ok := ComputeImageBarrier(u, u)
		if !ok {
			t.Errorf("%v -> %v: expected a memory barrier", u, u)
			continue
		}
		if !tr.MemoryOnly() {
			t.Errorf("%v -> %v: expected memory-only barrier", u, u)
		}
	}
}

func TestComputeImageBarrierFromNone(t *testing.T) {
	tr, ok := ComputeImageBarrier(ImageUsageNone, ImageUsageColorAttachment)
	if !ok {
		t.Fatal("expected a barrier out of None")
	}
	if tr.Src.Layout != LayoutUndefined || tr.Src.Access != AccessNone {
		t.Errorf("None should have undefined layout and no access, got %+v", tr.Src)
	}
}

func TestComputeBufferBarrier(t *testing.T) {
	cases := []struct {
		old, next BufferUsage
		want      bool
	}{
		{BufferUsageComputeShaderReadWrite, BufferUsageIndirectBuffer, true},
		{BufferUsageComputeShaderReadWrite, BufferUsageComputeShaderReadWrite, true},
		{BufferUsageComputeShaderRead, BufferUsageComputeShaderRead, false},
		{BufferUsageIndirectBuffer, BufferUsageIndirectBuffer, false},
		{BufferUsageTransferDst, BufferUsageComputeShaderRead, true},
		{BufferUsageNone, BufferUsageNone, false},
	}
	for _, c := range cases {
		if _, got := ComputeBufferBarrier(c.old, c.next); got != c.want {
			t.Errorf("%v -> %v: got %v, want %v", c.old, c.next, got, c.want)
		}
	}
}

func TestUsageIsWrite(t *testing.T) {
	if ImageUsageComputeShaderRead.IsWrite() {
		t.Error("ComputeShaderRead reported as write")
	}
	if !ImageUsageDepthAttachment.IsWrite() {
		t.Error("DepthAttachment not reported as write")
	}
	if BufferUsageIndirectBuffer.IsWrite() {
		t.Error("IndirectBuffer reported as write")
	}
	if !BufferUsageTransferDst.IsWrite() {
		t.Error("TransferDst not reported as write")
	}
}

func TestBarrierBatchStages(t *testing.T) {
	it, _ := ComputeImageBarrier(ImageUsageColorAttachment, ImageUsageComputeShaderRead)
	bt, _ := ComputeBufferBarrier(BufferUsageComputeShaderReadWrite, BufferUsageIndirectBuffer)
	batch := BarrierBatch{
		Images:  []ImageBarrier{{Transition: it}},
		Buffers: []BufferBarrier{{Transition: bt}},
	}
	if batch.Len() != 2 || batch.Empty() {
		t.Fatalf("unexpected batch size %d", batch.Len())
	}
	src, dst := batch.Stages()
	if src != StageColorAttachmentOutput|StageComputeShader {
		t.Errorf("unexpected src stages %b", src)
	}
	if dst != StageComputeShader|StageDrawIndirect {
		t.Errorf("unexpected dst stages %b", dst)
	}
}

func TestUsageCapability(t *testing.T) {
	if ImageUsageComputeShaderReadWrite.Capability() != ImageCapStorage {
		t.Error("storage usage should need storage capability")
	}
	if BufferUsageIndirectBuffer.Capability() != BufferCapIndirect {
		t.Error("indirect usage should need indirect capability")
	}
	caps := ImageCapSampled | ImageCapStorage
	if !caps.Has(ImageCapStorage) || caps.Has(ImageCapColorAttachment) {
		t.Error("capability Has is wrong")
	}
}

func TestFormat(t *testing.T) {
	if !FormatDepth32Float.IsDepth() || FormatRGBA16Float.IsDepth() {
		t.Error("IsDepth is wrong")
	}
	if FormatRGBA16Float.BytesPerPixel() != 8 || FormatBGRA8UnormSrgb.BytesPerPixel() != 4 {
		t.Error("BytesPerPixel is wrong")
	}
	if FormatRGBA8UnormSrgb.String() != "rgba8unorm-srgb" {
		t.Errorf("unexpected name %q", FormatRGBA8UnormSrgb.String())
	}
}
