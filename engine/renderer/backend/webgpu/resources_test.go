package webgpu

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestBufferUsage(t *testing.T) {
	u := bufferUsage(gpu.BufferCapStorage | gpu.BufferCapIndirect | gpu.BufferCapHostWrite)
	want := wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst
	if u != want {
		t.Errorf("bufferUsage = %v, want %v", u, want)
	}
}

func TestTextureUsage(t *testing.T) {
	u := textureUsage(gpu.ImageCapSampled | gpu.ImageCapDepthAttachment)
	want := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment
	if u != want {
		t.Errorf("textureUsage = %v, want %v", u, want)
	}
}

func TestEveryFormatMaps(t *testing.T) {
	formats := []gpu.Format{
		gpu.FormatR8Unorm, gpu.FormatRGBA8Unorm, gpu.FormatRGBA8UnormSrgb, gpu.FormatBGRA8Unorm,
		gpu.FormatBGRA8UnormSrgb, gpu.FormatRGBA16Float, gpu.FormatRGBA32Float, gpu.FormatR32Uint,
		gpu.FormatR32Float, gpu.FormatDepth32Float,
	}
	for _, f := range formats {
		if _, ok := textureFormat(f); !ok {
			t.Errorf("format %s has no wgpu equivalent", f)
		}
	}
	if _, ok := textureFormat(gpu.FormatUndefined); ok {
		t.Error("undefined format mapped")
	}
}

func TestLayoutEntry(t *testing.T) {
	tests := []struct {
		name   string
		layout gpu.BindingLayout
		check  func(wgpu.BindGroupLayoutEntry) bool
	}{
		{
			name:   "uniform",
			layout: gpu.BindingLayout{Binding: 0, Kind: gpu.BindingUniformBuffer, MinSize: 64},
			check: func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Buffer.Type == wgpu.BufferBindingTypeUniform && e.Buffer.MinBindingSize == 64
			},
		},
		{
			name:   "read only storage",
			layout: gpu.BindingLayout{Binding: 1, Kind: gpu.BindingReadOnlyStorageBuffer},
			check: func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Buffer.Type == wgpu.BufferBindingTypeReadOnlyStorage
			},
		},
		{
			name:   "sampled image",
			layout: gpu.BindingLayout{Binding: 2, Kind: gpu.BindingSampledImage},
			check: func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Texture.SampleType == wgpu.TextureSampleTypeFloat
			},
		},
		{
			name:   "storage image",
			layout: gpu.BindingLayout{Binding: 3, Kind: gpu.BindingStorageImage, StorageFormat: gpu.FormatRGBA16Float},
			check: func(e wgpu.BindGroupLayoutEntry) bool {
				return e.StorageTexture.Format == wgpu.TextureFormatRGBA16Float &&
					e.StorageTexture.Access == wgpu.StorageTextureAccessWriteOnly
			},
		},
		{
			name:   "sampler",
			layout: gpu.BindingLayout{Binding: 4, Kind: gpu.BindingSampler},
			check: func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Sampler.Type == wgpu.SamplerBindingTypeFiltering
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := layoutEntry(tt.layout, wgpu.ShaderStageCompute)
			if err != nil {
				t.Fatalf("layoutEntry failed: %v", err)
			}
			if e.Binding != tt.layout.Binding || e.Visibility != wgpu.ShaderStageCompute {
				t.Errorf("entry header = %d %v", e.Binding, e.Visibility)
			}
			if !tt.check(e) {
				t.Errorf("entry = %+v", e)
			}
		})
	}

	if _, err := layoutEntry(gpu.BindingLayout{Name: "bad", Kind: gpu.BindingStorageImage}, wgpu.ShaderStageCompute); err == nil {
		t.Error("storage image without a format accepted")
	}
}
