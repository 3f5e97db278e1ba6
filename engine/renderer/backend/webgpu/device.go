// Package webgpu implements gpu.Device and gpu.Swapchain on wgpu-native through the
// cogentcore/webgpu bindings. It is the windowed backend: the surface comes from the GLFW window
// through wgpuglfw.
//
// WebGPU tracks resource hazards itself, so recorded barriers only update bookkeeping. The
// frame timeline is emulated with queue work-done callbacks.
package webgpu

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type semaphore struct {
	label string
}

func (s *semaphore) Label() string { return s.label }

// Device is a gpu.Device on a wgpu device and its queue.
type Device struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	timeline  *semaphore
	submitted uint64
	completed atomic.Uint64
	lost      atomic.Bool

	sampler   *wgpu.Sampler
	slots     map[int]*commandList
	swapchain *Swapchain

	forceFallbackAdapter bool
	presentMode          wgpu.PresentMode
}

// DeviceBuilderOption configures a Device.
type DeviceBuilderOption func(*Device)

// WithForceFallbackAdapter requests the software fallback adapter.
//
// Returns:
//   - DeviceBuilderOption: a function that forces the fallback adapter
func WithForceFallbackAdapter() DeviceBuilderOption {
	return func(d *Device) {
		d.forceFallbackAdapter = true
	}
}

// WithVSync presents in FIFO mode instead of immediate mode.
//
// Parameters:
//   - enabled: whether presentation waits for vertical blank
//
// Returns:
//   - DeviceBuilderOption: a function that applies the present mode to a Device
func WithVSync(enabled bool) DeviceBuilderOption {
	return func(d *Device) {
		if enabled {
			d.presentMode = wgpu.PresentModeFifo
		} else {
			d.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// NewDevice opens an adapter compatible with the surface, creates the device and configures the
// surface at the given extent.
//
// The calling goroutine is locked to its OS thread, as wgpu-native and GLFW require.
//
// Parameters:
//   - surfaceDescriptor: the platform surface, typically from the window
//   - extent: the initial surface extent
//   - options: optional builder options
//
// Returns:
//   - *Device: the device
//   - error: an error if no adapter or device could be obtained
func NewDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, extent common.Extent2D, options ...DeviceBuilderOption) (*Device, error) {
	runtime.LockOSThread()
	d := &Device{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		timeline:    &semaphore{label: "timeline"},
		slots:       make(map[int]*commandList),
		presentMode: wgpu.PresentModeImmediate,
	}
	for _, opt := range options {
		opt(d)
	}

	surface := d.instance.CreateSurface(surfaceDescriptor)
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    surface,
	})
	if err != nil {
		surface.Release()
		d.instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy-graph",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		d.Destroy()
		return nil, errors.Wrap(err, "webgpu: request device")
	}
	d.device = device
	d.queue = device.GetQueue()

	d.sampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "linear_clamp",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		d.Destroy()
		return nil, errors.Wrap(err, "webgpu: create default sampler")
	}

	d.swapchain = newSwapchain(d, surface)
	if err := d.swapchain.Resize(extent); err != nil {
		d.Destroy()
		return nil, err
	}
	common.Logger().Info("webgpu device ready", "extent", extent, "format", d.swapchain.Format())
	return d, nil
}

func (d *Device) Name() string { return "webgpu" }

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.IsZero() {
		return nil, errors.AssertionFailedf("webgpu: image %q has zero extent", desc.Name)
	}
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, errors.Newf("webgpu: image %q has unsupported format %s", desc.Name, desc.Format)
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Name,
		Usage:         textureUsage(desc.Capabilities),
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, DepthOrArrayLayers: 1},
		Format:        format,
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
	})
	if err != nil {
		return nil, common.MarkOutOfMemory(errors.Wrapf(err, "webgpu: create texture %q", desc.Name))
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, errors.Wrapf(err, "webgpu: create view of %q", desc.Name)
	}
	return &image{desc: desc, texture: tex, view: view}, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	img.(*image).release()
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Name,
		Size:  common.AlignUp(max(desc.Size, 4), 4),
		Usage: bufferUsage(desc.Capabilities),
	})
	if err != nil {
		return nil, common.MarkOutOfMemory(errors.Wrapf(err, "webgpu: create buffer %q", desc.Name))
	}
	return &buffer{desc: desc, buf: buf}, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	buf.(*buffer).buf.Release()
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b := buf.(*buffer)
	if offset+uint64(len(data)) > b.desc.Size {
		return errors.AssertionFailedf("webgpu: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.desc.Name, b.desc.Size)
	}
	if len(data) == 0 {
		return nil
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(append([]byte(nil), data...), make([]byte, 4-pad)...)
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

func (d *Device) WriteImage(img gpu.Image, data []byte) error {
	i := img.(*image)
	bpp := i.desc.Format.BytesPerPixel()
	w, h := i.desc.Extent.Width, i.desc.Extent.Height
	if uint64(len(data)) != uint64(w)*uint64(h)*uint64(bpp) {
		return errors.AssertionFailedf("webgpu: image %q expects %d bytes, got %d", i.desc.Name, w*h*bpp, len(data))
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  i.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  w * bpp,
			RowsPerImage: h,
		},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

func (d *Device) Fence() gpu.Semaphore { return d.timeline }

func (d *Device) CompletedValue() (uint64, error) {
	if d.lost.Load() {
		return 0, common.MarkDeviceLost(errors.New("webgpu: device lost"))
	}
	d.device.Poll(false, nil)
	return d.completed.Load(), nil
}

// WaitFence polls the device until the work-done callback of the submission that signals value
// has fired.
func (d *Device) WaitFence(value uint64, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if d.lost.Load() {
			return false, common.MarkDeviceLost(errors.New("webgpu: device lost"))
		}
		if d.completed.Load() >= value {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		d.device.Poll(false, nil)
		time.Sleep(50 * time.Microsecond)
	}
}

func (d *Device) BeginCommands(slot int, label string) (gpu.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost.Load() {
		return nil, common.MarkDeviceLost(errors.New("webgpu: device lost"))
	}
	if prev := d.slots[slot]; prev != nil {
		prev.release()
	}
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: create command encoder %q", label)
	}
	cl := &commandList{device: d, encoder: encoder, label: label}
	d.slots[slot] = cl
	return cl, nil
}

func (d *Device) Submit(cmd gpu.CommandList, info gpu.SubmitInfo) error {
	cl := cmd.(*commandList)
	if cl.err != nil {
		return errors.Wrapf(cl.err, "webgpu: record %q", cl.label)
	}
	cb, err := cl.encoder.Finish(nil)
	if err != nil {
		return errors.Wrapf(err, "webgpu: finish %q", cl.label)
	}
	defer cb.Release()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost.Load() {
		return common.MarkDeviceLost(errors.New("webgpu: device lost"))
	}
	value := d.submitted
	for _, s := range info.Signals {
		if s.Semaphore == gpu.Semaphore(d.timeline) && s.Value > value {
			value = s.Value
		}
	}
	d.queue.Submit(cb)
	d.submitted = value
	d.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		if status != wgpu.QueueWorkDoneStatusSuccess {
			d.lost.Store(true)
			return
		}
		for {
			cur := d.completed.Load()
			if cur >= value || d.completed.CompareAndSwap(cur, value) {
				return
			}
		}
	})
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	target := d.submitted
	d.mu.Unlock()
	ok, err := d.WaitFence(target, time.Minute)
	if err != nil {
		return err
	}
	if !ok {
		d.lost.Store(true)
		return common.MarkDeviceLost(errors.Newf("webgpu: idle wait for value %d timed out", target))
	}
	return nil
}

func (d *Device) Swapchain() gpu.Swapchain {
	if d.swapchain == nil {
		return nil
	}
	return d.swapchain
}

func (d *Device) Destroy() {
	for _, cl := range d.slots {
		cl.release()
	}
	d.slots = nil
	if d.swapchain != nil {
		d.swapchain.release()
		d.swapchain = nil
	}
	if d.sampler != nil {
		d.sampler.Release()
		d.sampler = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

var _ gpu.Device = (*Device)(nil)
