// Package native implements gpu.Device on the gogpu hal layer. It drives any hal backend; the
// noop backend gives a headless device for offscreen rendering and CI.
//
// The device owns one hal fence used as the frame timeline. Binary semaphores are accepted and
// ignored since hal queues execute submissions in order. There is no swapchain.
package native

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

type semaphore struct {
	label string
}

func (s *semaphore) Label() string { return s.label }

// Device is a gpu.Device backed by a hal device and queue.
type Device struct {
	mu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance

	fence     hal.Fence
	timeline  *semaphore
	submitted uint64
	completed uint64

	sampler hal.Sampler
	slots   map[int]*commandList
	lost    bool
}

// DeviceBuilderOption configures a Device.
type DeviceBuilderOption func(*Device)

// WithInstance hands ownership of the instance the device was opened from to the Device, which
// destroys it on Destroy.
//
// Parameters:
//   - instance: the hal instance
//
// Returns:
//   - DeviceBuilderOption: a function that applies the instance to a Device
func WithInstance(instance hal.Instance) DeviceBuilderOption {
	return func(d *Device) {
		d.instance = instance
	}
}

// NewDevice wraps an opened hal device and its queue.
//
// Parameters:
//   - device: the hal device
//   - queue: the queue of the device
//   - options: optional builder options
//
// Returns:
//   - *Device: the device
//   - error: an error if the timeline fence or the default sampler could not be created
func NewDevice(device hal.Device, queue hal.Queue, options ...DeviceBuilderOption) (*Device, error) {
	d := &Device{
		device:   device,
		queue:    queue,
		timeline: &semaphore{label: "timeline"},
		slots:    make(map[int]*commandList),
	}
	for _, opt := range options {
		opt(d)
	}

	fence, err := device.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "native: create timeline fence")
	}
	d.fence = fence

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "linear_clamp",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		device.DestroyFence(fence)
		return nil, errors.Wrap(err, "native: create default sampler")
	}
	d.sampler = sampler
	return d, nil
}

// NewNoopDevice opens the first adapter of the noop hal backend. The device accepts every call
// and completes submissions immediately.
//
// Returns:
//   - *Device: the device
//   - error: an error if the instance or the adapter could not be opened
func NewNoopDevice() (*Device, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, errors.Wrap(err, "native: create noop instance")
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("native: noop instance has no adapter")
	}
	opened, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, errors.Wrap(err, "native: open noop adapter")
	}
	d, err := NewDevice(opened.Device, opened.Queue, WithInstance(instance))
	if err != nil {
		opened.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) Name() string { return "native" }

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.IsZero() {
		return nil, errors.AssertionFailedf("native: image %q has zero extent", desc.Name)
	}
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, errors.Newf("native: image %q has unsupported format %s", desc.Name, desc.Format)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Name,
		Size:          hal.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, DepthOrArrayLayers: 1},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Capabilities),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "native: create texture %q", desc.Name)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: desc.Name + "_view"})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, errors.Wrapf(err, "native: create texture view %q", desc.Name)
	}
	return &image{desc: desc, texture: tex, view: view}, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	i := img.(*image)
	d.device.DestroyTextureView(i.view)
	d.device.DestroyTexture(i.texture)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	// hal copies and writes move whole words.
	size := common.AlignUp(max(desc.Size, 4), 4)
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Name,
		Size:  size,
		Usage: bufferUsage(desc.Capabilities),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "native: create buffer %q", desc.Name)
	}
	return &buffer{desc: desc, buf: buf}, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	d.device.DestroyBuffer(buf.(*buffer).buf)
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b := buf.(*buffer)
	if offset+uint64(len(data)) > b.desc.Size {
		return errors.AssertionFailedf("native: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.desc.Name, b.desc.Size)
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
	if !i.desc.Capabilities.Has(gpu.ImageCapTransferDst) {
		return errors.AssertionFailedf("native: image %q is not a transfer destination", i.desc.Name)
	}
	bpp := i.desc.Format.BytesPerPixel()
	w, h := i.desc.Extent.Width, i.desc.Extent.Height
	if uint64(len(data)) != uint64(w)*uint64(h)*uint64(bpp) {
		return errors.AssertionFailedf("native: image %q expects %d bytes, got %d", i.desc.Name, w*h*bpp, len(data))
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: i.texture, MipLevel: 0},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * bpp, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

func (d *Device) Fence() gpu.Semaphore { return d.timeline }

// CompletedValue polls the timeline fence from the newest submitted value down to the last
// value known complete.
func (d *Device) CompletedValue() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, common.MarkDeviceLost(errors.New("native: device lost"))
	}
	for v := d.submitted; v > d.completed; v-- {
		ok, err := d.device.Wait(d.fence, v, 0)
		if err != nil {
			d.lost = true
			return 0, common.MarkDeviceLost(errors.Wrap(err, "native: poll timeline"))
		}
		if ok {
			d.completed = v
			break
		}
	}
	return d.completed, nil
}

func (d *Device) WaitFence(value uint64, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return false, common.MarkDeviceLost(errors.New("native: device lost"))
	}
	if value <= d.completed {
		return true, nil
	}
	ok, err := d.device.Wait(d.fence, value, timeout)
	if err != nil {
		d.lost = true
		return false, common.MarkDeviceLost(errors.Wrapf(err, "native: wait for timeline value %d", value))
	}
	if ok {
		d.completed = value
	}
	return ok, nil
}

func (d *Device) BeginCommands(slot int, label string) (gpu.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, common.MarkDeviceLost(errors.New("native: device lost"))
	}
	if prev := d.slots[slot]; prev != nil {
		prev.release()
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrapf(err, "native: create command encoder %q", label)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, errors.Wrapf(err, "native: begin encoding %q", label)
	}
	cl := &commandList{device: d, encoder: encoder, label: label}
	d.slots[slot] = cl
	return cl, nil
}

func (d *Device) Submit(cmd gpu.CommandList, info gpu.SubmitInfo) error {
	cl := cmd.(*commandList)
	if cl.err != nil {
		cl.encoder.DiscardEncoding()
		return errors.Wrapf(cl.err, "native: record %q", cl.label)
	}
	cb, err := cl.encoder.EndEncoding()
	if err != nil {
		return errors.Wrapf(err, "native: end encoding %q", cl.label)
	}
	cl.commands = cb

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return common.MarkDeviceLost(errors.New("native: device lost"))
	}
	value := d.submitted
	for _, s := range info.Signals {
		if s.Semaphore == gpu.Semaphore(d.timeline) && s.Value > value {
			value = s.Value
		}
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cb}, d.fence, value); err != nil {
		d.lost = true
		return common.MarkDeviceLost(errors.Wrapf(err, "native: submit %q", cl.label))
	}
	d.submitted = value
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return common.MarkDeviceLost(errors.New("native: device lost"))
	}
	if d.submitted == d.completed {
		return nil
	}
	ok, err := d.device.Wait(d.fence, d.submitted, time.Minute)
	if err == nil && !ok {
		err = errors.New("timed out")
	}
	if err != nil {
		d.lost = true
		return common.MarkDeviceLost(errors.Wrapf(err, "native: wait idle at value %d", d.submitted))
	}
	d.completed = d.submitted
	return nil
}

// Swapchain returns nil; hal devices render offscreen.
func (d *Device) Swapchain() gpu.Swapchain { return nil }

func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	for _, cl := range d.slots {
		cl.release()
	}
	d.slots = nil
	d.device.DestroySampler(d.sampler)
	d.device.DestroyFence(d.fence)
	d.device.Destroy()
	d.device = nil
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

var _ gpu.Device = (*Device)(nil)
