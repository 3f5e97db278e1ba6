// Package registry owns every GPU image and buffer the renderer creates. Resources are named
// by generation-checked handles, carry their current usage for barrier computation, and are
// destroyed only once the frame that last referenced them has completed on the GPU.
package registry

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/cockroachdb/errors"
)

// Image is a registered image and the usage last recorded against it.
type Image struct {
	Desc     gpu.ImageDesc
	Object   gpu.Image
	Usage    gpu.ImageUsage
	imported bool
}

// Imported reports whether the backend object is owned outside the registry.
func (i *Image) Imported() bool { return i.imported }

// Buffer is a registered buffer and the usage last recorded against it.
type Buffer struct {
	Desc   gpu.BufferDesc
	Object gpu.Buffer
	Usage  gpu.BufferUsage
}

type (
	ImageHandle  = handle.Handle[Image]
	BufferHandle = handle.Handle[Buffer]
)

// ImageUse pairs an image with the usage a command requires.
type ImageUse struct {
	Handle ImageHandle
	Usage  gpu.ImageUsage
	// Discard drops the previous contents instead of preserving them across the transition.
	Discard bool
}

// BufferUse pairs a buffer with the usage a command requires.
type BufferUse struct {
	Handle BufferHandle
	Usage  gpu.BufferUsage
}

// Registry is the resource registry. It is used from the render thread only.
type Registry interface {
	// CreateImage creates an image and returns its handle. The usage starts as None.
	CreateImage(desc gpu.ImageDesc) (ImageHandle, error)
	// ImportImage registers an image owned elsewhere, such as a swapchain image.
	ImportImage(desc gpu.ImageDesc, object gpu.Image) ImageHandle
	// RebindImage points an imported handle at a new backend object and resets its usage.
	RebindImage(h ImageHandle, object gpu.Image) error
	DestroyImage(h ImageHandle) error
	Image(h ImageHandle) (*Image, error)
	MustImage(h ImageHandle) *Image

	CreateBuffer(desc gpu.BufferDesc) (BufferHandle, error)
	DestroyBuffer(h BufferHandle) error
	Buffer(h BufferHandle) (*Buffer, error)
	MustBuffer(h BufferHandle) *Buffer

	// Barrier records the transition of one image into usage and updates its recorded usage.
	Barrier(cmd gpu.CommandList, h ImageHandle, usage gpu.ImageUsage) bool
	// ClearBarrier is Barrier with the previous contents discarded.
	ClearBarrier(cmd gpu.CommandList, h ImageHandle, usage gpu.ImageUsage) bool
	BufferBarrier(cmd gpu.CommandList, h BufferHandle, usage gpu.BufferUsage) bool
	// Barriers records the transitions of every use as one batch and returns how many
	// barriers were emitted.
	Barriers(cmd gpu.CommandList, images []ImageUse, buffers []BufferUse) int

	// SetCurrentFrame sets the timeline value that completes the frame being recorded.
	// Destruction requested from now on is deferred until that value is reached.
	SetCurrentFrame(value uint64)
	// CollectGarbage destroys every deferred object whose frame value is <= completed.
	CollectGarbage(completed uint64)
	// ReleaseProgram defers destruction of a backend program, such as one replaced by a
	// shader reload, until the current frame retires.
	ReleaseProgram(p gpu.Program)
	// PendingDestroys returns the number of deferred objects not yet destroyed.
	PendingDestroys() int
	// DestroyAll destroys every owned object immediately. The device must be idle.
	DestroyAll()

	ImageCount() int
	BufferCount() int
}

type garbage struct {
	frame   uint64
	image   gpu.Image
	buffer  gpu.Buffer
	program gpu.Program
}

type registryImpl struct {
	device  gpu.Device
	images  *handle.Pool[Image]
	buffers *handle.Pool[Buffer]
	frame   uint64
	pending []garbage
}

var _ Registry = &registryImpl{}

// NewRegistry creates an empty registry backed by device.
//
// Parameters:
//   - device: the device resources are created on
//
// Returns:
//   - Registry: the new registry
func NewRegistry(device gpu.Device) Registry {
	return &registryImpl{
		device:  device,
		images:  handle.NewPool[Image](64),
		buffers: handle.NewPool[Buffer](64),
	}
}

func (r *registryImpl) CreateImage(desc gpu.ImageDesc) (ImageHandle, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	obj, err := r.device.CreateImage(desc)
	if err != nil {
		return handle.None[Image](), errors.Wrapf(err, "create image %s", desc)
	}
	h := r.images.Add(Image{Desc: desc, Object: obj})
	common.Logger().Debug("image created", "name", desc.Name, "extent", desc.Extent.String(), "handle", h.String())
	return h, nil
}

func (r *registryImpl) ImportImage(desc gpu.ImageDesc, object gpu.Image) ImageHandle {
	return r.images.Add(Image{Desc: desc, Object: object, imported: true})
}

func (r *registryImpl) RebindImage(h ImageHandle, object gpu.Image) error {
	img, err := r.Image(h)
	if err != nil {
		return err
	}
	if !img.imported {
		return errors.AssertionFailedf("rebind of owned image %q", img.Desc.Name)
	}
	img.Object = object
	img.Desc.Extent = object.Extent()
	img.Desc.Format = object.Format()
	img.Usage = gpu.ImageUsageNone
	return nil
}

func (r *registryImpl) DestroyImage(h ImageHandle) error {
	img, err := r.Image(h)
	if err != nil {
		return err
	}
	if !img.imported {
		r.pending = append(r.pending, garbage{frame: r.frame, image: img.Object})
	}
	r.images.Remove(h)
	return nil
}

func (r *registryImpl) Image(h ImageHandle) (*Image, error) {
	img, ok := r.images.Get(h)
	if !ok {
		return nil, errors.Wrapf(common.ErrInvalidHandle, "image %s", h)
	}
	return img, nil
}

func (r *registryImpl) MustImage(h ImageHandle) *Image {
	img, err := r.Image(h)
	if err != nil {
		panic(err)
	}
	return img
}

func (r *registryImpl) CreateBuffer(desc gpu.BufferDesc) (BufferHandle, error) {
	obj, err := r.device.CreateBuffer(desc)
	if err != nil {
		return handle.None[Buffer](), errors.Wrapf(err, "create buffer %s (%d bytes)", desc.Name, desc.Size)
	}
	h := r.buffers.Add(Buffer{Desc: desc, Object: obj})
	common.Logger().Debug("buffer created", "name", desc.Name, "size", desc.Size, "handle", h.String())
	return h, nil
}

func (r *registryImpl) DestroyBuffer(h BufferHandle) error {
	buf, err := r.Buffer(h)
	if err != nil {
		return err
	}
	r.pending = append(r.pending, garbage{frame: r.frame, buffer: buf.Object})
	r.buffers.Remove(h)
	return nil
}

func (r *registryImpl) Buffer(h BufferHandle) (*Buffer, error) {
	buf, ok := r.buffers.Get(h)
	if !ok {
		return nil, errors.Wrapf(common.ErrInvalidHandle, "buffer %s", h)
	}
	return buf, nil
}

func (r *registryImpl) MustBuffer(h BufferHandle) *Buffer {
	buf, err := r.Buffer(h)
	if err != nil {
		panic(err)
	}
	return buf
}

func (r *registryImpl) SetCurrentFrame(value uint64) {
	r.frame = value
}

func (r *registryImpl) CollectGarbage(completed uint64) {
	kept := r.pending[:0]
	for _, g := range r.pending {
		if g.frame > completed {
			kept = append(kept, g)
			continue
		}
		r.release(g)
	}
	for i := len(kept); i < len(r.pending); i++ {
		r.pending[i] = garbage{}
	}
	r.pending = kept
}

func (r *registryImpl) release(g garbage) {
	if g.image != nil {
		r.device.DestroyImage(g.image)
	}
	if g.buffer != nil {
		r.device.DestroyBuffer(g.buffer)
	}
	if g.program != nil {
		r.device.DestroyProgram(g.program)
	}
}

func (r *registryImpl) ReleaseProgram(p gpu.Program) {
	r.pending = append(r.pending, garbage{frame: r.frame, program: p})
}

func (r *registryImpl) PendingDestroys() int {
	return len(r.pending)
}

func (r *registryImpl) DestroyAll() {
	for _, g := range r.pending {
		r.release(g)
	}
	r.pending = nil
	r.images.Each(func(_ ImageHandle, img *Image) {
		if !img.imported {
			r.device.DestroyImage(img.Object)
		}
	})
	r.buffers.Each(func(_ BufferHandle, buf *Buffer) {
		r.device.DestroyBuffer(buf.Object)
	})
	r.images.Clear()
	r.buffers.Clear()
}

func (r *registryImpl) ImageCount() int  { return r.images.Len() }
func (r *registryImpl) BufferCount() int { return r.buffers.Len() }
