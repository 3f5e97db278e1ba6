// Package ring implements the per-frame streaming allocator used for transient uniform, vertex
// and index data.
//
// A Ring owns one GPU buffer split into one region per frame slot and a CPU shadow of the same
// size. Allocations bump a cursor inside the active region and never wrap mid-frame; the cursor
// is reset only when the frame timeline reuses the slot after waiting on its fence.
package ring

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
)

// Allocation is a byte range of the active region. Data aliases the CPU shadow and is pushed to
// the GPU buffer by Flush.
type Allocation struct {
	Offset uint64
	Size   uint64
	Data   []byte
}

// Ring is a per-frame bump allocator.
type Ring struct {
	device     gpu.Device
	name       string
	buffer     gpu.Buffer
	shadow     []byte
	regionSize uint64
	slots      int
	slot       int
	cursor     uint64
	flushed    uint64
	highWater  uint64
}

// New creates a ring with slots regions of regionSize bytes.
//
// Parameters:
//   - device: the device the backing buffer is created on
//   - name: debug label of the buffer
//   - regionSize: bytes available to each frame
//   - slots: number of frame slots, normally the frame queue length
//   - caps: capabilities the buffer is bound with in addition to host writes
//
// Returns:
//   - *Ring: the ring, with slot 0 active
//   - error: the buffer could not be created
func New(device gpu.Device, name string, regionSize uint64, slots int, caps gpu.BufferCapability) (*Ring, error) {
	if slots < 1 || regionSize == 0 {
		return nil, errors.AssertionFailedf("ring %q: invalid layout %d x %d bytes", name, slots, regionSize)
	}
	total := regionSize * uint64(slots)
	buf, err := device.CreateBuffer(gpu.BufferDesc{
		Name:         name,
		Size:         total,
		Capabilities: caps | gpu.BufferCapHostWrite | gpu.BufferCapTransferDst,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ring %q", name)
	}
	return &Ring{
		device:     device,
		name:       name,
		buffer:     buf,
		shadow:     make([]byte, total),
		regionSize: regionSize,
		slots:      slots,
	}, nil
}

// Buffer returns the backing GPU buffer.
func (r *Ring) Buffer() gpu.Buffer { return r.buffer }

// Name returns the debug label.
func (r *Ring) Name() string { return r.name }

// RegionSize returns the capacity of one frame's region.
func (r *Ring) RegionSize() uint64 { return r.regionSize }

// Used returns the bytes allocated in the active region.
func (r *Ring) Used() uint64 { return r.cursor }

// HighWater returns the largest per-frame usage seen so far.
func (r *Ring) HighWater() uint64 { return r.highWater }

func (r *Ring) regionBase() uint64 {
	return uint64(r.slot) * r.regionSize
}

// Allocate bump-allocates size bytes aligned to alignment inside the active region. The
// returned offset is relative to the start of the buffer.
//
// Parameters:
//   - size: bytes to allocate, zero is allowed
//   - alignment: power-of-two alignment of the offset, zero means 1
//
// Returns:
//   - Allocation: the allocated range
//   - bool: false if the region cannot fit the request; the ring is left unchanged
func (r *Ring) Allocate(size, alignment uint64) (Allocation, bool) {
	if alignment == 0 {
		alignment = 1
	}
	if !common.IsPowerOfTwo(alignment) {
		panic(errors.AssertionFailedf("ring %q: alignment %d is not a power of two", r.name, alignment))
	}
	base := r.regionBase()
	start := common.AlignUp(base+r.cursor, alignment) - base
	if start > r.regionSize || size > r.regionSize-start {
		common.Logger().Warn("ring allocation failed", "ring", r.name, "size", size, "used", r.cursor, "capacity", r.regionSize)
		return Allocation{}, false
	}
	r.cursor = start + size
	if r.cursor > r.highWater {
		r.highWater = r.cursor
	}
	offset := base + start
	return Allocation{Offset: offset, Size: size, Data: r.shadow[offset : offset+size : offset+size]}, true
}

// Upload allocates len(data) bytes and copies data into the allocation.
//
// Parameters:
//   - data: bytes to upload
//   - alignment: power-of-two alignment of the offset
//
// Returns:
//   - Allocation: the allocated range
//   - error: the region is full
func (r *Ring) Upload(data []byte, alignment uint64) (Allocation, error) {
	a, ok := r.Allocate(uint64(len(data)), alignment)
	if !ok {
		return Allocation{}, errors.Newf("ring %q: %d bytes do not fit (%d of %d used)", r.name, len(data), r.cursor, r.regionSize)
	}
	copy(a.Data, data)
	return a, nil
}

// BeginFrame makes slot the active region and resets its cursor. The caller must have waited
// for the fence of the frame that last used slot.
func (r *Ring) BeginFrame(slot int) {
	if slot < 0 || slot >= r.slots {
		panic(errors.AssertionFailedf("ring %q: slot %d out of range [0, %d)", r.name, slot, r.slots))
	}
	r.slot = slot
	r.cursor = 0
	r.flushed = 0
}

// Flush pushes the bytes allocated since the last flush to the GPU buffer.
func (r *Ring) Flush() error {
	if r.cursor <= r.flushed {
		return nil
	}
	base := r.regionBase()
	from, to := base+r.flushed, base+r.cursor
	if err := r.device.WriteBuffer(r.buffer, from, r.shadow[from:to]); err != nil {
		return errors.Wrapf(err, "flush ring %q", r.name)
	}
	r.flushed = r.cursor
	return nil
}

// Destroy releases the backing buffer. The device must be idle.
func (r *Ring) Destroy() {
	if r.buffer != nil {
		r.device.DestroyBuffer(r.buffer)
		r.buffer = nil
	}
}
