// Package streamer uploads CPU data into device-local buffers. Data is staged in a ring and
// copied by a transfer pass at the start of the frame; buffers grow geometrically and keep
// their name, so passes can import them by name every frame.
package streamer

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/cockroachdb/errors"
)

const (
	// PassName is the transfer pass that performs the staged copies.
	PassName = "stream_uploads"

	minBufferSize = 256
	copyAlignment = 4
)

// Streamer owns named device-local buffers and the uploads into them.
type Streamer interface {
	// Stage schedules data to be written at offset 0 of the named buffer, creating or growing
	// it as needed. Staged bytes are copied by the pass Record adds. Data that does not fit the
	// staging ring is written directly through the device.
	//
	// Parameters:
	//   - name: the buffer name
	//   - data: the bytes to upload
	//   - caps: the capabilities the buffer needs besides TransferDst
	//
	// Returns:
	//   - error: the buffer could not be created or written
	Stage(name string, data []byte, caps gpu.BufferCapability) error

	// Buffer returns the registry handle of the named buffer.
	Buffer(name string) (registry.BufferHandle, bool)

	// Size returns the number of bytes last staged into the named buffer.
	Size(name string) uint64

	// Import binds the named buffer into g.
	//
	// Returns:
	//   - graph.Buffer: the virtual buffer, invalid if the name is unknown
	Import(g graph.Graph, name string) graph.Buffer

	// Record adds the transfer pass for the staged copies and clears them. No pass is added
	// when nothing was staged.
	Record(g graph.Graph)

	// Pending returns the number of staged copies not yet recorded.
	Pending() int

	// Destroy releases every buffer through the registry.
	Destroy()
}

type target struct {
	handle   registry.BufferHandle
	capacity uint64
	size     uint64
	caps     gpu.BufferCapability
}

type stagedCopy struct {
	name   string
	offset uint64
	size   uint64
}

type streamer struct {
	device   gpu.Device
	registry registry.Registry
	staging  *ring.Ring

	targets map[string]*target
	pending []stagedCopy
}

var _ Streamer = &streamer{}

// NewStreamer creates a streamer staging through staging, whose buffer must be a transfer
// source.
//
// Parameters:
//   - device: the device used for direct writes
//   - reg: the registry owning the buffers
//   - staging: the per-frame ring data is staged in
//
// Returns:
//   - Streamer: the streamer
func NewStreamer(device gpu.Device, reg registry.Registry, staging *ring.Ring) Streamer {
	return &streamer{
		device:   device,
		registry: reg,
		staging:  staging,
		targets:  make(map[string]*target),
	}
}

func (s *streamer) Stage(name string, data []byte, caps gpu.BufferCapability) error {
	t, err := s.ensure(name, uint64(len(data)), caps)
	if err != nil {
		return err
	}
	t.size = uint64(len(data))
	if len(data) == 0 {
		return nil
	}

	if alloc, ok := s.staging.Allocate(uint64(len(data)), copyAlignment); ok {
		copy(alloc.Data, data)
		s.pending = append(s.pending, stagedCopy{name: name, offset: alloc.Offset, size: alloc.Size})
		return nil
	}
	common.Logger().Debug("streamer: staging full, writing directly", "buffer", name, "size", len(data))
	buf := s.registry.MustBuffer(t.handle)
	if err := s.device.WriteBuffer(buf.Object, 0, data); err != nil {
		return errors.Wrapf(err, "stream %q", name)
	}
	return nil
}

// ensure returns a target of at least size bytes with caps, replacing a smaller one. The old
// buffer is destroyed through the registry once the frames using it complete.
func (s *streamer) ensure(name string, size uint64, caps gpu.BufferCapability) (*target, error) {
	caps |= gpu.BufferCapTransferDst | gpu.BufferCapHostWrite
	if t, ok := s.targets[name]; ok && t.capacity >= size && t.caps.Has(caps) {
		return t, nil
	}

	capacity := max(common.NextPowerOfTwo(size), minBufferSize)
	h, err := s.registry.CreateBuffer(gpu.BufferDesc{Name: name, Size: capacity, Capabilities: caps})
	if err != nil {
		return nil, errors.Wrapf(err, "stream %q", name)
	}
	if old, ok := s.targets[name]; ok {
		_ = s.registry.DestroyBuffer(old.handle)
		s.dropPending(name)
		common.Logger().Debug("streamer: buffer grown", "buffer", name, "from", old.capacity, "to", capacity)
	}
	t := &target{handle: h, capacity: capacity, caps: caps}
	s.targets[name] = t
	return t, nil
}

// dropPending forgets staged copies into a buffer that has been replaced.
func (s *streamer) dropPending(name string) {
	kept := s.pending[:0]
	for _, c := range s.pending {
		if c.name != name {
			kept = append(kept, c)
		}
	}
	s.pending = kept
}

func (s *streamer) Buffer(name string) (registry.BufferHandle, bool) {
	t, ok := s.targets[name]
	if !ok {
		return handle.None[registry.Buffer](), false
	}
	return t.handle, true
}

func (s *streamer) Size(name string) uint64 {
	if t, ok := s.targets[name]; ok {
		return t.size
	}
	return 0
}

func (s *streamer) Import(g graph.Graph, name string) graph.Buffer {
	t, ok := s.targets[name]
	if !ok {
		return graph.Buffer{}
	}
	return g.ImportBuffer(name, t.handle)
}

func (s *streamer) Record(g graph.Graph) {
	if len(s.pending) == 0 {
		return
	}
	copies := s.pending
	s.pending = nil

	dsts := make([]graph.Buffer, len(copies))
	for i, c := range copies {
		dsts[i] = s.Import(g, c.name)
	}
	src := s.staging.Buffer()
	g.AddPass(graph.Pass{
		Name:           PassName,
		Type:           graph.PassTransfer,
		CopyDstBuffers: dsts,
		Exec: graph.ExecFunc(func(ctx *graph.PassContext) error {
			for i, c := range copies {
				ctx.Cmd.CopyBuffer(src, ctx.Buffer(dsts[i]), c.offset, 0, c.size)
			}
			return nil
		}),
	})
}

func (s *streamer) Pending() int {
	return len(s.pending)
}

func (s *streamer) Destroy() {
	for name, t := range s.targets {
		_ = s.registry.DestroyBuffer(t.handle)
		delete(s.targets, name)
	}
	s.pending = nil
}
