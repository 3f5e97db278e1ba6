package gputest

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
)

// Submission is one recorded queue submission.
type Submission struct {
	List *CommandList
	Info gpu.SubmitInfo
}

// Device is a recording gpu.Device.
//
// Submissions complete immediately unless Hold is set, in which case the timeline only
// advances through Complete. WaitFence never sleeps: it returns false when the value has not
// been reached, which callers observe as a timeout.
type Device struct {
	mu sync.Mutex

	Images      []*Image
	Buffers     []*Buffer
	Programs    []*Program
	Submissions []Submission
	Lists       map[int]*CommandList

	// Hold keeps submitted values pending until Complete is called.
	Hold bool
	// FailImages and FailBuffers make the next create calls fail with the given error.
	FailImages  error
	FailBuffers error
	// FailSubmit makes the next Submit fail with the given error.
	FailSubmit error
	// Lost makes every blocking call report a lost device.
	Lost bool
	// Headless hides the swapchain, as an offscreen device has none.
	Headless bool

	fence     *Semaphore
	completed uint64
	pending   uint64
	idleWaits int
	nextID    int
	swapchain *Swapchain
	clock     uint64
	stamps    map[int][]uint64
}

// NewDevice creates a recording device with a swapchain of the given extent.
func NewDevice(extent common.Extent2D) *Device {
	d := &Device{
		Lists:  make(map[int]*CommandList),
		fence:  &Semaphore{Name: "timeline"},
		stamps: make(map[int][]uint64),
	}
	d.swapchain = newSwapchain(d, extent, gpu.FormatBGRA8Unorm)
	return d
}

func (d *Device) Name() string { return "gputest" }

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.FailImages; err != nil {
		d.FailImages = nil
		return nil, err
	}
	if desc.Extent.IsZero() {
		return nil, errors.AssertionFailedf("image %q has zero extent", desc.Name)
	}
	d.nextID++
	img := &Image{Desc: desc, ID: d.nextID}
	d.Images = append(d.Images, img)
	return img, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img.(*Image).Destroyed = true
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.FailBuffers; err != nil {
		d.FailBuffers = nil
		return nil, err
	}
	d.nextID++
	buf := &Buffer{Desc: desc, ID: d.nextID, Data: make([]byte, desc.Size)}
	d.Buffers = append(d.Buffers, buf)
	return buf, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf.(*Buffer).Destroyed = true
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b := buf.(*Buffer)
	if offset+uint64(len(data)) > b.Desc.Size {
		return errors.AssertionFailedf("write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.Desc.Name, b.Desc.Size)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (d *Device) WriteImage(img gpu.Image, data []byte) error {
	i := img.(*Image)
	i.Data = append(i.Data[:0], data...)
	return nil
}

func (d *Device) CreateProgram(desc gpu.ProgramDesc) (gpu.Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	p := &Program{Desc: desc, ID: d.nextID}
	d.Programs = append(d.Programs, p)
	return p, nil
}

func (d *Device) DestroyProgram(p gpu.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.(*Program).Destroyed = true
}

func (d *Device) Fence() gpu.Semaphore { return d.fence }

func (d *Device) CompletedValue() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lost {
		return 0, common.MarkDeviceLost(errors.New("gputest: device lost"))
	}
	return d.completed, nil
}

func (d *Device) WaitFence(value uint64, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lost {
		return false, common.MarkDeviceLost(errors.New("gputest: device lost"))
	}
	return d.completed >= value, nil
}

// Complete advances the device timeline to every value submitted so far.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed = d.pending
}

func (d *Device) BeginCommands(slot int, label string) (gpu.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lost {
		return nil, common.MarkDeviceLost(errors.New("gputest: device lost"))
	}
	cl := &CommandList{label: label, Slot: slot}
	d.Lists[slot] = cl
	return cl, nil
}

func (d *Device) Submit(cmd gpu.CommandList, info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lost {
		return common.MarkDeviceLost(errors.New("gputest: device lost"))
	}
	if err := d.FailSubmit; err != nil {
		d.FailSubmit = nil
		return err
	}
	cl := cmd.(*CommandList)
	d.execute(cl)
	d.Submissions = append(d.Submissions, Submission{List: cl, Info: info})
	for _, s := range info.Signals {
		if s.Semaphore == gpu.Semaphore(d.fence) && s.Value > d.pending {
			d.pending = s.Value
		}
	}
	if !d.Hold {
		d.completed = d.pending
	}
	return nil
}

// execute applies the transfer commands of a list to the backing bytes.
func (d *Device) execute(cl *CommandList) {
	for _, c := range cl.Commands {
		switch c.Op {
		case OpCopyBuffer:
			src, dst := c.Src.(*Buffer), c.Dst.(*Buffer)
			copy(dst.Data[c.Offsets[1]:c.Offsets[1]+c.Size], src.Data[c.Offsets[0]:c.Offsets[0]+c.Size])
		case OpFillBuffer:
			dst := c.Dst.(*Buffer)
			for i := c.Offsets[0]; i+4 <= c.Offsets[0]+c.Size; i += 4 {
				dst.Data[i] = byte(c.Value)
				dst.Data[i+1] = byte(c.Value >> 8)
				dst.Data[i+2] = byte(c.Value >> 16)
				dst.Data[i+3] = byte(c.Value >> 24)
			}
		}
	}
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lost {
		return common.MarkDeviceLost(errors.New("gputest: device lost"))
	}
	d.idleWaits++
	d.completed = d.pending
	return nil
}

// IdleWaits returns how many times WaitIdle was called.
func (d *Device) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

func (d *Device) Swapchain() gpu.Swapchain {
	if d.Headless {
		return nil
	}
	return d.swapchain
}

// FakeSwapchain returns the concrete swapchain so tests can inject resize events.
func (d *Device) FakeSwapchain() *Swapchain { return d.swapchain }

func (d *Device) Destroy() {}

// WriteTimestamp records a timestamp command and samples a fake clock advancing 1µs per write.
func (d *Device) WriteTimestamp(cmd gpu.CommandList, index uint32) {
	cl := cmd.(*CommandList)
	cl.record(Command{Op: OpTimestamp, Value: index})
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock += 1000
	s := d.stamps[cl.Slot]
	for uint32(len(s)) <= index {
		s = append(s, 0)
	}
	s[index] = d.clock
	d.stamps[cl.Slot] = s
}

func (d *Device) ReadTimestamps(slot int, count uint32) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stamps[slot]
	if uint32(len(s)) < count {
		return nil, errors.Newf("gputest: slot %d has %d timestamps, want %d", slot, len(s), count)
	}
	return append([]uint64(nil), s[:count]...), nil
}

// LiveImages returns the images that have not been destroyed.
func (d *Device) LiveImages() []*Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Image
	for _, img := range d.Images {
		if !img.Destroyed {
			out = append(out, img)
		}
	}
	return out
}

// LiveBuffers returns the buffers that have not been destroyed.
func (d *Device) LiveBuffers() []*Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Buffer
	for _, b := range d.Buffers {
		if !b.Destroyed {
			out = append(out, b)
		}
	}
	return out
}

var (
	_ gpu.Device           = (*Device)(nil)
	_ gpu.TimestampQueries = (*Device)(nil)
)
