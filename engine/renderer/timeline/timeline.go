// Package timeline drives the rotating frame slots: it waits on the GPU timeline fence before a
// slot is reused, resets what the slot owns, and submits each frame with the waits and signals
// needed to present it.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/handle"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/registry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
	"github.com/cockroachdb/errors"
)

const (
	// FrameQueueLength is the default number of frames in flight.
	FrameQueueLength = 2
	// DefaultFenceTimeout bounds the wait on a frame slot's fence. Exceeding it is treated as a
	// lost device.
	DefaultFenceTimeout = 10 * time.Second
)

// SlotState is the lifecycle state of a frame slot.
type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	}
	return "SlotState(?)"
}

// Frame is the frame currently being recorded.
type Frame struct {
	// Number is the frame counter value when the frame started.
	Number uint64
	Slot   int
	// Commands is the slot's command list, reset at StartFrame.
	Commands gpu.CommandList
	// Swapchain is the registry handle of the acquired presentable image, or an invalid handle
	// when the device has no swapchain.
	Swapchain registry.ImageHandle
}

// Timeline is the frame timeline.
type Timeline interface {
	// StartFrame selects the next slot, waits until the GPU has finished the frame that last
	// used it, resets the slot and acquires the next swapchain image.
	//
	// An error marked common.ErrNeedsResize means the swapchain must be recreated and the frame
	// skipped. A fence timeout returns common.ErrFenceTimeout, which is fatal.
	StartFrame(ctx context.Context) (*Frame, error)
	// AddWait registers a semaphore the current frame's submission must wait on.
	AddWait(sem gpu.Semaphore, value uint64, stages gpu.PipelineStage)
	// EndFrame submits the frame and presents it when present is true. It reports whether the
	// swapchain needs to be recreated.
	EndFrame(frame *Frame, present bool) (bool, error)
	WaitIdle() error

	FrameCount() uint64
	QueueLength() int
	SlotIndex() int
	SlotState(slot int) SlotState
	// SlotFence returns the fence value the slot waits on before its next reuse.
	SlotFence(slot int) uint64
	CompletedValue() (uint64, error)
}

type slot struct {
	state SlotState
	fence uint64
}

type timeline struct {
	device     gpu.Device
	registry   registry.Registry
	rings      []*ring.Ring
	resetHooks []func(slot int)
	timeout    time.Duration

	slots      []slot
	frameCount uint64
	waits      []gpu.SemaphoreWait
	current    *Frame
	swapchain  registry.ImageHandle
}

var _ Timeline = &timeline{}

// NewTimeline creates a timeline over device and reg with every slot idle.
//
// Parameters:
//   - device: the device frames are submitted to
//   - reg: the registry whose deferred destruction follows the timeline
//   - options: functional options applied in order
//
// Returns:
//   - Timeline: the new timeline
func NewTimeline(device gpu.Device, reg registry.Registry, options ...TimelineBuilderOption) Timeline {
	t := &timeline{
		device:    device,
		registry:  reg,
		timeout:   DefaultFenceTimeout,
		slots:     make([]slot, FrameQueueLength),
		swapchain: handle.None[registry.Image](),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *timeline) StartFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.current != nil {
		return nil, errors.AssertionFailedf("frame %d started while frame %d is recording", t.frameCount, t.current.Number)
	}

	index := int(t.frameCount % uint64(len(t.slots)))
	s := &t.slots[index]
	if s.fence > 0 {
		reached, err := t.device.WaitFence(s.fence, t.timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "wait for frame slot %d", index)
		}
		if !reached {
			common.Logger().Error("frame fence timeout", "slot", index, "fence", s.fence, "timeout", t.timeout)
			return nil, errors.Wrapf(common.ErrFenceTimeout, "frame slot %d fence %d after %s", index, s.fence, t.timeout)
		}
	}
	s.state = SlotIdle

	completed, err := t.device.CompletedValue()
	if err != nil {
		return nil, errors.Wrap(err, "read completed fence value")
	}
	t.registry.SetCurrentFrame(t.frameCount + 1)
	t.registry.CollectGarbage(completed)
	for _, r := range t.rings {
		r.BeginFrame(index)
	}
	for _, hook := range t.resetHooks {
		hook(index)
	}

	frame := &Frame{Number: t.frameCount, Slot: index, Swapchain: handle.None[registry.Image]()}
	if sc := t.device.Swapchain(); sc != nil {
		img, err := sc.Acquire(index)
		if err != nil {
			return nil, errors.Wrapf(err, "acquire swapchain image for frame %d", t.frameCount)
		}
		if err := t.bindSwapchainImage(img); err != nil {
			return nil, err
		}
		frame.Swapchain = t.swapchain
	}

	cmd, err := t.device.BeginCommands(index, fmt.Sprintf("frame_%d", t.frameCount))
	if err != nil {
		return nil, errors.Wrapf(err, "begin commands for frame %d", t.frameCount)
	}
	frame.Commands = cmd
	s.state = SlotRecording
	t.waits = t.waits[:0]
	t.current = frame
	return frame, nil
}

// bindSwapchainImage imports the swapchain image on first use and rebinds the same handle to
// each newly acquired image afterwards, so passes can hold one handle across frames.
func (t *timeline) bindSwapchainImage(img gpu.Image) error {
	if !t.swapchain.IsValid() {
		t.swapchain = t.registry.ImportImage(gpu.ImageDesc{
			Name:         "swapchain",
			Extent:       img.Extent(),
			MipLevels:    1,
			Format:       img.Format(),
			Capabilities: gpu.ImageCapColorAttachment | gpu.ImageCapPresent,
		}, img)
		return nil
	}
	return t.registry.RebindImage(t.swapchain, img)
}

func (t *timeline) AddWait(sem gpu.Semaphore, value uint64, stages gpu.PipelineStage) {
	t.waits = append(t.waits, gpu.SemaphoreWait{Semaphore: sem, Value: value, Stages: stages})
}

func (t *timeline) EndFrame(frame *Frame, present bool) (bool, error) {
	if frame == nil || frame != t.current {
		return false, errors.AssertionFailedf("EndFrame called with a frame that is not recording")
	}
	s := &t.slots[frame.Slot]
	sc := t.device.Swapchain()
	presenting := present && sc != nil && frame.Swapchain.IsValid()

	info := gpu.SubmitInfo{Waits: append([]gpu.SemaphoreWait(nil), t.waits...)}
	if presenting {
		t.registry.Barrier(frame.Commands, frame.Swapchain, gpu.ImageUsagePresent)
		info.Waits = append(info.Waits, gpu.SemaphoreWait{
			Semaphore: sc.ImageAcquired(frame.Slot),
			Stages:    gpu.StageColorAttachmentOutput,
		})
	}
	signal := t.frameCount + 1
	info.Signals = append(info.Signals, gpu.SemaphoreSignal{Semaphore: t.device.Fence(), Value: signal})
	if presenting {
		info.Signals = append(info.Signals, gpu.SemaphoreSignal{Semaphore: sc.RenderFinished(frame.Slot)})
	}

	t.current = nil
	t.waits = t.waits[:0]
	if err := t.device.Submit(frame.Commands, info); err != nil {
		s.state = SlotIdle
		err = errors.Wrapf(err, "submit frame %d", frame.Number)
		if !common.IsFatal(err) {
			err = common.MarkDeviceLost(err)
		}
		return false, err
	}
	s.fence = signal
	s.state = SlotSubmitted
	t.frameCount++

	if presenting {
		if err := sc.Present(frame.Slot); err != nil {
			if errors.Is(err, common.ErrNeedsResize) {
				return true, nil
			}
			return false, errors.Wrapf(err, "present frame %d", frame.Number)
		}
	}
	return false, nil
}

func (t *timeline) WaitIdle() error {
	if err := t.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle")
	}
	for i := range t.slots {
		if t.slots[i].state == SlotSubmitted {
			t.slots[i].state = SlotIdle
		}
	}
	completed, err := t.device.CompletedValue()
	if err != nil {
		return err
	}
	t.registry.CollectGarbage(completed)
	return nil
}

func (t *timeline) FrameCount() uint64 { return t.frameCount }
func (t *timeline) QueueLength() int   { return len(t.slots) }

func (t *timeline) SlotIndex() int {
	return int(t.frameCount % uint64(len(t.slots)))
}

func (t *timeline) SlotState(slot int) SlotState { return t.slots[slot].state }
func (t *timeline) SlotFence(slot int) uint64    { return t.slots[slot].fence }

func (t *timeline) CompletedValue() (uint64, error) {
	return t.device.CompletedValue()
}
