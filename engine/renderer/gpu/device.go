package gpu

import (
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// LoadOp selects how an attachment's previous contents are treated at pass start.
type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	Image      Image
	Load       LoadOp
	ClearColor [4]float64
}

// DepthAttachment is the depth target of a render pass.
type DepthAttachment struct {
	Image      Image
	Load       LoadOp
	ClearDepth float32
}

// RenderPassDesc describes the attachments of a render pass.
type RenderPassDesc struct {
	Label string
	Color []ColorAttachment
	Depth *DepthAttachment
}

// ComputePass records compute work inside a command list.
type ComputePass interface {
	SetProgram(p Program)
	SetBindings(bindings ...Binding)
	Dispatch(x, y, z uint32)
	End()
}

// RenderPass records draw work inside a command list.
type RenderPass interface {
	SetProgram(p Program)
	SetBindings(bindings ...Binding)
	SetIndexBuffer(buf Buffer, offset uint64)
	SetScissor(r common.Rect)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	// DrawIndexedIndirectCount issues up to maxDraws indexed draws whose arguments are read from
	// args, with the actual count read as a uint32 from count at countOffset.
	DrawIndexedIndirectCount(args Buffer, argsOffset uint64, count Buffer, countOffset uint64, maxDraws uint32)
	End()
}

// CommandList records commands for one frame slot. It is reset when the slot is reused.
type CommandList interface {
	Label() string
	Barriers(batch BarrierBatch)
	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)
	FillBuffer(dst Buffer, offset, size uint64, value uint32)
	BeginComputePass(label string) ComputePass
	BeginRenderPass(desc RenderPassDesc) RenderPass
}

// Swapchain owns the presentable images and the per-slot binary semaphores used to order
// acquisition, rendering and presentation.
type Swapchain interface {
	// Acquire returns the next presentable image. An error marked common.ErrNeedsResize means
	// the surface must be recreated before rendering.
	Acquire(slot int) (Image, error)
	ImageAcquired(slot int) Semaphore
	RenderFinished(slot int) Semaphore
	// Present queues the last acquired image. It may return common.ErrNeedsResize.
	Present(slot int) error
	Resize(extent common.Extent2D) error
	Extent() common.Extent2D
	Format() Format
}

// Device creates resources and submits recorded work to a single queue.
//
// Failures are marked with the common error taxonomy: allocation failures with
// common.ErrOutOfMemory, lost devices with common.ErrDeviceLost.
type Device interface {
	Name() string

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(buf Buffer)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	WriteImage(img Image, data []byte) error

	CreateProgram(desc ProgramDesc) (Program, error)
	DestroyProgram(p Program)

	// Fence returns the device timeline semaphore.
	Fence() Semaphore
	// CompletedValue returns the last value the device timeline has reached.
	CompletedValue() (uint64, error)
	// WaitFence blocks until the device timeline reaches value. It returns false if the
	// timeout elapsed first.
	WaitFence(value uint64, timeout time.Duration) (bool, error)

	// BeginCommands resets the command pool of the slot and opens a new command list on it.
	BeginCommands(slot int, label string) (CommandList, error)
	Submit(cmd CommandList, info SubmitInfo) error

	WaitIdle() error
	Swapchain() Swapchain
	Destroy()
}

// TimestampQueries is implemented by devices that can write GPU timestamps.
type TimestampQueries interface {
	WriteTimestamp(cmd CommandList, index uint32)
	// ReadTimestamps returns count timestamps in nanoseconds from the last completed
	// submission of the slot.
	ReadTimestamps(slot int, count uint32) ([]uint64, error)
}
