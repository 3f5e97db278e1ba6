package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
)

// ImageCapability is a bit set of the ways an image may be used. It is fixed at creation.
type ImageCapability uint32

const (
	ImageCapSampled ImageCapability = 1 << iota
	ImageCapStorage
	ImageCapColorAttachment
	ImageCapDepthAttachment
	ImageCapTransferSrc
	ImageCapTransferDst
	ImageCapPresent
)

// Has reports whether every bit of other is set.
func (c ImageCapability) Has(other ImageCapability) bool {
	return c&other == other
}

// BufferCapability is a bit set of the ways a buffer may be used. It is fixed at creation.
type BufferCapability uint32

const (
	BufferCapStorage BufferCapability = 1 << iota
	BufferCapUniform
	BufferCapIndex
	BufferCapVertex
	BufferCapIndirect
	BufferCapTransferSrc
	BufferCapTransferDst
	// BufferCapHostWrite marks buffers the CPU writes through Device.WriteBuffer.
	BufferCapHostWrite
)

// Has reports whether every bit of other is set.
func (c BufferCapability) Has(other BufferCapability) bool {
	return c&other == other
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Name         string
	Extent       common.Extent2D
	MipLevels    uint32
	Format       Format
	Capabilities ImageCapability
}

func (d ImageDesc) String() string {
	return fmt.Sprintf("%s(%s %s)", d.Name, d.Extent, d.Format)
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Name         string
	Size         uint64
	Capabilities BufferCapability
}

// Image is a backend image object.
type Image interface {
	Label() string
	Extent() common.Extent2D
	Format() Format
}

// Buffer is a backend buffer object.
type Buffer interface {
	Label() string
	Size() uint64
}

// Semaphore is a backend synchronization object. Timeline semaphores carry a value; binary
// semaphores ignore it.
type Semaphore interface {
	Label() string
}

// SemaphoreWait makes a submission wait on a semaphore before the given stages run.
type SemaphoreWait struct {
	Semaphore Semaphore
	Value     uint64
	Stages    PipelineStage
}

// SemaphoreSignal makes a submission signal a semaphore when it completes.
type SemaphoreSignal struct {
	Semaphore Semaphore
	Value     uint64
}

// SubmitInfo holds the waits and signals attached to one submission.
type SubmitInfo struct {
	Waits   []SemaphoreWait
	Signals []SemaphoreSignal
}
