// Package gputest is an in-memory gpu.Device that records every command instead of executing
// it. Buffers keep their bytes so host writes, copies and fills are observable.
package gputest

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
)

// Image is a recorded image.
type Image struct {
	Desc      gpu.ImageDesc
	ID        int
	Destroyed bool
	Data      []byte
}

func (i *Image) Label() string            { return i.Desc.Name }
func (i *Image) Extent() common.Extent2D { return i.Desc.Extent }
func (i *Image) Format() gpu.Format      { return i.Desc.Format }

// Buffer is a recorded buffer backed by a byte slice.
type Buffer struct {
	Desc      gpu.BufferDesc
	ID        int
	Destroyed bool
	Data      []byte
}

func (b *Buffer) Label() string { return b.Desc.Name }
func (b *Buffer) Size() uint64  { return b.Desc.Size }

// Program is a recorded program.
type Program struct {
	Desc      gpu.ProgramDesc
	ID        int
	Destroyed bool
}

func (p *Program) Label() string { return p.Desc.Name }

// Semaphore is a named synchronization object.
type Semaphore struct {
	Name string
}

func (s *Semaphore) Label() string { return s.Name }
