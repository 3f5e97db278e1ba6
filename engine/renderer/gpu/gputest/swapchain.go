package gputest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
)

const swapchainImages = 3

// Swapchain is a fake swapchain cycling through three images.
type Swapchain struct {
	device *Device
	extent common.Extent2D
	format gpu.Format
	images []*Image
	next   int

	acquired []*Semaphore
	finished []*Semaphore

	// OutOfDate makes the next Acquire report that the surface must be recreated.
	OutOfDate bool
	// Suboptimal makes the next Present report that the surface must be recreated.
	Suboptimal bool
	Presents   int
	Resizes    int
}

func newSwapchain(d *Device, extent common.Extent2D, format gpu.Format) *Swapchain {
	s := &Swapchain{device: d, format: format}
	for slot := 0; slot < 4; slot++ {
		s.acquired = append(s.acquired, &Semaphore{Name: fmt.Sprintf("image_acquired_%d", slot)})
		s.finished = append(s.finished, &Semaphore{Name: fmt.Sprintf("render_finished_%d", slot)})
	}
	s.recreate(extent)
	return s
}

func (s *Swapchain) recreate(extent common.Extent2D) {
	s.extent = extent
	s.images = s.images[:0]
	for i := 0; i < swapchainImages; i++ {
		s.images = append(s.images, &Image{Desc: gpu.ImageDesc{
			Name:         fmt.Sprintf("swapchain_%d", i),
			Extent:       extent,
			MipLevels:    1,
			Format:       s.format,
			Capabilities: gpu.ImageCapColorAttachment | gpu.ImageCapPresent,
		}})
	}
	s.next = 0
}

func (s *Swapchain) Acquire(slot int) (gpu.Image, error) {
	if s.OutOfDate {
		s.OutOfDate = false
		return nil, common.MarkNeedsResize(errors.New("gputest: swapchain out of date"))
	}
	img := s.images[s.next]
	s.next = (s.next + 1) % len(s.images)
	return img, nil
}

func (s *Swapchain) ImageAcquired(slot int) gpu.Semaphore  { return s.acquired[slot] }
func (s *Swapchain) RenderFinished(slot int) gpu.Semaphore { return s.finished[slot] }

func (s *Swapchain) Present(slot int) error {
	s.Presents++
	if s.Suboptimal {
		s.Suboptimal = false
		return common.MarkNeedsResize(errors.New("gputest: swapchain suboptimal"))
	}
	return nil
}

func (s *Swapchain) Resize(extent common.Extent2D) error {
	s.Resizes++
	s.recreate(extent)
	return nil
}

func (s *Swapchain) Extent() common.Extent2D { return s.extent }
func (s *Swapchain) Format() gpu.Format      { return s.format }

// Images returns the current presentable images.
func (s *Swapchain) Images() []*Image { return s.images }
