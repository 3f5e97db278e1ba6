// Package timings measures how long labelled sections of a frame take on the CPU and, when the
// device supports timestamp queries, on the GPU.
//
// One Timings value serves every frame slot. Labels recorded while a slot is being built are
// resolved the next time that slot is reset, which happens after its fence has been waited on,
// so GPU timestamps are always read from completed work.
package timings

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
)

// DefaultMaxLabels bounds the labels one slot can time on the GPU. Labels past the limit still
// get CPU timings.
const DefaultMaxLabels = 64

// Timing is the measured duration of one label.
type Timing struct {
	Label string
	CPU   time.Duration
	GPU   time.Duration
	// HasGPU is false when no timestamp was available for the label.
	HasGPU bool
}

// Timings records labelled CPU and GPU durations. It implements graph.PassObserver so every
// render graph pass is timed under its own name.
type Timings interface {
	// BeginLabel opens a label. Labels do not nest; opening one while another is open panics.
	BeginLabel(cmd gpu.CommandList, name string)
	// EndLabel closes the open label. Closing without an open label panics.
	EndLabel(cmd gpu.CommandList)

	BeginPass(name string, cmd gpu.CommandList)
	EndPass(cmd gpu.CommandList)

	// Reset resolves the labels previously recorded into slot and starts recording into it.
	Reset(slot int)
	// Results returns the timings of the most recently resolved frame.
	Results() []Timing
	// GPUSupported reports whether the device writes timestamps.
	GPUSupported() bool
}

type label struct {
	name     string
	cpuStart time.Duration
	cpu      time.Duration
	query    int
}

type slotTimings struct {
	labels  []label
	queries uint32
}

type timings struct {
	queries   gpu.TimestampQueries
	maxLabels int

	slots   []slotTimings
	current int
	open    int

	mu      sync.Mutex
	results []Timing
}

var _ Timings = (*timings)(nil)

// NewTimings creates a Timings for the given number of frame slots.
// GPU timings are enabled when device implements gpu.TimestampQueries.
//
// Parameters:
//   - device: the device the frames are recorded on
//   - slots: the frame queue length
//   - options: optional configuration
//
// Returns:
//   - Timings: the timings recorder
func NewTimings(device gpu.Device, slots int, options ...TimingsBuilderOption) Timings {
	if slots < 1 {
		slots = 1
	}
	t := &timings{
		maxLabels: DefaultMaxLabels,
		slots:     make([]slotTimings, slots),
		open:      -1,
	}
	if q, ok := device.(gpu.TimestampQueries); ok {
		t.queries = q
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *timings) GPUSupported() bool {
	return t.queries != nil
}

func (t *timings) BeginLabel(cmd gpu.CommandList, name string) {
	if t.open >= 0 {
		panic(errors.AssertionFailedf("timing label %q opened while %q is open", name, t.slots[t.current].labels[t.open].name))
	}
	s := &t.slots[t.current]
	l := label{name: name, query: -1}
	if t.queries != nil && cmd != nil && len(s.labels) < t.maxLabels {
		l.query = int(s.queries)
		t.queries.WriteTimestamp(cmd, s.queries)
		s.queries += 2
	}
	l.cpuStart = hrtime.Now()
	s.labels = append(s.labels, l)
	t.open = len(s.labels) - 1
}

func (t *timings) EndLabel(cmd gpu.CommandList) {
	if t.open < 0 {
		panic(errors.AssertionFailedf("timing label closed without an open label"))
	}
	l := &t.slots[t.current].labels[t.open]
	l.cpu = hrtime.Since(l.cpuStart)
	if l.query >= 0 {
		t.queries.WriteTimestamp(cmd, uint32(l.query)+1)
	}
	t.open = -1
}

func (t *timings) BeginPass(name string, cmd gpu.CommandList) {
	t.BeginLabel(cmd, name)
}

func (t *timings) EndPass(cmd gpu.CommandList) {
	t.EndLabel(cmd)
}

// Reset resolves slot and makes it the recording slot. It must only run once the slot's fence
// has been reached.
func (t *timings) Reset(slot int) {
	if slot < 0 || slot >= len(t.slots) {
		panic(errors.AssertionFailedf("timings slot %d out of range [0, %d)", slot, len(t.slots)))
	}
	if t.open >= 0 {
		common.Logger().Warn("timings: label left open at frame end", "label", t.slots[t.current].labels[t.open].name)
		t.open = -1
	}

	s := &t.slots[slot]
	if len(s.labels) > 0 {
		t.resolve(slot, s)
	}
	s.labels = s.labels[:0]
	s.queries = 0
	t.current = slot
}

func (t *timings) resolve(slot int, s *slotTimings) {
	var stamps []uint64
	if t.queries != nil && s.queries > 0 {
		var err error
		stamps, err = t.queries.ReadTimestamps(slot, s.queries)
		if err != nil {
			common.Logger().Debug("timings: timestamps unavailable", "slot", slot, "error", err)
			stamps = nil
		}
	}

	results := make([]Timing, len(s.labels))
	for i, l := range s.labels {
		results[i] = Timing{Label: l.name, CPU: l.cpu}
		if l.query >= 0 && stamps != nil {
			begin, end := stamps[l.query], stamps[l.query+1]
			if end >= begin {
				results[i].GPU = time.Duration(end - begin)
				results[i].HasGPU = true
			}
		}
	}

	t.mu.Lock()
	t.results = results
	t.mu.Unlock()
}

func (t *timings) Results() []Timing {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Timing(nil), t.results...)
}
