package timeline

import (
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ring"
)

// TimelineBuilderOption is a functional option applied to a timeline during construction via NewTimeline.
type TimelineBuilderOption func(*timeline)

// WithQueueLength sets the number of frame slots. Values below 1 are treated as 1.
//
// Parameters:
//   - n: frames in flight
//
// Returns:
//   - TimelineBuilderOption: a function that applies the queue length option to a timeline
func WithQueueLength(n int) TimelineBuilderOption {
	return func(t *timeline) {
		if n < 1 {
			n = 1
		}
		t.slots = make([]slot, n)
	}
}

// WithFenceTimeout overrides how long StartFrame waits for a slot's fence.
//
// Parameters:
//   - d: the timeout, values <= 0 keep the default
//
// Returns:
//   - TimelineBuilderOption: a function that applies the timeout option to a timeline
func WithFenceTimeout(d time.Duration) TimelineBuilderOption {
	return func(t *timeline) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithRings registers ring buffers whose regions follow the frame slots.
//
// Parameters:
//   - rings: rings with one region per slot
//
// Returns:
//   - TimelineBuilderOption: a function that applies the rings option to a timeline
func WithRings(rings ...*ring.Ring) TimelineBuilderOption {
	return func(t *timeline) {
		t.rings = append(t.rings, rings...)
	}
}

// WithSlotResetHook registers fn to run every time a slot is reused, after its fence wait.
//
// Parameters:
//   - fn: called with the slot index
//
// Returns:
//   - TimelineBuilderOption: a function that applies the hook option to a timeline
func WithSlotResetHook(fn func(slot int)) TimelineBuilderOption {
	return func(t *timeline) {
		t.resetHooks = append(t.resetHooks, fn)
	}
}
