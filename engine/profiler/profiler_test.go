package profiler

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timings"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickAveragesPasses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var out bytes.Buffer
	p := NewProfiler(WithClock(clock.now), WithLogger(log.New(&out, "", 0)), WithInterval(time.Second))

	frame := func(cpu time.Duration, gpu time.Duration) []timings.Timing {
		return []timings.Timing{
			{Label: "culling", CPU: cpu, GPU: gpu, HasGPU: true},
			{Label: "tonemap", CPU: cpu},
		}
	}

	clock.t = clock.t.Add(400 * time.Millisecond)
	if _, ok := p.Tick(frame(time.Millisecond, 2*time.Millisecond), graph.Stats{Passes: 5}); ok {
		t.Fatal("report before the interval elapsed")
	}
	clock.t = clock.t.Add(600 * time.Millisecond)
	r, ok := p.Tick(frame(3*time.Millisecond, 4*time.Millisecond), graph.Stats{Passes: 6, Barriers: 9})
	if !ok {
		t.Fatal("no report after the interval")
	}

	if r.FPS != 2 {
		t.Errorf("FPS = %f, want 2", r.FPS)
	}
	if r.Graph.Barriers != 9 {
		t.Errorf("graph stats = %+v, want the last frame's", r.Graph)
	}
	if len(r.Passes) != 2 || r.Passes[0].Label != "culling" || r.Passes[1].Label != "tonemap" {
		t.Fatalf("passes = %+v", r.Passes)
	}
	if r.Passes[0].CPU != 2*time.Millisecond || r.Passes[0].GPU != 3*time.Millisecond || !r.Passes[0].HasGPU {
		t.Errorf("culling = %+v", r.Passes[0])
	}
	if r.Passes[1].HasGPU {
		t.Error("tonemap has no GPU samples")
	}
	if !strings.Contains(out.String(), "[Profiler] FPS: 2.00") || !strings.Contains(out.String(), "culling") {
		t.Errorf("log output = %q", out.String())
	}

	// The next interval starts empty.
	clock.t = clock.t.Add(time.Second)
	r, ok = p.Tick(nil, graph.Stats{})
	if !ok || len(r.Passes) != 0 || r.FPS != 1 {
		t.Errorf("second report = %+v, %v", r, ok)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithClock(clock.now), WithLogger(nil))
	clock.t = clock.t.Add(2 * time.Second)
	if _, ok := p.Tick(nil, graph.Stats{}); !ok {
		t.Error("expected a report")
	}
}
