// Package profiler reports frame rate, memory and per-pass render timings at a fixed interval.
package profiler

import (
	"log"
	"runtime"
	"slices"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timings"
)

// PassTiming is the mean duration of one labelled pass over a report interval.
type PassTiming struct {
	Label  string
	CPU    time.Duration
	GPU    time.Duration
	HasGPU bool
}

// Report is one interval of statistics.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64
	Graph       graph.Stats
	Passes      []PassTiming
}

type passTotals struct {
	cpu, gpu time.Duration
	samples  int
	gpuCount int
}

// Profiler tracks frame rate, memory statistics and pass timings.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	logger *log.Logger
	now    func() time.Time

	passes    map[string]*passTotals
	passOrder []string
	graph     graph.Stats
}

// ProfilerBuilderOption configures a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often a report is produced.
//
// Parameters:
//   - d: the report interval, ignored if not positive
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval to a Profiler
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithLogger sends reports to logger instead of the standard logger. A nil logger disables output.
func WithLogger(logger *log.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a new Profiler reporting every second to the standard logger.
//
// Parameters:
//   - options: optional builder options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		logger:         log.Default(),
		now:            time.Now,
		passes:         make(map[string]*passTotals),
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per rendered frame with that frame's pass timings and graph counters.
// When the update interval has elapsed a report is logged and returned.
//
// Parameters:
//   - frameTimings: the timings of the most recently completed frame
//   - stats: the render graph counters of the frame
//
// Returns:
//   - Report: the report, valid when ok is true
//   - bool: true if a report was produced this tick
func (p *Profiler) Tick(frameTimings []timings.Timing, stats graph.Stats) (Report, bool) {
	p.frameCount++
	p.graph = stats
	for _, t := range frameTimings {
		tot := p.passes[t.Label]
		if tot == nil {
			tot = &passTotals{}
			p.passes[t.Label] = tot
			p.passOrder = append(p.passOrder, t.Label)
		}
		tot.cpu += t.CPU
		tot.samples++
		if t.HasGPU {
			tot.gpu += t.GPU
			tot.gpuCount++
		}
	}

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	r := p.memoryReport(elapsed)
	r.FPS = float64(p.frameCount) / elapsed.Seconds()
	r.Graph = p.graph
	r.Passes = p.passReport()
	p.log(r)

	p.frameCount = 0
	p.lastTime = currentTime
	clear(p.passes)
	p.passOrder = p.passOrder[:0]
	return r, true
}

func (p *Profiler) memoryReport(elapsed time.Duration) Report {
	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap, TotalAlloc only grows and tracks churn, Sys is the process footprint.
	r := Report{
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:       float64(p.memStats.Sys) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
	}
	if gcCount := r.GCCount; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses.
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return r
}

// passReport averages the accumulated timings, in first-seen order.
func (p *Profiler) passReport() []PassTiming {
	out := make([]PassTiming, 0, len(p.passOrder))
	for _, label := range slices.Clone(p.passOrder) {
		tot := p.passes[label]
		pt := PassTiming{Label: label, CPU: tot.cpu / time.Duration(tot.samples)}
		if tot.gpuCount > 0 {
			pt.GPU = tot.gpu / time.Duration(tot.gpuCount)
			pt.HasGPU = true
		}
		out = append(out, pt)
	}
	return out
}

func (p *Profiler) log(r Report) {
	if p.logger == nil {
		return
	}
	p.logger.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		r.FPS, r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB)
	p.logger.Printf("[Profiler] Graph: %d passes | %d barriers | %d resolves | %d images | %d buffers",
		r.Graph.Passes, r.Graph.Barriers, r.Graph.Resolves, r.Graph.PhysicalImages, r.Graph.PhysicalBuffers)
	for _, pt := range r.Passes {
		if pt.HasGPU {
			p.logger.Printf("[Profiler]   %-28s cpu %8.3f ms | gpu %8.3f ms", pt.Label, ms(pt.CPU), ms(pt.GPU))
		} else {
			p.logger.Printf("[Profiler]   %-28s cpu %8.3f ms", pt.Label, ms(pt.CPU))
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
