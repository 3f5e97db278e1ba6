package timings

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu/gputest"
)

func recordLabels(t *testing.T, dev *gputest.Device, tm Timings, slot int, names ...string) *gputest.CommandList {
	t.Helper()
	tm.Reset(slot)
	cmd, err := dev.BeginCommands(slot, "frame")
	if err != nil {
		t.Fatalf("BeginCommands failed: %v", err)
	}
	for _, name := range names {
		tm.BeginLabel(cmd, name)
		tm.EndLabel(cmd)
	}
	return cmd.(*gputest.CommandList)
}

func TestResultsResolveAfterSlotReset(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 2)
	if !tm.GPUSupported() {
		t.Fatal("gputest device should support timestamps")
	}

	recordLabels(t, dev, tm, 0, "culling", "opaque")
	if len(tm.Results()) != 0 {
		t.Fatal("results available before the slot was reset")
	}
	recordLabels(t, dev, tm, 1, "culling")
	tm.Reset(0)

	results := tm.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, want := range []string{"culling", "opaque"} {
		r := results[i]
		if r.Label != want {
			t.Errorf("result %d: expected label %q, got %q", i, want, r.Label)
		}
		if !r.HasGPU || r.GPU != time.Microsecond {
			t.Errorf("result %d: expected 1µs GPU time, got %v (has=%v)", i, r.GPU, r.HasGPU)
		}
		if r.CPU < 0 {
			t.Errorf("result %d: negative CPU time %v", i, r.CPU)
		}
	}
}

func TestLabelsDoNotNest(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 2)
	tm.Reset(0)
	cmd, _ := dev.BeginCommands(0, "frame")
	tm.BeginLabel(cmd, "outer")
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nested label")
		}
	}()
	tm.BeginLabel(cmd, "inner")
}

func TestEndLabelWithoutBeginPanics(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 1)
	tm.Reset(0)
	cmd, _ := dev.BeginCommands(0, "frame")
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	tm.EndLabel(cmd)
}

func TestWithoutGPU(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 1, WithoutGPU())
	cl := recordLabels(t, dev, tm, 0, "tonemap")
	if n := len(cl.Filter(gputest.OpTimestamp)); n != 0 {
		t.Errorf("expected no timestamps, got %d", n)
	}
	tm.Reset(0)
	results := tm.Results()
	if len(results) != 1 || results[0].HasGPU {
		t.Fatalf("expected one CPU-only result, got %+v", results)
	}
}

func TestMaxLabelsLimitsTimestamps(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 1, WithMaxLabels(1))
	cl := recordLabels(t, dev, tm, 0, "a", "b")
	if n := len(cl.Filter(gputest.OpTimestamp)); n != 2 {
		t.Fatalf("expected 2 timestamps, got %d", n)
	}
	tm.Reset(0)
	results := tm.Results()
	if !results[0].HasGPU || results[1].HasGPU {
		t.Errorf("expected GPU timing only for the first label, got %+v", results)
	}
}

func TestPassObserverUsesPassNames(t *testing.T) {
	dev := gputest.NewDevice(common.Extent2D{Width: 8, Height: 8})
	tm := NewTimings(dev, 1)
	tm.Reset(0)
	cmd, _ := dev.BeginCommands(0, "frame")
	var obs interface {
		BeginPass(string, gpu.CommandList)
		EndPass(gpu.CommandList)
	} = tm
	obs.BeginPass("taa", cmd)
	obs.EndPass(cmd)
	tm.Reset(0)
	if r := tm.Results(); len(r) != 1 || r[0].Label != "taa" {
		t.Fatalf("unexpected results %+v", r)
	}
}
