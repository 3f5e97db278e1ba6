package common

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// With an identity view-projection the frustum is the clip volume: x and y in [-1, 1], z in [0, 1].
func TestExtractFrustumIdentity(t *testing.T) {
	f := ExtractFrustum(mgl32.Ident4())

	near := f.Planes[FrustumNear]
	if !near.Normal.ApproxEqual(mgl32.Vec3{0, 0, 1}) || near.Distance != 0 {
		t.Errorf("near plane = %+v", near)
	}
	far := f.Planes[FrustumFar]
	if !far.Normal.ApproxEqual(mgl32.Vec3{0, 0, -1}) || far.Distance != 1 {
		t.Errorf("far plane = %+v", far)
	}

	tests := []struct {
		name   string
		center mgl32.Vec3
		radius float32
		want   bool
	}{
		{"inside", mgl32.Vec3{0, 0, 0.5}, 0.1, true},
		{"straddles left", mgl32.Vec3{-1.05, 0, 0.5}, 0.1, true},
		{"left of frustum", mgl32.Vec3{-2, 0, 0.5}, 0.5, false},
		{"behind near", mgl32.Vec3{0, 0, -1}, 0.5, false},
		{"past far", mgl32.Vec3{0, 0, 3}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ContainsSphere(tt.center, tt.radius); got != tt.want {
				t.Errorf("ContainsSphere = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsAABB(t *testing.T) {
	f := ExtractFrustum(mgl32.Ident4())
	if !f.ContainsAABB(mgl32.Vec3{-0.5, -0.5, 0.2}, mgl32.Vec3{0.5, 0.5, 0.4}) {
		t.Error("box inside the frustum was rejected")
	}
	if !f.ContainsAABB(mgl32.Vec3{0.9, 0.9, 0.9}, mgl32.Vec3{5, 5, 5}) {
		t.Error("box overlapping a corner was rejected")
	}
	if f.ContainsAABB(mgl32.Vec3{1.5, -0.5, 0.2}, mgl32.Vec3{2, 0.5, 0.4}) {
		t.Error("box right of the frustum was accepted")
	}
}

func TestFatalClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"device lost", MarkDeviceLost(errors.New("vk")), true},
		{"fence timeout", errors.Wrap(ErrFenceTimeout, "frame 3"), true},
		{"out of memory", MarkOutOfMemory(errors.New("alloc")), true},
		{"resize", MarkNeedsResize(errors.New("suboptimal")), false},
		{"plain", errors.New("other"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
	aborts := []struct {
		name  string
		err   error
		abort bool
	}{
		{"nil", nil, false},
		{"fatal", MarkDeviceLost(errors.New("vk")), true},
		{"assertion", errors.AssertionFailedf("pass %q", "taa"), true},
		{"wrapped assertion", errors.Wrap(errors.AssertionFailedf("bad"), "frame 2"), true},
		{"invalid handle", errors.Wrapf(ErrInvalidHandle, "image %s", "handle(0:1)"), true},
		{"resize", MarkNeedsResize(errors.New("suboptimal")), false},
		{"plain", errors.New("ring full"), false},
	}
	for _, tt := range aborts {
		if got := ShouldAbort(tt.err); got != tt.abort {
			t.Errorf("ShouldAbort(%s) = %v, want %v", tt.name, got, tt.abort)
		}
	}
	if !errors.Is(MarkNeedsResize(errors.New("x")), ErrNeedsResize) {
		t.Error("MarkNeedsResize lost its mark")
	}
	if MarkDeviceLost(nil) != nil {
		t.Error("marking nil should stay nil")
	}
}
