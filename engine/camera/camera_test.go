package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestOrbitControllerPosition(t *testing.T) {
	cc := NewOrbitController(WithRadius(10), WithElevation(0), WithAzimuth(0))
	if got := cc.Position(); got.Sub(mgl32.Vec3{0, 0, 10}).Len() > 1e-4 {
		t.Fatalf("expected (0,0,10), got %v", got)
	}
	cc.Orbit(math.Pi/2, 0)
	if got := cc.Position(); got.Sub(mgl32.Vec3{10, 0, 0}).Len() > 1e-4 {
		t.Errorf("expected (10,0,0) after a quarter orbit, got %v", got)
	}
}

func TestOrbitControllerHalfTurn(t *testing.T) {
	cc := NewOrbitController(WithRadius(4), WithElevation(0), WithAzimuth(0))
	cc.Orbit(math.Pi, 0)
	if got := cc.Position(); got.Sub(mgl32.Vec3{0, 0, -4}).Len() > 1e-4 {
		t.Errorf("expected (0,0,-4) after a half orbit, got %v", got)
	}
}

func TestOrbitControllerClamps(t *testing.T) {
	cc := NewOrbitController(WithRadius(10), WithRadiusBounds(5, 20), WithElevationBounds(-1, 1), WithZoomSpeed(1))
	cc.Zoom(100)
	if cc.Radius() != 5 {
		t.Errorf("expected radius clamped to 5, got %v", cc.Radius())
	}
	cc.Orbit(0, 10)
	if cc.Elevation() != 1 {
		t.Errorf("expected elevation clamped to 1, got %v", cc.Elevation())
	}
}

func TestCameraFrustumContainsTarget(t *testing.T) {
	cc := NewOrbitController(WithRadius(5), WithElevation(0))
	c := NewCamera(WithController(cc), WithClipPlanes(0.1, 100))
	f := c.Frustum()
	if !f.ContainsSphere(mgl32.Vec3{}, 0.5) {
		t.Error("target should be inside the frustum")
	}
	if f.ContainsSphere(mgl32.Vec3{0, 0, 20}, 0.5) {
		t.Error("a point behind the camera should be outside the frustum")
	}
}

func TestCameraWithoutControllerKeepsIdentityView(t *testing.T) {
	c := NewCamera()
	if c.View() != mgl32.Ident4() {
		t.Error("expected identity view without a controller")
	}
	c.SetAspect(2)
	if c.Aspect() != 2 {
		t.Errorf("expected aspect 2, got %v", c.Aspect())
	}
}
