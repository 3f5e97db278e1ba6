// Package camera provides the perspective camera whose matrices feed the global uniform and
// the culling frustum, and an orbit controller that owns its position.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	position   mgl32.Vec3
	view       mgl32.Mat4
	projection mgl32.Mat4

	controller Controller
}

// Camera holds perspective settings and computes view and projection matrices from an attached
// Controller each frame via Update().
type Camera interface {
	// Up returns the camera's up vector.
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	Near() float32
	Far() float32

	// Position returns the world-space eye position of the last Update.
	Position() mgl32.Vec3

	// View returns the world-to-view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	View() mgl32.Mat4

	// Projection returns the view-to-clip matrix, without jitter.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	Projection() mgl32.Mat4

	// ViewProjection returns Projection() * View().
	//
	// Returns:
	//   - mgl32.Mat4: the combined matrix
	ViewProjection() mgl32.Mat4

	// Frustum returns the world-space frustum of the view-projection matrix.
	//
	// Returns:
	//   - common.Frustum: the six planes, normals pointing inward
	Frustum() common.Frustum

	// Controller returns the attached Controller, or nil.
	Controller() Controller

	// Update reads position and target from the controller and recomputes the matrices.
	// Without a controller it does nothing.
	Update()

	SetUp(up mgl32.Vec3)
	SetFov(fov float32)
	// SetAspect sets the aspect ratio, normally from the render resolution.
	SetAspect(aspect float32)
	SetNear(near float32)
	SetFar(far float32)
	SetController(ctrl Controller)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings: 45 degree field of view,
// aspect 1 and planes at 0.1 and 100.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		up:         mgl32.Vec3{0, 1, 0},
		fov:        45.0 * (math.Pi / 180.0),
		aspect:     1.0,
		near:       0.1,
		far:        100.0,
		view:       mgl32.Ident4(),
		projection: mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) View() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) Projection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) ViewProjection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection.Mul4(c.view)
}

func (c *cameraImpl) Frustum() common.Frustum {
	return common.ExtractFrustum(c.ViewProjection())
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.set(func() { c.up = up })
}

func (c *cameraImpl) SetFov(fov float32) {
	c.set(func() { c.fov = fov })
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.set(func() { c.aspect = aspect })
}

func (c *cameraImpl) SetNear(near float32) {
	c.set(func() { c.near = near })
}

func (c *cameraImpl) SetFar(far float32) {
	c.set(func() { c.far = far })
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.set(func() { c.controller = ctrl })
}

// set applies fn under the lock and recomputes the matrices.
func (c *cameraImpl) set(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
	c.updateMatrices()
}

// updateMatrices recalculates the view and projection matrices. The view matrix is only
// rebuilt when a controller is attached. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.projection = perspective(c.fov, c.aspect, c.near, c.far)
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.view = mgl32.LookAtV(c.position, c.controller.Target(), c.up)
}

// perspective is a right-handed perspective projection mapping depth to [0, 1], the clip
// range of every backend and the one common.ExtractFrustum expects.
func perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = near * far / (near - far)
	return m
}
