package window

import (
	"context"
	"runtime"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides the platform surface the renderer presents to, resize notifications and
// input events.
//
// Callbacks run on the goroutine that calls ProcessMessages.
type Window interface {
	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new framebuffer extent in pixels
	SetResizeCallback(callback func(extent common.Extent2D))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key code (see common.Key*)
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseButtonCallback sets the callback for mouse button events.
	//
	// Parameters:
	//   - callback: function receiving the button index, whether it was pressed and the cursor position
	SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	//
	// Parameters:
	//   - callback: function receiving mouse x, y position
	SetMouseMoveCallback(callback func(x, y int32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the window, created by the
	// wgpuglfw bridge for the current platform.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true until the window is closed.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never opened
	Close() error

	// ProcessMessages runs the message loop on the calling goroutine until the window closes
	// or ctx is done.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	ProcessMessages(ctx context.Context)

	// Extent returns the current framebuffer extent in pixels.
	Extent() common.Extent2D
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title string

	// Size limits applied to the platform window. Zero means unlimited.
	maxExtent common.Extent2D
	minExtent common.Extent2D

	extent common.Extent2D

	// internalWindow holds the platform window (glfwWindow).
	internalWindow any

	onResize      func(extent common.Extent2D)
	onScroll      func(delta float32)
	onKeyDown     func(keyCode uint32)
	onKeyUp       func(keyCode uint32)
	onMouseButton func(button int, pressed bool, x, y int32)
	onMouseMove   func(x, y int32)
}

var _ Window = &engineWindow{}

// NewWindow opens a platform window with the specified options.
//
// The calling goroutine is locked to its OS thread; ProcessMessages must run on it.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-graph",
		minExtent: common.Extent2D{Width: 320, Height: 200},
		extent:    common.Extent2D{Width: 1280, Height: 720},
	}
	for _, opt := range options {
		opt(w)
	}
	if w.extent.IsZero() {
		return nil, errors.AssertionFailedf("window %q has a zero extent", w.title)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, errors.Wrap(err, "create platform window")
	}
	common.Logger().Info("window opened", "title", w.title, "extent", w.extent.String())
	return w, nil
}

func (w *engineWindow) SetResizeCallback(callback func(extent common.Extent2D)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages(ctx context.Context) {
	for w.IsRunning() && ctx.Err() == nil {
		if !platformProcessMessages(w) {
			break
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Extent() common.Extent2D {
	return w.extent
}

// resized records a framebuffer resize. Minimized windows report a zero extent, which is not
// forwarded.
func (w *engineWindow) resized(extent common.Extent2D) {
	if extent.IsZero() || extent == w.extent {
		return
	}
	w.extent = extent
	if w.onResize != nil {
		w.onResize(extent)
	}
}
