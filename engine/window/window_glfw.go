package window

import (
	"runtime"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow is the GLFW state behind an engineWindow.
type glfwWindow struct {
	parent  *engineWindow
	window  *glfw.Window
	running bool
}

// newPlatformWindow opens a GLFW window without a client API (the surface belongs to WebGPU),
// applies the size limits and binds the input callbacks.
//
// GLFW must be driven from the thread that initialized it, so the calling goroutine is locked to
// its OS thread for the lifetime of the window.
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "initialize GLFW")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(int(w.extent.Width), int(w.extent.Height), w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "create GLFW window")
	}
	win.SetSizeLimits(
		sizeLimit(w.minExtent.Width), sizeLimit(w.minExtent.Height),
		sizeLimit(w.maxExtent.Width), sizeLimit(w.maxExtent.Height),
	)

	gw := &glfwWindow{parent: w, window: win, running: true}
	gw.bindInput()
	w.internalWindow = gw

	// The swapchain is sized in framebuffer pixels, which differ from screen coordinates on
	// high-DPI displays.
	fbWidth, fbHeight := win.GetFramebufferSize()
	w.extent = common.Extent2D{Width: uint32(fbWidth), Height: uint32(fbHeight)}
	return nil
}

// bindInput forwards GLFW events to the parent's callbacks. Escape closes the window.
func (gw *glfwWindow) bindInput() {
	w := gw.parent

	gw.window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			gw.window.SetShouldClose(true)
			return
		}
		if action == glfw.Release {
			if w.onKeyUp != nil {
				w.onKeyUp(uint32(key))
			}
			return
		}
		if w.onKeyDown != nil {
			w.onKeyDown(uint32(key))
		}
	})

	gw.window.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})

	gw.window.SetMouseButtonCallback(func(win *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if w.onMouseButton == nil || action == glfw.Repeat {
			return
		}
		x, y := win.GetCursorPos()
		w.onMouseButton(int(button), action == glfw.Press, int32(x), int32(y))
	})

	gw.window.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if w.onMouseMove != nil {
			w.onMouseMove(int32(x), int32(y))
		}
	})

	gw.window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(common.Extent2D{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))})
	})
}

// sizeLimit maps an unset (zero) limit to glfw.DontCare.
func sizeLimit(v uint32) int {
	if v == 0 {
		return glfw.DontCare
	}
	return int(v)
}

func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw, ok := w.internalWindow.(*glfwWindow)
	return ok && gw.running && !gw.window.ShouldClose()
}

// platformCloseWindow destroys the window and terminates GLFW.
func platformCloseWindow(w *engineWindow) error {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return errors.New("window is not open")
	}
	gw.running = false
	gw.window.Destroy()
	glfw.Terminate()
	w.internalWindow = nil
	return nil
}

// platformProcessMessages polls pending events without blocking and reports whether the window
// is still open.
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
