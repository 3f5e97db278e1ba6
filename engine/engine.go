package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/ui"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// engine implements the Engine interface.
// Coordinates the tick, render and quit goroutines with the window message loop.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	camera   camera.Camera

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool
	debugKeys        bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	mu      sync.Mutex
	source  scene.Source
	builder scene.Builder
	overlay func() *ui.DrawData

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It drives the renderer from a scene, runs the game tick and pumps the window.
type Engine interface {
	// Window returns the window, nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the render core.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, input processing and camera movement.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetScene replaces the scene drawn each frame. Nil draws an empty frame.
	//
	// Parameters:
	//   - s: the scene source
	SetScene(s scene.Source)

	// SetOverlay registers the function that supplies UI geometry each frame.
	//
	// Parameters:
	//   - overlay: returns the frame's UI draw data, or nil for none
	SetOverlay(overlay func() *ui.DrawData)

	// Run starts the tick and render goroutines and, if there is a window, pumps its messages on
	// the calling goroutine. It blocks until the window closes, Quit is called, ctx is done or
	// the renderer reports a fatal error.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: the fatal error that stopped the engine, or nil
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.builder == nil {
		e.builder = scene.NewBuilder()
	}
	if e.camera != nil && e.renderer != nil {
		e.renderer.SetCamera(e.camera)
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.resize)
		if e.debugKeys {
			e.window.SetKeyDownCallback(e.handleKey)
		}
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Run(ctx context.Context) error {
	if e.renderer == nil {
		return errors.AssertionFailedf("engine has no renderer")
	}
	e.running.Store(true)
	defer e.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.handleEngine(gctx) })
	g.Go(func() error { return e.handleRender(gctx) })
	g.Go(func() error { return e.handleQuit(gctx) })

	if e.window != nil {
		e.window.ProcessMessages(gctx)
		e.signalQuit()
	}

	err := g.Wait()
	if idleErr := e.renderer.WaitIdle(); idleErr != nil && err == nil && !errors.Is(idleErr, common.ErrDeviceLost) {
		err = idleErr
	}
	return err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleEngine runs the fixed-rate tick loop. Fires the tick callback at the configured tick
// rate and listens for dynamic rate changes via tickRateChannel.
func (e *engine) handleEngine(ctx context.Context) error {
	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
			if e.camera != nil {
				e.camera.Update()
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop: build the draw list, render,
// present. Fatal and programmer errors (common.ShouldAbort) are returned and stop the group;
// other frame errors are logged and the loop continues. A panic is turned into an error.
func (e *engine) handleRender(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("render goroutine panicked: %v", r)
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		list, overlay := e.frameInputs()
		if err := e.renderer.Render(ctx, list, overlay); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if common.ShouldAbort(err) {
				log.Printf("[Engine] render aborted on frame %d: %v", e.renderer.FrameCount(), err)
				return err
			}
			log.Printf("[Engine] frame %d: %v", e.renderer.FrameCount(), err)
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.profilingEnabled.Load() && e.profiler != nil {
			e.profiler.Tick(e.renderer.Timings(), e.renderer.Stats())
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// frameInputs builds the draw list of the current scene and collects the overlay.
func (e *engine) frameInputs() (*scene.DrawList, *ui.DrawData) {
	e.mu.Lock()
	source, overlay := e.source, e.overlay
	e.mu.Unlock()

	var list *scene.DrawList
	if source != nil {
		built := e.builder.Build(source)
		list = &built
	}
	if overlay == nil {
		return list, nil
	}
	return list, overlay()
}

// handleQuit turns cancellation of the parent context into a quit signal.
func (e *engine) handleQuit(ctx context.Context) error {
	select {
	case <-e.quitChannel:
	case <-ctx.Done():
		e.signalQuit()
	}
	return nil
}

func (e *engine) resize(extent common.Extent2D) {
	e.renderer.Resize(extent)
	if e.camera != nil {
		e.camera.SetAspect(float32(extent.Width) / float32(extent.Height))
	}
}

// handleKey applies the debug key bindings.
func (e *engine) handleKey(keyCode uint32) {
	s := e.renderer.Settings()
	switch keyCode {
	case common.KeyToggleTAA:
		s.EnableTAA = !s.EnableTAA
	case common.KeyTogglePathTracing:
		s.EnablePathTracing = !s.EnablePathTracing
	case common.KeyFreezeCulling:
		s.FreezeCameraCulling = !s.FreezeCameraCulling
	case common.KeyResolutionDown:
		s.ResolutionScale = max(s.ResolutionScale-0.25, 0.25)
	case common.KeyResolutionUp:
		s.ResolutionScale = min(s.ResolutionScale+0.25, 4)
	case common.KeyReloadShaders:
		for _, name := range e.renderer.Programs().Names() {
			if err := e.renderer.ReloadShader(name); err != nil {
				log.Printf("[Engine] reload %s: %v", name, err)
			}
		}
		return
	default:
		return
	}
	e.renderer.SetSettings(s)
	log.Printf("[Engine] settings: taa=%t path_tracing=%t freeze_culling=%t scale=%.2f",
		s.EnableTAA, s.EnablePathTracing, s.FreezeCameraCulling, s.ResolutionScale)
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send; a pending update is replaced.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetScene(s scene.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = s
}

func (e *engine) SetOverlay(overlay func() *ui.DrawData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overlay = overlay
}
