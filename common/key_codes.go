package common

// Key codes delivered by the window collaborator.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyF     = 70  // F key (ASCII)
	KeyP     = 80  // P key (ASCII)
	KeyR     = 82  // R key (ASCII)
	KeyT     = 84  // T key (ASCII)
	KeyMinus = 45  // - key (ASCII)
	KeyEqual = 61  // = key (ASCII)
	KeyEsc   = 256 // Escape key (GLFW)
	KeyF5    = 294 // F5 key (GLFW)
)

// Debug bindings understood by the engine when debug keys are enabled.
const (
	// KeyToggleTAA flips temporal anti-aliasing.
	KeyToggleTAA = KeyT
	// KeyTogglePathTracing flips the path tracing pass.
	KeyTogglePathTracing = KeyP
	// KeyFreezeCulling freezes the culling frustum at the current camera.
	KeyFreezeCulling = KeyF
	// KeyReloadShaders reloads every registered program.
	KeyReloadShaders = KeyF5
	// KeyResolutionDown lowers the render resolution scale.
	KeyResolutionDown = KeyMinus
	// KeyResolutionUp raises the render resolution scale.
	KeyResolutionUp = KeyEqual
)
