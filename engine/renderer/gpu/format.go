// Package gpu is the backend abstraction used by the render core: resource descriptions,
// usage states and the barriers between them, and the device, command list and swapchain
// interfaces every backend implements.
package gpu

// Format is a backend-neutral texel format.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Uint
	FormatR32Float
	FormatDepth32Float
)

var formatNames = [...]string{
	FormatUndefined:      "undefined",
	FormatR8Unorm:        "r8unorm",
	FormatRGBA8Unorm:     "rgba8unorm",
	FormatRGBA8UnormSrgb: "rgba8unorm-srgb",
	FormatBGRA8Unorm:     "bgra8unorm",
	FormatBGRA8UnormSrgb: "bgra8unorm-srgb",
	FormatRGBA16Float:    "rgba16float",
	FormatRGBA32Float:    "rgba32float",
	FormatR32Uint:        "r32uint",
	FormatR32Float:       "r32float",
	FormatDepth32Float:   "depth32float",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// IsDepth reports whether the format is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth32Float
}

// IsSrgb reports whether the format applies sRGB encoding on write.
func (f Format) IsSrgb() bool {
	return f == FormatRGBA8UnormSrgb || f == FormatBGRA8UnormSrgb
}

// BytesPerPixel returns the size of one texel in bytes, or 0 for FormatUndefined.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRGBA8Unorm, FormatRGBA8UnormSrgb, FormatBGRA8Unorm, FormatBGRA8UnormSrgb,
		FormatR32Uint, FormatR32Float, FormatDepth32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}
