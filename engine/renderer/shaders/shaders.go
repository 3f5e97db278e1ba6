// Package shaders embeds the WGSL programs of the renderer. Program names are file names
// without the .wgsl extension.
package shaders

import "embed"

//go:embed *.wgsl
var FS embed.FS
