package window

import "github.com/Carmen-Shannon/oxy-graph/common"

// WindowBuilderOption is a functional option for configuring an engineWindow.
// Use the With* functions to create options.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithExtent sets the initial window size.
//
// Parameters:
//   - extent: initial size in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithExtent(extent common.Extent2D) WindowBuilderOption {
	return func(w *engineWindow) {
		w.extent = extent
	}
}

// WithMaxExtent limits how large the window can be resized. A zero dimension is unlimited.
//
// Parameters:
//   - extent: maximum size in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithMaxExtent(extent common.Extent2D) WindowBuilderOption {
	return func(w *engineWindow) {
		w.maxExtent = extent
	}
}

// WithMinExtent limits how small the window can be resized.
//
// Parameters:
//   - extent: minimum size in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithMinExtent(extent common.Extent2D) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minExtent = extent
	}
}
