package common

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy shared by every renderer package. Backends mark their failures with these
// sentinels so the frame loop can decide between resizing, skipping and shutting down.
var (
	// ErrDeviceLost is fatal: the GPU device can no longer execute work.
	ErrDeviceLost = errors.New("gpu device lost")

	// ErrFenceTimeout is returned when a frame fence was not reached within the timeout.
	// It is marked as ErrDeviceLost.
	ErrFenceTimeout = errors.Mark(errors.New("fence wait timed out"), ErrDeviceLost)

	// ErrOutOfMemory is fatal: a required allocation could not be satisfied.
	ErrOutOfMemory = errors.New("gpu out of memory")

	// ErrNeedsResize is recoverable: the swapchain is out of date or suboptimal.
	ErrNeedsResize = errors.New("swapchain needs resize")

	// ErrInvalidHandle reports a stale or out of range handle. It always indicates a programmer error.
	ErrInvalidHandle = errors.New("invalid handle")
)

// IsFatal reports whether err ends the session: device lost, fence timeout or out of memory.
//
// Parameters:
//   - err: the error to classify
//
// Returns:
//   - bool: true if the frame loop must stop
func IsFatal(err error) bool {
	return err != nil && errors.IsAny(err, ErrDeviceLost, ErrOutOfMemory)
}

// ShouldAbort reports whether the frame loop must stop on err: a fatal error, a programmer
// error (assertion failure or invalid handle), or anything else the loop cannot retry.
//
// Parameters:
//   - err: the error returned by a frame
//
// Returns:
//   - bool: true if the loop must return err instead of rendering the next frame
func ShouldAbort(err error) bool {
	if err == nil {
		return false
	}
	return IsFatal(err) || errors.HasAssertionFailure(err) || errors.Is(err, ErrInvalidHandle)
}

// MarkDeviceLost wraps err so that errors.Is(err, ErrDeviceLost) holds.
//
// Parameters:
//   - err: the backend error
//
// Returns:
//   - error: the marked error, or nil if err is nil
func MarkDeviceLost(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrDeviceLost)
}

// MarkOutOfMemory wraps err so that errors.Is(err, ErrOutOfMemory) holds.
//
// Parameters:
//   - err: the backend error
//
// Returns:
//   - error: the marked error, or nil if err is nil
func MarkOutOfMemory(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrOutOfMemory)
}

// MarkNeedsResize wraps err so that errors.Is(err, ErrNeedsResize) holds.
//
// Parameters:
//   - err: the backend error
//
// Returns:
//   - error: the marked error, or nil if err is nil
func MarkNeedsResize(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrNeedsResize)
}
