package timings

// TimingsBuilderOption is a function that configures a timings recorder.
type TimingsBuilderOption func(*timings)

// WithMaxLabels sets how many labels per slot receive GPU timestamps.
//
// Parameters:
//   - n: the label limit, at least 1
//
// Returns:
//   - TimingsBuilderOption: a function that applies the limit
func WithMaxLabels(n int) TimingsBuilderOption {
	return func(t *timings) {
		if n > 0 {
			t.maxLabels = n
		}
	}
}

// WithoutGPU disables GPU timestamps even when the device supports them.
//
// Returns:
//   - TimingsBuilderOption: a function that disables GPU timings
func WithoutGPU() TimingsBuilderOption {
	return func(t *timings) {
		t.queries = nil
	}
}
