package graph

// GraphBuilderOption is a functional option applied to a graph during construction via NewGraph.
type GraphBuilderOption func(*graph)

// WithPassObserver sets an observer notified around every pass.
//
// Parameters:
//   - o: the observer, typically the frame slot's timings
//
// Returns:
//   - GraphBuilderOption: a function that applies the observer option to a graph
func WithPassObserver(o PassObserver) GraphBuilderOption {
	return func(g *graph) {
		g.observer = o
	}
}

// WithMaxIdleFrames sets how many executions a pooled resource survives unused.
//
// Parameters:
//   - n: executions before an idle pooled resource is destroyed
//
// Returns:
//   - GraphBuilderOption: a function that applies the idle limit option to a graph
func WithMaxIdleFrames(n uint64) GraphBuilderOption {
	return func(g *graph) {
		g.maxIdleFrames = n
	}
}
