package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithItems adds initial items to the scene.
//
// Parameters:
//   - items: the items to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithItems(items ...DrawItem) SceneBuilderOption {
	return func(s *scene) {
		for _, item := range items {
			s.add(item)
		}
	}
}

// BuilderOption is a functional option for configuring a draw list Builder.
type BuilderOption func(b *builder)

// WithWorkers sets the number of worker goroutines transforming draw items.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - BuilderOption: option function to apply
func WithWorkers(n int) BuilderOption {
	return func(b *builder) {
		b.workers = max(n, 1)
	}
}

// WithChunkSize sets how many draw items one worker task handles.
//
// Parameters:
//   - n: items per task (minimum 1)
//
// Returns:
//   - BuilderOption: option function to apply
func WithChunkSize(n int) BuilderOption {
	return func(b *builder) {
		b.chunkSize = max(n, 1)
	}
}
