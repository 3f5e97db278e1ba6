package gpu

// ImageTransition describes the synchronization needed to move an image from one usage to another.
type ImageTransition struct {
	From ImageUsage
	To   ImageUsage
	Src  AccessScope
	Dst  AccessScope
}

// MemoryOnly reports whether the transition keeps the layout and only orders memory accesses.
func (t ImageTransition) MemoryOnly() bool {
	return t.Src.Layout == t.Dst.Layout
}

// ComputeImageBarrier is the barrier decision for images, as a pure function of the recorded
// usage and the required usage.
//
// A transition is needed when the usages differ. When they are equal, a write usage still
// needs a memory-only barrier so a write in one pass is ordered against the write in the next.
// Equal read usages need nothing.
//
// Parameters:
//   - old: the usage currently recorded on the image
//   - next: the usage the next command requires
//
// Returns:
//   - ImageTransition: the transition to record
//   - bool: false if no barrier is needed
func ComputeImageBarrier(old, next ImageUsage) (ImageTransition, bool) {
	if old == next && !next.IsWrite() {
		return ImageTransition{}, false
	}
	return ImageTransition{From: old, To: next, Src: old.Scope(), Dst: next.Scope()}, true
}

// BufferTransition describes the synchronization needed to move a buffer from one usage to another.
type BufferTransition struct {
	From BufferUsage
	To   BufferUsage
	Src  AccessScope
	Dst  AccessScope
}

// ComputeBufferBarrier is the buffer equivalent of ComputeImageBarrier.
//
// Parameters:
//   - old: the usage currently recorded on the buffer
//   - next: the usage the next command requires
//
// Returns:
//   - BufferTransition: the transition to record
//   - bool: false if no barrier is needed
func ComputeBufferBarrier(old, next BufferUsage) (BufferTransition, bool) {
	if old == next && !next.IsWrite() {
		return BufferTransition{}, false
	}
	return BufferTransition{From: old, To: next, Src: old.Scope(), Dst: next.Scope()}, true
}

// ImageBarrier is one image transition bound to a backend image.
type ImageBarrier struct {
	Image      Image
	Transition ImageTransition
	// Discard transitions from an undefined layout, dropping the previous contents.
	Discard bool
}

// BufferBarrier is one buffer transition bound to a backend buffer range.
type BufferBarrier struct {
	Buffer     Buffer
	Offset     uint64
	Size       uint64
	Transition BufferTransition
}

// BarrierBatch is the set of barriers recorded as one pipeline barrier command.
type BarrierBatch struct {
	Images  []ImageBarrier
	Buffers []BufferBarrier
}

// Empty reports whether the batch holds no barriers.
func (b BarrierBatch) Empty() bool {
	return len(b.Images) == 0 && len(b.Buffers) == 0
}

// Len returns the number of barriers in the batch.
func (b BarrierBatch) Len() int {
	return len(b.Images) + len(b.Buffers)
}

// Stages returns the union of source and destination stages of every barrier in the batch.
//
// Returns:
//   - PipelineStage: source stages
//   - PipelineStage: destination stages
func (b BarrierBatch) Stages() (PipelineStage, PipelineStage) {
	var src, dst PipelineStage
	for _, ib := range b.Images {
		src |= ib.Transition.Src.Stage
		dst |= ib.Transition.Dst.Stage
	}
	for _, bb := range b.Buffers {
		src |= bb.Transition.Src.Stage
		dst |= bb.Transition.Dst.Stage
	}
	return src, dst
}
