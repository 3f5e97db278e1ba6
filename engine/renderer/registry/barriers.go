package registry

import "github.com/Carmen-Shannon/oxy-graph/engine/renderer/gpu"

func (r *registryImpl) Barrier(cmd gpu.CommandList, h ImageHandle, usage gpu.ImageUsage) bool {
	return r.Barriers(cmd, []ImageUse{{Handle: h, Usage: usage}}, nil) > 0
}

func (r *registryImpl) ClearBarrier(cmd gpu.CommandList, h ImageHandle, usage gpu.ImageUsage) bool {
	return r.Barriers(cmd, []ImageUse{{Handle: h, Usage: usage, Discard: true}}, nil) > 0
}

func (r *registryImpl) BufferBarrier(cmd gpu.CommandList, h BufferHandle, usage gpu.BufferUsage) bool {
	return r.Barriers(cmd, nil, []BufferUse{{Handle: h, Usage: usage}}) > 0
}

func (r *registryImpl) Barriers(cmd gpu.CommandList, images []ImageUse, buffers []BufferUse) int {
	var batch gpu.BarrierBatch
	for _, use := range images {
		img := r.MustImage(use.Handle)
		tr, ok := gpu.ComputeImageBarrier(img.Usage, use.Usage)
		if !ok && use.Discard {
			// A discard always transitions, even between equal read usages.
			tr, ok = gpu.ImageTransition{From: img.Usage, To: use.Usage, Src: img.Usage.Scope(), Dst: use.Usage.Scope()}, true
		}
		if ok {
			// Discarding still waits on the previous user's stages; only the contents go.
			if use.Discard {
				tr.Src.Layout = gpu.LayoutUndefined
			}
			batch.Images = append(batch.Images, gpu.ImageBarrier{
				Image:      img.Object,
				Transition: tr,
				Discard:    use.Discard,
			})
		}
		img.Usage = use.Usage
	}
	for _, use := range buffers {
		buf := r.MustBuffer(use.Handle)
		if tr, ok := gpu.ComputeBufferBarrier(buf.Usage, use.Usage); ok {
			batch.Buffers = append(batch.Buffers, gpu.BufferBarrier{
				Buffer:     buf.Object,
				Size:       buf.Desc.Size,
				Transition: tr,
			})
		}
		buf.Usage = use.Usage
	}
	if !batch.Empty() {
		cmd.Barriers(batch)
	}
	return batch.Len()
}
