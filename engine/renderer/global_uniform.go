package renderer

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GlobalUniformSize is the packed size of GlobalUniform.
const GlobalUniformSize = 352

// jitterSequenceLength is the period of the TAA jitter pattern.
const jitterSequenceLength = 8

// GlobalUniform is the per-frame uniform bound at group 0 binding 0 of the scene passes.
// The layout matches GlobalUniform in shader/lib/frame.wgsl.
type GlobalUniform struct {
	View                   mgl32.Mat4
	Projection             mgl32.Mat4
	ViewInverse            mgl32.Mat4
	ProjectionInverse      mgl32.Mat4
	PreviousViewProjection mgl32.Mat4
	RenderResolution       mgl32.Vec2
	JitterOffset           mgl32.Vec2
	FrameCount             uint32
	EnableTAA              bool
	SubMeshInstanceCount   uint32
}

// Marshal packs the uniform for upload.
//
// Returns:
//   - []byte: GlobalUniformSize bytes
func (g *GlobalUniform) Marshal() []byte {
	buf := make([]byte, GlobalUniformSize)
	for i, m := range []mgl32.Mat4{g.View, g.Projection, g.ViewInverse, g.ProjectionInverse, g.PreviousViewProjection} {
		common.PutMat4(buf[i*64:], m)
	}
	common.PutVec4(buf[320:], mgl32.Vec4{g.RenderResolution[0], g.RenderResolution[1], g.JitterOffset[0], g.JitterOffset[1]})
	var taa uint32
	if g.EnableTAA {
		taa = 1
	}
	common.PutUint32s(buf[336:], g.FrameCount, taa, g.SubMeshInstanceCount, 0)
	return buf
}

// Jitter returns the sub-pixel offset of a frame, in pixels within [-0.5, 0.5), from the
// Halton (2, 3) sequence.
//
// Parameters:
//   - frame: the frame counter
//
// Returns:
//   - mgl32.Vec2: the offset
func Jitter(frame uint64) mgl32.Vec2 {
	i := uint32(frame%jitterSequenceLength) + 1
	return mgl32.Vec2{common.Halton(i, 2) - 0.5, common.Halton(i, 3) - 0.5}
}

// jitterProjection offsets a projection by a pixel offset at the given resolution.
func jitterProjection(p mgl32.Mat4, jitter mgl32.Vec2, resolution common.Extent2D) mgl32.Mat4 {
	p[8] += 2 * jitter[0] / float32(resolution.Width)
	p[9] += 2 * jitter[1] / float32(resolution.Height)
	return p
}
