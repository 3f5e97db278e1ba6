package culling

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// DrawIndexedArgs is one indexed indirect draw as consumed by DrawIndexedIndirectCount.
type DrawIndexedArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// MarshalTo writes the arguments into dst, which must hold DrawArgsStride bytes.
func (a DrawIndexedArgs) MarshalTo(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], a.IndexCount)
	binary.LittleEndian.PutUint32(dst[4:], a.InstanceCount)
	binary.LittleEndian.PutUint32(dst[8:], a.FirstIndex)
	binary.LittleEndian.PutUint32(dst[12:], uint32(a.BaseVertex))
	binary.LittleEndian.PutUint32(dst[16:], a.FirstInstance)
}

// UnmarshalDrawArgs reads the count-prefixed argument buffer written by copy_draw_calls.
//
// Parameters:
//   - data: the culled draw buffer contents
//
// Returns:
//   - []DrawIndexedArgs: the count leading arguments
func UnmarshalDrawArgs(data []byte) []DrawIndexedArgs {
	if len(data) < DrawCountHeader {
		return nil
	}
	count := binary.LittleEndian.Uint32(data)
	out := make([]DrawIndexedArgs, 0, count)
	for i := uint32(0); i < count; i++ {
		off := DrawCountHeader + int(i)*DrawArgsStride
		if off+DrawArgsStride > len(data) {
			break
		}
		w := common.BytesToUint32s(data[off : off+DrawArgsStride])
		out = append(out, DrawIndexedArgs{
			IndexCount: w[0], InstanceCount: w[1], FirstIndex: w[2], BaseVertex: int32(w[3]), FirstInstance: w[4],
		})
	}
	return out
}

// Scan returns the exclusive prefix sum of values: [1,0,1,1,0] scans to [0,1,1,2,3].
func Scan(values []uint32) []uint32 {
	out := make([]uint32, len(values))
	var sum uint32
	for i, v := range values {
		out[i] = sum
		sum += v
	}
	return out
}

// ScanTiled computes the same exclusive scan as Scan in the two levels the GPU uses: each tile
// is scanned independently, then the sum of all preceding tiles is folded into every element.
//
// Parameters:
//   - values: the input
//   - tile: elements per tile, ScanTileSize on the GPU
//
// Returns:
//   - []uint32: the exclusive scan
func ScanTiled(values []uint32, tile int) []uint32 {
	out := make([]uint32, len(values))
	groups := int(common.DivCeil(uint32(len(values)), uint32(tile)))
	groupSums := make([]uint32, groups)
	for g := 0; g < groups; g++ {
		var sum uint32
		for i := g * tile; i < min((g+1)*tile, len(values)); i++ {
			out[i] = sum
			sum += values[i]
		}
		groupSums[g] = sum
	}
	for g := 1; g < groups; g++ {
		var offset uint32
		for j := 0; j < g; j++ {
			offset += groupSums[j]
		}
		for i := g * tile; i < min((g+1)*tile, len(values)); i++ {
			out[i] += offset
		}
	}
	return out
}

// Compact returns the indices whose predicate is set, each stored at its scanned position.
//
// Parameters:
//   - predicate: 0 or 1 per element
//   - scanned: the exclusive scan of predicate
//
// Returns:
//   - []uint32: the compacted indices, len = number of set predicates
func Compact(predicate, scanned []uint32) []uint32 {
	if len(predicate) == 0 {
		return nil
	}
	last := len(predicate) - 1
	out := make([]uint32, scanned[last]+predicate[last])
	for i, p := range predicate {
		if p != 0 {
			out[scanned[i]] = uint32(i)
		}
	}
	return out
}

// FillPredicate evaluates visible for each of n elements.
func FillPredicate(n int, visible func(i int) bool) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		if visible(i) {
			out[i] = 1
		}
	}
	return out
}

// InstancePredicate is the CPU version of instances_culling: a submesh instance is visible
// when the transformed bounding sphere of its mesh intersects the frustum.
//
// Parameters:
//   - list: the draw list
//   - frustum: the culling frustum
//   - enabled: false marks every submesh instance visible
//
// Returns:
//   - []uint32: one predicate per submesh instance
func InstancePredicate(list *scene.DrawList, frustum common.Frustum, enabled bool) []uint32 {
	return FillPredicate(len(list.SubMeshInstances), func(i int) bool {
		if !enabled {
			return true
		}
		smi := list.SubMeshInstances[i]
		m := list.Instances[smi.Instance].ObjectToWorld
		b := list.Meshes[smi.Mesh].Bounds
		center := m.Mul4x1(mgl32.Vec4{b[0], b[1], b[2], 1}).Vec3()
		scale := max(m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len())
		return frustum.ContainsSphere(center, b[3]*scale)
	})
}

// Result is the output of the CPU reference pipeline.
type Result struct {
	Predicate       []uint32
	CulledInstances []uint32
	DrawArgs        []DrawIndexedArgs
	CulledDraws     []DrawIndexedArgs
}

// BuildDrawArguments runs the whole culling pipeline on the CPU with the GPU's semantics:
// compaction of visible submesh instances, per-draw instance counts and first instances, then
// compaction of the draws that kept at least one instance.
//
// Parameters:
//   - list: the draw list
//   - predicate: one predicate per submesh instance
//
// Returns:
//   - Result: the compacted instances and draws
func BuildDrawArguments(list *scene.DrawList, predicate []uint32) Result {
	res := Result{Predicate: predicate}
	scanned := ScanTiled(predicate, ScanTileSize)
	res.CulledInstances = Compact(predicate, scanned)

	res.DrawArgs = make([]DrawIndexedArgs, len(list.Draws))
	for d, draw := range list.Draws {
		res.DrawArgs[d] = DrawIndexedArgs{IndexCount: draw.IndexCount, FirstIndex: draw.FirstIndex, BaseVertex: draw.BaseVertex}
	}
	for i, p := range predicate {
		if p != 0 {
			res.DrawArgs[list.SubMeshInstances[i].Draw].InstanceCount++
		}
	}
	drawPredicate := make([]uint32, len(list.Draws))
	for d, draw := range list.Draws {
		if len(scanned) > 0 {
			res.DrawArgs[d].FirstInstance = scanned[draw.FirstSubMeshInstance]
		}
		if res.DrawArgs[d].InstanceCount > 0 {
			drawPredicate[d] = 1
		}
	}
	for _, d := range Compact(drawPredicate, ScanTiled(drawPredicate, ScanTileSize)) {
		res.CulledDraws = append(res.CulledDraws, res.DrawArgs[d])
	}
	return res
}
