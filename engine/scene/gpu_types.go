package scene

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/go-gl/mathgl/mgl32"
)

// NoMaterial marks a RenderInstance without a material override.
const NoMaterial = math.MaxUint32

// RenderInstance is one object placed in the world.
// Matches the WGSL RenderInstance struct (144 bytes).
type RenderInstance struct {
	ObjectToWorld mgl32.Mat4 // offset   0
	WorldToObject mgl32.Mat4 // offset  64
	RenderMesh    uint32     // offset 128: index into the render mesh table
	Material      uint32     // offset 132: material override, NoMaterial for the submesh material
}

// Size returns the GPU size of RenderInstance in bytes.
func (r *RenderInstance) Size() int { return 144 }

// MarshalTo writes the instance into dst, which must hold Size() bytes.
func (r *RenderInstance) MarshalTo(dst []byte) {
	common.PutMat4(dst[0:], r.ObjectToWorld)
	common.PutMat4(dst[64:], r.WorldToObject)
	common.PutUint32s(dst[128:], r.RenderMesh, r.Material, 0, 0)
}

// Marshal serializes the instance for GPU upload.
//
// Returns:
//   - []byte: 144-byte buffer ready for GPU upload.
func (r *RenderInstance) Marshal() []byte {
	buf := make([]byte, r.Size())
	r.MarshalTo(buf)
	return buf
}

// SubMeshInstance is one submesh of one instance, the unit the culling pipeline tests.
// Matches the WGSL SubMeshInstance struct (16 bytes).
type SubMeshInstance struct {
	Mesh     uint32 // render mesh index
	SubMesh  uint32 // absolute submesh index
	Instance uint32 // RenderInstance index
	Draw     uint32 // DrawCall index
}

// Size returns the GPU size of SubMeshInstance in bytes.
func (s *SubMeshInstance) Size() int { return 16 }

// MarshalTo writes the submesh instance into dst, which must hold Size() bytes.
func (s *SubMeshInstance) MarshalTo(dst []byte) {
	common.PutUint32s(dst, s.Mesh, s.SubMesh, s.Instance, s.Draw)
}

// Marshal serializes the submesh instance for GPU upload.
func (s *SubMeshInstance) Marshal() []byte {
	buf := make([]byte, s.Size())
	s.MarshalTo(buf)
	return buf
}

// RenderMesh locates one uploaded mesh inside the unified geometry buffers.
// Matches the WGSL RenderMesh struct (48 bytes).
type RenderMesh struct {
	FirstPosition uint32
	FirstIndex    uint32
	FirstSubMesh  uint32
	BVHRoot       uint32
	FirstUV       uint32
	SubMeshCount  uint32
	// Bounds is the object-space bounding sphere: xyz center, w radius.
	Bounds mgl32.Vec4
}

// Size returns the GPU size of RenderMesh in bytes.
func (m *RenderMesh) Size() int { return 48 }

// MarshalTo writes the mesh record into dst, which must hold Size() bytes.
func (m *RenderMesh) MarshalTo(dst []byte) {
	common.PutUint32s(dst, m.FirstPosition, m.FirstIndex, m.FirstSubMesh, m.BVHRoot, m.FirstUV, m.SubMeshCount, 0, 0)
	common.PutVec4(dst[32:], m.Bounds)
}

// Marshal serializes the mesh record for GPU upload.
func (m *RenderMesh) Marshal() []byte {
	buf := make([]byte, m.Size())
	m.MarshalTo(buf)
	return buf
}

// RenderSubMesh is an index range of a mesh drawn with one material.
// Matches the WGSL RenderSubMesh struct (16 bytes).
type RenderSubMesh struct {
	FirstIndex  uint32
	FirstVertex uint32
	IndexCount  uint32
	Material    uint32
}

// Size returns the GPU size of RenderSubMesh in bytes.
func (s *RenderSubMesh) Size() int { return 16 }

// MarshalTo writes the submesh into dst, which must hold Size() bytes.
func (s *RenderSubMesh) MarshalTo(dst []byte) {
	common.PutUint32s(dst, s.FirstIndex, s.FirstVertex, s.IndexCount, s.Material)
}

// Marshal serializes the submesh for GPU upload.
func (s *RenderSubMesh) Marshal() []byte {
	buf := make([]byte, s.Size())
	s.MarshalTo(buf)
	return buf
}

// DrawCall is one indirect draw: a submesh range drawn once per visible submesh instance.
// Its submesh instances are contiguous in the draw list, starting at FirstSubMeshInstance.
// Matches the WGSL DrawCall struct (16 bytes).
type DrawCall struct {
	IndexCount           uint32
	FirstIndex           uint32
	BaseVertex           int32
	FirstSubMeshInstance uint32
	// InstanceCount is the number of submesh instances of the draw. Not uploaded.
	InstanceCount uint32
}

// Size returns the GPU size of DrawCall in bytes.
func (d *DrawCall) Size() int { return 16 }

// MarshalTo writes the draw call into dst, which must hold Size() bytes.
func (d *DrawCall) MarshalTo(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], d.IndexCount)
	binary.LittleEndian.PutUint32(dst[4:], d.FirstIndex)
	binary.LittleEndian.PutUint32(dst[8:], uint32(d.BaseVertex))
	binary.LittleEndian.PutUint32(dst[12:], d.FirstSubMeshInstance)
}

// Marshal serializes the draw call for GPU upload.
func (d *DrawCall) Marshal() []byte {
	buf := make([]byte, d.Size())
	d.MarshalTo(buf)
	return buf
}

// marshalSlice packs records of a fixed size back to back.
func marshalSlice[T any, P interface {
	*T
	Size() int
	MarshalTo([]byte)
}](items []T) []byte {
	if len(items) == 0 {
		return nil
	}
	stride := P(&items[0]).Size()
	out := make([]byte, len(items)*stride)
	for i := range items {
		P(&items[i]).MarshalTo(out[i*stride:])
	}
	return out
}
