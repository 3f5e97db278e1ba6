// Package scene is the world side of the renderer: a thread-safe set of draw items and the
// asset table that locates their uploaded geometry. The renderer consumes a scene through the
// Source interface and turns it into a DrawList on a worker pool.
package scene

import (
	"maps"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// DrawItem is one visible object: a mesh placed by a transform, with an optional material
// override (uuid.Nil for none).
type DrawItem struct {
	MeshID     uuid.UUID
	Transform  mgl32.Mat4
	MaterialID uuid.UUID
}

// MeshAsset is an uploaded mesh: its render mesh index and the absolute index of each submesh.
type MeshAsset struct {
	RenderMesh uint32
	Mesh       RenderMesh
	SubMeshes  []uint32
}

// AssetTable maps asset ids to their uploaded locations.
type AssetTable struct {
	Meshes    map[uuid.UUID]MeshAsset
	SubMeshes []RenderSubMesh
	Materials map[uuid.UUID]uint32
}

// Source is what the renderer reads from the world each frame.
type Source interface {
	// DrawItems returns the items to draw this frame.
	DrawItems() []DrawItem
	// Assets returns the asset table the items refer to.
	Assets() AssetTable
}

// Scene is a mutable Source. All methods are safe for concurrent use.
type Scene interface {
	Source

	// Name returns the scene's identifier.
	Name() string

	// Add adds an item and returns its id.
	//
	// Parameters:
	//   - item: the item to add
	//
	// Returns:
	//   - uuid.UUID: the item id
	Add(item DrawItem) uuid.UUID

	// SetTransform moves an item. Unknown ids are ignored.
	//
	// Parameters:
	//   - id: the item id
	//   - transform: the new object-to-world transform
	//
	// Returns:
	//   - bool: whether the item exists
	SetTransform(id uuid.UUID, transform mgl32.Mat4) bool

	// Remove removes an item.
	Remove(id uuid.UUID)

	// Count returns the number of items.
	Count() int

	// RegisterMesh records where a mesh was uploaded. Its submeshes are appended to the
	// submesh table and their absolute indices are stored in the returned asset.
	//
	// Parameters:
	//   - id: the mesh asset id
	//   - mesh: the render mesh record
	//   - index: the render mesh index in the mesh table
	//   - subMeshes: the mesh's submeshes
	//
	// Returns:
	//   - MeshAsset: the registered asset
	RegisterMesh(id uuid.UUID, mesh RenderMesh, index uint32, subMeshes []RenderSubMesh) MeshAsset

	// RegisterMaterial records the material table index of a material.
	RegisterMaterial(id uuid.UUID, index uint32)

	// Clear removes all items. Registered assets are kept.
	Clear()
}

type scene struct {
	mu    *sync.RWMutex
	name  string
	order []uuid.UUID
	items map[uuid.UUID]DrawItem

	meshes    map[uuid.UUID]MeshAsset
	subMeshes []RenderSubMesh
	materials map[uuid.UUID]uint32
}

var _ Scene = &scene{}

// NewScene creates an empty scene.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:        &sync.RWMutex{},
		name:      name,
		items:     make(map[uuid.UUID]DrawItem),
		meshes:    make(map[uuid.UUID]MeshAsset),
		materials: make(map[uuid.UUID]uint32),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) Add(item DrawItem) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(item)
}

func (s *scene) add(item DrawItem) uuid.UUID {
	id := uuid.New()
	s.items[id] = item
	s.order = append(s.order, id)
	return id
}

func (s *scene) SetTransform(id uuid.UUID, transform mgl32.Mat4) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return false
	}
	item.Transform = transform
	s.items[id] = item
	return true
}

func (s *scene) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.items)
	s.order = s.order[:0]
}

func (s *scene) DrawItems() []DrawItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DrawItem, len(s.order))
	for i, id := range s.order {
		out[i] = s.items[id]
	}
	return out
}

func (s *scene) RegisterMesh(id uuid.UUID, mesh RenderMesh, index uint32, subMeshes []RenderSubMesh) MeshAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset := MeshAsset{RenderMesh: index, SubMeshes: make([]uint32, len(subMeshes))}
	mesh.FirstSubMesh = uint32(len(s.subMeshes))
	mesh.SubMeshCount = uint32(len(subMeshes))
	for i, sm := range subMeshes {
		asset.SubMeshes[i] = uint32(len(s.subMeshes))
		s.subMeshes = append(s.subMeshes, sm)
	}
	asset.Mesh = mesh
	s.meshes[id] = asset
	return asset
}

func (s *scene) RegisterMaterial(id uuid.UUID, index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[id] = index
}

func (s *scene) Assets() AssetTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AssetTable{
		Meshes:    maps.Clone(s.meshes),
		SubMeshes: slices.Clone(s.subMeshes),
		Materials: maps.Clone(s.materials),
	}
}
