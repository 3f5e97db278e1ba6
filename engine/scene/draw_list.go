package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/common"
)

// DefaultChunkSize is the number of draw items one worker task transforms.
const DefaultChunkSize = 512

// DrawList is the CPU-built input of the culling pipeline. Submesh instances are grouped by
// draw: the instances of Draws[d] are SubMeshInstances[d.FirstSubMeshInstance:][:d.InstanceCount].
type DrawList struct {
	Instances        []RenderInstance
	SubMeshInstances []SubMeshInstance
	Draws            []DrawCall
	Meshes           []RenderMesh
	SubMeshes        []RenderSubMesh
}

// Empty reports whether the list has nothing to draw.
func (d *DrawList) Empty() bool {
	return len(d.SubMeshInstances) == 0
}

// InstanceBytes packs Instances for upload.
func (d *DrawList) InstanceBytes() []byte { return marshalSlice(d.Instances) }

// SubMeshInstanceBytes packs SubMeshInstances for upload.
func (d *DrawList) SubMeshInstanceBytes() []byte { return marshalSlice(d.SubMeshInstances) }

// DrawBytes packs Draws for upload.
func (d *DrawList) DrawBytes() []byte { return marshalSlice(d.Draws) }

// MeshBytes packs Meshes for upload.
func (d *DrawList) MeshBytes() []byte { return marshalSlice(d.Meshes) }

// SubMeshBytes packs SubMeshes for upload.
func (d *DrawList) SubMeshBytes() []byte { return marshalSlice(d.SubMeshes) }

// Builder turns a Source into a DrawList. Instance transforms are computed in parallel on a
// worker pool; grouping into draws is sequential and deterministic.
type Builder interface {
	// Build builds the draw list of src. Items whose mesh is not in the asset table are skipped.
	//
	// Parameters:
	//   - src: the scene to read
	//
	// Returns:
	//   - DrawList: the draw list
	Build(src Source) DrawList

	// Workers returns the configured worker count.
	Workers() int
}

type builder struct {
	workers   int
	chunkSize int
	pool      worker.DynamicWorkerPool
}

var _ Builder = &builder{}

// NewBuilder creates a draw list builder.
//
// Parameters:
//   - options: functional options to configure the builder
//
// Returns:
//   - Builder: the builder
func NewBuilder(options ...BuilderOption) Builder {
	b := &builder{
		workers:   max(runtime.NumCPU()-1, 1),
		chunkSize: DefaultChunkSize,
	}
	for _, option := range options {
		option(b)
	}
	// Initialize the pool after options so WithWorkers can override the default.
	b.pool = worker.NewDynamicWorkerPool(b.workers, 256, 1*time.Second)
	return b
}

func (b *builder) Workers() int {
	return b.workers
}

func (b *builder) Build(src Source) DrawList {
	items := src.DrawItems()
	assets := src.Assets()

	instances := make([]RenderInstance, len(items))
	valid := make([]bool, len(items))

	// Phase 1: transforms and asset lookups, one task per chunk. Each task writes only its
	// own index range.
	var wg sync.WaitGroup
	for id, start := 0, 0; start < len(items); id, start = id+1, start+b.chunkSize {
		end := min(start+b.chunkSize, len(items))
		wg.Add(1)
		b.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for i := start; i < end; i++ {
					asset, ok := assets.Meshes[items[i].MeshID]
					if !ok {
						continue
					}
					material := uint32(NoMaterial)
					if m, ok := assets.Materials[items[i].MaterialID]; ok {
						material = m
					}
					instances[i] = RenderInstance{
						ObjectToWorld: items[i].Transform,
						WorldToObject: items[i].Transform.Inv(),
						RenderMesh:    asset.RenderMesh,
						Material:      material,
					}
					valid[i] = true
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	// Phase 2: group submesh instances by draw, one draw per submesh in order of first use.
	list := DrawList{SubMeshes: assets.SubMeshes, Meshes: meshTable(assets)}
	drawOf := make(map[uint32]uint32)
	type pending struct{ mesh, subMesh, instance uint32 }
	var order []pending
	skipped := 0
	for i, item := range items {
		if !valid[i] {
			skipped++
			continue
		}
		instance := uint32(len(list.Instances))
		list.Instances = append(list.Instances, instances[i])
		asset := assets.Meshes[item.MeshID]
		for _, sm := range asset.SubMeshes {
			d, ok := drawOf[sm]
			if !ok {
				d = uint32(len(list.Draws))
				drawOf[sm] = d
				sub := assets.SubMeshes[sm]
				list.Draws = append(list.Draws, DrawCall{
					IndexCount: sub.IndexCount,
					FirstIndex: sub.FirstIndex,
					BaseVertex: int32(sub.FirstVertex),
				})
			}
			list.Draws[d].InstanceCount++
			order = append(order, pending{mesh: asset.RenderMesh, subMesh: sm, instance: instance})
		}
	}
	if skipped > 0 {
		common.Logger().Warn("draw items skipped, mesh not uploaded", "count", skipped)
	}

	var first uint32
	for d := range list.Draws {
		list.Draws[d].FirstSubMeshInstance = first
		first += list.Draws[d].InstanceCount
	}
	list.SubMeshInstances = make([]SubMeshInstance, len(order))
	cursor := make([]uint32, len(list.Draws))
	for _, p := range order {
		d := drawOf[p.subMesh]
		slot := list.Draws[d].FirstSubMeshInstance + cursor[d]
		cursor[d]++
		list.SubMeshInstances[slot] = SubMeshInstance{Mesh: p.mesh, SubMesh: p.subMesh, Instance: p.instance, Draw: d}
	}
	return list
}

// meshTable lays the registered meshes out by render mesh index.
func meshTable(assets AssetTable) []RenderMesh {
	n := 0
	for _, a := range assets.Meshes {
		n = max(n, int(a.RenderMesh)+1)
	}
	meshes := make([]RenderMesh, n)
	for _, a := range assets.Meshes {
		meshes[a.RenderMesh] = a.Mesh
	}
	return meshes
}
