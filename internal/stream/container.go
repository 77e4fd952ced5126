// Package stream keeps the chunks around a moving center resident in a
// fixed 3D ring array, loading them with a pool of workers that sweep a
// distance-sorted offset list, and emits a mesh for every 2×2×2 chunk
// neighborhood the moment its last contributing chunk lands.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/voxel"
)

// Source supplies chunk payloads; the voxel store implements it.
type Source interface {
	LoadInto(p mathx.Vec3, dst []voxel.Block) error
}

// Mesher turns a chunk neighborhood into a packed vertex stream. chunks is
// the neighborhood in z-major slot order (the same order ToIndex walks).
type Mesher interface {
	BuildMesh(meshPos mathx.Vec3, chunks [][]voxel.Block) []byte
}

// Config carries the container tuning knobs.
type Config struct {
	ChunkSize     mathx.Vec3
	LoadingRadius int32

	// Ring array dimensions. Every axis must be strictly larger than the
	// loading diameter 2·R+1 so two simultaneously resident coordinates
	// can never share a floor_mod residue.
	ChunkArraySize mathx.Vec3
	MeshArraySize  mathx.Vec3

	// Neighborhood shape. Zero values default to a mesh consuming chunks
	// m+(0,0,0)..m+(1,1,1) and a chunk feeding meshes p-(1,1,1)..p.
	MeshChunkStart, MeshChunkEnd mathx.Vec3
	ChunkMeshStart, ChunkMeshEnd mathx.Vec3

	Workers int

	// IdleSleep throttles the spin between sweeps. Zero means 100ms.
	IdleSleep time.Duration

	Source Source
	Mesher Mesher
}

// packedNever is an impossible packed position: Pack never sets bit 63, so
// no queried coordinate ever matches a slot holding it.
const packedNever = uint64(1) << 63

// invalidPos marks a mesh slot that has emitted nothing yet. It is outside
// the packed coordinate range, so no loader-produced position equals it.
var invalidPos = mathx.Vec3{X: mathx.PackedComponentMin - 1, Y: 0, Z: 0}

// Container is the streaming loader. One consumer thread calls MoveCenter,
// TryPopMesh and TryGetChunk; Workers goroutines run the sweep.
type Container struct {
	cfg         Config
	chunkVolume int32
	offsets     []mathx.Vec3

	// resident chunk ring
	chunkPositions []atomic.Uint64
	blocks         []voxel.Block

	// resident mesh ring
	meshPositions []mathx.Vec3
	readiness     []atomic.Uint32
	allReady      uint32
	meshVolume    int32 // chunks per mesh neighborhood

	iterator    atomic.Int64
	centerDirty atomic.Bool
	running     atomic.Bool
	stopping    atomic.Bool // the last worker's verdict for this barrier
	sweeps      atomic.Uint64

	centerMu     sync.Mutex
	loaderCenter mathx.Vec3
	actualCenter mathx.Vec3
	overlapBox   mathx.AABB

	barrier *barrier
	queue   *MeshQueue

	failOnce sync.Once
	err      atomic.Value // error

	wg sync.WaitGroup
}

// New validates the configuration, spawns the workers, and starts sweeping
// around the origin.
func New(cfg Config) (*Container, error) {
	if cfg.Source == nil || cfg.Mesher == nil {
		return nil, fmt.Errorf("stream: nil source or mesher")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("stream: worker count must be positive")
	}
	if cfg.LoadingRadius < 0 {
		return nil, fmt.Errorf("stream: negative loading radius")
	}
	diameter := 2*cfg.LoadingRadius + 1
	for _, dim := range []struct {
		name string
		size mathx.Vec3
	}{{"chunk array", cfg.ChunkArraySize}, {"mesh array", cfg.MeshArraySize}} {
		if dim.size.X <= diameter || dim.size.Y <= diameter || dim.size.Z <= diameter {
			return nil, fmt.Errorf("stream: %s %v must exceed loading diameter %d on every axis", dim.name, dim.size, diameter)
		}
	}
	if cfg.MeshChunkStart == cfg.MeshChunkEnd {
		cfg.MeshChunkStart = mathx.Vec3{}
		cfg.MeshChunkEnd = mathx.Vec3{X: 2, Y: 2, Z: 2}
	}
	if cfg.ChunkMeshStart == cfg.ChunkMeshEnd {
		cfg.ChunkMeshStart = mathx.Vec3{X: -1, Y: -1, Z: -1}
		cfg.ChunkMeshEnd = mathx.Vec3{X: 1, Y: 1, Z: 1}
	}
	if cfg.IdleSleep == 0 {
		cfg.IdleSleep = 100 * time.Millisecond
	}

	meshVolume := cfg.MeshChunkEnd.Sub(cfg.MeshChunkStart).Volume()
	if meshVolume <= 0 || meshVolume > 32 {
		return nil, fmt.Errorf("stream: mesh neighborhood volume %d does not fit the readiness mask", meshVolume)
	}
	if v := cfg.ChunkMeshEnd.Sub(cfg.ChunkMeshStart).Volume(); v != meshVolume {
		return nil, fmt.Errorf("stream: chunk-to-mesh volume %d and mesh-to-chunk volume %d disagree", v, meshVolume)
	}

	chunkVolume := cfg.ChunkSize.Volume()
	arrayVolume := cfg.ChunkArraySize.Volume()
	meshArrayVolume := cfg.MeshArraySize.Volume()

	c := &Container{
		cfg:            cfg,
		chunkVolume:    chunkVolume,
		offsets:        RadiusOffsets(cfg.LoadingRadius),
		chunkPositions: make([]atomic.Uint64, arrayVolume),
		blocks:         make([]voxel.Block, int(arrayVolume)*int(chunkVolume)),
		meshPositions:  make([]mathx.Vec3, meshArrayVolume),
		readiness:      make([]atomic.Uint32, meshArrayVolume),
		allReady:       uint32(1)<<uint(meshVolume) - 1,
		meshVolume:     meshVolume,
		barrier:        newBarrier(cfg.Workers),
		queue:          NewMeshQueue(),
	}
	for i := range c.chunkPositions {
		c.chunkPositions[i].Store(packedNever)
	}
	for i := range c.meshPositions {
		c.meshPositions[i] = invalidPos
	}
	c.overlapBox = mathx.BoxAround(mathx.Vec3{}, cfg.LoadingRadius)

	c.running.Store(true)
	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	return c, nil
}

// Offsets is the distance-sorted offset list, nearest first. Shared;
// callers must not modify it.
func (c *Container) Offsets() []mathx.Vec3 { return c.offsets }

// Sweeps counts completed sweeps. Monotonic; useful for settling.
func (c *Container) Sweeps() uint64 { return c.sweeps.Load() }

// Err is the first worker failure, or nil. Workers stop sweeping once a
// load fails.
func (c *Container) Err() error {
	if v := c.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// MoveCenter points the loader at a new center chunk. Called every frame;
// it also refreshes the overlap box against the current loader center, so
// repeated calls with an unchanged center widen the readable set as the
// loader catches up.
func (c *Container) MoveCenter(center mathx.Vec3) {
	c.centerMu.Lock()
	changed := c.actualCenter != center
	c.actualCenter = center
	c.overlapBox = mathx.Overlap(
		mathx.BoxAround(c.actualCenter, c.cfg.LoadingRadius),
		mathx.BoxAround(c.loaderCenter, c.cfg.LoadingRadius),
	)
	c.centerMu.Unlock()
	if changed {
		c.centerDirty.Store(true)
	}
}

// TryPopMesh drains one finished mesh, if any.
func (c *Container) TryPopMesh() (Mesh, bool) {
	return c.queue.TryPop()
}

// TryGetChunk returns the resident blocks for p, or false if p is not
// certainly resident. The returned slice aliases the ring array; treat it
// as read-only and re-validate after the next sweep.
func (c *Container) TryGetChunk(p mathx.Vec3) ([]voxel.Block, bool) {
	slot := mathx.PositionToIndex(p, c.cfg.ChunkArraySize)
	if c.chunkPositions[slot].Load() != uint64(mathx.Pack(p)) {
		return nil, false
	}
	c.centerMu.Lock()
	box := c.overlapBox
	c.centerMu.Unlock()
	if !box.Contains(p) {
		return nil, false
	}
	return c.chunkSlot(slot), true
}

// Close stops the sweep, joins the workers, and returns the first worker
// failure if any. Pending meshes are discarded.
func (c *Container) Close() error {
	c.running.Store(false)
	// Unstick workers mid-sweep.
	c.centerDirty.Store(true)
	c.wg.Wait()
	return c.Err()
}

func (c *Container) chunkSlot(slot int32) []voxel.Block {
	off := int(slot) * int(c.chunkVolume)
	return c.blocks[off : off+int(c.chunkVolume) : off+int(c.chunkVolume)]
}

func (c *Container) fail(err error) {
	c.failOnce.Do(func() { c.err.Store(err) })
	c.running.Store(false)
	c.centerDirty.Store(true)
}

func (c *Container) worker() {
	defer c.wg.Done()
	n := int64(len(c.offsets))
	last := n + int64(c.cfg.Workers) - 1

	for {
		if c.centerDirty.Swap(false) {
			// Abort the sweep: snap the iterator past the end, preserving
			// any overrun other workers have already accumulated.
			old := c.iterator.Swap(n)
			if old > n {
				c.iterator.Add(old - n)
			}
		}

		i := c.iterator.Add(1) - 1
		if i >= n {
			if i == last {
				// Exactly one worker lands here per sweep.
				for j := range c.readiness {
					c.readiness[j].Store(0)
				}
				c.iterator.Store(0)
				c.centerMu.Lock()
				c.loaderCenter = c.actualCenter
				c.centerMu.Unlock()
				// Decide shutdown once for the whole pool, so every worker
				// leaves after the same barrier and none is left waiting.
				c.stopping.Store(!c.running.Load())
				c.sweeps.Add(1)
				time.Sleep(c.cfg.IdleSleep)
			}
			c.barrier.wait()
			if c.stopping.Load() {
				return
			}
			continue
		}

		p := c.offsets[i].Add(c.loaderCenter)
		slot := mathx.PositionToIndex(p, c.cfg.ChunkArraySize)
		packed := uint64(mathx.Pack(p))
		if c.chunkPositions[slot].Load() != packed {
			if err := c.cfg.Source.LoadInto(p, c.chunkSlot(slot)); err != nil {
				c.fail(fmt.Errorf("stream: load %v: %w", p, err))
				continue
			}
			// Publish the blocks: the store is the release a reader's
			// position check acquires.
			c.chunkPositions[slot].Store(packed)
		}

		c.markMeshes(p)
	}
}

func fetchOr(a *atomic.Uint32, mask uint32) uint32 {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old|mask) {
			return old
		}
	}
}

// markMeshes ORs this chunk's bit into every mesh it feeds. The worker that
// flips a mesh's last bit is its sole emitter this sweep.
func (c *Container) markMeshes(p mathx.Vec3) {
	mask := uint32(1)
	var m mathx.Vec3
	for m.Z = p.Z + c.cfg.ChunkMeshStart.Z; m.Z < p.Z+c.cfg.ChunkMeshEnd.Z; m.Z++ {
		for m.Y = p.Y + c.cfg.ChunkMeshStart.Y; m.Y < p.Y+c.cfg.ChunkMeshEnd.Y; m.Y++ {
			for m.X = p.X + c.cfg.ChunkMeshStart.X; m.X < p.X+c.cfg.ChunkMeshEnd.X; m.X++ {
				idx := mathx.PositionToIndex(m, c.cfg.MeshArraySize)
				state := fetchOr(&c.readiness[idx], mask) | mask
				if state == c.allReady && c.meshPositions[idx] != m {
					c.emitMesh(m, idx)
				}
				mask <<= 1
			}
		}
	}
}

// emitMesh builds and queues the mesh at m. Only the last-bit flipper for
// this sweep reaches here, so meshPositions[idx] has a single writer.
func (c *Container) emitMesh(m mathx.Vec3, idx int32) {
	chunks := make([][]voxel.Block, 0, c.meshVolume)
	var p mathx.Vec3
	for p.Z = m.Z + c.cfg.MeshChunkStart.Z; p.Z < m.Z+c.cfg.MeshChunkEnd.Z; p.Z++ {
		for p.Y = m.Y + c.cfg.MeshChunkStart.Y; p.Y < m.Y+c.cfg.MeshChunkEnd.Y; p.Y++ {
			for p.X = m.X + c.cfg.MeshChunkStart.X; p.X < m.X+c.cfg.MeshChunkEnd.X; p.X++ {
				slot := mathx.PositionToIndex(p, c.cfg.ChunkArraySize)
				if c.chunkPositions[slot].Load() != uint64(mathx.Pack(p)) {
					// The readiness protocol guarantees residency; a
					// mismatch is a bug, not bad data.
					panic(fmt.Sprintf("stream: mesh %v ready but chunk %v not resident", m, p))
				}
				chunks = append(chunks, c.chunkSlot(slot))
			}
		}
	}
	vertices := c.cfg.Mesher.BuildMesh(m, chunks)
	c.meshPositions[idx] = m
	c.queue.Push(Mesh{Position: m, Vertices: vertices, VertexCount: len(vertices) / 3})
}
