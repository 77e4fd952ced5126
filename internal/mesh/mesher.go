// Package mesh turns chunk neighborhoods into GPU-ready vertex bytes: three
// u8 local coordinates per vertex, six vertices per visible face.
package mesh

import (
	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/voxel"
)

// faces enumerates the six cube faces: the neighbor direction a face is
// culled against, and its four corner offsets.
var faces = [6]struct {
	dir     mathx.Vec3
	corners [4]mathx.Vec3
}{
	{mathx.Vec3{X: 1}, [4]mathx.Vec3{{X: 1}, {X: 1, Y: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Z: 1}}},
	{mathx.Vec3{X: -1}, [4]mathx.Vec3{{}, {Z: 1}, {Y: 1, Z: 1}, {Y: 1}}},
	{mathx.Vec3{Y: 1}, [4]mathx.Vec3{{Y: 1}, {Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1}}},
	{mathx.Vec3{Y: -1}, [4]mathx.Vec3{{}, {X: 1}, {X: 1, Z: 1}, {Z: 1}}},
	{mathx.Vec3{Z: 1}, [4]mathx.Vec3{{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1}}},
	{mathx.Vec3{Z: -1}, [4]mathx.Vec3{{}, {Y: 1}, {X: 1, Y: 1}, {X: 1}}},
}

// Mesher meshes the chunk anchored at a mesh position, culling faces
// against the rest of its 2×2×2 neighborhood. Blocks outside the
// neighborhood count as air, so boundary faces are emitted rather than
// dropped. Stateless and safe for concurrent use by all workers.
type Mesher struct {
	chunkSize mathx.Vec3
}

func New(chunkSize mathx.Vec3) *Mesher {
	return &Mesher{chunkSize: chunkSize}
}

// BuildMesh implements stream.Mesher. chunks is the 2×2×2 neighborhood in
// z-major slot order; chunks[0] is the meshed chunk.
func (m *Mesher) BuildMesh(_ mathx.Vec3, chunks [][]voxel.Block) []byte {
	var out []byte
	var p mathx.Vec3
	for p.Z = 0; p.Z < m.chunkSize.Z; p.Z++ {
		for p.Y = 0; p.Y < m.chunkSize.Y; p.Y++ {
			for p.X = 0; p.X < m.chunkSize.X; p.X++ {
				if m.blockAt(chunks, p) == voxel.Air {
					continue
				}
				for _, f := range faces {
					if m.blockAt(chunks, p.Add(f.dir)) != voxel.Air {
						continue
					}
					out = appendFace(out, p, f.corners)
				}
			}
		}
	}
	return out
}

// blockAt reads a neighborhood-local position spanning two chunks per axis.
// Anything outside [0, 2·chunkSize) is air.
func (m *Mesher) blockAt(chunks [][]voxel.Block, p mathx.Vec3) voxel.Block {
	if p.X < 0 || p.Y < 0 || p.Z < 0 ||
		p.X >= 2*m.chunkSize.X || p.Y >= 2*m.chunkSize.Y || p.Z >= 2*m.chunkSize.Z {
		return voxel.Air
	}
	ci := p.FloorDiv(m.chunkSize)
	li := p.FloorMod(m.chunkSize)
	chunk := chunks[(ci.Z*2+ci.Y)*2+ci.X]
	return chunk[mathx.ToIndex(li, m.chunkSize)]
}

// appendFace emits two triangles (corners 0-1-2 and 2-3-0).
func appendFace(out []byte, p mathx.Vec3, corners [4]mathx.Vec3) []byte {
	for _, i := range [6]int{0, 1, 2, 2, 3, 0} {
		v := p.Add(corners[i])
		out = append(out, byte(v.X), byte(v.Y), byte(v.Z))
	}
	return out
}
