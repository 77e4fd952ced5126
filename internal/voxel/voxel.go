// Package voxel defines the block payloads the store and the streaming
// loader exchange, and the codec that persists them.
package voxel

import (
	"voxelgrid.dev/internal/mathx"
)

// Block is a single voxel's material id. 0 is air.
type Block = uint8

// Air is the empty block id.
const Air Block = 0

// Generator fills dst with the deterministic terrain for the chunk at
// coordinate p. dst holds exactly one chunk volume. Generators must be pure
// with respect to p and safe to call from multiple goroutines.
type Generator func(p mathx.Vec3, dst []Block)

// BlockIndex linearizes a local block position inside a chunk of the given
// dimensions.
func BlockIndex(local, chunkSize mathx.Vec3) int32 {
	return mathx.ToIndex(local, chunkSize)
}
