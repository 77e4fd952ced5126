// Package gen provides the built-in terrain generators. Every generator is
// pure with respect to the chunk coordinate, so re-generating a never-edited
// chunk always reproduces the same blocks.
package gen

import (
	"math"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/voxel"
)

const (
	BlockStone voxel.Block = 1
	BlockOre   voxel.Block = 2
)

// SineHills is rolling terrain: solid below sin(x/10)·sin(z/10)·10.
func SineHills(chunkSize mathx.Vec3) voxel.Generator {
	return func(p mathx.Vec3, dst []voxel.Block) {
		from := p.Mul(chunkSize)
		i := 0
		var w mathx.Vec3
		for w.Z = from.Z; w.Z < from.Z+chunkSize.Z; w.Z++ {
			for w.Y = from.Y; w.Y < from.Y+chunkSize.Y; w.Y++ {
				for w.X = from.X; w.X < from.X+chunkSize.X; w.X++ {
					h := math.Sin(float64(w.X)*0.1) * math.Sin(float64(w.Z)*0.1) * 10.0
					if h > float64(w.Y) {
						dst[i] = BlockStone
					} else {
						dst[i] = voxel.Air
					}
					i++
				}
			}
		}
	}
}

// Flat fills everything at or below level with the given block.
func Flat(chunkSize mathx.Vec3, level int32, b voxel.Block) voxel.Generator {
	return func(p mathx.Vec3, dst []voxel.Block) {
		from := p.Mul(chunkSize)
		i := 0
		var w mathx.Vec3
		for w.Z = from.Z; w.Z < from.Z+chunkSize.Z; w.Z++ {
			for w.Y = from.Y; w.Y < from.Y+chunkSize.Y; w.Y++ {
				for w.X = from.X; w.X < from.X+chunkSize.X; w.X++ {
					if w.Y <= level {
						dst[i] = b
					} else {
						dst[i] = voxel.Air
					}
					i++
				}
			}
		}
	}
}

// OreSpeckled decorates a base generator: solid blocks turn to ore with the
// given per-mille probability, decided by a seeded position hash.
func OreSpeckled(chunkSize mathx.Vec3, seed int64, permille uint64, base voxel.Generator) voxel.Generator {
	if permille > 1000 {
		permille = 1000
	}
	return func(p mathx.Vec3, dst []voxel.Block) {
		base(p, dst)
		from := p.Mul(chunkSize)
		i := 0
		var w mathx.Vec3
		for w.Z = from.Z; w.Z < from.Z+chunkSize.Z; w.Z++ {
			for w.Y = from.Y; w.Y < from.Y+chunkSize.Y; w.Y++ {
				for w.X = from.X; w.X < from.X+chunkSize.X; w.X++ {
					if dst[i] != voxel.Air && hash3(seed, w)%1000 < permille {
						dst[i] = BlockOre
					}
					i++
				}
			}
		}
	}
}
