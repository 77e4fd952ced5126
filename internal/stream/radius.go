package stream

import (
	"sort"

	"voxelgrid.dev/internal/mathx"
)

// RadiusOffsets is every integer offset inside the cube of the given
// Chebyshev radius, sorted ascending by squared distance so a sweep loads
// nearest chunks first. Computed once at container construction and shared
// with consumers for visibility iteration.
func RadiusOffsets(radius int32) []mathx.Vec3 {
	if radius < 0 {
		return nil
	}
	d := int(2*radius + 1)
	offsets := make([]mathx.Vec3, 0, d*d*d)
	for z := -radius; z <= radius; z++ {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				offsets = append(offsets, mathx.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	sort.SliceStable(offsets, func(a, b int) bool {
		return offsets[a].LengthSq() < offsets[b].LengthSq()
	})
	return offsets
}
