package mathx

// AABB is an axis-aligned box with inclusive corners.
type AABB struct {
	Min, Max Vec3
}

// BoxAround is the box of the given Chebyshev radius centered on c.
func BoxAround(c Vec3, radius int32) AABB {
	return AABB{
		Min: c.AddScalar(-radius),
		Max: c.AddScalar(radius),
	}
}

// Overlap intersects two boxes. An intersection that is empty on any axis
// collapses to the zero-volume box at the origin, which contains nothing.
func Overlap(a, b AABB) AABB {
	o := AABB{
		Min: Vec3{MaxInt32(a.Min.X, b.Min.X), MaxInt32(a.Min.Y, b.Min.Y), MaxInt32(a.Min.Z, b.Min.Z)},
		Max: Vec3{MinInt32(a.Max.X, b.Max.X), MinInt32(a.Max.Y, b.Max.Y), MinInt32(a.Max.Z, b.Max.Z)},
	}
	if o.Max.X < o.Min.X || o.Max.Y < o.Min.Y || o.Max.Z < o.Min.Z {
		return AABB{}
	}
	return o
}

// Contains reports whether p is inside the box. The zero box contains only
// the origin, which Overlap treats as the empty result; callers that need
// strict emptiness use Empty.
func (a AABB) Contains(p Vec3) bool {
	return p.X >= a.Min.X && p.X <= a.Max.X &&
		p.Y >= a.Min.Y && p.Y <= a.Max.Y &&
		p.Z >= a.Min.Z && p.Z <= a.Max.Z
}

// Empty reports whether the box is the collapsed zero box.
func (a AABB) Empty() bool {
	return a == AABB{} || a.Max.X < a.Min.X || a.Max.Y < a.Min.Y || a.Max.Z < a.Min.Z
}
