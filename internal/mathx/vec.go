package mathx

// Vec3 is a signed chunk- or block-space coordinate. Components stay within
// 21 bits so a Vec3 can round-trip through Packed (see packed.go).
type Vec3 struct {
	X, Y, Z int32
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

func (v Vec3) AddScalar(s int32) Vec3 { return Vec3{v.X + s, v.Y + s, v.Z + s} }

// Splat returns (s, s, s).
func Splat(s int32) Vec3 { return Vec3{s, s, s} }

func (v Vec3) Volume() int32 { return v.X * v.Y * v.Z }

// LengthSq is the squared euclidean length.
func (v Vec3) LengthSq() int64 {
	x, y, z := int64(v.X), int64(v.Y), int64(v.Z)
	return x*x + y*y + z*z
}

// ChebyshevDist is the L-infinity distance to o.
func (v Vec3) ChebyshevDist(o Vec3) int32 {
	d := AbsInt32(v.X - o.X)
	d = MaxInt32(d, AbsInt32(v.Y-o.Y))
	d = MaxInt32(d, AbsInt32(v.Z-o.Z))
	return d
}

// FloorDiv divides component-wise, rounding toward negative infinity.
func (v Vec3) FloorDiv(dim Vec3) Vec3 {
	return Vec3{FloorDiv(v.X, dim.X), FloorDiv(v.Y, dim.Y), FloorDiv(v.Z, dim.Z)}
}

// FloorMod reduces component-wise into [0, dim).
func (v Vec3) FloorMod(dim Vec3) Vec3 {
	return Vec3{FloorMod(v.X, dim.X), FloorMod(v.Y, dim.Y), FloorMod(v.Z, dim.Z)}
}

// ToIndex linearizes p into a dim-sized array, x fastest.
// p must already be inside [0, dim) on every axis.
func ToIndex(p, dim Vec3) int32 {
	return (p.Z*dim.Y+p.Y)*dim.X + p.X
}

// PositionToIndex maps an arbitrary world position to its slot in a
// dim-sized ring array.
func PositionToIndex(p, dim Vec3) int32 {
	return ToIndex(p.FloorMod(dim), dim)
}
