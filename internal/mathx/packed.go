package mathx

// Packed stores a Vec3 in a single 64-bit word so one atomic load or store
// publishes a whole position. Each component gets 21 bits, which bounds the
// world to ±2^20 per axis; bit 63 stays zero.
type Packed uint64

const (
	packedBits = 21
	packedMask = (1 << packedBits) - 1

	// PackedComponentMin and PackedComponentMax bound what a Packed can hold.
	PackedComponentMin = -(1 << (packedBits - 1))
	PackedComponentMax = 1<<(packedBits-1) - 1
)

// Pack truncates each component to 21 bits. Out-of-range coordinates alias;
// callers keep the world inside the packed range.
func Pack(v Vec3) Packed {
	return Packed(uint64(uint32(v.X))&packedMask) |
		Packed(uint64(uint32(v.Y))&packedMask)<<packedBits |
		Packed(uint64(uint32(v.Z))&packedMask)<<(2*packedBits)
}

// Unpack sign-extends each component from bit 20.
func Unpack(p Packed) Vec3 {
	return Vec3{
		signExtend21(uint32(p) & packedMask),
		signExtend21(uint32(p>>packedBits) & packedMask),
		signExtend21(uint32(p>>(2*packedBits)) & packedMask),
	}
}

func signExtend21(u uint32) int32 {
	return int32(u<<(32-packedBits)) >> (32 - packedBits)
}
