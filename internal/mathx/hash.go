package mathx

// Seeded primes for position hashing. Every place a coordinate is bucketed
// uses the same scheme.
const (
	hashSeedX uint32 = 73856093
	hashSeedY uint32 = 19349663
	hashSeedZ uint32 = 83492791
)

// BucketHash maps a position to a bucket in [0, buckets).
func BucketHash(v Vec3, buckets uint32) uint32 {
	h := uint32(v.X)*hashSeedX ^ uint32(v.Y)*hashSeedY ^ uint32(v.Z)*hashSeedZ
	return h % buckets
}
