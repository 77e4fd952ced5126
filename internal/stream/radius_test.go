package stream

import (
	"testing"

	"voxelgrid.dev/internal/mathx"
)

func TestRadiusOffsetsSortedByDistance(t *testing.T) {
	offsets := RadiusOffsets(3)
	want := 7 * 7 * 7
	if len(offsets) != want {
		t.Fatalf("got %d offsets, want %d", len(offsets), want)
	}
	if (offsets[0] != mathx.Vec3{}) {
		t.Fatalf("nearest offset is %v, want origin", offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i].LengthSq() < offsets[i-1].LengthSq() {
			t.Fatalf("offsets out of order at %d: %v after %v", i, offsets[i], offsets[i-1])
		}
	}

	seen := map[mathx.Vec3]bool{}
	for _, o := range offsets {
		if seen[o] {
			t.Fatalf("offset %v repeated", o)
		}
		seen[o] = true
		if mathx.AbsInt32(o.X) > 3 || mathx.AbsInt32(o.Y) > 3 || mathx.AbsInt32(o.Z) > 3 {
			t.Fatalf("offset %v outside radius", o)
		}
	}
}

func TestRadiusOffsetsDegenerate(t *testing.T) {
	if got := RadiusOffsets(0); len(got) != 1 {
		t.Fatalf("radius 0 should yield only the origin, got %d", len(got))
	}
	if got := RadiusOffsets(-1); got != nil {
		t.Fatalf("negative radius should yield nil, got %v", got)
	}
}
