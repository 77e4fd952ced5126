package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/voxel"
)

var testChunkSize = mathx.Vec3{X: 16, Y: 16, Z: 16}

// sumGen is the reference generator: block = (x+y+z) mod 256 in world block
// coordinates.
func sumGen(p mathx.Vec3, dst []voxel.Block) {
	base := p.Mul(testChunkSize)
	i := 0
	for z := int32(0); z < testChunkSize.Z; z++ {
		for y := int32(0); y < testChunkSize.Y; y++ {
			for x := int32(0); x < testChunkSize.X; x++ {
				dst[i] = voxel.Block(uint32(base.X+x+base.Y+y+base.Z+z) % 256)
				i++
			}
		}
	}
}

// noiseGen produces incompressible-ish content so rewrites change size.
func noiseGen(p mathx.Vec3, dst []voxel.Block) {
	h := uint32(p.X)*2654435761 ^ uint32(p.Y)*40503 ^ uint32(p.Z)*2246822519
	for i := range dst {
		h = h*1664525 + 1013904223
		dst[i] = voxel.Block(h >> 24)
	}
}

func testConfig(dir string, gen voxel.Generator) Config {
	return Config{
		WorldDir:               dir,
		ChunkSize:              testChunkSize,
		RegionSize:             mathx.Vec3{X: 32, Y: 32, Z: 32},
		ChunkHeapSize:          4,
		RegionHeapSize:         2,
		DefragGarbageThreshold: 16 * 1024,
		Generator:              gen,
	}
}

func TestGetGeneratesOnFirstTouch(t *testing.T) {
	s, err := Open(testConfig(t.TempDir(), sumGen))
	require.NoError(t, err)
	defer s.Close()

	blocks, err := s.Get(mathx.Vec3{X: 2, Y: -1, Z: 0}, false)
	require.NoError(t, err)

	want := make([]voxel.Block, s.ChunkVolume())
	sumGen(mathx.Vec3{X: 2, Y: -1, Z: 0}, want)
	assert.Equal(t, want, blocks)
}

func TestChunkRoundTripThroughEviction(t *testing.T) {
	s, err := Open(testConfig(t.TempDir(), sumGen))
	require.NoError(t, err)
	defer s.Close()

	origin := mathx.Vec3{}
	first, err := s.Get(origin, false)
	require.NoError(t, err)
	saved := append([]voxel.Block(nil), first...)

	// Fill the 4-node cache with distinct chunks to force origin out.
	for x := int32(1); x <= 4; x++ {
		_, err := s.Get(mathx.Vec3{X: x * 10}, false)
		require.NoError(t, err)
	}

	again, err := s.Get(origin, false)
	require.NoError(t, err)
	assert.Equal(t, saved, again)

	want := make([]voxel.Block, s.ChunkVolume())
	sumGen(origin, want)
	assert.Equal(t, want, again)
}

func TestEditSurvivesEviction(t *testing.T) {
	s, err := Open(testConfig(t.TempDir(), sumGen))
	require.NoError(t, err)
	defer s.Close()

	blocks, err := s.Get(mathx.Vec3{}, true)
	require.NoError(t, err)
	blocks[0] = 7

	for x := int32(1); x <= 4; x++ {
		_, err := s.Get(mathx.Vec3{X: x}, false)
		require.NoError(t, err)
	}

	again, err := s.Get(mathx.Vec3{}, false)
	require.NoError(t, err)
	assert.Equal(t, voxel.Block(7), again[0])
}

func TestPersistenceAcrossSessions(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(testConfig(dir, sumGen))
	require.NoError(t, err)
	old, err := s.SetBlock(mathx.Vec3{}, 7)
	require.NoError(t, err)
	assert.Equal(t, voxel.Block(0), old)
	require.NoError(t, s.Close())

	s, err = Open(testConfig(dir, sumGen))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.BlockAt(mathx.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, voxel.Block(7), got)

	// The rest of the chunk is untouched.
	got, err = s.BlockAt(mathx.Vec3{X: 3, Y: 2, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, voxel.Block(6), got)
}

func TestNegativeCoordinates(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir, sumGen))
	require.NoError(t, err)

	// A block in the all-negative octant: chunk (-1,-2,-33), region (-1,-1,-2).
	pos := mathx.Vec3{X: -1, Y: -17, Z: -513}
	_, err = s.SetBlock(pos, 99)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(testConfig(dir, sumGen))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.BlockAt(pos)
	require.NoError(t, err)
	assert.Equal(t, voxel.Block(99), got)
}

type countingRecorder struct {
	flushes int
	defrags int
}

func (c *countingRecorder) RecordFlush(mathx.Vec3, int)     { c.flushes++ }
func (c *countingRecorder) RecordDefrag(mathx.Vec3, uint32) { c.defrags++ }

func TestDefragTriggersOnGrowth(t *testing.T) {
	rec := &countingRecorder{}
	cfg := testConfig(t.TempDir(), noiseGen)
	cfg.DefragGarbageThreshold = 1
	cfg.Recorder = rec

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	// First persist: uniform chunk compresses tiny.
	blocks, err := s.Get(mathx.Vec3{}, true)
	require.NoError(t, err)
	for i := range blocks {
		blocks[i] = 0
	}
	evict := func() {
		for x := int32(1); x <= 4; x++ {
			_, err := s.Get(mathx.Vec3{X: x * 3}, false)
			require.NoError(t, err)
		}
	}
	evict()
	require.Greater(t, rec.flushes, 0)

	// Rewrite with incompressible content: the bigger payload appends and
	// strands the old blob, tripping the 1-byte threshold.
	blocks, err = s.Get(mathx.Vec3{}, true)
	require.NoError(t, err)
	noiseGen(mathx.Vec3{X: 500}, blocks)
	evict()
	assert.Greater(t, rec.defrags, 0)

	// Content survives the compaction.
	again, err := s.Get(mathx.Vec3{}, false)
	require.NoError(t, err)
	want := make([]voxel.Block, s.ChunkVolume())
	noiseGen(mathx.Vec3{X: 500}, want)
	assert.Equal(t, want, again)
}

func TestWorldLockExcludesSecondStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir, sumGen))
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(testConfig(dir, sumGen))
	assert.Error(t, err)
}

func TestLoadIntoCopies(t *testing.T) {
	s, err := Open(testConfig(t.TempDir(), sumGen))
	require.NoError(t, err)
	defer s.Close()

	dst := make([]voxel.Block, s.ChunkVolume())
	require.NoError(t, s.LoadInto(mathx.Vec3{X: 1}, dst))
	want := make([]voxel.Block, s.ChunkVolume())
	sumGen(mathx.Vec3{X: 1}, want)
	assert.Equal(t, want, dst)

	require.Error(t, s.LoadInto(mathx.Vec3{}, dst[:10]))
}
