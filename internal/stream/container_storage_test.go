package stream

import (
	"testing"
	"time"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/storage"
	"voxelgrid.dev/internal/voxel"
)

// The container streaming out of a real on-disk store: edits persisted in
// one session are what the loader serves in the next.
func TestStreamingFromPersistedStore(t *testing.T) {
	dir := t.TempDir()
	cfg := storage.Config{
		WorldDir:               dir,
		ChunkSize:              testChunkSize,
		RegionSize:             mathx.Vec3{X: 32, Y: 32, Z: 32},
		ChunkHeapSize:          64,
		RegionHeapSize:         4,
		DefragGarbageThreshold: 16 * 1024,
		Generator:              terrain,
	}

	s, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := s.SetBlock(mathx.Vec3{}, 211); err != nil {
		t.Fatalf("set block: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	s, err = storage.Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	c, err := New(Config{
		ChunkSize:      testChunkSize,
		LoadingRadius:  1,
		ChunkArraySize: mathx.Splat(5),
		MeshArraySize:  mathx.Splat(5),
		Workers:        2,
		IdleSleep:      time.Millisecond,
		Source:         s,
		Mesher:         stubMesher{},
	})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer c.Close()

	waitSweeps(t, c, 2)
	c.MoveCenter(mathx.Vec3{})

	blocks, ok := c.TryGetChunk(mathx.Vec3{})
	if !ok {
		t.Fatal("origin chunk not resident")
	}
	if blocks[0] != voxel.Block(211) {
		t.Fatalf("edited block = %d, want 211", blocks[0])
	}
	want := make([]voxel.Block, testChunkSize.Volume())
	terrain(mathx.Vec3{}, want)
	if blocks[1] != want[1] {
		t.Fatalf("unedited block = %d, want %d", blocks[1], want[1])
	}
}
