// Package storage is the persistent voxel store: a fixed-capacity chunk
// cache layered over a fixed-capacity region cache. Chunks are generated on
// first touch, deflated on eviction, and re-read from their region file on
// the next miss. All access is serialized through one mutex; callers that
// need parallelism keep their own resident copies (see internal/stream).
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/storage/lru"
	"voxelgrid.dev/internal/storage/region"
	"voxelgrid.dev/internal/voxel"
)

// Recorder receives store maintenance events. Implementations must not call
// back into the store. A nil Recorder disables recording.
type Recorder interface {
	RecordFlush(chunk mathx.Vec3, compressedSize int)
	RecordDefrag(region mathx.Vec3, reclaimed uint32)
}

// Config carries the store tuning knobs. Zero fields are invalid; the
// caller (internal/tuning) supplies defaults.
type Config struct {
	WorldDir   string
	ChunkSize  mathx.Vec3
	RegionSize mathx.Vec3

	// Resident capacity and hash bucket counts.
	ChunkHeapSize  int
	RegionHeapSize int

	// Defragment a region once its reclaimable bytes reach this.
	DefragGarbageThreshold uint32

	Generator voxel.Generator
	Recorder  Recorder
}

type chunk struct {
	blocks []voxel.Block
	dirty  bool
}

// Store is safe for concurrent use; every operation takes the store mutex.
type Store struct {
	mu  sync.Mutex
	cfg Config

	chunkVolume int
	maxPayload  int

	chunks  *lru.Cache[chunk]
	regions *lru.Cache[*region.File]
	codec   *voxel.Codec

	// scratch for region payload reads
	payload []byte

	lock *flock.Flock
}

// Open locks the world directory (creating it if needed) and builds the
// caches. A second process opening the same world fails fast.
func Open(cfg Config) (*Store, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("storage: nil generator")
	}
	if cfg.ChunkHeapSize <= 0 || cfg.RegionHeapSize <= 0 {
		return nil, fmt.Errorf("storage: heap sizes must be positive")
	}
	if err := os.MkdirAll(cfg.WorldDir, 0o777); err != nil {
		return nil, fmt.Errorf("storage: world dir: %w", err)
	}

	lk := flock.New(filepath.Join(cfg.WorldDir, "LOCK"))
	locked, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storage: lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: world %s is in use by another process", cfg.WorldDir)
	}

	volume := int(cfg.ChunkSize.Volume())
	s := &Store{
		cfg:         cfg,
		chunkVolume: volume,
		maxPayload:  voxel.CompressBound(volume),
		chunks:      lru.New[chunk](cfg.ChunkHeapSize, 4*cfg.ChunkHeapSize),
		regions:     lru.New[*region.File](cfg.RegionHeapSize, 4*cfg.RegionHeapSize),
		codec:       voxel.NewCodec(volume),
		lock:        lk,
	}
	s.payload = make([]byte, s.maxPayload)

	// Give every chunk node its block array up front so the steady-state
	// path never allocates.
	nodes := make([]*lru.Node[chunk], 0, cfg.ChunkHeapSize)
	for {
		n := s.chunks.TakeFree()
		if n == nil {
			break
		}
		n.Val.blocks = make([]voxel.Block, volume)
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		s.chunks.ReleaseToFree(n)
	}
	return s, nil
}

// ChunkVolume is the block count of one chunk.
func (s *Store) ChunkVolume() int { return s.chunkVolume }

// MemorySize is the resident block payload footprint in bytes.
func (s *Store) MemorySize() int64 {
	return int64(s.cfg.ChunkHeapSize) * int64(s.chunkVolume)
}

// Get returns the block array of the chunk at p, fetching or generating it
// if needed. With edit set the chunk is marked dirty and will be persisted
// on eviction or Close. The returned slice aliases the cache node and is
// only valid until the next Store call.
func (s *Store) Get(p mathx.Vec3, edit bool) ([]voxel.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getChunk(p)
	if err != nil {
		return nil, err
	}
	if edit {
		n.Val.dirty = true
	}
	return n.Val.blocks, nil
}

// LoadInto copies the chunk at p into dst, which must hold one chunk
// volume. This is the streaming loader's entry point.
func (s *Store) LoadInto(p mathx.Vec3, dst []voxel.Block) error {
	if len(dst) != s.chunkVolume {
		return fmt.Errorf("storage: dst is %d blocks, chunk volume is %d", len(dst), s.chunkVolume)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getChunk(p)
	if err != nil {
		return err
	}
	copy(dst, n.Val.blocks)
	return nil
}

// BlockAt reads one block at a world block coordinate.
func (s *Store) BlockAt(block mathx.Vec3) (voxel.Block, error) {
	p := block.FloorDiv(s.cfg.ChunkSize)
	local := block.FloorMod(s.cfg.ChunkSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getChunk(p)
	if err != nil {
		return voxel.Air, err
	}
	return n.Val.blocks[voxel.BlockIndex(local, s.cfg.ChunkSize)], nil
}

// SetBlock writes one block at a world block coordinate, marking its chunk
// dirty, and returns the previous value.
func (s *Store) SetBlock(block mathx.Vec3, b voxel.Block) (voxel.Block, error) {
	p := block.FloorDiv(s.cfg.ChunkSize)
	local := block.FloorMod(s.cfg.ChunkSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getChunk(p)
	if err != nil {
		return voxel.Air, err
	}
	i := voxel.BlockIndex(local, s.cfg.ChunkSize)
	old := n.Val.blocks[i]
	if old != b {
		n.Val.blocks[i] = b
		n.Val.dirty = true
	}
	return old, nil
}

// Close flushes every dirty chunk, writes back every region header, closes
// the descriptors, and releases the world lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for {
		n := s.chunks.EvictLRU()
		if n == nil {
			break
		}
		if err := s.closeChunk(n); err != nil && firstErr == nil {
			firstErr = err
		}
		s.chunks.ReleaseToFree(n)
	}
	for {
		n := s.regions.EvictLRU()
		if n == nil {
			break
		}
		if err := n.Val.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		n.Val = nil
		s.regions.ReleaseToFree(n)
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("storage: unlock: %w", err)
	}
	return firstErr
}

func (s *Store) getChunk(p mathx.Vec3) (*lru.Node[chunk], error) {
	bucket := mathx.BucketHash(p, s.chunks.BucketCount())
	if n := s.chunks.Get(p, bucket); n != nil {
		return n, nil
	}

	n := s.chunks.TakeFree()
	if n == nil {
		n = s.chunks.EvictLRU()
		if err := s.closeChunk(n); err != nil {
			s.chunks.ReleaseToFree(n)
			return nil, err
		}
	}

	rn, err := s.getRegion(p.FloorDiv(s.cfg.RegionSize))
	if err != nil {
		s.chunks.ReleaseToFree(n)
		return nil, err
	}

	slot := mathx.PositionToIndex(p, s.cfg.RegionSize)
	payload, err := rn.Val.ReadPayload(slot, s.payload)
	if err != nil {
		s.chunks.ReleaseToFree(n)
		return nil, err
	}
	if payload != nil {
		if err := s.codec.Decompress(payload, n.Val.blocks); err != nil {
			s.chunks.ReleaseToFree(n)
			return nil, fmt.Errorf("storage: chunk %v: %w", p, err)
		}
		n.Val.dirty = false
	} else {
		s.cfg.Generator(p, n.Val.blocks)
		n.Val.dirty = true
	}

	n.Key = p
	s.chunks.Insert(n, bucket)
	return n, nil
}

// closeChunk persists a dirty chunk through its region. The node stays
// owned by the caller.
func (s *Store) closeChunk(n *lru.Node[chunk]) error {
	if !n.Val.dirty {
		return nil
	}
	rn, err := s.getRegion(n.Key.FloorDiv(s.cfg.RegionSize))
	if err != nil {
		return err
	}
	payload, err := s.codec.Compress(n.Val.blocks)
	if err != nil {
		return fmt.Errorf("storage: chunk %v: %w", n.Key, err)
	}
	slot := mathx.PositionToIndex(n.Key, s.cfg.RegionSize)
	if err := rn.Val.WritePayload(slot, payload); err != nil {
		return err
	}
	n.Val.dirty = false
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordFlush(n.Key, len(payload))
	}

	if rn.Val.Garbage() >= s.cfg.DefragGarbageThreshold {
		reclaimed := rn.Val.Garbage()
		if err := rn.Val.Defragment(); err != nil {
			return err
		}
		if s.cfg.Recorder != nil {
			s.cfg.Recorder.RecordDefrag(rn.Key, reclaimed)
		}
	}
	return nil
}

func (s *Store) getRegion(rp mathx.Vec3) (*lru.Node[*region.File], error) {
	bucket := mathx.BucketHash(rp, s.regions.BucketCount())
	if n := s.regions.Get(rp, bucket); n != nil {
		return n, nil
	}

	n := s.regions.TakeFree()
	if n == nil {
		n = s.regions.EvictLRU()
		if err := n.Val.Close(); err != nil {
			n.Val = nil
			s.regions.ReleaseToFree(n)
			return nil, err
		}
		n.Val = nil
	}

	rf, _, err := region.Open(region.Path(s.cfg.WorldDir, rp), s.cfg.RegionSize.Volume(), s.maxPayload)
	if err != nil {
		s.regions.ReleaseToFree(n)
		return nil, err
	}
	n.Key = rp
	n.Val = rf
	s.regions.Insert(n, bucket)
	return n, nil
}
