// Package tuning loads the world's tuning knobs from yaml. Every constant
// the engine exposes lives here so a deployment can be reshaped without a
// rebuild.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelgrid.dev/internal/mathx"
)

type Tuning struct {
	ChunkSize  []int32 `yaml:"chunk_size"`
	RegionSize []int32 `yaml:"region_size"`

	ChunkLoadingRadius int32   `yaml:"chunk_loading_radius"`
	ChunkArraySize     []int32 `yaml:"chunk_array_size"`
	MeshArraySize      []int32 `yaml:"mesh_array_size"`

	WorkerThreadCount int `yaml:"worker_thread_count"`

	ChunkHeapSize  int `yaml:"chunk_heap_size"`
	RegionHeapSize int `yaml:"region_heap_size"`

	DefragmentGarbageThreshold uint32 `yaml:"defragment_garbage_threshold"`

	IdleSleepMs int `yaml:"idle_sleep_ms"`

	// Optional facilities; empty disables.
	IndexDBPath string `yaml:"index_db_path"`
	EditLogDir  string `yaml:"edit_log_dir"`
}

// Default is the shipped configuration: 16-block chunks in 32-chunk
// regions, an 8-chunk loading radius, and ring arrays two chunks wider
// than the loading diameter.
func Default() Tuning {
	return Tuning{
		ChunkSize:                  []int32{16, 16, 16},
		RegionSize:                 []int32{32, 32, 32},
		ChunkLoadingRadius:         8,
		ChunkArraySize:             []int32{19, 19, 19},
		MeshArraySize:              []int32{19, 19, 19},
		WorkerThreadCount:          4,
		ChunkHeapSize:              32 * 1024,
		RegionHeapSize:             2 * 1024,
		DefragmentGarbageThreshold: 16 * 1024,
		IdleSleepMs:                100,
	}
}

// Load reads path over the defaults. A missing file is an error; callers
// that want pure defaults use Default directly.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func vec3(name string, v []int32) (mathx.Vec3, error) {
	if len(v) != 3 {
		return mathx.Vec3{}, fmt.Errorf("tuning: %s must have 3 components, got %d", name, len(v))
	}
	return mathx.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (t Tuning) ChunkSizeVec() mathx.Vec3 { v, _ := vec3("chunk_size", t.ChunkSize); return v }

func (t Tuning) RegionSizeVec() mathx.Vec3 { v, _ := vec3("region_size", t.RegionSize); return v }

func (t Tuning) ChunkArraySizeVec() mathx.Vec3 {
	v, _ := vec3("chunk_array_size", t.ChunkArraySize)
	return v
}

func (t Tuning) MeshArraySizeVec() mathx.Vec3 {
	v, _ := vec3("mesh_array_size", t.MeshArraySize)
	return v
}

// Validate rejects configurations the engine's invariants cannot carry.
func (t Tuning) Validate() error {
	chunk, err := vec3("chunk_size", t.ChunkSize)
	if err != nil {
		return err
	}
	regionSize, err := vec3("region_size", t.RegionSize)
	if err != nil {
		return err
	}
	chunkArray, err := vec3("chunk_array_size", t.ChunkArraySize)
	if err != nil {
		return err
	}
	meshArray, err := vec3("mesh_array_size", t.MeshArraySize)
	if err != nil {
		return err
	}

	for _, c := range []struct {
		name string
		v    mathx.Vec3
	}{{"chunk_size", chunk}, {"region_size", regionSize}, {"chunk_array_size", chunkArray}, {"mesh_array_size", meshArray}} {
		if c.v.X <= 0 || c.v.Y <= 0 || c.v.Z <= 0 {
			return fmt.Errorf("tuning: %s must be positive on every axis, got %v", c.name, c.v)
		}
	}
	// Mesh vertices are u8 local coordinates.
	if chunk.X > 255 || chunk.Y > 255 || chunk.Z > 255 {
		return fmt.Errorf("tuning: chunk_size %v exceeds the u8 vertex range", chunk)
	}
	if t.ChunkLoadingRadius < 0 {
		return fmt.Errorf("tuning: chunk_loading_radius must be >= 0")
	}
	// Ring arrays must exceed the loading diameter so simultaneously
	// resident coordinates never share a slot.
	diameter := 2*t.ChunkLoadingRadius + 1
	if chunkArray.X <= diameter || chunkArray.Y <= diameter || chunkArray.Z <= diameter {
		return fmt.Errorf("tuning: chunk_array_size %v must exceed loading diameter %d", chunkArray, diameter)
	}
	if meshArray.X <= diameter || meshArray.Y <= diameter || meshArray.Z <= diameter {
		return fmt.Errorf("tuning: mesh_array_size %v must exceed loading diameter %d", meshArray, diameter)
	}
	if t.WorkerThreadCount <= 0 {
		return fmt.Errorf("tuning: worker_thread_count must be positive")
	}
	if t.ChunkHeapSize <= 0 || t.RegionHeapSize <= 0 {
		return fmt.Errorf("tuning: heap sizes must be positive")
	}
	if t.IdleSleepMs < 0 {
		return fmt.Errorf("tuning: idle_sleep_ms must be >= 0")
	}
	return nil
}
