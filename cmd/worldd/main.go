package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voxelgrid.dev/internal/gen"
	"voxelgrid.dev/internal/manifest"
	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/mesh"
	"voxelgrid.dev/internal/persistence/editlog"
	"voxelgrid.dev/internal/persistence/indexdb"
	"voxelgrid.dev/internal/storage"
	"voxelgrid.dev/internal/stream"
	"voxelgrid.dev/internal/tuning"
	"voxelgrid.dev/internal/voxel"
)

func main() {
	var (
		worldDir   = flag.String("world", "./world", "world directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (empty: built-in defaults)")
		seed       = flag.Int64("seed", 1337, "world seed (used only when creating a fresh world)")
		generator  = flag.String("generator", "sine_hills", "terrain generator for a fresh world (sine_hills|flat|ore_speckled)")
		steps      = flag.Int("steps", 0, "stop after this many frames (0: run until signal)")
		walkEvery  = flag.Int("walk_every", 20, "advance the center one chunk +x every N frames (0: stay put)")
		frameMs    = flag.Int("frame_ms", 50, "frame interval in milliseconds")
		editEvery  = flag.Int("edit_every", 0, "carve a block under the center every N frames (0: disabled)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite activity index")
		disableLog = flag.Bool("disable_editlog", false, "disable the compressed edit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldd] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Default()
	if *tuningPath != "" {
		var err error
		tune, err = tuning.Load(*tuningPath)
		if err != nil {
			logger.Fatalf("tuning: %v", err)
		}
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	if err := os.MkdirAll(*worldDir, 0o777); err != nil {
		logger.Fatalf("world dir: %v", err)
	}
	man, err := manifest.LoadOrCreate(*worldDir, manifest.Manifest{
		Format:    manifest.Format,
		Seed:      *seed,
		Generator: *generator,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Fatalf("manifest: %v", err)
	}
	logger.Printf("world %s seed=%d generator=%s", *worldDir, man.Seed, man.Generator)

	chunkSize := tune.ChunkSizeVec()
	terrain, err := pickGenerator(man, chunkSize)
	if err != nil {
		logger.Fatalf("generator: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		dbPath := tune.IndexDBPath
		if dbPath == "" {
			dbPath = filepath.Join(*worldDir, "index", "world.db")
		}
		idx, err = indexdb.Open(dbPath)
		if err != nil {
			logger.Fatalf("indexdb: %v", err)
		}
		sessionID, err := idx.StartSession(*worldDir, man.Seed)
		if err != nil {
			logger.Fatalf("indexdb: %v", err)
		}
		logger.Printf("session %s", sessionID)
	}

	var edits *editlog.Logger
	if !*disableLog {
		dir := tune.EditLogDir
		if dir == "" {
			dir = *worldDir
		}
		edits = editlog.New(dir)
	}

	store, err := storage.Open(storage.Config{
		WorldDir:               *worldDir,
		ChunkSize:              chunkSize,
		RegionSize:             tune.RegionSizeVec(),
		ChunkHeapSize:          tune.ChunkHeapSize,
		RegionHeapSize:         tune.RegionHeapSize,
		DefragGarbageThreshold: tune.DefragmentGarbageThreshold,
		Generator:              terrain,
		Recorder:               idx,
	})
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	logger.Printf("chunk heap: %d bytes resident", store.MemorySize())

	container, err := stream.New(stream.Config{
		ChunkSize:      chunkSize,
		LoadingRadius:  tune.ChunkLoadingRadius,
		ChunkArraySize: tune.ChunkArraySizeVec(),
		MeshArraySize:  tune.MeshArraySizeVec(),
		Workers:        tune.WorkerThreadCount,
		IdleSleep:      time.Duration(tune.IdleSleepMs) * time.Millisecond,
		Source:         store,
		Mesher:         mesh.New(chunkSize),
	})
	if err != nil {
		logger.Fatalf("stream: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var (
		center     mathx.Vec3
		frame      int
		meshes     int
		meshBytes  int64
		editsCount int
	)
	ticker := time.NewTicker(time.Duration(*frameMs) * time.Millisecond)
	defer ticker.Stop()

run:
	for {
		select {
		case sig := <-sigc:
			logger.Printf("signal %v, shutting down", sig)
			break run
		case <-ticker.C:
		}

		frame++
		if *walkEvery > 0 && frame%*walkEvery == 0 {
			center.X++
		}
		container.MoveCenter(center)
		if err := container.Err(); err != nil {
			logger.Printf("stream failed: %v", err)
			break run
		}

		for {
			m, ok := container.TryPopMesh()
			if !ok {
				break
			}
			meshes++
			meshBytes += int64(len(m.Vertices))
		}

		if *editEvery > 0 && frame%*editEvery == 0 {
			pos := center.Mul(chunkSize)
			old, err := store.SetBlock(pos, 0)
			if err != nil {
				logger.Printf("edit %v: %v", pos, err)
			} else {
				editsCount++
				if edits != nil {
					if err := edits.WriteEdit(pos, old, 0); err != nil {
						logger.Printf("editlog: %v", err)
					}
				}
			}
		}

		if *steps > 0 && frame >= *steps {
			break run
		}
	}

	if err := container.Close(); err != nil {
		logger.Printf("stream close: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Printf("storage close: %v", err)
	}
	if edits != nil {
		if err := edits.Close(); err != nil {
			logger.Printf("editlog close: %v", err)
		}
	}
	if idx != nil {
		idx.Drain()
		if err := idx.EndSession(); err != nil {
			logger.Printf("indexdb: %v", err)
		}
		if err := idx.Close(); err != nil {
			logger.Printf("indexdb close: %v", err)
		}
	}
	logger.Printf("frames=%d meshes=%d mesh_bytes=%d edits=%d", frame, meshes, meshBytes, editsCount)
}

func pickGenerator(man manifest.Manifest, chunkSize mathx.Vec3) (voxel.Generator, error) {
	switch man.Generator {
	case "", "sine_hills":
		return gen.SineHills(chunkSize), nil
	case "flat":
		return gen.Flat(chunkSize, 0, gen.BlockStone), nil
	case "ore_speckled":
		return gen.OreSpeckled(chunkSize, man.Seed, 30, gen.SineHills(chunkSize)), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", man.Generator)
	}
}
