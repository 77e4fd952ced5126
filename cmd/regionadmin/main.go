package main

import (
	"flag"
	"log"
	"os"

	"voxelgrid.dev/internal/storage/region"
	"voxelgrid.dev/internal/voxel"
)

// regionadmin inspects a single region file and optionally forces a
// compaction, independent of any running world.
func main() {
	var (
		path      = flag.String("file", "", "region file path (e.g. world/0|0|0)")
		regionDim = flag.Int("region", 32, "chunks per region axis")
		chunkDim  = flag.Int("chunk", 16, "blocks per chunk axis")
		defrag    = flag.Bool("defrag", false, "compact the payload arena")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[regionadmin] ", log.LstdFlags)

	if *path == "" {
		logger.Fatal("missing -file")
	}
	if _, err := os.Stat(*path); err != nil {
		logger.Fatalf("%v", err)
	}

	volume := int32(*regionDim) * int32(*regionDim) * int32(*regionDim)
	chunkVolume := (*chunkDim) * (*chunkDim) * (*chunkDim)
	r, created, err := region.Open(*path, volume, voxel.CompressBound(chunkVolume))
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	if created {
		logger.Fatalf("%s did not exist; refusing to create a region out of thin air", *path)
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Fatalf("close: %v", err)
		}
	}()

	report(logger, r, volume)

	if *defrag {
		before := r.Garbage()
		if err := r.Defragment(); err != nil {
			logger.Fatalf("defragment: %v", err)
		}
		logger.Printf("defragmented: reclaimed %d bytes", before)
		report(logger, r, volume)
	}
}

func report(logger *log.Logger, r *region.File, volume int32) {
	var live int32
	var liveBytes uint64
	for i := int32(0); i < volume; i++ {
		offset, size, err := r.Slot(i)
		if err != nil {
			logger.Fatalf("slot %d: %v", i, err)
		}
		if offset != 0 {
			live++
			liveBytes += uint64(size)
		}
	}
	logger.Printf("end=%d garbage=%d live_chunks=%d/%d live_bytes=%d", r.End(), r.Garbage(), live, volume, liveBytes)
}
