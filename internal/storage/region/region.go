// Package region implements the one-file-per-region persistence format:
// a little-endian header (end, garbage), a slot table of (offset, size)
// pairs for every chunk the region owns, and an append-only payload arena
// that is compacted in place once enough garbage accumulates.
package region

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelgrid.dev/internal/mathx"
)

const wordSize = 4

// Path is the on-disk name for a region coordinate inside the world dir.
func Path(dir string, p mathx.Vec3) string {
	return filepath.Join(dir, fmt.Sprintf("%d|%d|%d", p.X, p.Y, p.Z))
}

// File is one open region. It caches the header in memory; Close writes the
// header back. Not safe for concurrent use.
type File struct {
	f          *os.File
	path       string
	volume     int32 // chunk slots
	maxPayload int   // largest legal compressed chunk

	end     uint32
	garbage uint32
}

func (r *File) headerEnd() uint32 {
	return uint32(2+2*r.volume) * wordSize
}

// End is the byte offset of the first free byte in the arena.
func (r *File) End() uint32 { return r.end }

// Garbage is the count of reclaimable bytes inside the arena.
func (r *File) Garbage() uint32 { return r.garbage }

// Open opens or creates the region file for volume chunk slots. created
// reports whether the file did not exist before (no chunk has ever been
// persisted to it).
func Open(path string, volume int32, maxPayload int) (r *File, created bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, false, fmt.Errorf("region %s: %w", path, err)
	}
	r = &File{f: f, path: path, volume: volume, maxPayload: maxPayload}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("region %s: stat: %w", path, err)
	}
	if info.Size() == 0 {
		// Fresh file: zeroed slot table, empty arena.
		r.end = r.headerEnd()
		r.garbage = 0
		if err := f.Truncate(int64(r.end)); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("region %s: init: %w", path, err)
		}
		return r, true, nil
	}

	var hdr [2 * wordSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("region %s: header: %w", path, err)
	}
	r.end = byteOrder.Uint32(hdr[0:])
	r.garbage = byteOrder.Uint32(hdr[4:])
	if r.end < r.headerEnd() || r.garbage > r.end-r.headerEnd() {
		f.Close()
		return nil, false, fmt.Errorf("region %s: corrupt header (end=%d garbage=%d)", path, r.end, r.garbage)
	}
	return r, false, nil
}

// Slot returns the (offset, size) pair for chunk slot i. offset 0 means the
// chunk has never been written.
func (r *File) Slot(i int32) (offset, size uint32, err error) {
	if i < 0 || i >= r.volume {
		return 0, 0, fmt.Errorf("region %s: slot %d out of range", r.path, i)
	}
	var buf [2 * wordSize]byte
	if _, err := r.f.ReadAt(buf[:], slotOffset(i)); err != nil {
		return 0, 0, fmt.Errorf("region %s: slot %d: %w", r.path, i, err)
	}
	offset = byteOrder.Uint32(buf[0:])
	size = byteOrder.Uint32(buf[4:])
	if (offset == 0) != (size == 0) {
		return 0, 0, fmt.Errorf("region %s: slot %d corrupt (offset=%d size=%d)", r.path, i, offset, size)
	}
	if offset != 0 && (offset < r.headerEnd() || int(size) > r.maxPayload) {
		return 0, 0, fmt.Errorf("region %s: slot %d corrupt (offset=%d size=%d)", r.path, i, offset, size)
	}
	return offset, size, nil
}

// ReadPayload reads the compressed chunk at slot i into buf and returns the
// payload, or nil if the slot has never been written. buf must hold
// maxPayload bytes.
func (r *File) ReadPayload(i int32, buf []byte) ([]byte, error) {
	offset, size, err := r.Slot(i)
	if err != nil {
		return nil, err
	}
	if offset == 0 {
		return nil, nil
	}
	if _, err := r.f.ReadAt(buf[:size], int64(offset)); err != nil {
		return nil, fmt.Errorf("region %s: slot %d payload: %w", r.path, i, err)
	}
	return buf[:size], nil
}

// WritePayload persists a compressed chunk to slot i. If the payload fits in
// the slot's current allocation it is overwritten in place and the slack is
// accounted as garbage; otherwise it is appended at the end of the arena and
// the old allocation becomes garbage.
func (r *File) WritePayload(i int32, payload []byte) error {
	if len(payload) == 0 || len(payload) > r.maxPayload {
		return fmt.Errorf("region %s: slot %d: payload size %d out of range", r.path, i, len(payload))
	}
	oldOffset, oldSize, err := r.Slot(i)
	if err != nil {
		return err
	}
	newSize := uint32(len(payload))

	if oldOffset != 0 && newSize <= oldSize {
		// In place.
		if _, err := r.f.WriteAt(payload, int64(oldOffset)); err != nil {
			return fmt.Errorf("region %s: slot %d: %w", r.path, i, err)
		}
		if err := r.writeSlot(i, oldOffset, newSize); err != nil {
			return err
		}
		r.garbage += oldSize - newSize
		return nil
	}

	// Append.
	if _, err := r.f.WriteAt(payload, int64(r.end)); err != nil {
		return fmt.Errorf("region %s: slot %d append: %w", r.path, i, err)
	}
	if err := r.writeSlot(i, r.end, newSize); err != nil {
		return err
	}
	r.end += newSize
	r.garbage += oldSize
	return nil
}

func (r *File) writeSlot(i int32, offset, size uint32) error {
	var buf [2 * wordSize]byte
	byteOrder.PutUint32(buf[0:], offset)
	byteOrder.PutUint32(buf[4:], size)
	if _, err := r.f.WriteAt(buf[:], slotOffset(i)); err != nil {
		return fmt.Errorf("region %s: slot %d write: %w", r.path, i, err)
	}
	return nil
}

func slotOffset(i int32) int64 {
	return int64(2+2*i) * wordSize
}

// Defragment slides every live payload toward the header, lowest offset
// first so no move overwrites a blob that has not been relocated yet, then
// rewrites the slot table. The file is not shrunk. Defragmenting a region
// with zero garbage is a no-op on the table and leaves end unchanged.
func (r *File) Defragment() error {
	table := make([]byte, 2*wordSize*int(r.volume))
	if _, err := r.f.ReadAt(table, 2*wordSize); err != nil {
		return fmt.Errorf("region %s: defragment: table: %w", r.path, err)
	}

	type entry struct {
		slot   int32
		offset uint32
		size   uint32
	}
	live := make([]entry, 0, r.volume)
	for i := int32(0); i < r.volume; i++ {
		offset := byteOrder.Uint32(table[8*i:])
		size := byteOrder.Uint32(table[8*i+4:])
		if offset == 0 && size == 0 {
			continue
		}
		if (offset == 0) != (size == 0) || offset < r.headerEnd() || int(size) > r.maxPayload {
			return fmt.Errorf("region %s: defragment: slot %d corrupt (offset=%d size=%d)", r.path, i, offset, size)
		}
		live = append(live, entry{slot: i, offset: offset, size: size})
	}

	sort.Slice(live, func(a, b int) bool { return live[a].offset < live[b].offset })

	buf := make([]byte, r.maxPayload)
	newEnd := r.headerEnd()
	for _, e := range live {
		if e.offset != newEnd {
			if _, err := r.f.ReadAt(buf[:e.size], int64(e.offset)); err != nil {
				return fmt.Errorf("region %s: defragment: slot %d read: %w", r.path, e.slot, err)
			}
			if _, err := r.f.WriteAt(buf[:e.size], int64(newEnd)); err != nil {
				return fmt.Errorf("region %s: defragment: slot %d move: %w", r.path, e.slot, err)
			}
		}
		byteOrder.PutUint32(table[8*e.slot:], newEnd)
		newEnd += e.size
	}

	if _, err := r.f.WriteAt(table, 2*wordSize); err != nil {
		return fmt.Errorf("region %s: defragment: table write: %w", r.path, err)
	}
	r.garbage = 0
	r.end = newEnd
	return nil
}

// Close writes the header back and closes the descriptor.
func (r *File) Close() error {
	var hdr [2 * wordSize]byte
	byteOrder.PutUint32(hdr[0:], r.end)
	byteOrder.PutUint32(hdr[4:], r.garbage)
	if _, err := r.f.WriteAt(hdr[:], 0); err != nil {
		r.f.Close()
		return fmt.Errorf("region %s: header write: %w", r.path, err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("region %s: close: %w", r.path, err)
	}
	return nil
}
