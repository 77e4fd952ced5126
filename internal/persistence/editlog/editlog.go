// Package editlog appends every block edit to hour-bucketed, zstd-compressed
// JSONL files under the world directory. The log is an audit trail for
// tooling; the voxel store never reads it back.
package editlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelgrid.dev/internal/mathx"
	"voxelgrid.dev/internal/voxel"
)

const hourFormat = "2006-01-02-15"

// Entry is one block edit.
type Entry struct {
	Time string   `json:"time"`
	Pos  [3]int32 `json:"pos"`
	Old  uint8    `json:"old"`
	New  uint8    `json:"new"`
}

// hourBucket is the log file an entry belongs to, derived from the entry's
// own timestamp so replayed or buffered edits still land in the right file.
func (e Entry) hourBucket() (string, error) {
	t, err := time.Parse(time.RFC3339Nano, e.Time)
	if err != nil {
		return "", fmt.Errorf("editlog: bad entry time %q: %w", e.Time, err)
	}
	return t.UTC().Format(hourFormat), nil
}

// Logger records block edits (compressed). One file per UTC hour; an edit
// whose hour differs from the open file's closes it and starts the next.
type Logger struct {
	dir string

	mu   sync.Mutex
	hour string
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	enc  *json.Encoder
}

// New writes under <worldDir>/edits/.
func New(worldDir string) *Logger {
	return &Logger{dir: filepath.Join(worldDir, "edits")}
}

// WriteEdit appends one edit, stamped now.
func (l *Logger) WriteEdit(pos mathx.Vec3, from, to voxel.Block) error {
	return l.Append(Entry{
		Time: time.Now().UTC().Format(time.RFC3339Nano),
		Pos:  [3]int32{pos.X, pos.Y, pos.Z},
		Old:  from,
		New:  to,
	})
}

// Append records a fully formed entry into its hour's file.
func (l *Logger) Append(e Entry) error {
	hour, err := e.hourBucket()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if hour != l.hour {
		if err := l.rotateLocked(hour); err != nil {
			return err
		}
	}
	if err := l.enc.Encode(e); err != nil {
		return err
	}
	// Flush through to the encoder so a crash loses at most the entry
	// inside zstd's current block.
	return l.bw.Flush()
}

// rotateLocked closes the open hour file, if any, and opens hour's.
func (l *Logger) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.zw = zw
	l.bw = bufio.NewWriterSize(zw, 128*1024)
	l.enc = json.NewEncoder(l.bw)
	l.hour = hour
	return nil
}

func (l *Logger) closeLocked() error {
	var firstErr error
	if l.bw != nil {
		firstErr = l.bw.Flush()
	}
	if l.zw != nil {
		if err := l.zw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.zw = nil
	}
	if l.f != nil {
		if err := l.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.f = nil
	}
	l.bw = nil
	l.enc = nil
	l.hour = ""
	return firstErr
}

func (l *Logger) path(hour string) string {
	return filepath.Join(l.dir, fmt.Sprintf("edits-%s.jsonl.zst", hour))
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}
