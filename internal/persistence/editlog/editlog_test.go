package editlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"voxelgrid.dev/internal/mathx"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer zr.Close()

	var entries []Entry
	sc := bufio.NewScanner(zr.IOReadCloser())
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return entries
}

func TestWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.WriteEdit(mathx.Vec3{X: 1, Y: -2, Z: 3}, 0, 7); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteEdit(mathx.Vec3{X: 4, Y: 5, Z: 6}, 7, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "edits", "edits-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", files, err)
	}

	entries := readEntries(t, files[0])
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Pos != [3]int32{1, -2, 3} || entries[0].New != 7 {
		t.Fatalf("first entry wrong: %+v", entries[0])
	}
	if entries[1].Old != 7 || entries[1].New != 0 {
		t.Fatalf("second entry wrong: %+v", entries[1])
	}
	if entries[0].Time == "" {
		t.Fatal("entries must be timestamped")
	}
}

func TestAppendRotatesAcrossHours(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	// Two edits an hour apart, one straddling entry back in the first hour:
	// the file an entry lands in follows its timestamp, so the third append
	// rotates again rather than appending to the second hour's file.
	early := Entry{Time: "2024-06-01T10:15:00Z", Pos: [3]int32{1, 0, 0}, New: 1}
	late := Entry{Time: "2024-06-01T11:05:00Z", Pos: [3]int32{2, 0, 0}, New: 2}
	straggler := Entry{Time: "2024-06-01T10:59:59Z", Pos: [3]int32{3, 0, 0}, New: 3}
	for _, e := range []Entry{early, late, straggler} {
		if err := l.Append(e); err != nil {
			t.Fatalf("append %+v: %v", e, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "edits", "edits-*.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected two hour files, got %v", files)
	}

	first := readEntries(t, filepath.Join(dir, "edits", "edits-2024-06-01-10.jsonl.zst"))
	second := readEntries(t, filepath.Join(dir, "edits", "edits-2024-06-01-11.jsonl.zst"))
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("split wrong: hour 10 has %d entries, hour 11 has %d", len(first), len(second))
	}
	if first[0].New != 1 || first[1].New != 3 {
		t.Fatalf("hour 10 entries wrong: %+v", first)
	}
	if second[0].New != 2 {
		t.Fatalf("hour 11 entry wrong: %+v", second)
	}
}

func TestAppendRejectsBadTimestamp(t *testing.T) {
	l := New(t.TempDir())
	defer l.Close()
	if err := l.Append(Entry{Time: "yesterday-ish"}); err == nil {
		t.Fatal("unparseable entry time accepted")
	}
}

func TestCloseWithoutWrites(t *testing.T) {
	l := New(t.TempDir())
	if err := l.Close(); err != nil {
		t.Fatalf("close of unused logger: %v", err)
	}
}
