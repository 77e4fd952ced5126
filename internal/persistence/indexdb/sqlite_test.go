package indexdb

import (
	"path/filepath"
	"testing"

	"voxelgrid.dev/internal/mathx"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index", "world.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRecordsEvents(t *testing.T) {
	s := openTest(t)
	id, err := s.StartSession("/tmp/world", 1337)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	s.RecordFlush(mathx.Vec3{X: 1, Y: 2, Z: 3}, 812)
	s.RecordFlush(mathx.Vec3{X: -4, Y: 0, Z: 9}, 1024)
	s.RecordDefrag(mathx.Vec3{X: -1, Y: -1, Z: -1}, 16384)
	s.Drain()

	flushes, err := s.FlushCount(id)
	if err != nil {
		t.Fatalf("flush count: %v", err)
	}
	if flushes != 2 {
		t.Fatalf("flushes = %d, want 2", flushes)
	}
	defrags, err := s.DefragCount(id)
	if err != nil {
		t.Fatalf("defrag count: %v", err)
	}
	if defrags != 1 {
		t.Fatalf("defrags = %d, want 1", defrags)
	}

	if err := s.EndSession(); err != nil {
		t.Fatalf("end session: %v", err)
	}
	var ended *string
	if err := s.db.QueryRow(`SELECT ended_at FROM sessions WHERE id=?`, id).Scan(&ended); err != nil {
		t.Fatalf("query session: %v", err)
	}
	if ended == nil {
		t.Fatal("ended_at not stamped")
	}
}

func TestNilIndexIsDisabled(t *testing.T) {
	var s *SQLiteIndex
	// All of these must be safe no-ops.
	if _, err := s.StartSession("x", 1); err != nil {
		t.Fatalf("nil StartSession: %v", err)
	}
	s.RecordFlush(mathx.Vec3{}, 1)
	s.RecordDefrag(mathx.Vec3{}, 1)
	s.Drain()
	if err := s.EndSession(); err != nil {
		t.Fatalf("nil EndSession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestDistinctSessionIDs(t *testing.T) {
	s := openTest(t)
	a, err := s.StartSession("w", 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.StartSession("w", 1)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("session ids collide: %s", a)
	}
}
