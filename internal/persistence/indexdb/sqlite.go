// Package indexdb keeps an operational index of world activity in sqlite:
// sessions, chunk flushes, and region defragmentations. It is a secondary
// record for tooling; the region files stay the source of truth, so writes
// are asynchronous and dropped rather than allowed to stall the store.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "modernc.org/sqlite"

	"voxelgrid.dev/internal/mathx"
)

type reqKind int

const (
	reqFlush reqKind = iota + 1
	reqDefrag
	reqSync
)

type req struct {
	kind reqKind

	pos  mathx.Vec3
	size int
	at   string

	done chan struct{}
}

// SQLiteIndex implements storage.Recorder. A nil *SQLiteIndex is a valid
// disabled recorder.
type SQLiteIndex struct {
	db   *sql.DB
	node *snowflake.Node

	sessionID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

// Open creates or opens the index database and starts its writer.
func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("indexdb: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:   db,
		node: node,
		ch:   make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			world_dir TEXT NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_flushes (
			session_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			compressed_size INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flushes_session ON chunk_flushes(session_id);`,
		`CREATE TABLE IF NOT EXISTS defrag_events (
			session_id TEXT NOT NULL,
			rx INTEGER NOT NULL,
			ry INTEGER NOT NULL,
			rz INTEGER NOT NULL,
			reclaimed INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_defrags_session ON defrag_events(session_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartSession registers a new session row and returns its id. Subsequent
// flush and defrag records attach to it.
func (s *SQLiteIndex) StartSession(worldDir string, seed int64) (string, error) {
	if s == nil {
		return "", nil
	}
	id := s.node.Generate().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(
		`INSERT INTO sessions(id, world_dir, seed, started_at) VALUES(?,?,?,?)`,
		id, worldDir, seed, now,
	); err != nil {
		return "", fmt.Errorf("indexdb: start session: %w", err)
	}
	s.sessionID = id
	return id, nil
}

// EndSession stamps the session's end time. Call after the store is closed
// so the row marks a complete flush.
func (s *SQLiteIndex) EndSession() error {
	if s == nil || s.sessionID == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`UPDATE sessions SET ended_at=? WHERE id=?`, now, s.sessionID)
	return err
}

// RecordFlush implements storage.Recorder. Non-blocking; drops if the
// writer falls behind.
func (s *SQLiteIndex) RecordFlush(chunk mathx.Vec3, compressedSize int) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqFlush, pos: chunk, size: compressedSize, at: time.Now().UTC().Format(time.RFC3339Nano)}:
	default:
	}
}

// RecordDefrag implements storage.Recorder.
func (s *SQLiteIndex) RecordDefrag(region mathx.Vec3, reclaimed uint32) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqDefrag, pos: region, size: int(reclaimed), at: time.Now().UTC().Format(time.RFC3339Nano)}:
	default:
	}
}

// FlushCount reports how many chunk flushes a session recorded. Used by
// tooling and tests; reads see everything the writer has committed.
func (s *SQLiteIndex) FlushCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunk_flushes WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}

// DefragCount reports how many defragmentations a session recorded.
func (s *SQLiteIndex) DefragCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM defrag_events WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}

// Drain blocks until every record queued before it is committed. Tests and
// shutdown paths use it; the hot path never does.
func (s *SQLiteIndex) Drain() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqSync, done: done}
	<-done
}

// Close stops the writer and closes the database.
func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) loop() {
	insertFlush, _ := s.db.Prepare(`INSERT INTO chunk_flushes(session_id,x,y,z,compressed_size,at) VALUES(?,?,?,?,?,?)`)
	insertDefrag, _ := s.db.Prepare(`INSERT INTO defrag_events(session_id,rx,ry,rz,reclaimed,at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertFlush != nil {
			_ = insertFlush.Close()
		}
		if insertDefrag != nil {
			_ = insertDefrag.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			if insertFlush != nil {
				_, _ = insertFlush.Exec(s.sessionID, r.pos.X, r.pos.Y, r.pos.Z, r.size, r.at)
			}
		case reqDefrag:
			if insertDefrag != nil {
				_, _ = insertDefrag.Exec(s.sessionID, r.pos.X, r.pos.Y, r.pos.Z, r.size, r.at)
			}
		case reqSync:
			close(r.done)
		}
	}
}
