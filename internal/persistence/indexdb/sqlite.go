package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"plaza.gg/internal/sim/world"
)

// SQLiteIndex is a queryable read model of flushed world state. It is
// strictly secondary: the zstd snapshots are the source of truth, and the
// index rebuilds itself from the next flush if it ever falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan world.FlushDoc
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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

	s := &SQLiteIndex{
		db: db,
		ch: make(chan world.FlushDoc, 16),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for the overwrite-heavy flush workload.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS identities (
			device_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			lifetime_idle_seconds INTEGER NOT NULL,
			spendable_balance INTEGER NOT NULL,
			objects_placed INTEGER NOT NULL,
			session_count INTEGER NOT NULL,
			jackpot_wins INTEGER NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_identities_idle ON identities(lifetime_idle_seconds DESC);`,
		`CREATE TABLE IF NOT EXISTS objects (
			object_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			layer INTEGER NOT NULL,
			owner_identity TEXT NOT NULL,
			placed_at INTEGER NOT NULL,
			last_touched_at INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_objects_owner ON objects(owner_identity);`,
		`CREATE TABLE IF NOT EXISTS records (
			name TEXT PRIMARY KEY,
			holder_identity TEXT NOT NULL,
			holder_name TEXT NOT NULL,
			value INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS flushes (
			flushed_at INTEGER PRIMARY KEY,
			identities INTEGER NOT NULL,
			objects INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// IndexFlush enqueues one flushed state. Never blocks the world loop: when
// the writer is behind, the older queued doc is superseded by this one.
func (s *SQLiteIndex) IndexFlush(doc world.FlushDoc) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- doc:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- doc:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for doc := range s.ch {
		if err := s.writeDoc(doc); err != nil {
			// Next flush carries the full state again; nothing to retry.
			continue
		}
	}
}

func (s *SQLiteIndex) writeDoc(doc world.FlushDoc) error {
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Full replace per flush: the doc is the whole world, so stale rows
	// from a previous flush must not survive.
	if _, err := tx.Exec(`DELETE FROM identities`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM objects`); err != nil {
		return err
	}

	insID, err := tx.Prepare(`INSERT INTO identities(device_id,display_name,lifetime_idle_seconds,spendable_balance,objects_placed,session_count,jackpot_wins,first_seen,last_seen,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insID.Close()
	for _, row := range doc.Ledger.Identities {
		if _, err := insID.Exec(
			row.DeviceID,
			row.DisplayName,
			row.LifetimeIdleSeconds,
			row.SpendableBalance,
			row.ObjectsPlaced,
			row.SessionCount,
			row.JackpotWins,
			row.FirstSeen,
			row.LastSeen,
			now,
		); err != nil {
			return err
		}
	}

	insObj, err := tx.Prepare(`INSERT INTO objects(object_id,kind,x,y,layer,owner_identity,placed_at,last_touched_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insObj.Close()
	for _, o := range doc.Objects.Objects {
		if _, err := insObj.Exec(
			o.ID,
			o.Kind,
			o.X,
			o.Y,
			o.Layer,
			o.OwnerIdentity,
			o.PlacedAt,
			o.LastTouchedAt,
			now,
		); err != nil {
			return err
		}
	}

	insRec, err := tx.Prepare(`INSERT OR REPLACE INTO records(name,holder_identity,holder_name,value,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insRec.Close()
	if doc.Idle.HolderIdentity != "" {
		if _, err := insRec.Exec("idle", doc.Idle.HolderIdentity, doc.Idle.HolderName, doc.Idle.Value, doc.Idle.UpdatedAt); err != nil {
			return err
		}
	}
	if doc.Jackpot.HolderIdentity != "" {
		if _, err := insRec.Exec("jackpot", doc.Jackpot.HolderIdentity, doc.Jackpot.HolderName, doc.Jackpot.Value, doc.Jackpot.UpdatedAt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO flushes(flushed_at,identities,objects) VALUES(?,?,?)`,
		doc.At.Unix(), len(doc.Ledger.Identities), len(doc.Objects.Objects)); err != nil {
		return err
	}

	return tx.Commit()
}
