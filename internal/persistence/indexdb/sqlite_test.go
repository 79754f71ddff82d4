package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"plaza.gg/internal/persistence/snapshot"
	"plaza.gg/internal/sim/world"
)

func TestIndexFlushWritesReadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	at := time.Unix(1756300000, 0)
	idx.IndexFlush(world.FlushDoc{
		At: at,
		Objects: snapshot.ObjectsV1{Objects: []snapshot.ObjectV1{
			{ID: "o_1", Kind: "lamp", X: 1, Y: 2, Layer: 3, OwnerIdentity: "d_1", PlacedAt: 100, LastTouchedAt: 200},
			{ID: "o_2", Kind: "rug", Layer: 4, OwnerIdentity: "d_1", PlacedAt: 150, LastTouchedAt: 150},
		}},
		Ledger: snapshot.LedgerV1{Identities: []snapshot.IdentityV1{
			{DeviceID: "d_1", DisplayName: "mika", LifetimeIdleSeconds: 3600, SpendableBalance: 1200, ObjectsPlaced: 2, SessionCount: 5},
		}},
		Idle:    snapshot.RecordV1{HolderIdentity: "d_1", HolderName: "mika", Value: 3600, UpdatedAt: 1756290000},
		Jackpot: snapshot.RecordV1{},
	})

	// Close drains the queue before shutting the db.
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("objects rows: %d %v", n, err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("identities rows: %d %v", n, err)
	}

	var balance int64
	if err := db.QueryRow(`SELECT spendable_balance FROM identities WHERE device_id = 'd_1'`).Scan(&balance); err != nil || balance != 1200 {
		t.Fatalf("balance: %d %v", balance, err)
	}

	var value int64
	if err := db.QueryRow(`SELECT value FROM records WHERE name = 'idle'`).Scan(&value); err != nil || value != 3600 {
		t.Fatalf("idle record: %d %v", value, err)
	}
	// An empty record is not indexed.
	if err := db.QueryRow(`SELECT COUNT(*) FROM records WHERE name = 'jackpot'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("jackpot rows: %d %v", n, err)
	}

	var flushed int64
	if err := db.QueryRow(`SELECT flushed_at FROM flushes`).Scan(&flushed); err != nil || flushed != at.Unix() {
		t.Fatalf("flush log: %d %v", flushed, err)
	}
}

func TestIndexFlushFullReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	doc := world.FlushDoc{
		At: time.Unix(1756300000, 0),
		Objects: snapshot.ObjectsV1{Objects: []snapshot.ObjectV1{
			{ID: "o_1", Kind: "lamp", Layer: 1},
		}},
	}
	idx.IndexFlush(doc)

	// The object is deleted before the next flush: its row must not survive.
	doc.At = doc.At.Add(time.Minute)
	doc.Objects.Objects = nil
	idx.IndexFlush(doc)

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("stale object rows survived the flush: %d %v", n, err)
	}
}
