package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	objects := ObjectsV1{
		Header: Header{Version: 1, Store: "objects", SavedAt: 1756300000},
		Objects: []ObjectV1{
			{ID: "o_1", Kind: "lamp", X: 1.5, Y: -2, Layer: 7, Flipped: true, On: true,
				OwnerIdentity: "d_1", PlacedAt: 1756290000, LastTouchedAt: 1756295000},
		},
	}
	if err := s.WriteObjects(objects); err != nil {
		t.Fatalf("write objects: %v", err)
	}
	gotObjects, err := s.ReadObjects()
	if err != nil {
		t.Fatalf("read objects: %v", err)
	}
	if len(gotObjects.Objects) != 1 || gotObjects.Objects[0] != objects.Objects[0] {
		t.Fatalf("objects round trip: %+v", gotObjects.Objects)
	}

	ledger := LedgerV1{
		Header: Header{Version: 1, Store: "ledger", SavedAt: 1756300000},
		Identities: []IdentityV1{
			{
				DeviceID:            "d_1",
				DisplayName:         "mika",
				LifetimeIdleSeconds: 3600,
				SpendableBalance:    1200,
				ObjectsPlaced:       4,
				PlacedByKind:        map[string]int64{"lamp": 3, "rug": 1},
				DailyPlacements:     map[string]int64{"2026-03-14": 2},
				Unlocks:             []UnlockV1{{Kind: "fountain", UnlockedBy: "mika", UnlockedAt: 1756200000}},
				Presets: []PresetV1{{
					Name:    "nook",
					Items:   []PresetItemV1{{Kind: "lamp", DX: 1, DY: 2, Flipped: true}},
					SavedAt: 1756250000,
				}},
				SessionCount: 9,
				JackpotWins:  2,
			},
		},
	}
	if err := s.WriteLedger(ledger); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
	gotLedger, err := s.ReadLedger()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if len(gotLedger.Identities) != 1 {
		t.Fatalf("ledger round trip: %+v", gotLedger)
	}
	id := gotLedger.Identities[0]
	if id.PlacedByKind["lamp"] != 3 || id.DailyPlacements["2026-03-14"] != 2 {
		t.Fatalf("nested maps lost: %+v", id)
	}
	if len(id.Presets) != 1 || id.Presets[0].Items[0].DX != 1 {
		t.Fatalf("presets lost: %+v", id.Presets)
	}

	rec := RecordV1{
		Header:         Header{Version: 1, Store: "idle_record", SavedAt: 1756300000},
		HolderIdentity: "d_1",
		HolderName:     "mika",
		Value:          3600,
		UpdatedAt:      1756300000,
	}
	if err := s.WriteIdleRecord(rec); err != nil {
		t.Fatalf("write record: %v", err)
	}
	gotRec, err := s.ReadIdleRecord()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if gotRec.HolderIdentity != "d_1" || gotRec.Value != 3600 {
		t.Fatalf("record round trip: %+v", gotRec)
	}
}

func TestReadMissingDocFails(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.ReadObjects(); err == nil {
		t.Fatalf("reading an absent store should error")
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	doc := RecordV1{Header: Header{Version: 1, Store: "idle_record"}, HolderIdentity: "d_1", Value: 1}
	if err := s.WriteIdleRecord(doc); err != nil {
		t.Fatalf("first write: %v", err)
	}
	doc.Value = 2
	if err := s.WriteIdleRecord(doc); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := s.ReadIdleRecord()
	if err != nil || got.Value != 2 {
		t.Fatalf("overwrite: %+v %v", got, err)
	}
	// No temp files survive a completed write.
	ents, _ := os.ReadDir(dir)
	for _, e := range ents {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}
