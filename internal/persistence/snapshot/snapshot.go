package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Each store flushes as one flat document, overwritten wholesale. The file
// format matches across stores: a JSON header line followed by a gob body,
// zstd-compressed.

type Header struct {
	Version int    `json:"version"`
	Store   string `json:"store"`
	SavedAt int64  `json:"saved_at"`
}

type ObjectsV1 struct {
	Header  Header     `json:"header"`
	Objects []ObjectV1 `json:"objects"`
}

type ObjectV1 struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Layer         int64   `json:"layer"`
	Flipped       bool    `json:"flipped,omitempty"`
	On            bool    `json:"on,omitempty"`
	OwnerIdentity string  `json:"owner_identity,omitempty"`
	PlacedAt      int64   `json:"placed_at"`
	LastTouchedAt int64   `json:"last_touched_at"`
}

type LedgerV1 struct {
	Header     Header       `json:"header"`
	Identities []IdentityV1 `json:"identities"`
}

type IdentityV1 struct {
	DeviceID            string           `json:"device_id"`
	DisplayName         string           `json:"display_name,omitempty"`
	LifetimeIdleSeconds int64            `json:"lifetime_idle_seconds"`
	SpendableBalance    int64            `json:"spendable_balance"`
	ObjectsPlaced       int64            `json:"objects_placed"`
	PlacedByKind        map[string]int64 `json:"placed_by_kind,omitempty"`
	DailyPlacements     map[string]int64 `json:"daily_placements,omitempty"`
	Unlocks             []UnlockV1       `json:"unlocks,omitempty"`
	Presets             []PresetV1       `json:"presets,omitempty"`
	FirstSeen           int64            `json:"first_seen"`
	LastSeen            int64            `json:"last_seen"`
	SessionCount        int64            `json:"session_count"`
	JackpotWins         int64            `json:"jackpot_wins,omitempty"`
}

type UnlockV1 struct {
	Kind       string `json:"kind"`
	UnlockedBy string `json:"unlocked_by,omitempty"`
	UnlockedAt int64  `json:"unlocked_at"`
}

type PresetV1 struct {
	Name    string         `json:"name"`
	Items   []PresetItemV1 `json:"items"`
	SavedAt int64          `json:"saved_at"`
}

type PresetItemV1 struct {
	Kind    string  `json:"kind"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	Flipped bool    `json:"flipped,omitempty"`
}

type RecordV1 struct {
	Header         Header `json:"header"`
	HolderIdentity string `json:"holder_identity"`
	HolderName     string `json:"holder_name"`
	Value          int64  `json:"value"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Store writes and reads the four per-store documents under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Dir() string { return s.dir }

const (
	objectsFile       = "objects.snap.zst"
	ledgerFile        = "ledger.snap.zst"
	idleRecordFile    = "idle_record.snap.zst"
	jackpotRecordFile = "jackpot_record.snap.zst"
)

func (s *Store) WriteObjects(doc ObjectsV1) error {
	return writeDoc(filepath.Join(s.dir, objectsFile), doc.Header, &doc)
}

func (s *Store) ReadObjects() (ObjectsV1, error) {
	var doc ObjectsV1
	err := readDoc(filepath.Join(s.dir, objectsFile), &doc)
	return doc, err
}

func (s *Store) WriteLedger(doc LedgerV1) error {
	return writeDoc(filepath.Join(s.dir, ledgerFile), doc.Header, &doc)
}

func (s *Store) ReadLedger() (LedgerV1, error) {
	var doc LedgerV1
	err := readDoc(filepath.Join(s.dir, ledgerFile), &doc)
	return doc, err
}

func (s *Store) WriteIdleRecord(doc RecordV1) error {
	return writeDoc(filepath.Join(s.dir, idleRecordFile), doc.Header, &doc)
}

func (s *Store) ReadIdleRecord() (RecordV1, error) {
	var doc RecordV1
	err := readDoc(filepath.Join(s.dir, idleRecordFile), &doc)
	return doc, err
}

func (s *Store) WriteJackpotRecord(doc RecordV1) error {
	return writeDoc(filepath.Join(s.dir, jackpotRecordFile), doc.Header, &doc)
}

func (s *Store) ReadJackpotRecord() (RecordV1, error) {
	var doc RecordV1
	err := readDoc(filepath.Join(s.dir, jackpotRecordFile), &doc)
	return doc, err
}

func writeDoc(path string, hdr Header, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(hb); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = f.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Overwrite the previous document only once the new one is complete.
	return os.Rename(tmp, path)
}

func readDoc(path string, doc any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is advisory; the gob body carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(doc); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
