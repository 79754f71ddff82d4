package world

import (
	"sort"
	"time"

	"plaza.gg/internal/persistence/snapshot"
	"plaza.gg/internal/protocol"
)

func itemFromV1(it snapshot.PresetItemV1) protocol.PresetItem {
	return protocol.PresetItem{Kind: it.Kind, DX: it.DX, DY: it.DY, Flipped: it.Flipped}
}

// ChangeRecord describes one already-applied mutation. The queue exists for
// audit/replay and to know when a flush is owed; flushes always serialize
// the full current state, never a diff replay.
type ChangeRecord struct {
	At        int64  `json:"at"`
	SessionID string `json:"session_id,omitempty"`
	Op        string `json:"op"`
	Target    string `json:"target,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func (w *World) appendChange(now time.Time, sessionID, op, target, detail string) {
	rec := ChangeRecord{
		At:        now.Unix(),
		SessionID: sessionID,
		Op:        op,
		Target:    target,
		Detail:    detail,
	}
	w.pending = append(w.pending, rec)
	if w.changeLog != nil {
		if err := w.changeLog.WriteChange(rec); err != nil {
			w.log.Printf("change log: %v", err)
		}
	}
}

// flush serializes the current full state of each store to its sink. On any
// write failure the pending queue is kept so the next cycle retries; the
// in-memory state stays authoritative either way.
func (w *World) flush(now time.Time) {
	if w.sink == nil {
		return
	}

	objects := w.exportObjects(now)
	ledger := w.exportLedger(now)
	idle := w.exportRecord("idle_record", &w.idleRecord, now)
	jackpot := w.exportRecord("jackpot_record", &w.jackpotRecord, now)

	failed := false
	if err := w.sink.WriteObjects(objects); err != nil {
		w.log.Printf("flush objects: %v", err)
		failed = true
	}
	if err := w.sink.WriteLedger(ledger); err != nil {
		w.log.Printf("flush ledger: %v", err)
		failed = true
	}
	if err := w.sink.WriteIdleRecord(idle); err != nil {
		w.log.Printf("flush idle record: %v", err)
		failed = true
	}
	if err := w.sink.WriteJackpotRecord(jackpot); err != nil {
		w.log.Printf("flush jackpot record: %v", err)
		failed = true
	}
	if failed {
		w.flushErrN.Add(1)
		return
	}

	w.pending = w.pending[:0]
	w.flushesN.Add(1)
	w.lastFlushAt.Store(now.Unix())

	if w.index != nil {
		w.index.IndexFlush(FlushDoc{At: now, Objects: objects, Ledger: ledger, Idle: idle, Jackpot: jackpot})
	}
}

func (w *World) exportObjects(now time.Time) snapshot.ObjectsV1 {
	doc := snapshot.ObjectsV1{
		Header:  snapshot.Header{Version: 1, Store: "objects", SavedAt: now.Unix()},
		Objects: make([]snapshot.ObjectV1, 0, len(w.objects)),
	}
	for _, o := range w.objects {
		doc.Objects = append(doc.Objects, snapshot.ObjectV1{
			ID:            o.ID,
			Kind:          o.Kind,
			X:             o.X,
			Y:             o.Y,
			Layer:         o.Layer,
			Flipped:       o.Flipped,
			On:            o.On,
			OwnerIdentity: o.OwnerIdentity,
			PlacedAt:      o.PlacedAt.Unix(),
			LastTouchedAt: o.LastTouchedAt.Unix(),
		})
	}
	sort.Slice(doc.Objects, func(i, j int) bool { return doc.Objects[i].ID < doc.Objects[j].ID })
	return doc
}

func (w *World) exportLedger(now time.Time) snapshot.LedgerV1 {
	doc := snapshot.LedgerV1{
		Header:     snapshot.Header{Version: 1, Store: "ledger", SavedAt: now.Unix()},
		Identities: make([]snapshot.IdentityV1, 0, len(w.identities)),
	}
	for _, id := range w.identities {
		row := snapshot.IdentityV1{
			DeviceID:            id.DeviceID,
			DisplayName:         id.DisplayName,
			LifetimeIdleSeconds: id.LifetimeIdleSeconds,
			SpendableBalance:    id.SpendableBalance,
			ObjectsPlaced:       id.ObjectsPlaced,
			FirstSeen:           id.FirstSeen.Unix(),
			LastSeen:            id.LastSeen.Unix(),
			SessionCount:        id.SessionCount,
			JackpotWins:         id.JackpotWins,
		}
		if len(id.PlacedByKind) > 0 {
			row.PlacedByKind = make(map[string]int64, len(id.PlacedByKind))
			for k, v := range id.PlacedByKind {
				row.PlacedByKind[k] = v
			}
		}
		if len(id.DailyPlacements) > 0 {
			row.DailyPlacements = make(map[string]int64, len(id.DailyPlacements))
			for k, v := range id.DailyPlacements {
				row.DailyPlacements[k] = v
			}
		}
		for _, u := range id.Unlocks {
			row.Unlocks = append(row.Unlocks, snapshot.UnlockV1{
				Kind:       u.Kind,
				UnlockedBy: u.UnlockedBy,
				UnlockedAt: u.UnlockedAt.Unix(),
			})
		}
		for _, p := range id.Presets {
			pv := snapshot.PresetV1{Name: p.Name, SavedAt: p.SavedAt.Unix()}
			for _, it := range p.Items {
				pv.Items = append(pv.Items, snapshot.PresetItemV1{Kind: it.Kind, DX: it.DX, DY: it.DY, Flipped: it.Flipped})
			}
			row.Presets = append(row.Presets, pv)
		}
		doc.Identities = append(doc.Identities, row)
	}
	sort.Slice(doc.Identities, func(i, j int) bool { return doc.Identities[i].DeviceID < doc.Identities[j].DeviceID })
	return doc
}

func (w *World) exportRecord(store string, r *Record, now time.Time) snapshot.RecordV1 {
	doc := snapshot.RecordV1{
		Header:         snapshot.Header{Version: 1, Store: store, SavedAt: now.Unix()},
		HolderIdentity: r.HolderIdentity,
		HolderName:     r.HolderName,
		Value:          r.Value,
	}
	if !r.UpdatedAt.IsZero() {
		doc.UpdatedAt = r.UpdatedAt.Unix()
	}
	return doc
}

// Load reads each durable sink. A missing or unreadable sink leaves that
// store empty; startup never fails on bad persistence. Call before Run.
func (w *World) Load() {
	if w.sink == nil {
		return
	}

	if doc, err := w.sink.ReadObjects(); err != nil {
		w.log.Printf("load objects: %v (starting empty)", err)
	} else {
		w.importObjects(doc)
	}
	if doc, err := w.sink.ReadLedger(); err != nil {
		w.log.Printf("load ledger: %v (starting empty)", err)
	} else {
		w.importLedger(doc)
	}
	if doc, err := w.sink.ReadIdleRecord(); err != nil {
		w.log.Printf("load idle record: %v (starting empty)", err)
	} else {
		importRecord(&w.idleRecord, doc)
	}
	if doc, err := w.sink.ReadJackpotRecord(); err != nil {
		w.log.Printf("load jackpot record: %v (starting empty)", err)
	} else {
		importRecord(&w.jackpotRecord, doc)
	}

	// Never trust a persisted counter across restarts.
	w.rederiveNextLayer()
	w.objectsN.Store(int64(len(w.objects)))
	w.identitiesN.Store(int64(len(w.identities)))
}

func (w *World) importObjects(doc snapshot.ObjectsV1) {
	for _, ov := range doc.Objects {
		if ov.ID == "" {
			continue
		}
		w.objects[ov.ID] = &SharedObject{
			ID:            ov.ID,
			Kind:          ov.Kind,
			X:             ov.X,
			Y:             ov.Y,
			Layer:         ov.Layer,
			Flipped:       ov.Flipped,
			On:            ov.On,
			OwnerIdentity: ov.OwnerIdentity,
			PlacedAt:      time.Unix(ov.PlacedAt, 0),
			LastTouchedAt: time.Unix(ov.LastTouchedAt, 0),
		}
	}
}

func (w *World) importLedger(doc snapshot.LedgerV1) {
	for _, row := range doc.Identities {
		if row.DeviceID == "" {
			continue
		}
		id := &Identity{
			DeviceID:            row.DeviceID,
			DisplayName:         row.DisplayName,
			LifetimeIdleSeconds: row.LifetimeIdleSeconds,
			SpendableBalance:    row.SpendableBalance,
			ObjectsPlaced:       row.ObjectsPlaced,
			PlacedByKind:        map[string]int64{},
			DailyPlacements:     map[string]int64{},
			FirstSeen:           time.Unix(row.FirstSeen, 0),
			LastSeen:            time.Unix(row.LastSeen, 0),
			SessionCount:        row.SessionCount,
			JackpotWins:         row.JackpotWins,
		}
		for k, v := range row.PlacedByKind {
			id.PlacedByKind[k] = v
		}
		for k, v := range row.DailyPlacements {
			id.DailyPlacements[k] = v
		}
		for _, u := range row.Unlocks {
			id.Unlocks = append(id.Unlocks, Unlock{Kind: u.Kind, UnlockedBy: u.UnlockedBy, UnlockedAt: time.Unix(u.UnlockedAt, 0)})
		}
		for _, p := range row.Presets {
			pr := Preset{Name: p.Name, SavedAt: time.Unix(p.SavedAt, 0)}
			for _, it := range p.Items {
				pr.Items = append(pr.Items, itemFromV1(it))
			}
			id.Presets = append(id.Presets, pr)
		}
		w.identities[row.DeviceID] = id
	}
}

func importRecord(r *Record, doc snapshot.RecordV1) {
	if doc.HolderIdentity == "" {
		return
	}
	r.HolderIdentity = doc.HolderIdentity
	r.HolderName = doc.HolderName
	r.Value = doc.Value
	r.UpdatedAt = time.Unix(doc.UpdatedAt, 0)
}
