package world

import (
	"time"

	"plaza.gg/internal/protocol"
)

// Record is a best-of leaderboard entry: the lifetime idle record or the
// jackpot win record.
type Record struct {
	HolderIdentity string
	HolderName     string
	Value          int64
	UpdatedAt      time.Time
}

// tryUpdate applies the record race policy: a new holder must strictly beat
// the current value, but the current holder always overwrites their own
// record, even with a lower value, since it tracks their latest known total.
func (r *Record) tryUpdate(identity, name string, value int64, now time.Time) bool {
	self := identity != "" && identity == r.HolderIdentity
	if !self && value <= r.Value && r.HolderIdentity != "" {
		return false
	}
	r.HolderIdentity = identity
	r.HolderName = name
	r.Value = value
	r.UpdatedAt = now
	return true
}

// renameHolder re-syncs the displayed name after a rename without touching
// the recorded value.
func (r *Record) renameHolder(identity, newName string) bool {
	if identity == "" || identity != r.HolderIdentity || r.HolderName == newName {
		return false
	}
	r.HolderName = newName
	return true
}

func (r *Record) view() *protocol.RecordView {
	if r.HolderIdentity == "" {
		return nil
	}
	return &protocol.RecordView{
		HolderIdentity: r.HolderIdentity,
		HolderName:     r.HolderName,
		Value:          r.Value,
		UpdatedAt:      r.UpdatedAt.Unix(),
	}
}

func (w *World) tryUpdateIdleRecord(id *Identity, now time.Time) {
	if w.idleRecord.tryUpdate(id.DeviceID, id.DisplayName, id.LifetimeIdleSeconds, now) {
		w.appendChange(now, "", "idle_record", id.DeviceID, "")
		w.broadcast(recordEvent(protocol.EvIdleRecordUpdated, &w.idleRecord))
	}
}

func (w *World) tryUpdateJackpotRecord(id *Identity, now time.Time) {
	if w.jackpotRecord.tryUpdate(id.DeviceID, id.DisplayName, id.JackpotWins, now) {
		w.appendChange(now, "", "jackpot_record", id.DeviceID, "")
		w.broadcast(recordEvent(protocol.EvJackpotRecordUpdated, &w.jackpotRecord))
	}
}

// renameRecordHolders runs after a display-name change so leaderboard names
// follow renames without invalidating the win.
func (w *World) renameRecordHolders(identity, newName string, now time.Time) {
	if w.idleRecord.renameHolder(identity, newName) {
		w.broadcast(recordEvent(protocol.EvIdleRecordUpdated, &w.idleRecord))
	}
	if w.jackpotRecord.renameHolder(identity, newName) {
		w.broadcast(recordEvent(protocol.EvJackpotRecordUpdated, &w.jackpotRecord))
	}
}

func recordEvent(evType string, r *Record) protocol.Event {
	return protocol.Event{
		"type":   evType,
		"record": r.view(),
	}
}
