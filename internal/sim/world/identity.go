package world

import (
	"sort"
	"time"

	"plaza.gg/internal/protocol"
)

// Identity is the durable per-device record: economy counters, unlock
// inventory and presets. It survives reconnects and is keyed by device id,
// never by connection.
type Identity struct {
	DeviceID    string
	DisplayName string

	// LifetimeIdleSeconds is monotonic; SpendableBalance is debited and must
	// never go negative.
	LifetimeIdleSeconds int64
	SpendableBalance    int64

	ObjectsPlaced   int64
	PlacedByKind    map[string]int64
	DailyPlacements map[string]int64 // keyed by UTC date "2006-01-02"

	Unlocks []Unlock
	Presets []Preset

	FirstSeen    time.Time
	LastSeen     time.Time
	SessionCount int64
	JackpotWins  int64

	// Anti-cheat bookkeeping for self-reported idle time. Session-scoped,
	// reset on each connect; never persisted.
	connected       bool
	sessionStartAt  time.Time
	lastReportAt    time.Time
	sessionReported int64
}

type Unlock struct {
	Kind       string
	UnlockedBy string
	UnlockedAt time.Time
}

type Preset struct {
	Name    string
	Items   []protocol.PresetItem
	SavedAt time.Time
}

// identityFor returns the durable identity for deviceID, creating it on
// first sight.
func (w *World) identityFor(deviceID string, now time.Time) *Identity {
	id := w.identities[deviceID]
	if id == nil {
		id = &Identity{
			DeviceID:        deviceID,
			PlacedByKind:    map[string]int64{},
			DailyPlacements: map[string]int64{},
			FirstSeen:       now,
		}
		w.identities[deviceID] = id
	}
	return id
}

func (id *Identity) beginSession(now time.Time) {
	id.connected = true
	id.sessionStartAt = now
	id.lastReportAt = now
	id.sessionReported = 0
	id.SessionCount++
	id.LastSeen = now
}

func (id *Identity) endSession(now time.Time) {
	id.connected = false
	id.LastSeen = now
}

// credit validates a self-reported idle deposit against real elapsed time.
// The report is rejected if it exceeds the time since the previous report
// plus a grace buffer, or if the session's cumulative reports exceed the
// session's real duration plus the buffer. On acceptance both the lifetime
// counter and the spendable balance grow by seconds.
func (id *Identity) credit(seconds int64, now time.Time, buffer int64) string {
	if seconds <= 0 {
		return protocol.ErrBadRequest
	}
	elapsed := int64(now.Sub(id.lastReportAt) / time.Second)
	if seconds > elapsed+buffer {
		return protocol.ErrTimeRejected
	}
	sessionElapsed := int64(now.Sub(id.sessionStartAt) / time.Second)
	if id.sessionReported+seconds > sessionElapsed+buffer {
		return protocol.ErrTimeRejected
	}

	id.lastReportAt = now
	id.sessionReported += seconds
	id.LifetimeIdleSeconds += seconds
	id.SpendableBalance += seconds
	id.LastSeen = now
	return ""
}

// debit is an atomic check-then-subtract; the balance is never left
// negative and a failed debit leaves it unchanged.
func (id *Identity) debit(seconds int64) string {
	if seconds <= 0 {
		return protocol.ErrBadRequest
	}
	if id.SpendableBalance < seconds {
		return protocol.ErrInsufficientBalance
	}
	id.SpendableBalance -= seconds
	return ""
}

// recordPlacement bumps the lifetime, per-kind and current-UTC-day counters.
// Once the day's counter hits cap the placement is refused.
func (id *Identity) recordPlacement(kind string, now time.Time, cap int) string {
	if kind == "" {
		return protocol.ErrBadRequest
	}
	day := now.UTC().Format("2006-01-02")
	if cap > 0 && id.DailyPlacements[day] >= int64(cap) {
		return protocol.ErrQuotaExceeded
	}
	id.ObjectsPlaced++
	id.PlacedByKind[kind]++
	id.DailyPlacements[day]++
	return ""
}

// recordUnlock is idempotent. Attribution is written once and kept even if
// the unlocker renames later.
func (id *Identity) recordUnlock(kind, unlockerName string, now time.Time) {
	for _, u := range id.Unlocks {
		if u.Kind == kind {
			return
		}
	}
	id.Unlocks = append(id.Unlocks, Unlock{Kind: kind, UnlockedBy: unlockerName, UnlockedAt: now})
}

// savePreset adds or replaces a named object-group preset. The preset list
// is bounded; replacing an existing name never counts against the bound.
func (id *Identity) savePreset(name string, items []protocol.PresetItem, now time.Time, maxPresets, maxItems int) string {
	if name == "" || len(items) == 0 {
		return protocol.ErrBadRequest
	}
	if maxItems > 0 && len(items) > maxItems {
		return protocol.ErrBadRequest
	}
	for i := range id.Presets {
		if id.Presets[i].Name == name {
			id.Presets[i].Items = items
			id.Presets[i].SavedAt = now
			return ""
		}
	}
	if maxPresets > 0 && len(id.Presets) >= maxPresets {
		return protocol.ErrPresetLimit
	}
	id.Presets = append(id.Presets, Preset{Name: name, Items: items, SavedAt: now})
	return ""
}

func (id *Identity) ledgerView(now time.Time) protocol.LedgerView {
	day := now.UTC().Format("2006-01-02")
	byKind := make(map[string]int64, len(id.PlacedByKind))
	for k, v := range id.PlacedByKind {
		byKind[k] = v
	}
	unlocks := make([]protocol.UnlockView, 0, len(id.Unlocks))
	for _, u := range id.Unlocks {
		unlocks = append(unlocks, protocol.UnlockView{
			Kind:       u.Kind,
			UnlockedBy: u.UnlockedBy,
			UnlockedAt: u.UnlockedAt.Unix(),
		})
	}
	sort.Slice(unlocks, func(i, j int) bool { return unlocks[i].Kind < unlocks[j].Kind })
	return protocol.LedgerView{
		LifetimeIdleSeconds: id.LifetimeIdleSeconds,
		SpendableBalance:    id.SpendableBalance,
		ObjectsPlaced:       id.ObjectsPlaced,
		PlacedByKind:        byKind,
		PlacedToday:         id.DailyPlacements[day],
		Unlocks:             unlocks,
		SessionCount:        id.SessionCount,
	}
}

func (id *Identity) presetViews() []protocol.PresetView {
	views := make([]protocol.PresetView, 0, len(id.Presets))
	for _, p := range id.Presets {
		views = append(views, protocol.PresetView{Name: p.Name, Items: p.Items, SavedAt: p.SavedAt.Unix()})
	}
	return views
}
