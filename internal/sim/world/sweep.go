package world

import (
	"time"

	"plaza.gg/internal/protocol"
)

// sweep removes stale shared objects and stale ledger data. An object is
// removed only when it is old AND its owner has been away just as long, so
// an active owner keeps their furniture indefinitely.
func (w *World) sweep(now time.Time) {
	w.sweepsN.Add(1)

	var removed []string
	for id, o := range w.objects {
		if now.Sub(o.PlacedAt) <= w.cfg.ObjectMaxAge {
			continue
		}
		owner := w.identities[o.OwnerIdentity]
		if owner != nil {
			if owner.connected || now.Sub(owner.LastSeen) <= w.cfg.OwnerIdleMax {
				continue
			}
		}
		delete(w.objects, id)
		removed = append(removed, id)
	}
	for _, id := range removed {
		w.appendChange(now, "", "expire", id, "")
		w.broadcast(protocol.Event{"type": protocol.EvObjectDeleted, "id": id})
	}
	if len(removed) > 0 {
		w.objectsN.Store(int64(len(w.objects)))
		w.log.Printf("sweep: expired %d objects", len(removed))
	}

	w.purgeActivity(now)

	if now.Sub(w.lastLedgerPurge) >= 24*time.Hour {
		w.lastLedgerPurge = now
		w.purgeLedger(now)
	}
}

// purgeActivity trims per-day placement counters that can no longer affect
// any quota decision.
func (w *World) purgeActivity(now time.Time) {
	cutoff := now.Add(-w.cfg.ActivityKeep).UTC().Format("2006-01-02")
	for _, id := range w.identities {
		for day := range id.DailyPlacements {
			if day < cutoff {
				delete(id.DailyPlacements, day)
			}
		}
	}
}

// purgeLedger drops identities that have been away past the retention
// window and are not currently connected. Record holders are kept so the
// leaderboards never point at a missing identity.
func (w *World) purgeLedger(now time.Time) {
	purged := 0
	for deviceID, id := range w.identities {
		if id.connected {
			continue
		}
		if now.Sub(id.LastSeen) <= w.cfg.LedgerPurgeAfter {
			continue
		}
		if deviceID == w.idleRecord.HolderIdentity || deviceID == w.jackpotRecord.HolderIdentity {
			continue
		}
		delete(w.identities, deviceID)
		purged++
	}
	if purged > 0 {
		w.identitiesN.Store(int64(len(w.identities)))
		w.appendChange(now, "", "ledger_purge", "", "")
		w.log.Printf("sweep: purged %d stale identities", purged)
	}
}
