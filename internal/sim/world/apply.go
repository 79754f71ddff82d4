package world

import (
	"plaza.gg/internal/protocol"
)

// applyRequest is the mutation dispatcher: one request, handled to
// completion, then the next. Validation failures go back to the caller
// only; unknown object ids are treated as stale client state and ignored.
func (w *World) applyRequest(env Envelope) {
	s := w.sessions[env.SessionID]
	if s == nil || s.State == SessionDisconnected {
		return
	}
	now := w.now()
	req := env.Req

	if req.Type == protocol.TypeSetName {
		w.applySetName(s, req)
		return
	}
	if s.State != SessionActive {
		// Nothing beyond naming is reachable until the session is active.
		if req.ID != "" {
			w.ack(s.ID, req.ID, protocol.ErrBadRequest, "session has no name yet")
		}
		return
	}

	id := w.identities[s.DeviceID]
	if id != nil {
		id.LastSeen = now
	}

	switch req.Type {
	case protocol.TypeMove:
		if s.move(req.X, req.Y, now) {
			w.broadcastRoster()
		}

	case protocol.TypeResetIdle:
		if s.resetStill(now) {
			w.broadcastRoster()
		}

	case protocol.TypeFreeze:
		if req.Frozen == nil {
			return
		}
		s.Frozen = *req.Frozen
		if s.Frozen {
			s.FrozenX, s.FrozenY = req.X, req.Y
		} else {
			s.FrozenX, s.FrozenY = 0, 0
		}
		w.broadcastRoster()

	case protocol.TypeSetVariant:
		if s.Variant == req.Variant {
			return
		}
		s.Variant = req.Variant
		w.broadcastRoster()

	case protocol.TypePlaceObject:
		if id == nil || req.Kind == "" {
			return
		}
		if code := id.recordPlacement(req.Kind, now, w.cfg.DailyPlacementCap); code != "" {
			// Client-visible effect of a quota fail is "no object created";
			// an explicit request id still gets a definite answer.
			if req.ID != "" {
				w.ack(s.ID, req.ID, code, "placement refused")
			}
			return
		}
		o := w.placeObject(s.ID, id.DeviceID, req.Kind, req.X, req.Y, now)
		w.objectsN.Store(int64(len(w.objects)))
		w.appendChange(now, s.ID, "place", o.ID, o.Kind)
		w.broadcast(protocol.Event{"type": protocol.EvObjectPlaced, "object": o.view()})

	case protocol.TypeMoveObject:
		o := w.moveObject(req.ObjectID, req.X, req.Y, req.Flipped, now)
		if o == nil {
			return
		}
		w.appendChange(now, s.ID, "move", o.ID, "")
		w.broadcast(protocol.Event{"type": protocol.EvObjectMoved, "object": o.view()})

	case protocol.TypeReorderUp, protocol.TypeReorderDown:
		var a, b *SharedObject
		if req.Type == protocol.TypeReorderUp {
			a, b = w.reorderUp(req.ObjectID, now)
		} else {
			a, b = w.reorderDown(req.ObjectID, now)
		}
		if a == nil || b == nil {
			return
		}
		w.appendChange(now, s.ID, "reorder", a.ID, b.ID)
		// Both sides of the swap go out as one unit.
		w.broadcast(protocol.Event{
			"type":    protocol.EvLayerChanged,
			"objects": []protocol.ObjectView{a.view(), b.view()},
		})

	case protocol.TypeFlipObject:
		o := w.flipObject(req.ObjectID, now)
		if o == nil {
			return
		}
		w.appendChange(now, s.ID, "flip", o.ID, "")
		w.broadcast(protocol.Event{"type": protocol.EvObjectFlipped, "object": o.view()})

	case protocol.TypeToggleObject:
		o := w.toggleObject(req.ObjectID, now)
		if o == nil {
			return
		}
		w.appendChange(now, s.ID, "toggle", o.ID, "")
		w.broadcast(protocol.Event{"type": protocol.EvObjectToggled, "object": o.view()})

	case protocol.TypeDeleteObject:
		o := w.deleteObject(req.ObjectID)
		if o == nil {
			return
		}
		w.objectsN.Store(int64(len(w.objects)))
		w.appendChange(now, s.ID, "delete", o.ID, "")
		w.broadcast(protocol.Event{"type": protocol.EvObjectDeleted, "id": o.ID})

	case protocol.TypeCreditTime:
		if id == nil {
			w.ack(s.ID, req.ID, protocol.ErrInternal, "no identity")
			return
		}
		code := id.credit(req.Seconds, now, w.cfg.CreditBufferSecs)
		w.ack(s.ID, req.ID, code, creditMessage(code))
		if code == "" {
			w.appendChange(now, s.ID, "credit", id.DeviceID, "")
			w.tryUpdateIdleRecord(id, now)
		}

	case protocol.TypeDebitTime:
		if id == nil {
			w.ack(s.ID, req.ID, protocol.ErrInternal, "no identity")
			return
		}
		code := id.debit(req.Seconds)
		w.ack(s.ID, req.ID, code, debitMessage(code))
		if code == "" {
			w.appendChange(now, s.ID, "debit", id.DeviceID, "")
		}

	case protocol.TypeRecordPlacement:
		if id == nil {
			w.ack(s.ID, req.ID, protocol.ErrInternal, "no identity")
			return
		}
		code := id.recordPlacement(req.Kind, now, w.cfg.DailyPlacementCap)
		w.ack(s.ID, req.ID, code, "")
		if code == "" {
			w.appendChange(now, s.ID, "placement", id.DeviceID, req.Kind)
		}

	case protocol.TypeRecordUnlock:
		if id == nil || req.Kind == "" {
			w.ack(s.ID, req.ID, protocol.ErrBadRequest, "missing kind")
			return
		}
		id.recordUnlock(req.Kind, s.Name, now)
		w.appendChange(now, s.ID, "unlock", id.DeviceID, req.Kind)
		w.ack(s.ID, req.ID, "", "")

	case protocol.TypeReportJackpot:
		if id == nil || req.Wins < 0 {
			w.ack(s.ID, req.ID, protocol.ErrBadRequest, "bad wins")
			return
		}
		if req.Wins > id.JackpotWins {
			id.JackpotWins = req.Wins
		}
		w.ack(s.ID, req.ID, "", "")
		w.appendChange(now, s.ID, "jackpot", id.DeviceID, "")
		w.tryUpdateJackpotRecord(id, now)

	case protocol.TypeSavePreset:
		if id == nil {
			w.ack(s.ID, req.ID, protocol.ErrInternal, "no identity")
			return
		}
		code := id.savePreset(req.PresetName, req.PresetItems, now, w.cfg.MaxPresets, w.cfg.MaxPresetItems)
		w.ack(s.ID, req.ID, code, "")
		if code == "" {
			w.appendChange(now, s.ID, "preset", id.DeviceID, req.PresetName)
		}

	case protocol.TypeRequestPresets:
		var presets []protocol.PresetView
		if id != nil {
			presets = id.presetViews()
		}
		w.sendTo(s.ID, protocol.Event{"type": protocol.EvPresets, "presets": presets})

	case protocol.TypeRequestLedger:
		if id == nil {
			return
		}
		w.sendTo(s.ID, protocol.Event{"type": protocol.EvLedger, "ledger": id.ledgerView(now)})

	case protocol.TypeRequestIdleRecord:
		w.sendTo(s.ID, recordEvent(protocol.EvIdleRecord, &w.idleRecord))

	case protocol.TypeRequestJackpotRecord:
		w.sendTo(s.ID, recordEvent(protocol.EvJackpotRecord, &w.jackpotRecord))
	}
}

// applySetName runs after the transport's moderation check accepted the
// name. It binds the device identity, activates the session and announces
// the roster; a rename re-syncs any record the identity holds.
func (w *World) applySetName(s *Session, req protocol.Request) {
	now := w.now()
	name := req.Name
	if name == "" {
		w.sendTo(s.ID, protocol.Event{"type": protocol.EvNameError, "reason": "empty name"})
		return
	}

	id := w.identityFor(s.DeviceID, now)
	rename := s.State == SessionActive

	if !rename {
		id.beginSession(now)
		s.State = SessionActive
		w.identitiesN.Store(int64(len(w.identities)))
	}
	s.Name = name
	id.DisplayName = name

	w.appendChange(now, s.ID, "name", id.DeviceID, name)
	w.sendTo(s.ID, protocol.Event{"type": protocol.EvNameAccepted, "name": name})
	if rename {
		w.renameRecordHolders(id.DeviceID, name, now)
	}
	w.broadcastRoster()
}

func (w *World) ack(sessionID, ref, code, msg string) {
	w.sendTo(sessionID, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              code == "",
		Code:            code,
		Message:         msg,
	})
}

func creditMessage(code string) string {
	switch code {
	case protocol.ErrTimeRejected:
		return "reported idle time exceeds elapsed time"
	case protocol.ErrBadRequest:
		return "seconds must be positive"
	}
	return ""
}

func debitMessage(code string) string {
	switch code {
	case protocol.ErrInsufficientBalance:
		return "insufficient balance"
	case protocol.ErrBadRequest:
		return "seconds must be positive"
	}
	return ""
}
