package world

import (
	"testing"
	"time"

	"plaza.gg/internal/protocol"
)

func TestStillSecondsDerivedFromLastMove(t *testing.T) {
	w, clk := newTestWorld()
	sid, _ := joinActive(t, w, "d_1", "mika")
	s := w.sessions[sid]

	if s.move(10, 10, clk.t) != true {
		t.Fatalf("position change should report a roster change")
	}
	clk.advance(37 * time.Second)
	// Same position: still time is recomputed, never accumulated.
	s.move(10, 10, clk.t)
	if s.StillSeconds != 37 {
		t.Fatalf("still seconds should derive from last move time, got %d", s.StillSeconds)
	}

	clk.advance(3 * time.Second)
	s.move(11, 10, clk.t)
	if s.StillSeconds != 0 {
		t.Fatalf("movement should reset still time, got %d", s.StillSeconds)
	}
}

func TestResetIdleZeroesStillTime(t *testing.T) {
	w, clk := newTestWorld()
	sid, _ := joinActive(t, w, "d_1", "mika")
	s := w.sessions[sid]

	clk.advance(20 * time.Second)
	s.recomputeStill(clk.t)
	if s.StillSeconds != 20 {
		t.Fatalf("setup: %d", s.StillSeconds)
	}
	if !s.resetStill(clk.t) {
		t.Fatalf("reset from nonzero should report a change")
	}
	if s.StillSeconds != 0 {
		t.Fatalf("reset did not zero still time")
	}
	if s.resetStill(clk.t) {
		t.Fatalf("reset from zero should report no change")
	}
}

func TestRosterTickBroadcastsOnlyOnChange(t *testing.T) {
	w, clk := newTestWorld()
	_, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	// Sub-second advance: derived still seconds do not change.
	clk.advance(300 * time.Millisecond)
	w.rosterTick(clk.t)
	if events := drainEvents(t, out); len(events) != 0 {
		t.Fatalf("unchanged roster should not rebroadcast, got %v", events)
	}

	clk.advance(2 * time.Second)
	w.rosterTick(clk.t)
	events := drainEvents(t, out)
	roster := lastEventOfType(events, protocol.EvRoster)
	if roster == nil {
		t.Fatalf("changed still time should rebroadcast the roster")
	}
}

func TestFreezeCarriesPinnedPosition(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	frozen := true
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeFreeze, Frozen: &frozen, X: 42, Y: 7,
	}})
	s := w.sessions[sid]
	if !s.Frozen || s.FrozenX != 42 || s.FrozenY != 7 {
		t.Fatalf("freeze state not applied: %+v", s)
	}

	unfrozen := false
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeFreeze, Frozen: &unfrozen,
	}})
	if s.Frozen || s.FrozenX != 0 || s.FrozenY != 0 {
		t.Fatalf("unfreeze should clear the pinned position: %+v", s)
	}
}
