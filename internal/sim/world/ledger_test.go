package world

import (
	"testing"
	"time"

	"plaza.gg/internal/protocol"
)

func TestCreditRejectsInflatedReport(t *testing.T) {
	w, clk := newTestWorld()
	joinActive(t, w, "d_1", "mika")
	id := w.identities["d_1"]

	clk.advance(60 * time.Second)
	if code := id.credit(200, clk.t, 90); code != protocol.ErrTimeRejected {
		t.Fatalf("200s report after 60s elapsed should be rejected, got %q", code)
	}
	if id.LifetimeIdleSeconds != 0 || id.SpendableBalance != 0 {
		t.Fatalf("rejected report must not change counters: %+v", id)
	}

	if code := id.credit(100, clk.t, 90); code != "" {
		t.Fatalf("100s report within buffer should pass, got %q", code)
	}
	if id.LifetimeIdleSeconds != 100 || id.SpendableBalance != 100 {
		t.Fatalf("accepted credit should grow both counters: lifetime=%d balance=%d",
			id.LifetimeIdleSeconds, id.SpendableBalance)
	}
}

func TestCreditCumulativeSessionBound(t *testing.T) {
	w, clk := newTestWorld()
	joinActive(t, w, "d_1", "mika")
	id := w.identities["d_1"]

	// Each report alone fits the per-report buffer, but the second pushes the
	// session total past real session duration plus buffer.
	clk.advance(30 * time.Second)
	if code := id.credit(100, clk.t, 90); code != "" {
		t.Fatalf("first report should pass, got %q", code)
	}
	clk.advance(10 * time.Second)
	if code := id.credit(40, clk.t, 90); code != protocol.ErrTimeRejected {
		t.Fatalf("cumulative 140s in a 40s session should be rejected, got %q", code)
	}
	if id.LifetimeIdleSeconds != 100 {
		t.Fatalf("rejected report changed lifetime counter: %d", id.LifetimeIdleSeconds)
	}
}

func TestCreditNonPositive(t *testing.T) {
	w, _ := newTestWorld()
	joinActive(t, w, "d_1", "mika")
	id := w.identities["d_1"]

	if code := id.credit(0, w.now(), 90); code != protocol.ErrBadRequest {
		t.Fatalf("zero credit should be E_BAD_REQUEST, got %q", code)
	}
	if code := id.credit(-5, w.now(), 90); code != protocol.ErrBadRequest {
		t.Fatalf("negative credit should be E_BAD_REQUEST, got %q", code)
	}
}

func TestDebitNeverGoesNegative(t *testing.T) {
	id := &Identity{SpendableBalance: 1800, LifetimeIdleSeconds: 1800}

	if code := id.debit(1800); code != "" {
		t.Fatalf("full-balance debit should pass, got %q", code)
	}
	if id.SpendableBalance != 0 {
		t.Fatalf("balance should be exactly 0, got %d", id.SpendableBalance)
	}
	if code := id.debit(1); code != protocol.ErrInsufficientBalance {
		t.Fatalf("debit from empty balance should fail, got %q", code)
	}
	if id.SpendableBalance != 0 {
		t.Fatalf("failed debit must leave the balance unchanged, got %d", id.SpendableBalance)
	}
	if id.LifetimeIdleSeconds != 1800 {
		t.Fatalf("debit must never touch the lifetime counter, got %d", id.LifetimeIdleSeconds)
	}
	if code := id.debit(0); code != protocol.ErrBadRequest {
		t.Fatalf("zero debit should be E_BAD_REQUEST, got %q", code)
	}
}

func TestDailyPlacementCap(t *testing.T) {
	w, clk := newTestWorld()
	joinActive(t, w, "d_1", "mika")
	joinActive(t, w, "d_2", "rex")
	a := w.identities["d_1"]
	b := w.identities["d_2"]

	for i := 0; i < 3; i++ {
		if code := a.recordPlacement("lamp", clk.t, 3); code != "" {
			t.Fatalf("placement %d under cap should pass, got %q", i+1, code)
		}
	}
	if code := a.recordPlacement("lamp", clk.t, 3); code != protocol.ErrQuotaExceeded {
		t.Fatalf("placement over cap should fail, got %q", code)
	}
	if a.ObjectsPlaced != 3 {
		t.Fatalf("refused placement changed counters: %d", a.ObjectsPlaced)
	}

	// Quota is per identity, not global.
	if code := b.recordPlacement("lamp", clk.t, 3); code != "" {
		t.Fatalf("other identity should still have quota, got %q", code)
	}

	// And per UTC day.
	clk.advance(24 * time.Hour)
	if code := a.recordPlacement("lamp", clk.t, 3); code != "" {
		t.Fatalf("next-day placement should pass, got %q", code)
	}
}

func TestUnlockIdempotentKeepsAttribution(t *testing.T) {
	w, clk := newTestWorld()
	id := w.identityFor("d_1", clk.t)

	id.recordUnlock("fountain", "mika", clk.t)
	clk.advance(time.Hour)
	id.recordUnlock("fountain", "rex", clk.t)

	if len(id.Unlocks) != 1 {
		t.Fatalf("repeat unlock should be idempotent, got %d entries", len(id.Unlocks))
	}
	if id.Unlocks[0].UnlockedBy != "mika" {
		t.Fatalf("original attribution overwritten: %q", id.Unlocks[0].UnlockedBy)
	}
}

func TestSavePresetBoundAndReplace(t *testing.T) {
	w, clk := newTestWorld()
	id := w.identityFor("d_1", clk.t)
	items := []protocol.PresetItem{{Kind: "lamp"}}

	if code := id.savePreset("a", items, clk.t, 2, 4); code != "" {
		t.Fatalf("save a: %q", code)
	}
	if code := id.savePreset("b", items, clk.t, 2, 4); code != "" {
		t.Fatalf("save b: %q", code)
	}
	if code := id.savePreset("c", items, clk.t, 2, 4); code != protocol.ErrPresetLimit {
		t.Fatalf("third preset should hit the bound, got %q", code)
	}
	// Replacing an existing name never counts against the bound.
	if code := id.savePreset("a", []protocol.PresetItem{{Kind: "rug"}}, clk.t, 2, 4); code != "" {
		t.Fatalf("replace a: %q", code)
	}
	if id.Presets[0].Items[0].Kind != "rug" {
		t.Fatalf("replace did not update items")
	}
	if code := id.savePreset("d", make([]protocol.PresetItem, 5), clk.t, 2, 4); code != protocol.ErrBadRequest {
		t.Fatalf("oversized preset should fail validation before the bound check")
	}
}
