package world

import (
	"testing"
	"time"

	"plaza.gg/internal/protocol"
)

func TestPlaceObjectBroadcastsAndCounts(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypePlaceObject, Kind: "lamp", X: 5, Y: 6,
	}})

	events := drainEvents(t, out)
	placed := lastEventOfType(events, protocol.EvObjectPlaced)
	if placed == nil {
		t.Fatalf("no OBJECT_PLACED broadcast: %v", events)
	}
	obj := placed["object"].(map[string]any)
	if obj["kind"] != "lamp" || obj["x"].(float64) != 5 {
		t.Fatalf("broadcast object wrong: %v", obj)
	}
	if w.identities["d_1"].ObjectsPlaced != 1 {
		t.Fatalf("placement not recorded on the identity")
	}
}

func TestPlaceObjectQuotaFailAcksWhenRequested(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")

	for i := 0; i < 3; i++ {
		w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
			Type: protocol.TypePlaceObject, Kind: "lamp",
		}})
	}
	drainEvents(t, out)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypePlaceObject, ID: "r9", Kind: "lamp",
	}})

	events := drainEvents(t, out)
	ack := lastEventOfType(events, protocol.TypeAck)
	if ack == nil || ack["code"] != protocol.ErrQuotaExceeded || ack["ref"] != "r9" {
		t.Fatalf("expected quota ack for r9, got %v", events)
	}
	if lastEventOfType(events, protocol.EvObjectPlaced) != nil {
		t.Fatalf("refused placement must not create an object")
	}
	if len(w.objects) != 3 {
		t.Fatalf("object count: %d", len(w.objects))
	}
}

func TestReorderBroadcastsBothSidesAsOneUnit(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	a := w.placeObject(sid, "d_1", "lamp", 0, 0, w.now())
	b := w.placeObject(sid, "d_1", "rug", 0, 0, w.now())
	drainEvents(t, out)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeReorderUp, ObjectID: a.ID,
	}})

	events := drainEvents(t, out)
	changed := lastEventOfType(events, protocol.EvLayerChanged)
	if changed == nil {
		t.Fatalf("no LAYER_CHANGED broadcast: %v", events)
	}
	objs := changed["objects"].([]any)
	if len(objs) != 2 {
		t.Fatalf("both swapped objects must go out together, got %d", len(objs))
	}
	ids := map[string]bool{}
	for _, v := range objs {
		ids[v.(map[string]any)["id"].(string)] = true
	}
	if !ids[a.ID] || !ids[b.ID] {
		t.Fatalf("LAYER_CHANGED missing a swap side: %v", ids)
	}
}

func TestReorderWithoutNeighborStaysSilent(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	a := w.placeObject(sid, "d_1", "lamp", 0, 0, w.now())
	drainEvents(t, out)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeReorderUp, ObjectID: a.ID,
	}})
	if events := drainEvents(t, out); len(events) != 0 {
		t.Fatalf("no-op reorder must not broadcast, got %v", events)
	}
}

func TestUnknownObjectTargetsAreIgnored(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	for _, typ := range []string{
		protocol.TypeMoveObject, protocol.TypeFlipObject,
		protocol.TypeToggleObject, protocol.TypeDeleteObject,
	} {
		w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
			Type: typ, ObjectID: "o_stale",
		}})
	}
	if events := drainEvents(t, out); len(events) != 0 {
		t.Fatalf("stale object ids should be dropped silently, got %v", events)
	}
}

func TestCreditDebitAcks(t *testing.T) {
	w, clk := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	clk.advance(30 * time.Second)
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeCreditTime, ID: "c1", Seconds: 30,
	}})
	events := drainEvents(t, out)
	ack := lastEventOfType(events, protocol.TypeAck)
	if ack == nil || ack["ok"] != true || ack["ref"] != "c1" {
		t.Fatalf("credit should ack ok, got %v", events)
	}
	if lastEventOfType(events, protocol.EvIdleRecordUpdated) == nil {
		t.Fatalf("first credit should claim and broadcast the idle record")
	}

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeDebitTime, ID: "d1", Seconds: 100,
	}})
	events = drainEvents(t, out)
	ack = lastEventOfType(events, protocol.TypeAck)
	if ack == nil || ack["ok"] != false || ack["code"] != protocol.ErrInsufficientBalance {
		t.Fatalf("overdraft should ack %s, got %v", protocol.ErrInsufficientBalance, events)
	}
	if w.identities["d_1"].SpendableBalance != 30 {
		t.Fatalf("failed debit changed the balance")
	}
}

func TestJackpotReportIsMonotonic(t *testing.T) {
	w, _ := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	drainEvents(t, out)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeReportJackpot, ID: "j1", Wins: 5,
	}})
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{
		Type: protocol.TypeReportJackpot, ID: "j2", Wins: 3,
	}})

	if w.identities["d_1"].JackpotWins != 5 {
		t.Fatalf("lower report must not shrink the win count: %d", w.identities["d_1"].JackpotWins)
	}
	if w.jackpotRecord.Value != 5 {
		t.Fatalf("jackpot record: %d", w.jackpotRecord.Value)
	}
}

func TestSnapshotQueriesReplyDirectly(t *testing.T) {
	w, clk := newTestWorld()
	sid, out := joinActive(t, w, "d_1", "mika")
	_, out2 := joinActive(t, w, "d_2", "rex")
	id := w.identities["d_1"]
	clk.advance(time.Minute)
	if code := id.credit(60, clk.t, 90); code != "" {
		t.Fatalf("credit: %q", code)
	}
	id.savePreset("nook", []protocol.PresetItem{{Kind: "lamp"}}, clk.t, 2, 4)
	drainEvents(t, out)
	drainEvents(t, out2)

	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{Type: protocol.TypeRequestLedger}})
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{Type: protocol.TypeRequestPresets}})
	w.applyRequest(Envelope{SessionID: sid, Req: protocol.Request{Type: protocol.TypeRequestIdleRecord}})

	events := drainEvents(t, out)
	ledger := lastEventOfType(events, protocol.EvLedger)
	if ledger == nil {
		t.Fatalf("no LEDGER reply: %v", events)
	}
	if ledger["ledger"].(map[string]any)["spendable_balance"].(float64) != 60 {
		t.Fatalf("ledger reply wrong: %v", ledger)
	}
	if lastEventOfType(events, protocol.EvPresets) == nil {
		t.Fatalf("no PRESETS reply")
	}
	if lastEventOfType(events, protocol.EvIdleRecord) == nil {
		t.Fatalf("no IDLE_RECORD reply")
	}

	// Queries reply to the requester only.
	if others := drainEvents(t, out2); len(others) != 0 {
		t.Fatalf("snapshot queries must not broadcast, got %v", others)
	}
}
