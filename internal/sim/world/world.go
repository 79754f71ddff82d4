package world

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"plaza.gg/internal/persistence/snapshot"
	"plaza.gg/internal/protocol"
)

type Config struct {
	RosterTick time.Duration
	FlushEvery time.Duration
	SweepEvery time.Duration

	DailyPlacementCap int
	CreditBufferSecs  int64
	MaxPresets        int
	MaxPresetItems    int

	ObjectMaxAge     time.Duration
	OwnerIdleMax     time.Duration
	ActivityKeep     time.Duration
	LedgerPurgeAfter time.Duration
}

// Sink is the durable-store contract: one whole-state document per store,
// overwritten on every flush. snapshot.Store implements it on disk.
type Sink interface {
	WriteObjects(snapshot.ObjectsV1) error
	ReadObjects() (snapshot.ObjectsV1, error)
	WriteLedger(snapshot.LedgerV1) error
	ReadLedger() (snapshot.LedgerV1, error)
	WriteIdleRecord(snapshot.RecordV1) error
	ReadIdleRecord() (snapshot.RecordV1, error)
	WriteJackpotRecord(snapshot.RecordV1) error
	ReadJackpotRecord() (snapshot.RecordV1, error)
}

// ChangeLogger receives every applied-mutation descriptor as it is queued
// (audit trail; replay/debug only, never read back by the server).
type ChangeLogger interface {
	WriteChange(ChangeRecord) error
}

// Indexer receives the flushed state for the sqlite read model. Implementations
// must not block; the world loop calls this synchronously after a flush.
type Indexer interface {
	IndexFlush(FlushDoc)
}

// FlushDoc is one flushed world state, as handed to the Indexer.
type FlushDoc struct {
	At      time.Time
	Objects snapshot.ObjectsV1
	Ledger  snapshot.LedgerV1
	Idle    snapshot.RecordV1
	Jackpot snapshot.RecordV1
}

type JoinRequest struct {
	DeviceID string
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// Envelope is one inbound request attributed to its session by the transport.
type Envelope struct {
	SessionID string
	Req       protocol.Request
}

// World is the authoritative single-writer state owner. All maps below are
// touched only from the Run goroutine; everything else communicates through
// the channels.
type World struct {
	cfg Config
	log *log.Logger

	sessions   map[string]*Session      // by session id
	clients    map[string]*clientState  // by session id
	identities map[string]*Identity     // by device id
	objects    map[string]*SharedObject // by object id
	nextLayer  int64

	idleRecord    Record
	jackpotRecord Record

	pending []ChangeRecord

	sink      Sink
	changeLog ChangeLogger
	index     Indexer

	inbox chan Envelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	// Injectable clock; tests move it.
	now func() time.Time

	lastLedgerPurge time.Time

	sessionsN   atomic.Int64
	identitiesN atomic.Int64
	objectsN    atomic.Int64
	flushesN    atomic.Int64
	flushErrN   atomic.Int64
	lastFlushAt atomic.Int64
	sweepsN     atomic.Int64
}

type clientState struct {
	Out chan []byte
}

func New(cfg Config, logger *log.Logger) *World {
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags)
	}
	return &World{
		cfg:        cfg,
		log:        logger,
		sessions:   map[string]*Session{},
		clients:    map[string]*clientState{},
		identities: map[string]*Identity{},
		objects:    map[string]*SharedObject{},
		nextLayer:  1,
		inbox:      make(chan Envelope, 1024),
		join:       make(chan JoinRequest, 64),
		leave:      make(chan string, 64),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
}

func (w *World) SetSink(s Sink)                 { w.sink = s }
func (w *World) SetChangeLogger(l ChangeLogger) { w.changeLog = l }
func (w *World) SetIndexer(i Indexer)           { w.index = i }

func (w *World) Inbox() chan<- Envelope   { return w.inbox }
func (w *World) Join() chan<- JoinRequest { return w.join }
func (w *World) Leave() chan<- string     { return w.leave }

func (w *World) Stop() { close(w.stop) }

// Run owns all world state. Every inbound request is handled to completion
// before the next one; background work (roster tick, flush, sweep) runs
// through the same select, so nothing ever interleaves against the maps.
func (w *World) Run(ctx context.Context) error {
	rosterT := time.NewTicker(w.cfg.RosterTick)
	flushT := time.NewTicker(w.cfg.FlushEvery)
	sweepT := time.NewTicker(w.cfg.SweepEvery)
	defer rosterT.Stop()
	defer flushT.Stop()
	defer sweepT.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(w.now())
			return ctx.Err()
		case <-w.stop:
			w.flush(w.now())
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case id := <-w.leave:
			w.handleLeave(id)
		case env := <-w.inbox:
			w.applyRequest(env)
		case <-rosterT.C:
			w.rosterTick(w.now())
		case <-flushT.C:
			w.flush(w.now())
		case <-sweepT.C:
			w.sweep(w.now())
		}
	}
}

func (w *World) handleJoin(req JoinRequest) {
	now := w.now()
	s := &Session{
		ID:          uuid.NewString(),
		DeviceID:    req.DeviceID,
		State:       SessionConnecting,
		lastMoveAt:  now,
		ConnectedAt: now,
	}
	w.sessions[s.ID] = s
	if req.Out != nil {
		w.clients[s.ID] = &clientState{Out: req.Out}
	}
	w.sessionsN.Store(int64(len(w.sessions)))

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.ID,
		Params: protocol.WorldParams{
			RosterTickMS:      int(w.cfg.RosterTick / time.Millisecond),
			DailyPlacementCap: w.cfg.DailyPlacementCap,
			CreditBufferSecs:  w.cfg.CreditBufferSecs,
			MaxPresets:        w.cfg.MaxPresets,
		},
		Roster:        w.rosterViews(),
		Objects:       w.objectViews(),
		IdleRecord:    w.idleRecord.view(),
		JackpotRecord: w.jackpotRecord.view(),
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: welcome}
	}
}

// handleLeave flushes synchronously before dropping the session, so a crash
// right after a disconnect cannot lose that session's economy writes.
func (w *World) handleLeave(sessionID string) {
	s := w.sessions[sessionID]
	if s == nil {
		return
	}
	now := w.now()
	w.flush(now)

	wasActive := s.State == SessionActive
	s.State = SessionDisconnected
	delete(w.sessions, sessionID)
	delete(w.clients, sessionID)
	w.sessionsN.Store(int64(len(w.sessions)))

	if id := w.identities[s.DeviceID]; id != nil && !w.deviceConnected(s.DeviceID) {
		id.endSession(now)
	}

	if wasActive {
		w.broadcast(protocol.Event{"type": protocol.EvSessionLeft, "session_id": sessionID})
		w.broadcastRoster()
	}
}

func (w *World) deviceConnected(deviceID string) bool {
	for _, s := range w.sessions {
		if s.DeviceID == deviceID && s.State == SessionActive {
			return true
		}
	}
	return false
}

func (w *World) broadcast(ev protocol.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, c := range w.clients {
		sendLatest(c.Out, b)
	}
}

func (w *World) sendTo(sessionID string, v any) {
	c := w.clients[sessionID]
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	sendLatest(c.Out, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
