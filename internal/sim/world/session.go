package world

import (
	"time"

	"plaza.gg/internal/protocol"
)

// SessionState is the per-connection lifecycle. Transitions are one-way:
// Connecting -> Active -> Disconnected.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionDisconnected
)

// Session is the ephemeral per-connection presence record. It exists only
// while the connection is up; everything durable lives on the Identity.
type Session struct {
	ID       string
	DeviceID string
	State    SessionState

	Name string

	X, Y float64
	// stillSeconds is always derived from lastMoveAt, never accumulated, so
	// a client cannot inflate it by drifting its own clock.
	lastMoveAt   time.Time
	StillSeconds int64

	Frozen           bool
	FrozenX, FrozenY float64
	Variant          string

	ConnectedAt time.Time
}

func (s *Session) view() protocol.SessionView {
	return protocol.SessionView{
		SessionID:    s.ID,
		Name:         s.Name,
		X:            s.X,
		Y:            s.Y,
		StillSeconds: s.StillSeconds,
		Frozen:       s.Frozen,
		FrozenX:      s.FrozenX,
		FrozenY:      s.FrozenY,
		Variant:      s.Variant,
	}
}

// move updates the session position. A changed position resets the idle
// clock; an unchanged one recomputes StillSeconds from the stored move time.
// Returns true when the roster entry changed.
func (s *Session) move(x, y float64, now time.Time) bool {
	if x != s.X || y != s.Y {
		s.X = x
		s.Y = y
		s.lastMoveAt = now
		s.StillSeconds = 0
		return true
	}
	return s.recomputeStill(now)
}

func (s *Session) resetStill(now time.Time) bool {
	s.lastMoveAt = now
	if s.StillSeconds != 0 {
		s.StillSeconds = 0
		return true
	}
	return false
}

func (s *Session) recomputeStill(now time.Time) bool {
	still := int64(now.Sub(s.lastMoveAt) / time.Second)
	if still < 0 {
		still = 0
	}
	if still != s.StillSeconds {
		s.StillSeconds = still
		return true
	}
	return false
}

// rosterTick recomputes every active session's still time. The roster is
// rebroadcast only when at least one entry changed, to bound bandwidth.
func (w *World) rosterTick(now time.Time) {
	changed := false
	for _, s := range w.sessions {
		if s.State != SessionActive {
			continue
		}
		if s.recomputeStill(now) {
			changed = true
		}
	}
	if changed {
		w.broadcastRoster()
	}
}

func (w *World) rosterViews() []protocol.SessionView {
	views := make([]protocol.SessionView, 0, len(w.sessions))
	for _, s := range w.sessions {
		if s.State != SessionActive {
			continue
		}
		views = append(views, s.view())
	}
	return views
}

func (w *World) broadcastRoster() {
	w.broadcast(protocol.Event{
		"type":   protocol.EvRoster,
		"roster": w.rosterViews(),
	})
}
