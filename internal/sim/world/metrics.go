package world

// WorldMetrics is a point-in-time operational snapshot for /metrics. Counter
// fields are maintained with atomics so reads never touch loop-owned state.
type WorldMetrics struct {
	Sessions   int64 `json:"sessions"`
	Identities int64 `json:"identities"`
	Objects    int64 `json:"objects"`

	QueueDepths QueueDepths `json:"queue_depths"`

	Flushes     int64 `json:"flushes"`
	FlushErrors int64 `json:"flush_errors"`
	LastFlushAt int64 `json:"last_flush_at"`
	Sweeps      int64 `json:"sweeps"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	return WorldMetrics{
		Sessions:   w.sessionsN.Load(),
		Identities: w.identitiesN.Load(),
		Objects:    w.objectsN.Load(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		Flushes:     w.flushesN.Load(),
		FlushErrors: w.flushErrN.Load(),
		LastFlushAt: w.lastFlushAt.Load(),
		Sweeps:      w.sweepsN.Load(),
	}
}
