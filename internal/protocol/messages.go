package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	DeviceID        string            `json:"device_id,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client): session id plus the full world state, so the
// client can overwrite its local view wholesale.
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	Params          WorldParams   `json:"params"`
	Roster          []SessionView `json:"roster"`
	Objects         []ObjectView  `json:"objects"`
	IdleRecord      *RecordView   `json:"idle_record,omitempty"`
	JackpotRecord   *RecordView   `json:"jackpot_record,omitempty"`
}

type WorldParams struct {
	RosterTickMS      int   `json:"roster_tick_ms"`
	DailyPlacementCap int   `json:"daily_placement_cap"`
	CreditBufferSecs  int64 `json:"credit_buffer_secs"`
	MaxPresets        int   `json:"max_presets"`
}

// Request (client -> server, post-handshake). One flat struct for every
// request type; unused fields stay zero.
type Request struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`

	// Request id, echoed back on ACK-bearing operations.
	ID string `json:"id,omitempty"`

	Name    string  `json:"name,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Frozen  *bool   `json:"frozen,omitempty"`
	Variant string  `json:"variant,omitempty"`

	Kind     string `json:"kind,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
	Flipped  *bool  `json:"flipped,omitempty"`

	Seconds int64 `json:"seconds,omitempty"`
	Wins    int64 `json:"wins,omitempty"`

	PresetName  string       `json:"preset_name,omitempty"`
	PresetItems []PresetItem `json:"preset_items,omitempty"`
}

// PresetItem is one object in a saved object-group preset.
type PresetItem struct {
	Kind    string  `json:"kind"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	Flipped bool    `json:"flipped,omitempty"`
}

// ACK (server -> client, direct): definite result for request/ack operations.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// SessionView is the roster entry for one live session.
type SessionView struct {
	SessionID    string  `json:"session_id"`
	Name         string  `json:"name,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	StillSeconds int64   `json:"still_seconds"`
	Frozen       bool    `json:"frozen,omitempty"`
	FrozenX      float64 `json:"frozen_x,omitempty"`
	FrozenY      float64 `json:"frozen_y,omitempty"`
	Variant      string  `json:"variant,omitempty"`
}

// ObjectView is the wire form of one shared object.
type ObjectView struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Layer         int64   `json:"layer"`
	Flipped       bool    `json:"flipped,omitempty"`
	On            bool    `json:"on,omitempty"`
	OwnerIdentity string  `json:"owner_identity,omitempty"`
	PlacedAt      int64   `json:"placed_at"`
	LastTouchedAt int64   `json:"last_touched_at"`
}

// RecordView is the wire form of a best-of record.
type RecordView struct {
	HolderIdentity string `json:"holder_identity"`
	HolderName     string `json:"holder_name"`
	Value          int64  `json:"value"`
	UpdatedAt      int64  `json:"updated_at"`
}

// LedgerView is the direct reply to REQUEST_LEDGER.
type LedgerView struct {
	LifetimeIdleSeconds int64            `json:"lifetime_idle_seconds"`
	SpendableBalance    int64            `json:"spendable_balance"`
	ObjectsPlaced       int64            `json:"objects_placed"`
	PlacedByKind        map[string]int64 `json:"placed_by_kind,omitempty"`
	PlacedToday         int64            `json:"placed_today"`
	Unlocks             []UnlockView     `json:"unlocks,omitempty"`
	SessionCount        int64            `json:"session_count"`
}

type UnlockView struct {
	Kind       string `json:"kind"`
	UnlockedBy string `json:"unlocked_by,omitempty"`
	UnlockedAt int64  `json:"unlocked_at"`
}

// PresetView is one saved object-group preset.
type PresetView struct {
	Name    string       `json:"name"`
	Items   []PresetItem `json:"items"`
	SavedAt int64        `json:"saved_at"`
}
