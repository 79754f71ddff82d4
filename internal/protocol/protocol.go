package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAck     = "ACK"

	// Session mutations.
	TypeSetName    = "SET_NAME"
	TypeMove       = "MOVE"
	TypeResetIdle  = "RESET_IDLE"
	TypeFreeze     = "FREEZE"
	TypeSetVariant = "SET_VARIANT"

	// Shared object mutations.
	TypePlaceObject  = "PLACE_OBJECT"
	TypeMoveObject   = "MOVE_OBJECT"
	TypeReorderUp    = "REORDER_UP"
	TypeReorderDown  = "REORDER_DOWN"
	TypeFlipObject   = "FLIP_OBJECT"
	TypeToggleObject = "TOGGLE_OBJECT"
	TypeDeleteObject = "DELETE_OBJECT"

	// Economy / records.
	TypeCreditTime      = "CREDIT_TIME"
	TypeDebitTime       = "DEBIT_TIME"
	TypeRecordPlacement = "RECORD_PLACEMENT"
	TypeRecordUnlock    = "RECORD_UNLOCK"
	TypeReportJackpot   = "REPORT_JACKPOT"
	TypeSavePreset      = "SAVE_PRESET"

	// Snapshot queries (direct reply, no broadcast).
	TypeRequestPresets       = "REQUEST_PRESETS"
	TypeRequestLedger        = "REQUEST_LEDGER"
	TypeRequestIdleRecord    = "REQUEST_IDLE_RECORD"
	TypeRequestJackpotRecord = "REQUEST_JACKPOT_RECORD"
)

// Server event types (broadcast or direct).
const (
	EvRoster               = "ROSTER"
	EvSessionLeft          = "SESSION_LEFT"
	EvObjectPlaced         = "OBJECT_PLACED"
	EvObjectMoved          = "OBJECT_MOVED"
	EvLayerChanged         = "LAYER_CHANGED"
	EvObjectFlipped        = "OBJECT_FLIPPED"
	EvObjectToggled        = "OBJECT_TOGGLED"
	EvObjectDeleted        = "OBJECT_DELETED"
	EvNameAccepted         = "NAME_ACCEPTED"
	EvNameError            = "NAME_ERROR"
	EvLedger               = "LEDGER"
	EvPresets              = "PRESETS"
	EvIdleRecord           = "IDLE_RECORD"
	EvJackpotRecord        = "JACKPOT_RECORD"
	EvIdleRecordUpdated    = "IDLE_RECORD_UPDATED"
	EvJackpotRecordUpdated = "JACKPOT_RECORD_UPDATED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Event is a server-to-client event payload. Keys are event-specific;
// every event carries "type".
type Event map[string]any

// IsRequest reports whether t is a client request type accepted after the
// handshake.
func IsRequest(t string) bool {
	switch t {
	case TypeSetName, TypeMove, TypeResetIdle, TypeFreeze, TypeSetVariant,
		TypePlaceObject, TypeMoveObject, TypeReorderUp, TypeReorderDown,
		TypeFlipObject, TypeToggleObject, TypeDeleteObject,
		TypeCreditTime, TypeDebitTime, TypeRecordPlacement, TypeRecordUnlock,
		TypeReportJackpot, TypeSavePreset,
		TypeRequestPresets, TypeRequestLedger, TypeRequestIdleRecord, TypeRequestJackpotRecord:
		return true
	}
	return false
}
