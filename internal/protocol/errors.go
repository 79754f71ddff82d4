package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest          = "E_BAD_REQUEST"
	ErrNameRejected        = "E_NAME_REJECTED"
	ErrQuotaExceeded       = "E_QUOTA_EXCEEDED"
	ErrInsufficientBalance = "E_INSUFFICIENT_BALANCE"
	ErrTimeRejected        = "E_TIME_REJECTED"
	ErrPresetLimit         = "E_PRESET_LIMIT"
	ErrRateLimit           = "E_RATE_LIMIT"
	ErrInvalidTarget       = "E_INVALID_TARGET"
	ErrInternal            = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrBadRequest:          {},
	ErrNameRejected:        {},
	ErrQuotaExceeded:       {},
	ErrInsufficientBalance: {},
	ErrTimeRejected:        {},
	ErrPresetLimit:         {},
	ErrRateLimit:           {},
	ErrInvalidTarget:       {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
