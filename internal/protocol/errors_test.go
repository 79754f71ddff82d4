package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest, ErrBadRequest, ErrNameRejected, ErrQuotaExceeded,
		ErrInsufficientBalance, ErrTimeRejected, ErrPresetLimit, ErrRateLimit,
		ErrInvalidTarget, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Errorf("IsKnownCode(%q) = false", code)
		}
	}
	if !IsKnownCode("") {
		t.Errorf("empty code means success and is always known")
	}
	if IsKnownCode("E_MADE_UP") {
		t.Errorf("unknown code accepted")
	}
}

func TestIsRequestCoversAllRequestTypes(t *testing.T) {
	for _, typ := range []string{
		TypeSetName, TypeMove, TypeResetIdle, TypeFreeze, TypeSetVariant,
		TypePlaceObject, TypeMoveObject, TypeReorderUp, TypeReorderDown,
		TypeFlipObject, TypeToggleObject, TypeDeleteObject,
		TypeCreditTime, TypeDebitTime, TypeRecordPlacement, TypeRecordUnlock,
		TypeReportJackpot, TypeSavePreset,
		TypeRequestPresets, TypeRequestLedger, TypeRequestIdleRecord, TypeRequestJackpotRecord,
	} {
		if !IsRequest(typ) {
			t.Errorf("IsRequest(%q) = false", typ)
		}
	}
	for _, typ := range []string{TypeHello, TypeWelcome, TypeAck, "NOPE"} {
		if IsRequest(typ) {
			t.Errorf("IsRequest(%q) = true", typ)
		}
	}
}
