package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/edgeworker/internal/protocol/tlv"
	"github.com/danmuck/edgeworker/internal/testutil/testlog"
)

func TestValidateRequestRequiresOperationAndToken(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldOperation, "Add"),
		tlv.String(FieldCorrelationToken, "build.1"),
		tlv.String(FieldParamType, "int"),
		tlv.Bytes(FieldArg, []byte{0x02}),
	}
	if err := Validate(MsgRun, fields); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	err := Validate(MsgRunThenStop, fields[:1])
	var vErr ValidationError
	if !errors.As(err, &vErr) || vErr.FieldID != FieldCorrelationToken {
		t.Fatalf("expected missing correlation token, got %v", err)
	}
}

func TestValidateOptionalFieldTypes(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldOperation, "Add"),
		tlv.String(FieldCorrelationToken, "build.1"),
		tlv.String(FieldArg, "not-bytes"),
	}
	err := Validate(MsgRun, fields)
	var vErr ValidationError
	if !errors.As(err, &vErr) || vErr.FieldID != FieldArg || vErr.Reason != "type mismatch" {
		t.Fatalf("expected arg type mismatch, got %v", err)
	}
}

func TestValidateFailureAndUnknown(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgFailed, []tlv.Field{tlv.String(FieldFailureType, "*errors.errorString")}); err == nil {
		t.Fatalf("expected missing failure message")
	}
	if err := Validate(MsgCompleted, nil); err != nil {
		t.Fatalf("void completion must validate, got %v", err)
	}
	if err := Validate(99, nil); err == nil {
		t.Fatalf("expected unknown message type")
	}
	if Known(99) || !Known(MsgStop) {
		t.Fatalf("unexpected Known result")
	}
	if !IsRequest(MsgRunThenStop) || IsRequest(MsgStop) {
		t.Fatalf("unexpected IsRequest result")
	}
}
