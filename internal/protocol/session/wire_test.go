package session

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/danmuck/edgeworker/internal/codec"
	"github.com/danmuck/edgeworker/internal/protocol/frame"
	"github.com/danmuck/edgeworker/internal/protocol/schema"
	"github.com/danmuck/edgeworker/internal/protocol/tlv"
	"github.com/danmuck/edgeworker/internal/testutil/testlog"
	"github.com/danmuck/edgeworker/internal/worker"
)

func readOne(t *testing.T, data []byte) frame.Frame {
	t.Helper()
	f, err := frame.ReadFrame(bytes.NewReader(data), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestRequestFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()
	in := worker.Request{
		ID:               42,
		Operation:        "Put",
		ParamTypes:       []string{"string", "strings", "int"},
		Args:             []any{"k", []string{"a", "b"}, 7},
		CorrelationToken: "corr-1",
	}
	data, err := EncodeRequestFrame(reg, in, true, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f := readOne(t, data)
	if f.Header.MessageType != schema.MsgRunThenStop || f.Header.IsResponse() {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	out, thenStop, err := DecodeRequestFrame(reg, f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !thenStop || !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch then_stop=%v got=%+v", thenStop, out)
	}
}

func TestEncodeRequestFrameRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()
	if _, err := EncodeRequestFrame(reg, worker.Request{Operation: "Add", ParamTypes: []string{"int"}}, false, frame.DefaultLimits()); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch got=%v", err)
	}
	if _, err := EncodeRequestFrame(reg, worker.Request{Operation: " "}, false, frame.DefaultLimits()); !errors.Is(err, ErrMissingOperation) {
		t.Fatalf("expected ErrMissingOperation got=%v", err)
	}
	req := worker.Request{Operation: "Add", ParamTypes: []string{"int"}, Args: []any{"x"}}
	if _, err := EncodeRequestFrame(reg, req, false, frame.DefaultLimits()); !errors.Is(err, codec.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch got=%v", err)
	}
}

func TestDecodeRequestFrameUnknownDescriptor(t *testing.T) {
	testlog.Start(t)
	sender := codec.NewRegistry()
	type widget struct{ N int }
	if err := codec.RegisterType[widget](sender, "widget"); err != nil {
		t.Fatalf("register: %v", err)
	}
	data, err := EncodeRequestFrame(sender, worker.Request{ID: 3, Operation: "Use", ParamTypes: []string{"widget"}, Args: []any{widget{N: 1}}}, false, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, err = DecodeRequestFrame(codec.NewRegistry(), readOne(t, data))
	if !errors.Is(err, codec.ErrUnknownDescriptor) {
		t.Fatalf("expected ErrUnknownDescriptor got=%v", err)
	}
}

func TestResponseFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()

	completed := worker.CompletedResponse(9, int64(12))
	data, err := EncodeResponseFrame(reg, completed, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode completed: %v", err)
	}
	got, err := DecodeResponseFrame(reg, readOne(t, data))
	if err != nil {
		t.Fatalf("decode completed: %v", err)
	}
	if got.Kind != worker.Completed || got.Result != int64(12) || got.ResultType != codec.Int64 || got.RequestID != 9 {
		t.Fatalf("unexpected completed: %+v", got)
	}

	void, err := EncodeResponseFrame(reg, worker.CompletedResponse(10, nil), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode void: %v", err)
	}
	if got, err := DecodeResponseFrame(reg, readOne(t, void)); err != nil || got.Result != nil {
		t.Fatalf("unexpected void: %+v err=%v", got, err)
	}

	failed := worker.InfrastructureFailedResponse(11, &worker.LinkageError{Descriptor: "vendor.Widget"})
	data, err = EncodeResponseFrame(reg, failed, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	f := readOne(t, data)
	if !f.Header.IsError() || !f.Header.IsResponse() {
		t.Fatalf("unexpected flags: %+v", f.Header)
	}
	got, err = DecodeResponseFrame(reg, f)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Kind != worker.InfrastructureFailed || got.Failure.Type != "*worker.LinkageError" {
		t.Fatalf("unexpected failure: %+v", got.Failure)
	}
	if !reflect.DeepEqual(got.Failure, failed.Failure) {
		t.Fatalf("failure mismatch got=%+v want=%+v", got.Failure, failed.Failure)
	}
}

func TestEncodeResponseFrameUnencodableResult(t *testing.T) {
	testlog.Start(t)
	type opaque struct{ A int }
	_, err := EncodeResponseFrame(codec.NewRegistry(), worker.CompletedResponse(1, opaque{A: 1}), frame.DefaultLimits())
	if !errors.Is(err, ErrUnencodableResult) || !errors.Is(err, codec.ErrUnknownType) {
		t.Fatalf("expected ErrUnencodableResult got=%v", err)
	}
}

func TestFitFailureFitsLimit(t *testing.T) {
	testlog.Start(t)
	big := &worker.Failure{Type: "*errors.errorString", Message: strings.Repeat("é", 6000)}
	for i := 0; i < 20; i++ {
		big.Causes = append(big.Causes, worker.FailureCause{Type: "*fmt.wrapError", Message: strings.Repeat("c", 3000)})
	}
	for _, limit := range []uint64{256, 1024, 4096, 65536} {
		limits := frame.Limits{MaxPayloadBytes: limit, MaxAuthBytes: 1}
		fit := fitFailure(big, limits)
		if got := uint64(len(tlv.EncodeFields(failureFields(fit)))); got != failureSize(fit) {
			t.Fatalf("limit=%d size mismatch encoded=%d computed=%d", limit, got, failureSize(fit))
		}
		if failureSize(fit) > limit {
			t.Fatalf("limit=%d size=%d", limit, failureSize(fit))
		}
		if !fit.Truncated || len(fit.Causes)+fit.OmittedCauses != len(big.Causes) {
			t.Fatalf("limit=%d causes=%d omitted=%d", limit, len(fit.Causes), fit.OmittedCauses)
		}
		if !utf8.ValidString(fit.Message) {
			t.Fatalf("limit=%d message cut inside a rune", limit)
		}
		data, err := EncodeResponseFrame(codec.NewRegistry(), worker.Response{RequestID: 3, Kind: worker.Failed, Failure: fit}, limits)
		if err != nil {
			t.Fatalf("limit=%d encode: %v", limit, err)
		}
		f, err := frame.ReadFrame(bytes.NewReader(data), limits)
		if err != nil {
			t.Fatalf("limit=%d read: %v", limit, err)
		}
		back, err := DecodeResponseFrame(codec.NewRegistry(), f)
		if err != nil {
			t.Fatalf("limit=%d decode: %v", limit, err)
		}
		if !back.Failure.Truncated || back.Failure.OmittedCauses != fit.OmittedCauses {
			t.Fatalf("limit=%d markers lost: %+v", limit, back.Failure)
		}
	}
	if len(big.Causes) != 20 || len(big.Message) != 12000 {
		t.Fatalf("fitFailure must not modify its input")
	}
}

func TestOversizedFailureRejectedByEncoder(t *testing.T) {
	testlog.Start(t)
	limits := frame.Limits{MaxPayloadBytes: 512, MaxAuthBytes: 1}
	resp := worker.FailedResponse(1, errors.New(strings.Repeat("x", 1024)))
	if _, err := EncodeResponseFrame(codec.NewRegistry(), resp, limits); !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge got=%v", err)
	}
	if got := truncateText("héllo", 2); got != "h" {
		t.Fatalf("truncateText got=%q", got)
	}
}
