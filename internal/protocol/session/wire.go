package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/edgeworker/internal/codec"
	"github.com/danmuck/edgeworker/internal/protocol/frame"
	"github.com/danmuck/edgeworker/internal/protocol/schema"
	"github.com/danmuck/edgeworker/internal/protocol/tlv"
	"github.com/danmuck/edgeworker/internal/worker"
)

var (
	ErrArityMismatch     = errors.New("session: param types and args differ in length")
	ErrMissingOperation  = errors.New("session: request missing operation")
	ErrUnexpectedMessage = errors.New("session: unexpected message type")
	ErrUnencodableResult = errors.New("session: result cannot be encoded")
)

const causeSeparator = "\x00"

// EncodeRequestFrame encodes req as a run or run-then-stop frame. Each arg is
// encoded under its declared param type.
func EncodeRequestFrame(codecs *codec.Registry, req worker.Request, thenStop bool, limits frame.Limits) ([]byte, error) {
	if strings.TrimSpace(req.Operation) == "" {
		return nil, ErrMissingOperation
	}
	if len(req.ParamTypes) != len(req.Args) {
		return nil, fmt.Errorf("%w: %d types, %d args", ErrArityMismatch, len(req.ParamTypes), len(req.Args))
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldOperation, strings.TrimSpace(req.Operation)),
		tlv.String(schema.FieldCorrelationToken, req.CorrelationToken),
	}
	for i, desc := range req.ParamTypes {
		data, err := codecs.EncodeAs(desc, req.Args[i])
		if err != nil {
			return nil, fmt.Errorf("session: encode arg %d: %w", i, err)
		}
		fields = append(fields,
			tlv.String(schema.FieldParamType, desc),
			tlv.Bytes(schema.FieldArg, data),
		)
	}
	msgType := schema.MsgRun
	if thenStop {
		msgType = schema.MsgRunThenStop
	}
	return encodeFrame(req.ID, msgType, 0, fields, limits)
}

// DecodeRequestFrame decodes a run or run-then-stop frame.
func DecodeRequestFrame(codecs *codec.Registry, f frame.Frame) (worker.Request, bool, error) {
	msgType := f.Header.MessageType
	if !schema.IsRequest(msgType) {
		return worker.Request{}, false, fmt.Errorf("%w: %d", ErrUnexpectedMessage, msgType)
	}
	thenStop := msgType == schema.MsgRunThenStop
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return worker.Request{}, thenStop, err
	}
	if err := schema.Validate(msgType, fields); err != nil {
		return worker.Request{}, thenStop, err
	}
	req := worker.Request{
		ID:               f.Header.MessageID,
		Operation:        strings.TrimSpace(requiredString(fields, schema.FieldOperation)),
		CorrelationToken: requiredString(fields, schema.FieldCorrelationToken),
	}
	if req.Operation == "" {
		return worker.Request{}, thenStop, ErrMissingOperation
	}
	types := tlv.GetFields(fields, schema.FieldParamType)
	args := tlv.GetFields(fields, schema.FieldArg)
	if len(types) != len(args) {
		return worker.Request{}, thenStop, fmt.Errorf("%w: %d types, %d args", ErrArityMismatch, len(types), len(args))
	}
	req.ParamTypes = make([]string, 0, len(types))
	req.Args = make([]any, 0, len(args))
	for i := range types {
		desc := string(types[i].Value)
		value, err := codecs.Decode(desc, args[i].Value)
		if err != nil {
			return worker.Request{}, thenStop, fmt.Errorf("session: decode arg %d: %w", i, err)
		}
		req.ParamTypes = append(req.ParamTypes, desc)
		req.Args = append(req.Args, value)
	}
	return req, thenStop, nil
}

// EncodeStopFrame encodes the explicit caller stop message.
func EncodeStopFrame(messageID uint64, limits frame.Limits) ([]byte, error) {
	return encodeFrame(messageID, schema.MsgStop, 0, nil, limits)
}

// EncodeResponseFrame encodes resp. A completed result is encoded under its
// declared result type when known, else under the descriptor of its
// dynamic type.
func EncodeResponseFrame(codecs *codec.Registry, resp worker.Response, limits frame.Limits) ([]byte, error) {
	switch resp.Kind {
	case worker.Completed:
		var fields []tlv.Field
		if resp.Result != nil {
			desc, data, err := encodeResult(codecs, resp)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnencodableResult, err)
			}
			fields = append(fields,
				tlv.String(schema.FieldResultType, desc),
				tlv.Bytes(schema.FieldResultValue, data),
			)
		}
		return encodeFrame(resp.RequestID, schema.MsgCompleted, frame.FlagIsResponse, fields, limits)
	case worker.Failed, worker.InfrastructureFailed:
		failure := resp.Failure
		if failure == nil {
			failure = worker.NewFailure(nil)
		}
		fields := failureFields(failure)
		msgType := schema.MsgFailed
		if resp.Kind == worker.InfrastructureFailed {
			msgType = schema.MsgInfrastructureFailed
		}
		return encodeFrame(resp.RequestID, msgType, frame.FlagIsResponse|frame.FlagIsError, fields, limits)
	default:
		return nil, fmt.Errorf("%w: response kind %s", ErrUnexpectedMessage, resp.Kind)
	}
}

func encodeResult(codecs *codec.Registry, resp worker.Response) (string, []byte, error) {
	if resp.ResultType != "" {
		data, err := codecs.EncodeAs(resp.ResultType, resp.Result)
		return resp.ResultType, data, err
	}
	return codecs.Encode(resp.Result)
}

// DecodeResponseFrame decodes a completed, failed or infrastructure-failed
// frame.
func DecodeResponseFrame(codecs *codec.Registry, f frame.Frame) (worker.Response, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return worker.Response{}, err
	}
	msgType := f.Header.MessageType
	resp := worker.Response{RequestID: f.Header.MessageID}
	switch msgType {
	case schema.MsgCompleted:
		resp.Kind = worker.Completed
	case schema.MsgFailed:
		resp.Kind = worker.Failed
	case schema.MsgInfrastructureFailed:
		resp.Kind = worker.InfrastructureFailed
	default:
		return worker.Response{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, msgType)
	}
	if err := schema.Validate(msgType, fields); err != nil {
		return worker.Response{}, err
	}
	if resp.Kind == worker.Completed {
		typeField, hasType := tlv.GetField(fields, schema.FieldResultType)
		valueField, hasValue := tlv.GetField(fields, schema.FieldResultValue)
		if hasType != hasValue {
			return worker.Response{}, fmt.Errorf("session: completed frame needs both result type and value")
		}
		if hasType {
			resp.ResultType = string(typeField.Value)
			value, err := codecs.Decode(resp.ResultType, valueField.Value)
			if err != nil {
				return worker.Response{}, fmt.Errorf("session: decode result: %w", err)
			}
			resp.Result = value
		}
		return resp, nil
	}
	failure := &worker.Failure{
		Type:    requiredString(fields, schema.FieldFailureType),
		Message: requiredString(fields, schema.FieldFailureMessage),
	}
	for _, c := range tlv.GetFields(fields, schema.FieldFailureCause) {
		typ, msg, _ := strings.Cut(string(c.Value), causeSeparator)
		failure.Causes = append(failure.Causes, worker.FailureCause{Type: typ, Message: msg})
	}
	if f, ok := tlv.GetField(fields, schema.FieldFailureTruncated); ok {
		truncated, err := f.AsBool()
		if err != nil {
			return worker.Response{}, fmt.Errorf("session: decode failure: %w", err)
		}
		failure.Truncated = truncated
	}
	if f, ok := tlv.GetField(fields, schema.FieldFailureCauseTotal); ok {
		total, err := f.AsU32()
		if err != nil {
			return worker.Response{}, fmt.Errorf("session: decode failure: %w", err)
		}
		if omitted := int(total) - len(failure.Causes); omitted > 0 {
			failure.OmittedCauses = omitted
		}
	}
	resp.Failure = failure
	return resp, nil
}

func failureFields(f *worker.Failure) []tlv.Field {
	fields := []tlv.Field{
		tlv.String(schema.FieldFailureType, f.Type),
		tlv.String(schema.FieldFailureMessage, f.Message),
	}
	for _, c := range f.Causes {
		fields = append(fields, tlv.String(schema.FieldFailureCause, c.Type+causeSeparator+c.Message))
	}
	if f.Truncated {
		fields = append(fields,
			tlv.Bool(schema.FieldFailureTruncated, true),
			tlv.U32(schema.FieldFailureCauseTotal, uint32(len(f.Causes)+f.OmittedCauses)),
		)
	}
	return fields
}

// failureSize is the encoded payload length of failureFields(f).
func failureSize(f *worker.Failure) uint64 {
	n := 2*tlv.HeaderLen + len(f.Type) + len(f.Message)
	for _, c := range f.Causes {
		n += tlv.HeaderLen + len(c.Type) + len(causeSeparator) + len(c.Message)
	}
	if f.Truncated {
		n += tlv.HeaderLen + 1 + tlv.HeaderLen + 4
	}
	return uint64(n)
}

const (
	maxFailureTypeLen = 256
	maxCauseTextLen   = 512
)

// fitFailure returns a copy of f whose encoding fits limits.MaxPayloadBytes.
// Types and cause messages are capped first, then causes are dropped from
// the innermost end, then the message and type are cut to what remains.
func fitFailure(f *worker.Failure, limits frame.Limits) *worker.Failure {
	budget := limits.MaxPayloadBytes
	out := &worker.Failure{
		Type:          truncateText(f.Type, maxFailureTypeLen),
		Message:       f.Message,
		Causes:        make([]worker.FailureCause, len(f.Causes)),
		Truncated:     true,
		OmittedCauses: f.OmittedCauses,
	}
	for i, c := range f.Causes {
		out.Causes[i] = worker.FailureCause{
			Type:    truncateText(c.Type, maxFailureTypeLen),
			Message: truncateText(c.Message, maxCauseTextLen),
		}
	}
	if half := budget / 2; uint64(len(out.Message)) > half {
		out.Message = truncateText(out.Message, int(half))
	}
	for len(out.Causes) > 0 && failureSize(out) > budget {
		out.Causes = out.Causes[:len(out.Causes)-1]
		out.OmittedCauses++
	}
	if size := failureSize(out); size > budget {
		out.Message = truncateText(out.Message, len(out.Message)-int(size-budget))
	}
	if size := failureSize(out); size > budget {
		out.Type = truncateText(out.Type, len(out.Type)-int(size-budget))
	}
	return out
}

// truncateText cuts s to at most n bytes on a rune boundary.
func truncateText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func encodeFrame(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field, limits frame.Limits) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, limits)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func requiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}
