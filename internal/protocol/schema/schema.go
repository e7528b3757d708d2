package schema

import (
	"fmt"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/protocol/tlv"
)

// Message type IDs from tlv contract.
const (
	MsgRun                  uint32 = 1
	MsgRunThenStop          uint32 = 2
	MsgStop                 uint32 = 3
	MsgCompleted            uint32 = 10
	MsgFailed               uint32 = 11
	MsgInfrastructureFailed uint32 = 12
)

// Field IDs from tlv contract.
const (
	FieldOperation        uint16 = 1
	FieldCorrelationToken uint16 = 2

	// Repeated, positional: the n-th param type describes the n-th arg.
	FieldParamType uint16 = 100
	FieldArg       uint16 = 101

	FieldResultType  uint16 = 200
	FieldResultValue uint16 = 201

	FieldFailureType    uint16 = 300
	FieldFailureMessage uint16 = 301
	// Repeated: one "type\x00message" entry per wrapped cause, outermost first.
	FieldFailureCause uint16 = 302
	// Present only on a failure shortened to fit the payload limit.
	FieldFailureTruncated  uint16 = 303
	FieldFailureCauseTotal uint16 = 304
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requestRequirements = []Requirement{
	{FieldOperation, tlv.TypeString},
	{FieldCorrelationToken, tlv.TypeString},
}

var failureRequirements = []Requirement{
	{FieldFailureType, tlv.TypeString},
	{FieldFailureMessage, tlv.TypeString},
}

var requirements = map[uint32][]Requirement{
	MsgRun:                  requestRequirements,
	MsgRunThenStop:          requestRequirements,
	MsgStop:                 {},
	MsgCompleted:            {},
	MsgFailed:               failureRequirements,
	MsgInfrastructureFailed: failureRequirements,
}

// Optional fields still have to carry the contract type when present.
var optionalTypes = map[uint16]uint8{
	FieldParamType:         tlv.TypeString,
	FieldArg:               tlv.TypeBytes,
	FieldResultType:        tlv.TypeString,
	FieldResultValue:       tlv.TypeBytes,
	FieldFailureCause:      tlv.TypeString,
	FieldFailureTruncated:  tlv.TypeBool,
	FieldFailureCauseTotal: tlv.TypeU32,
}

// Known reports whether messageType is part of the contract.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// IsRequest reports whether messageType carries a Request payload.
func IsRequest(messageType uint32) bool {
	return messageType == MsgRun || messageType == MsgRunThenStop
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	logs.Debugf("schema.Validate message_type=%d fields=%d", messageType, len(fields))
	reqs, ok := requirements[messageType]
	if !ok {
		logs.Errf("schema.Validate unknown message_type=%d", messageType)
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			logs.Errf(
				"schema.Validate missing field message_type=%d field_id=%d",
				messageType,
				req.ID,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			logs.Errf(
				"schema.Validate type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType,
				req.ID,
				f.Type,
				req.Type,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, f := range fields {
		want, ok := optionalTypes[f.ID]
		if ok && f.Type != want {
			logs.Errf(
				"schema.Validate optional type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType,
				f.ID,
				f.Type,
				want,
			)
			return ValidationError{MessageType: messageType, FieldID: f.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
