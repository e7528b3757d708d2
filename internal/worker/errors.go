package worker

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgeworker/internal/codec"
)

var (
	ErrNoSuchOperation         = errors.New("worker: no such operation")
	ErrSignatureMismatch       = errors.New("worker: operation signature mismatch")
	ErrArgumentMismatch        = errors.New("worker: argument mismatch")
	ErrMissingType             = errors.New("worker: missing type")
	ErrInterrupted             = errors.New("worker: wait interrupted")
	ErrAlreadyExecuted         = errors.New("worker: endpoint already executed")
	ErrUnknownImplementation   = errors.New("worker: unknown implementation")
	ErrDuplicateImplementation = errors.New("worker: duplicate implementation")
	ErrInvalidSessionConfig    = errors.New("worker: invalid session config")
	ErrServiceNotFound         = errors.New("worker: service not found")
	ErrNoResponder             = errors.New("worker: no responder")
)

// LinkageError reports a type the worker runtime cannot resolve. Raised from
// inside an operation body it classifies the outcome as InfrastructureFailed.
type LinkageError struct {
	Descriptor string
	Err        error
}

func (e *LinkageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("worker: missing type %q", e.Descriptor)
	}
	return fmt.Sprintf("worker: missing type %q: %v", e.Descriptor, e.Err)
}

func (e *LinkageError) Unwrap() error {
	return e.Err
}

func (e *LinkageError) Is(target error) bool {
	return target == ErrMissingType
}

// IsLinkage reports whether err anywhere in its chain is a missing-type
// symptom of a broken or mismatched worker runtime.
func IsLinkage(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMissingType) ||
		errors.Is(err, codec.ErrUnknownDescriptor) ||
		errors.Is(err, codec.ErrUnknownType)
}

// PanicError wraps a value recovered from an operation body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker: operation panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
