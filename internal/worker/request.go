package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Request is one invocation handed to the worker. ParamTypes and Args are
// positional and always have equal length.
type Request struct {
	ID               uint64
	Operation        string
	ParamTypes       []string
	Args             []any
	CorrelationToken string
}

// Signature renders the lookup key, e.g. Add(int,int).
func (r Request) Signature() string {
	return Signature(r.Operation, r.ParamTypes)
}

func Signature(operation string, paramTypes []string) string {
	return strings.TrimSpace(operation) + "(" + strings.Join(paramTypes, ",") + ")"
}

type ResponseKind uint8

const (
	Completed ResponseKind = iota + 1
	Failed
	InfrastructureFailed
)

func (k ResponseKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case InfrastructureFailed:
		return "infrastructure_failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Response is the single outcome of one Request. Failure is set for Failed
// and InfrastructureFailed; Result may be nil for void operations.
// ResultType is the declared descriptor of Result when the operation table
// knows it.
type Response struct {
	RequestID  uint64
	Kind       ResponseKind
	Result     any
	ResultType string
	Failure    *Failure
}

func CompletedResponse(requestID uint64, result any) Response {
	return Response{RequestID: requestID, Kind: Completed, Result: result}
}

func FailedResponse(requestID uint64, err error) Response {
	return Response{RequestID: requestID, Kind: Failed, Failure: NewFailure(err)}
}

func InfrastructureFailedResponse(requestID uint64, err error) Response {
	return Response{RequestID: requestID, Kind: InfrastructureFailed, Failure: NewFailure(err)}
}

// Err returns the failure as an error, nil for Completed.
func (r Response) Err() error {
	if r.Kind == Completed || r.Failure == nil {
		return nil
	}
	return r.Failure
}

// FailureCause is one link of a failure chain.
type FailureCause struct {
	Type    string
	Message string
}

// Failure is the structured, transport-neutral form of an error.
type Failure struct {
	Type    string
	Message string
	// Causes lists wrapped errors, outermost first, excluding the top error.
	Causes []FailureCause
	// Truncated is set when texts were shortened or causes dropped to fit a
	// transport limit. OmittedCauses counts the dropped tail of Causes.
	Truncated     bool
	OmittedCauses int
}

// NewFailure flattens err and its Unwrap chain. Joined errors contribute
// each branch in order.
func NewFailure(err error) *Failure {
	if err == nil {
		err = errors.New("worker: unspecified failure")
	}
	f := &Failure{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
	for _, cause := range unwrapAll(err) {
		f.Causes = append(f.Causes, FailureCause{
			Type:    fmt.Sprintf("%T", cause),
			Message: cause.Error(),
		})
	}
	return f
}

func unwrapAll(err error) []error {
	var out []error
	queue := directCauses(err)
	for len(queue) > 0 && len(out) < 32 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		out = append(out, next)
		queue = append(queue, directCauses(next)...)
	}
	return out
}

func directCauses(err error) []error {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		return u.Unwrap()
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			return []error{inner}
		}
	}
	return nil
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return f.Message
}

// HasCauseType reports whether the failure or any cause carries typeName.
func (f *Failure) HasCauseType(typeName string) bool {
	if f == nil {
		return false
	}
	if f.Type == typeName {
		return true
	}
	for _, c := range f.Causes {
		if c.Type == typeName {
			return true
		}
	}
	return false
}
