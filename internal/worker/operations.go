package worker

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/danmuck/edgeworker/internal/codec"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Operation is one invocable method of the implementation instance.
type Operation struct {
	Name       string
	ParamTypes []string
	// ResultType is empty for () and (error) shapes, and for results whose
	// Go type has no registered descriptor.
	ResultType string

	method    reflect.Value
	params    []reflect.Type
	takesCtx  bool
	hasResult bool
	hasErr    bool
}

func (o *Operation) Signature() string {
	return Signature(o.Name, o.ParamTypes)
}

// OperationTable is the static name and descriptor list to operation map
// built once per session.
type OperationTable struct {
	byName map[string]*Operation
}

// BuildOperationTable reflects over the exported methods of instance. Methods
// with a parameter that has no descriptor, or an unsupported result shape, are
// not invocable and are left out.
func BuildOperationTable(instance any, codecs *codec.Registry) (*OperationTable, error) {
	if instance == nil {
		return nil, fmt.Errorf("%w: nil instance", ErrInvalidSessionConfig)
	}
	if codecs == nil {
		return nil, fmt.Errorf("%w: nil codec registry", ErrInvalidSessionConfig)
	}
	value := reflect.ValueOf(instance)
	typ := value.Type()
	table := &OperationTable{byName: make(map[string]*Operation)}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if !m.IsExported() {
			continue
		}
		op, ok := describe(m.Name, value.Method(i), codecs)
		if !ok {
			continue
		}
		table.byName[op.Name] = op
	}
	return table, nil
}

func describe(name string, method reflect.Value, codecs *codec.Registry) (*Operation, bool) {
	mt := method.Type()
	if mt.IsVariadic() {
		return nil, false
	}
	op := &Operation{Name: name, method: method}
	start := 0
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		op.takesCtx = true
		start = 1
	}
	for i := start; i < mt.NumIn(); i++ {
		in := mt.In(i)
		desc, err := codecs.DescriptorOf(in)
		if err != nil {
			return nil, false
		}
		op.params = append(op.params, in)
		op.ParamTypes = append(op.ParamTypes, desc)
	}
	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) == errorType {
			op.hasErr = true
		} else {
			op.hasResult = true
			op.ResultType, _ = codecs.DescriptorOf(mt.Out(0))
		}
	case 2:
		if mt.Out(1) != errorType || mt.Out(0) == errorType {
			return nil, false
		}
		op.hasResult = true
		op.hasErr = true
		op.ResultType, _ = codecs.DescriptorOf(mt.Out(0))
	default:
		return nil, false
	}
	return op, true
}

// Lookup resolves an operation by name and exact descriptor list.
func (t *OperationTable) Lookup(name string, paramTypes []string) (*Operation, error) {
	key := strings.TrimSpace(name)
	op, ok := t.byName[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchOperation, Signature(key, paramTypes))
	}
	if !sameDescriptors(op.ParamTypes, paramTypes) {
		return nil, fmt.Errorf("%w: requested %s, have %s", ErrSignatureMismatch, Signature(key, paramTypes), op.Signature())
	}
	return op, nil
}

func sameDescriptors(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		if have[i] != strings.TrimSpace(want[i]) {
			return false
		}
	}
	return true
}

// Signatures lists every invocable operation in sorted order.
func (t *OperationTable) Signatures() []string {
	out := make([]string, 0, len(t.byName))
	for _, op := range t.byName {
		out = append(out, op.Signature())
	}
	sort.Strings(out)
	return out
}

func (t *OperationTable) Len() int {
	return len(t.byName)
}

// bind converts args into call values. Any failure here is an argument
// mismatch; the body has not run.
func (o *Operation) bind(ctx context.Context, args []any) ([]reflect.Value, error) {
	if len(args) != len(o.params) {
		return nil, fmt.Errorf("%w: %s wants %d args, got %d", ErrArgumentMismatch, o.Signature(), len(o.params), len(args))
	}
	in := make([]reflect.Value, 0, len(args)+1)
	if o.takesCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		want := o.params[i]
		if arg == nil {
			if !nillable(want.Kind()) {
				return nil, fmt.Errorf("%w: arg %d of %s is nil, want %v", ErrArgumentMismatch, i, o.Signature(), want)
			}
			in = append(in, reflect.Zero(want))
			continue
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(want) {
			return nil, fmt.Errorf("%w: arg %d of %s is %T, want %v", ErrArgumentMismatch, i, o.Signature(), arg, want)
		}
		in = append(in, v)
	}
	return in, nil
}

// call invokes the method. A panic in the body comes back as *PanicError.
func (o *Operation) call(in []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	out := o.method.Call(in)
	if o.hasErr {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return nil, e
		}
	}
	if o.hasResult {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}
