package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Builtin descriptors installed by NewRegistry.
const (
	Int     = "int"
	Int64   = "int64"
	Uint64  = "uint64"
	Float64 = "float64"
	Bool    = "bool"
	String  = "string"
	Bytes   = "bytes"
	Strings = "strings"
	StrMap  = "strmap"
)

var (
	ErrUnknownDescriptor   = errors.New("codec: unknown type descriptor")
	ErrUnknownType         = errors.New("codec: no descriptor for type")
	ErrDuplicateDescriptor = errors.New("codec: duplicate type descriptor")
	ErrInvalidDescriptor   = errors.New("codec: invalid type descriptor")
	ErrTypeMismatch        = errors.New("codec: value type mismatch")
)

// Codec binds one wire descriptor to one Go type.
type Codec struct {
	Descriptor string
	Type       reflect.Type
}

// Registry resolves descriptors to Go types and encodes values as CBOR.
type Registry struct {
	mu     sync.RWMutex
	byDesc map[string]Codec
	byType map[reflect.Type]string
	enc    cbor.EncMode
	dec    cbor.DecMode
}

// NewRegistry returns a registry with the builtin descriptors installed.
func NewRegistry() *Registry {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: canonical enc mode: %v", err))
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: dec mode: %v", err))
	}
	r := &Registry{
		byDesc: make(map[string]Codec),
		byType: make(map[reflect.Type]string),
		enc:    enc,
		dec:    dec,
	}
	for desc, typ := range builtinTypes() {
		_ = r.Register(desc, typ)
	}
	return r
}

func builtinTypes() map[string]reflect.Type {
	return map[string]reflect.Type{
		Int:     reflect.TypeFor[int](),
		Int64:   reflect.TypeFor[int64](),
		Uint64:  reflect.TypeFor[uint64](),
		Float64: reflect.TypeFor[float64](),
		Bool:    reflect.TypeFor[bool](),
		String:  reflect.TypeFor[string](),
		Bytes:   reflect.TypeFor[[]byte](),
		Strings: reflect.TypeFor[[]string](),
		StrMap:  reflect.TypeFor[map[string]string](),
	}
}

// Register binds descriptor to typ. A type may only carry one descriptor.
func (r *Registry) Register(descriptor string, typ reflect.Type) error {
	desc := strings.TrimSpace(descriptor)
	if desc == "" || strings.ContainsAny(desc, " \t\r\n,") {
		return fmt.Errorf("%w: %q", ErrInvalidDescriptor, descriptor)
	}
	if typ == nil {
		return fmt.Errorf("%w: nil type for %q", ErrInvalidDescriptor, desc)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byDesc[desc]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDescriptor, desc)
	}
	if existing, ok := r.byType[typ]; ok {
		return fmt.Errorf("%w: %s already registered as %s", ErrDuplicateDescriptor, typ, existing)
	}
	r.byDesc[desc] = Codec{Descriptor: desc, Type: typ}
	r.byType[typ] = desc
	return nil
}

// RegisterType binds descriptor to T.
func RegisterType[T any](r *Registry, descriptor string) error {
	return r.Register(descriptor, reflect.TypeFor[T]())
}

// Lookup returns the codec for descriptor.
func (r *Registry) Lookup(descriptor string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byDesc[strings.TrimSpace(descriptor)]
	if !ok {
		return Codec{}, fmt.Errorf("%w: %q", ErrUnknownDescriptor, descriptor)
	}
	return c, nil
}

// DescriptorOf returns the wire descriptor registered for typ.
func (r *Registry) DescriptorOf(typ reflect.Type) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byType[typ]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownType, typ)
	}
	return desc, nil
}

// Descriptors lists registered descriptors in sorted order.
func (r *Registry) Descriptors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byDesc))
	for desc := range r.byDesc {
		out = append(out, desc)
	}
	sort.Strings(out)
	return out
}

// Encode resolves the descriptor for value's dynamic type and encodes it.
func (r *Registry) Encode(value any) (string, []byte, error) {
	if value == nil {
		return "", nil, fmt.Errorf("%w: nil value", ErrTypeMismatch)
	}
	desc, err := r.DescriptorOf(reflect.TypeOf(value))
	if err != nil {
		return "", nil, err
	}
	data, err := r.enc.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("codec: encode %s: %w", desc, err)
	}
	return desc, data, nil
}

// EncodeAs encodes value under descriptor; the value must have exactly the
// descriptor's Go type.
func (r *Registry) EncodeAs(descriptor string, value any) ([]byte, error) {
	c, err := r.Lookup(descriptor)
	if err != nil {
		return nil, err
	}
	if value == nil || reflect.TypeOf(value) != c.Type {
		return nil, fmt.Errorf("%w: %s wants %v, got %T", ErrTypeMismatch, c.Descriptor, c.Type, value)
	}
	data, err := r.enc.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", c.Descriptor, err)
	}
	return data, nil
}

// Decode decodes data into a fresh value of the descriptor's Go type.
func (r *Registry) Decode(descriptor string, data []byte) (any, error) {
	c, err := r.Lookup(descriptor)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(c.Type)
	if err := r.dec.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: decode %s: %w", c.Descriptor, err)
	}
	return ptr.Elem().Interface(), nil
}
