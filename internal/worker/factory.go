package worker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Instantiator constructs the named implementation, injecting services.
type Instantiator interface {
	Construct(typeName string, services *Services) (any, error)
}

// Constructor builds one implementation instance.
type Constructor func(services *Services) (any, error)

// Factory is an Instantiator backed by constructors registered by name.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

func (f *Factory) Register(name string, ctor Constructor) error {
	key := strings.TrimSpace(name)
	if key == "" || ctor == nil {
		return fmt.Errorf("%w: name and constructor are required", ErrInvalidSessionConfig)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ctors[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateImplementation, key)
	}
	f.ctors[key] = ctor
	return nil
}

// Construct resolves typeName and runs its constructor. A panicking
// constructor is reported as an error.
func (f *Factory) Construct(typeName string, services *Services) (instance any, err error) {
	key := strings.TrimSpace(typeName)
	f.mu.RLock()
	ctor, ok := f.ctors[key]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImplementation, key)
	}
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = fmt.Errorf("worker: construct %q: %w", key, &PanicError{Value: r})
		}
	}()
	instance, err = ctor(services)
	if err != nil {
		return nil, fmt.Errorf("worker: construct %q: %w", key, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("worker: construct %q: constructor returned nil", key)
	}
	return instance, nil
}

// Names lists registered implementations in sorted order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
