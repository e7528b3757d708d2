package worker

import (
	"fmt"
	"reflect"
	"sync"
)

// Services is the typed service registry injected into implementation
// constructors.
type Services struct {
	mu    sync.RWMutex
	items map[reflect.Type]any
}

func NewServices() *Services {
	return &Services{items: make(map[reflect.Type]any)}
}

// Provide registers v under T, replacing any earlier value.
func Provide[T any](s *Services, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[reflect.TypeFor[T]()] = v
}

// Lookup returns the value registered under T.
func Lookup[T any](s *Services) (T, error) {
	var zero T
	if s == nil {
		return zero, fmt.Errorf("%w: %v", ErrServiceNotFound, reflect.TypeFor[T]())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[reflect.TypeFor[T]()]
	if !ok {
		return zero, fmt.Errorf("%w: %v", ErrServiceNotFound, reflect.TypeFor[T]())
	}
	return v.(T), nil
}
