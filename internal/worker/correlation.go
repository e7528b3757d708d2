package worker

import (
	"context"
	"strings"
	"sync"
)

// CorrelationSlot holds the correlation token of the request being
// dispatched. It is owned by one Endpoint, never process-global.
type CorrelationSlot struct {
	mu    sync.Mutex
	token string
	set   bool
}

// Enter sets the slot and returns the matching release. Release is safe to
// call more than once.
func (s *CorrelationSlot) Enter(token string) func() {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.set = true
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(s.Clear)
	}
}

// Current returns the token of the in-flight request, if any.
func (s *CorrelationSlot) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set
}

func (s *CorrelationSlot) Clear() {
	s.mu.Lock()
	s.token = ""
	s.set = false
	s.mu.Unlock()
}

type correlationKey struct{}

// WithCorrelation threads token into the context handed to an operation.
func WithCorrelation(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, correlationKey{}, strings.TrimSpace(token))
}

// CorrelationFrom returns the token WithCorrelation attached to ctx.
func CorrelationFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(correlationKey{}).(string)
	return token, ok
}
