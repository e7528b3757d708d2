package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Termination reasons recorded by the first Fire.
const (
	ReasonStop          = "stop"
	ReasonRunThenStop   = "run_then_stop"
	ReasonEndOfStream   = "end_of_stream"
	ReasonConnectFailed = "connect_failed"
)

// Latch is the single-fire termination signal. Fire may be called any number
// of times from any goroutine; only the first call runs the cleanup hooks and
// then releases waiters. A hook may call Fire again; that call is a no-op.
type Latch struct {
	fired  atomic.Bool
	done   chan struct{}
	mu     sync.Mutex
	reason string
	hooks  []func(reason string)
}

func NewLatch(hooks ...func(reason string)) *Latch {
	return &Latch{
		done:  make(chan struct{}),
		hooks: hooks,
	}
}

// Fire releases the latch. It reports whether this call was the releasing one.
func (l *Latch) Fire(reason string) bool {
	if !l.fired.CompareAndSwap(false, true) {
		return false
	}
	l.mu.Lock()
	l.reason = reason
	l.mu.Unlock()
	for _, hook := range l.hooks {
		hook(reason)
	}
	close(l.done)
	return true
}

func (l *Latch) Done() <-chan struct{} {
	return l.done
}

func (l *Latch) Fired() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to the releasing Fire, empty before that.
func (l *Latch) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// Wait blocks until Fire or until ctx ends. A fired latch wins a tie.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	default:
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
}
