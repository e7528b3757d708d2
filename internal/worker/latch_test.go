package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/edgeworker/internal/testutil/testlog"
)

func TestLatchFiresOnceUnderConcurrency(t *testing.T) {
	testlog.Start(t)
	var hookCalls atomic.Int32
	l := NewLatch(func(string) { hookCalls.Add(1) })

	var wg sync.WaitGroup
	var released atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Fire(ReasonStop) {
				released.Add(1)
			}
		}()
	}
	wg.Wait()
	if released.Load() != 1 || hookCalls.Load() != 1 {
		t.Fatalf("released=%d hooks=%d", released.Load(), hookCalls.Load())
	}
	if !l.Fired() || l.Reason() != ReasonStop {
		t.Fatalf("unexpected latch state fired=%v reason=%q", l.Fired(), l.Reason())
	}
	if l.Fire(ReasonEndOfStream) || l.Reason() != ReasonStop {
		t.Fatalf("second fire must not change reason")
	}
}

func TestLatchWaitReleasesAndInterrupts(t *testing.T) {
	testlog.Start(t)
	l := NewLatch()
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Fire(ReasonEndOfStream)
	}()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait err=%v", err)
	}

	pending := NewLatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pending.Wait(ctx)
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected err=%v", err)
	}

	// A fired latch wins over an already cancelled context.
	done, stop := context.WithCancel(context.Background())
	stop()
	if err := l.Wait(done); err != nil {
		t.Fatalf("fired latch must win got=%v", err)
	}
}

func TestLatchHookMayFireAgain(t *testing.T) {
	testlog.Start(t)
	var l *Latch
	var again atomic.Bool
	l = NewLatch(func(string) {
		again.Store(l.Fire(ReasonEndOfStream))
	})
	fired := make(chan bool, 1)
	go func() { fired <- l.Fire(ReasonStop) }()
	select {
	case ok := <-fired:
		if !ok || again.Load() {
			t.Fatalf("first=%v nested=%v", ok, again.Load())
		}
	case <-time.After(time.Second):
		t.Fatalf("fire from inside a hook deadlocked")
	}
	if l.Reason() != ReasonStop {
		t.Fatalf("unexpected reason=%q", l.Reason())
	}
}
