package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgeworker/internal/codec"
)

type fakeTransport struct {
	mu         sync.Mutex
	codecs     *codec.Registry
	handler    Handler
	responses  []Response
	connectErr error
	respondErr error
	connected  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: make(chan struct{})}
}

func (f *fakeTransport) UseCodecs(codecs *codec.Registry) { f.codecs = codecs }
func (f *fakeTransport) RegisterHandler(h Handler) { f.handler = h }
func (f *fakeTransport) Responder() Responder { return f }

func (f *fakeTransport) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	close(f.connected)
	return nil
}

func (f *fakeTransport) Respond(resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return f.respondErr
}

func (f *fakeTransport) all() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.responses...)
}

func (f *fakeTransport) last(t *testing.T) Response {
	t.Helper()
	list := f.all()
	if len(list) == 0 {
		t.Fatalf("no responses recorded")
	}
	return list[len(list)-1]
}

// arith is the implementation the endpoint tests drive.
type arith struct {
	slot *CorrelationSlot
	seen []string
}

func (a *arith) Add(x, y int) int { return x + y }

func (a *arith) Divide(x, y int) (int, error) {
	if y == 0 {
		return 0, errors.New("arith: division by zero")
	}
	return x / y, nil
}

func (a *arith) Token(ctx context.Context) string {
	token, _ := CorrelationFrom(ctx)
	current, _ := a.slot.Current()
	a.seen = append(a.seen, current)
	return token
}

func (a *arith) Boom() { panic("boom") }

func (a *arith) Missing() error {
	return fmt.Errorf("arith: load: %w", &LinkageError{Descriptor: "vendor.Widget"})
}

func (a *arith) MissingPanic() {
	panic(fmt.Errorf("arith: resolve: %w", ErrMissingType))
}

func (a *arith) Join(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}

func (a *arith) Void() {}

func newArithFactory(t *testing.T) (*Factory, *int) {
	t.Helper()
	constructed := 0
	f := NewFactory()
	if err := f.Register("arith", func(s *Services) (any, error) {
		constructed++
		slot, err := Lookup[*CorrelationSlot](s)
		if err != nil {
			return nil, err
		}
		return &arith{slot: slot}, nil
	}); err != nil {
		t.Fatalf("register arith: %v", err)
	}
	return f, &constructed
}

type running struct {
	ep        *Endpoint
	transport *fakeTransport
	result    chan error
}

func startEndpoint(t *testing.T, ctx context.Context, cfg SessionConfig, inst Instantiator, opts ...Option) *running {
	t.Helper()
	tr := newFakeTransport()
	ep := NewEndpoint(cfg, inst, tr, opts...)
	r := &running{ep: ep, transport: tr, result: make(chan error, 1)}
	go func() { r.result <- ep.Execute(ctx) }()
	select {
	case <-tr.connected:
	case err := <-r.result:
		t.Fatalf("execute returned before connect: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for connect")
	}
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for execute to return")
		return nil
	}
}
