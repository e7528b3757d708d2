package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/edgeworker/internal/worker"
)

// PendingCall tracks one request awaiting its response.
type PendingCall struct {
	RequestID        uint64
	Operation        string
	CorrelationToken string
	ThenStop         bool
	SentAt           time.Time

	result chan worker.Response
}

// PendingCalls stores in-flight calls by request id.
type PendingCalls struct {
	mu    sync.Mutex
	items map[uint64]*PendingCall
}

func NewPendingCalls() *PendingCalls {
	return &PendingCalls{items: make(map[uint64]*PendingCall)}
}

// Add registers call and returns the channel its response arrives on.
func (p *PendingCalls) Add(call PendingCall) <-chan worker.Response {
	call.result = make(chan worker.Response, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[call.RequestID] = &call
	return call.result
}

// Resolve delivers resp to its waiter. It reports whether a waiter existed.
func (p *PendingCalls) Resolve(resp worker.Response) bool {
	p.mu.Lock()
	call, ok := p.items[resp.RequestID]
	if ok {
		delete(p.items, resp.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	call.result <- resp
	return true
}

// FailAll answers every waiter with a Failed response carrying err.
func (p *PendingCalls) FailAll(err error) int {
	return p.Broadcast(worker.FailedResponse(0, err))
}

// Broadcast answers every waiter with resp, rewritten to the waiter's id.
func (p *PendingCalls) Broadcast(resp worker.Response) int {
	p.mu.Lock()
	calls := p.items
	p.items = make(map[uint64]*PendingCall)
	p.mu.Unlock()
	for id, call := range calls {
		out := resp
		out.RequestID = id
		call.result <- out
	}
	return len(calls)
}

func (p *PendingCalls) Remove(requestID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, requestID)
}

func (p *PendingCalls) Get(requestID uint64) (PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.items[requestID]
	if !ok {
		return PendingCall{}, false
	}
	return *call, true
}

func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *PendingCalls) List() []PendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingCall, 0, len(p.items))
	for _, call := range p.items {
		out = append(out, *call)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}
