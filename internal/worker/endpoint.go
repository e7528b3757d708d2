package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgeworker/internal/codec"
	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/observability"
	"github.com/rs/zerolog"
)

// SessionConfig is the data transferred to the worker process.
type SessionConfig struct {
	WorkerID       string `json:"worker_id"`
	Implementation string `json:"implementation"`
}

func (c SessionConfig) Validate() error {
	if strings.TrimSpace(c.Implementation) == "" {
		return fmt.Errorf("%w: implementation is required", ErrInvalidSessionConfig)
	}
	return nil
}

type Phase string

const (
	PhaseNew        Phase = "new"
	PhaseConnecting Phase = "connecting"
	PhaseServing    Phase = "serving"
	PhaseStopped    Phase = "stopped"
)

// Status is a point-in-time snapshot of the session.
type Status struct {
	WorkerID          string   `json:"worker_id"`
	Implementation    string   `json:"implementation"`
	Phase             Phase    `json:"phase"`
	StartupError      string   `json:"startup_error,omitempty"`
	Operations        []string `json:"operations"`
	RequestsServed    uint64   `json:"requests_served"`
	CorrelationToken  string   `json:"correlation_token,omitempty"`
	TerminationReason string   `json:"termination_reason,omitempty"`
}

type Option func(*Endpoint)

// WithCodecs replaces the default codec registry.
func WithCodecs(codecs *codec.Registry) Option {
	return func(e *Endpoint) {
		if codecs != nil {
			e.codecs = codecs
		}
	}
}

// WithService injects v into the constructor's Services under T.
func WithService[T any](v T) Option {
	return func(e *Endpoint) {
		e.provide = append(e.provide, func(s *Services) { Provide(s, v) })
	}
}

// WithTerminationHook runs fn once when the session terminates.
func WithTerminationHook(fn func(reason string)) Option {
	return func(e *Endpoint) {
		if fn != nil {
			e.hooks = append(e.hooks, fn)
		}
	}
}

// Endpoint is the worker side of one session. It implements Handler.
type Endpoint struct {
	cfg       SessionConfig
	inst      Instantiator
	transport Transport
	codecs    *codec.Registry
	provide   []func(*Services)
	hooks     []func(reason string)
	logger    zerolog.Logger

	latch       *Latch
	correlation CorrelationSlot
	executed    atomic.Bool
	served      atomic.Uint64

	// dispatchMu serializes Run, RunThenStop and HandleStreamFailure.
	dispatchMu sync.Mutex

	mu         sync.RWMutex
	phase      Phase
	startupErr error
	instance   any
	table      *OperationTable
	responder  Responder
}

func NewEndpoint(cfg SessionConfig, inst Instantiator, transport Transport, opts ...Option) *Endpoint {
	cfg.WorkerID = strings.TrimSpace(cfg.WorkerID)
	cfg.Implementation = strings.TrimSpace(cfg.Implementation)
	e := &Endpoint{
		cfg:       cfg,
		inst:      inst,
		transport: transport,
		codecs:    codec.NewRegistry(),
		phase:     PhaseNew,
		logger:    observability.WorkerLogger(cfg.WorkerID, cfg.Implementation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	hooks := append([]func(string){e.onTerminate}, e.hooks...)
	e.latch = NewLatch(hooks...)
	return e
}

// Execute runs the session to completion. Startup failures are recorded and
// answered per request; Execute returns nil once the session terminates
// normally.
func (e *Endpoint) Execute(ctx context.Context) error {
	if !e.executed.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.transport == nil {
		return fmt.Errorf("%w: nil transport", ErrInvalidSessionConfig)
	}

	e.startup()

	e.transport.UseCodecs(e.codecs)
	e.transport.RegisterHandler(e)
	responder := e.transport.Responder()

	e.mu.Lock()
	e.responder = responder
	e.phase = PhaseConnecting
	e.mu.Unlock()

	logs.Infof("worker.Endpoint.Execute connect worker=%s implementation=%s", e.cfg.WorkerID, e.cfg.Implementation)
	if err := e.transport.Connect(ctx); err != nil {
		e.latch.Fire(ReasonConnectFailed)
		return fmt.Errorf("worker: connect: %w", err)
	}

	e.mu.Lock()
	if e.phase == PhaseConnecting {
		e.phase = PhaseServing
	}
	e.mu.Unlock()

	if err := e.latch.Wait(ctx); err != nil {
		logs.Warnf("worker.Endpoint.Execute interrupted worker=%s err=%v", e.cfg.WorkerID, err)
		return err
	}
	logs.Infof("worker.Endpoint.Execute done worker=%s reason=%s served=%d", e.cfg.WorkerID, e.latch.Reason(), e.served.Load())
	return nil
}

// startup never returns an error; the first failure poisons the session.
func (e *Endpoint) startup() {
	err := e.build()
	if err == nil {
		return
	}
	e.mu.Lock()
	e.startupErr = err
	e.instance = nil
	e.table = nil
	e.mu.Unlock()
	logs.Errf("worker.Endpoint.startup failed worker=%s implementation=%s err=%v", e.cfg.WorkerID, e.cfg.Implementation, err)
}

func (e *Endpoint) build() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if e.inst == nil {
		return fmt.Errorf("%w: nil instantiator", ErrInvalidSessionConfig)
	}
	services := NewServices()
	Provide(services, e.codecs)
	Provide(services, &e.correlation)
	Provide(services, e.cfg)
	Provide(services, e.logger)
	for _, fn := range e.provide {
		fn(services)
	}

	instance, err := e.inst.Construct(e.cfg.Implementation, services)
	if err != nil {
		return err
	}
	table, err := BuildOperationTable(instance, e.codecs)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.instance = instance
	e.table = table
	e.mu.Unlock()
	logs.Infof("worker.Endpoint.startup ok worker=%s implementation=%s operations=%d", e.cfg.WorkerID, e.cfg.Implementation, table.Len())
	return nil
}

// Stop ends the session after any in-flight response.
func (e *Endpoint) Stop() {
	e.latch.Fire(ReasonStop)
}

// EndStream reports that the incoming stream closed.
func (e *Endpoint) EndStream() {
	e.latch.Fire(ReasonEndOfStream)
}

func (e *Endpoint) onTerminate(reason string) {
	e.correlation.Clear()
	e.mu.Lock()
	e.phase = PhaseStopped
	e.mu.Unlock()
	observability.RecordTermination(e.cfg.Implementation, reason)
	logs.Infof("worker.Endpoint.terminate worker=%s reason=%s", e.cfg.WorkerID, reason)
}

// Done is closed when the session terminates.
func (e *Endpoint) Done() <-chan struct{} {
	return e.latch.Done()
}

// StartupError returns the recorded startup failure, if any.
func (e *Endpoint) StartupError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startupErr
}

// Codecs returns the registry shared with the transport.
func (e *Endpoint) Codecs() *codec.Registry {
	return e.codecs
}

func (e *Endpoint) Status() Status {
	e.mu.RLock()
	st := Status{
		WorkerID:          e.cfg.WorkerID,
		Implementation:    e.cfg.Implementation,
		Phase:             e.phase,
		Operations:        []string{},
		RequestsServed:    e.served.Load(),
		TerminationReason: e.latch.Reason(),
	}
	if e.startupErr != nil {
		st.StartupError = e.startupErr.Error()
	}
	if e.table != nil {
		st.Operations = e.table.Signatures()
	}
	e.mu.RUnlock()
	if token, ok := e.correlation.Current(); ok {
		st.CorrelationToken = token
	}
	return st
}
