package worker

import (
	"context"
	"time"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/observability"
)

// Run dispatches req and emits exactly one response.
func (e *Endpoint) Run(ctx context.Context, req Request) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.respond(e.dispatch(ctx, req))
}

// RunThenStop dispatches req and terminates the session on every exit path.
func (e *Endpoint) RunThenStop(ctx context.Context, req Request) {
	defer e.latch.Fire(ReasonRunThenStop)
	e.Run(ctx, req)
}

// HandleStreamFailure answers requestID with Failed carrying err.
func (e *Endpoint) HandleStreamFailure(requestID uint64, err error) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	observability.RecordStreamFailure(e.cfg.Implementation)
	logs.Warnf("worker.Endpoint.HandleStreamFailure request=%d err=%v", requestID, err)
	e.respond(FailedResponse(requestID, err))
}

func (e *Endpoint) dispatch(ctx context.Context, req Request) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	resp := e.classify(ctx, req)
	e.served.Add(1)
	observability.RecordDispatch(e.cfg.Implementation, req.Operation, resp.Kind.String(), time.Since(started))
	if resp.Kind == Completed {
		logs.Debugf("worker.Endpoint.dispatch request=%d op=%s outcome=%s", req.ID, req.Signature(), resp.Kind)
	} else {
		logs.Infof("worker.Endpoint.dispatch request=%d op=%s outcome=%s err=%v", req.ID, req.Signature(), resp.Kind, resp.Failure)
	}
	return resp
}

func (e *Endpoint) classify(ctx context.Context, req Request) Response {
	e.mu.RLock()
	startupErr := e.startupErr
	table := e.table
	e.mu.RUnlock()

	if startupErr != nil {
		return InfrastructureFailedResponse(req.ID, startupErr)
	}
	if table == nil {
		return InfrastructureFailedResponse(req.ID, ErrInvalidSessionConfig)
	}
	op, err := table.Lookup(req.Operation, req.ParamTypes)
	if err != nil {
		return InfrastructureFailedResponse(req.ID, err)
	}
	in, err := op.bind(WithCorrelation(ctx, req.CorrelationToken), req.Args)
	if err != nil {
		return InfrastructureFailedResponse(req.ID, err)
	}

	release := e.correlation.Enter(req.CorrelationToken)
	result, err := op.call(in)
	release()

	if err == nil {
		resp := CompletedResponse(req.ID, result)
		resp.ResultType = op.ResultType
		return resp
	}
	if IsLinkage(err) {
		return InfrastructureFailedResponse(req.ID, err)
	}
	return FailedResponse(req.ID, err)
}

func (e *Endpoint) respond(resp Response) {
	e.mu.RLock()
	responder := e.responder
	e.mu.RUnlock()
	if responder == nil {
		observability.RecordRespondError(e.cfg.Implementation)
		logs.Errf("worker.Endpoint.respond request=%d err=%v", resp.RequestID, ErrNoResponder)
		return
	}
	if err := responder.Respond(resp); err != nil {
		observability.RecordRespondError(e.cfg.Implementation)
		logs.Errf("worker.Endpoint.respond request=%d kind=%s err=%v", resp.RequestID, resp.Kind, err)
	}
}
