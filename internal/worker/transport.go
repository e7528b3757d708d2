package worker

import (
	"context"

	"github.com/danmuck/edgeworker/internal/codec"
)

// Transport is the connection to the controlling process. The endpoint calls
// UseCodecs, RegisterHandler and Responder before Connect.
type Transport interface {
	UseCodecs(codecs *codec.Registry)
	RegisterHandler(h Handler)
	Responder() Responder
	// Connect starts delivery to the registered handler and returns without
	// waiting for the stream to end.
	Connect(ctx context.Context) error
}

// Handler receives the incoming messages of one session.
type Handler interface {
	Run(ctx context.Context, req Request)
	RunThenStop(ctx context.Context, req Request)
	Stop()
	EndStream()
	HandleStreamFailure(requestID uint64, err error)
}

// Responder carries outcomes back to the controlling process.
type Responder interface {
	Respond(resp Response) error
}
