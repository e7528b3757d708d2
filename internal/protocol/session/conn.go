package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgeworker/internal/codec"
	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/protocol/frame"
	"github.com/danmuck/edgeworker/internal/protocol/schema"
	"github.com/danmuck/edgeworker/internal/worker"
)

var (
	ErrStreamBroken     = errors.New("session: stream broken")
	ErrNoHandler        = errors.New("session: no handler registered")
	ErrAlreadyConnected = errors.New("session: already connected")
)

const unsetImplementation = "unset"

// StatusReporter lets Conn fill worker.hello from the registered handler.
type StatusReporter interface {
	Status() worker.Status
}

// Conn is the worker side of a session over a reader/writer pair, usually
// stdin and stdout. It implements worker.Transport and worker.Responder.
type Conn struct {
	cfg     Config
	src     io.Reader
	r       *bufio.Reader
	w       io.Writer
	codecs  *codec.Registry
	handler worker.Handler

	writeMu   sync.Mutex
	connectMu sync.Mutex
	connected bool
	ack       HelloAck
	done      chan struct{}
}

func NewConn(r io.Reader, w io.Writer, cfg Config) *Conn {
	return &Conn{
		cfg:    cfg.WithDefaults(),
		src:    r,
		r:      bufio.NewReader(r),
		w:      w,
		codecs: codec.NewRegistry(),
		done:   make(chan struct{}),
	}
}

func (c *Conn) UseCodecs(codecs *codec.Registry) {
	if codecs != nil {
		c.codecs = codecs
	}
}

func (c *Conn) RegisterHandler(h worker.Handler) {
	c.handler = h
}

func (c *Conn) Responder() worker.Responder {
	return c
}

// Connect performs the hello handshake and starts the read loop. It returns
// once the caller accepted the session.
func (c *Conn) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.connected {
		return ErrAlreadyConnected
	}
	if c.handler == nil {
		return ErrNoHandler
	}
	hello := c.hello()
	c.writeMu.Lock()
	err := WriteHello(c.w, hello)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("session: write hello: %w", err)
	}

	ack, err := c.awaitAck(ctx)
	if err != nil {
		return err
	}
	if !ack.Accepted() {
		return fmt.Errorf("%w: code=%d message=%s", ErrHandshakeRejected, ack.Code, ack.Message)
	}
	c.ack = ack
	c.connected = true
	logs.Infof("session.Conn.Connect accepted worker=%s operations=%d", hello.WorkerID, len(hello.Operations))
	go c.readLoop(ctx)
	return nil
}

func (c *Conn) hello() Hello {
	hello := Hello{ProtocolVersion: ProtocolVersion, Operations: []string{}}
	if reporter, ok := c.handler.(StatusReporter); ok {
		st := reporter.Status()
		hello.WorkerID = st.WorkerID
		hello.Implementation = st.Implementation
		hello.StartupError = st.StartupError
		hello.Operations = st.Operations
	}
	// A session with no implementation still handshakes so its startup
	// error reaches the caller.
	if strings.TrimSpace(hello.Implementation) == "" {
		hello.Implementation = unsetImplementation
	}
	if strings.TrimSpace(hello.WorkerID) == "" {
		hello.WorkerID = unsetImplementation
	}
	return hello
}

type ackResult struct {
	ack HelloAck
	err error
}

func (c *Conn) awaitAck(ctx context.Context) (HelloAck, error) {
	result := make(chan ackResult, 1)
	go func() {
		ack, err := ReadHelloAck(c.r)
		result <- ackResult{ack: ack, err: err}
	}()
	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case res := <-result:
		if res.err != nil {
			return HelloAck{}, fmt.Errorf("session: read hello ack: %w", res.err)
		}
		return res.ack, nil
	case <-timer.C:
		c.abandonRead()
		return HelloAck{}, ErrHandshakeTimeout
	case <-ctx.Done():
		c.abandonRead()
		return HelloAck{}, context.Cause(ctx)
	}
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// abandonRead unblocks a pending ack read when the source supports
// deadlines (os.File pipes, net.Conn). Other readers keep the goroutine
// parked until the stream closes.
func (c *Conn) abandonRead() {
	if d, ok := c.src.(readDeadliner); ok {
		if err := d.SetReadDeadline(time.Now()); err != nil {
			logs.Debugf("session.Conn.abandonRead deadline unsupported err=%v", err)
		}
	}
}

// readLoop delivers frames to the handler one at a time. Dispatch runs on
// this goroutine, so the next request is not read until the previous one
// was answered.
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	limits := c.cfg.Limits()
	for {
		f, err := frame.ReadFrame(c.r, limits)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logs.Infof("session.Conn.readLoop end of stream")
				c.handler.EndStream()
				return
			}
			logs.Warnf("session.Conn.readLoop broken stream err=%v", err)
			c.handler.HandleStreamFailure(0, fmt.Errorf("%w: %w", ErrStreamBroken, err))
			c.handler.EndStream()
			return
		}
		if !c.deliver(ctx, f) {
			return
		}
	}
}

// deliver reports whether the loop should keep reading.
func (c *Conn) deliver(ctx context.Context, f frame.Frame) bool {
	id := f.Header.MessageID
	switch f.Header.MessageType {
	case schema.MsgStop:
		logs.Infof("session.Conn.deliver stop id=%d", id)
		c.handler.Stop()
		return false
	case schema.MsgRun, schema.MsgRunThenStop:
		req, thenStop, err := DecodeRequestFrame(c.codecs, f)
		if err != nil {
			logs.Warnf("session.Conn.deliver undecodable request id=%d err=%v", id, err)
			c.handler.HandleStreamFailure(id, err)
			if thenStop {
				c.handler.Stop()
				return false
			}
			return true
		}
		if thenStop {
			c.handler.RunThenStop(ctx, req)
			return false
		}
		c.handler.Run(ctx, req)
		return true
	default:
		c.handler.HandleStreamFailure(id, fmt.Errorf("%w: %d", ErrUnexpectedMessage, f.Header.MessageType))
		return true
	}
}

// Respond writes one response frame. A completed result that cannot be
// encoded is answered InfrastructureFailed instead, and a failure too large
// for the payload limit is shortened until it fits.
func (c *Conn) Respond(resp worker.Response) error {
	limits := c.cfg.Limits()
	data, err := EncodeResponseFrame(c.codecs, resp, limits)
	if err != nil && resp.Kind == worker.Completed {
		logs.Warnf("session.Conn.Respond unencodable result id=%d type=%T err=%v", resp.RequestID, resp.Result, err)
		resp = worker.InfrastructureFailedResponse(resp.RequestID, err)
		data, err = EncodeResponseFrame(c.codecs, resp, limits)
	}
	if err != nil && resp.Kind != worker.Completed {
		if resp.Failure == nil {
			resp.Failure = worker.NewFailure(nil)
		}
		logs.Warnf("session.Conn.Respond shortening failure id=%d kind=%s err=%v", resp.RequestID, resp.Kind, err)
		resp.Failure = fitFailure(resp.Failure, limits)
		data, err = EncodeResponseFrame(c.codecs, resp, limits)
	}
	if err != nil {
		return fmt.Errorf("session: encode response %d: %w", resp.RequestID, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("session: write response %d: %w", resp.RequestID, err)
	}
	return nil
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) CallerAck() HelloAck {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.ack
}
