package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgeworker/internal/codec"
	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/protocol/frame"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/google/uuid"
)

var (
	ErrWorkerClosed    = errors.New("session: worker stream closed")
	ErrNotHandshaken   = errors.New("session: handshake not completed")
	ErrVersionMismatch = errors.New("session: protocol version mismatch")
)

// Client is the caller side of a session: it reads the worker's stdout and
// writes to its stdin.
type Client struct {
	cfg    Config
	r      *bufio.Reader
	w      io.Writer
	codecs *codec.Registry

	writeMu   sync.Mutex
	nextID    atomic.Uint64
	pending   *PendingCalls
	handshake atomic.Bool
	hello     Hello
	done      chan struct{}

	errMu   sync.Mutex
	readErr error
}

type ClientOption func(*Client)

// WithClientCodecs replaces the default codec registry. It must resolve the
// same descriptors as the worker's registry.
func WithClientCodecs(codecs *codec.Registry) ClientOption {
	return func(c *Client) {
		if codecs != nil {
			c.codecs = codecs
		}
	}
}

func NewClient(r io.Reader, w io.Writer, cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:     cfg.WithDefaults(),
		r:       bufio.NewReader(r),
		w:       w,
		codecs:  codec.NewRegistry(),
		pending: NewPendingCalls(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Handshake reads worker.hello, answers it and starts the response loop. A
// hello that reports a startup error is still accepted; every call on that
// session comes back InfrastructureFailed.
func (c *Client) Handshake(ctx context.Context) (Hello, error) {
	if c.handshake.Load() {
		return c.hello, nil
	}
	hello, err := c.readHello(ctx)
	if err != nil {
		return Hello{}, err
	}
	ack := HelloAck{
		Status:      AckStatusAccepted,
		WorkerID:    hello.WorkerID,
		TimestampMS: uint64(time.Now().UnixMilli()),
	}
	if hello.ProtocolVersion != ProtocolVersion {
		ack.Status = AckStatusRejected
		ack.Code = 1
		ack.Message = fmt.Sprintf("protocol_version %d unsupported", hello.ProtocolVersion)
	}
	c.writeMu.Lock()
	err = WriteHelloAck(c.w, ack)
	c.writeMu.Unlock()
	if err != nil {
		return Hello{}, fmt.Errorf("session: write hello ack: %w", err)
	}
	if !ack.Accepted() {
		return hello, fmt.Errorf("%w: worker=%d client=%d", ErrVersionMismatch, hello.ProtocolVersion, ProtocolVersion)
	}
	c.hello = hello
	c.handshake.Store(true)
	if hello.StartupError != "" {
		logs.Warnf("session.Client.Handshake worker=%s startup_error=%q", hello.WorkerID, hello.StartupError)
	}
	logs.Infof("session.Client.Handshake worker=%s implementation=%s operations=%d", hello.WorkerID, hello.Implementation, len(hello.Operations))
	go c.readLoop()
	return hello, nil
}

type helloResult struct {
	hello Hello
	err   error
}

func (c *Client) readHello(ctx context.Context) (Hello, error) {
	result := make(chan helloResult, 1)
	go func() {
		hello, err := ReadHello(c.r)
		result <- helloResult{hello: hello, err: err}
	}()
	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case res := <-result:
		if res.err != nil {
			return Hello{}, fmt.Errorf("session: read hello: %w", res.err)
		}
		return res.hello, nil
	case <-timer.C:
		return Hello{}, ErrHandshakeTimeout
	case <-ctx.Done():
		return Hello{}, context.Cause(ctx)
	}
}

// Hello returns the worker's handshake payload.
func (c *Client) Hello() Hello {
	return c.hello
}

// Call sends req and waits for its response. Zero ID and empty correlation
// token are filled in.
func (c *Client) Call(ctx context.Context, req worker.Request) (worker.Response, error) {
	return c.call(ctx, req, false)
}

// CallThenStop sends req as the final request of the session.
func (c *Client) CallThenStop(ctx context.Context, req worker.Request) (worker.Response, error) {
	return c.call(ctx, req, true)
}

func (c *Client) call(ctx context.Context, req worker.Request, thenStop bool) (worker.Response, error) {
	if !c.handshake.Load() {
		return worker.Response{}, ErrNotHandshaken
	}
	select {
	case <-c.done:
		return worker.Response{}, c.closedErr()
	default:
	}
	if req.ID == 0 {
		req.ID = c.nextID.Add(1)
	}
	if strings.TrimSpace(req.CorrelationToken) == "" {
		req.CorrelationToken = uuid.NewString()
	}
	data, err := EncodeRequestFrame(c.codecs, req, thenStop, c.cfg.Limits())
	if err != nil {
		return worker.Response{}, err
	}
	if c.cfg.CallTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}
	}

	result := c.pending.Add(PendingCall{
		RequestID:        req.ID,
		Operation:        req.Operation,
		CorrelationToken: req.CorrelationToken,
		ThenStop:         thenStop,
		SentAt:           time.Now(),
	})
	c.writeMu.Lock()
	_, err = c.w.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Remove(req.ID)
		return worker.Response{}, fmt.Errorf("session: write request %d: %w", req.ID, err)
	}
	logs.Debugf("session.Client.call id=%d op=%s token=%s then_stop=%v", req.ID, req.Signature(), req.CorrelationToken, thenStop)

	select {
	case resp := <-result:
		return resp, nil
	case <-ctx.Done():
		c.pending.Remove(req.ID)
		return worker.Response{}, context.Cause(ctx)
	case <-c.done:
		select {
		case resp := <-result:
			return resp, nil
		default:
			return worker.Response{}, c.closedErr()
		}
	}
}

// Stop asks the worker to end the session.
func (c *Client) Stop() error {
	if !c.handshake.Load() {
		return ErrNotHandshaken
	}
	data, err := EncodeStopFrame(c.nextID.Add(1), c.cfg.Limits())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("session: write stop: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	limits := c.cfg.Limits()
	for {
		f, err := frame.ReadFrame(c.r, limits)
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			if n := c.pending.FailAll(c.closedErr()); n > 0 {
				logs.Warnf("session.Client.readLoop closed with pending=%d err=%v", n, err)
			}
			return
		}
		resp, err := DecodeResponseFrame(c.codecs, f)
		if err != nil {
			logs.Warnf("session.Client.readLoop undecodable response id=%d err=%v", f.Header.MessageID, err)
			resp = worker.FailedResponse(f.Header.MessageID, err)
		}
		if c.pending.Resolve(resp) {
			continue
		}
		if resp.RequestID == 0 && resp.Kind != worker.Completed {
			c.pending.Broadcast(resp)
			continue
		}
		logs.Warnf("session.Client.readLoop response without caller id=%d kind=%s", resp.RequestID, resp.Kind)
	}
}

func (c *Client) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil || errors.Is(c.readErr, io.EOF) {
		return ErrWorkerClosed
	}
	return fmt.Errorf("%w: %w", ErrWorkerClosed, c.readErr)
}

// Done is closed once the worker's stream ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Pending lists calls still awaiting a response.
func (c *Client) Pending() []PendingCall {
	return c.pending.List()
}
