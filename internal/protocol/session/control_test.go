package session

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/edgeworker/internal/testutil/testlog"
)

func TestHelloRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Hello{
		WorkerID:        "worker-a",
		Implementation:  "calc",
		ProtocolVersion: ProtocolVersion,
		StartupError:    "worker: unknown implementation",
		Operations:      []string{"Add(int,int)"},
	}
	var buf bytes.Buffer
	if err := WriteHello(&buf, in); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	out, err := ReadHello(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if out.WorkerID != in.WorkerID || out.StartupError != in.StartupError || len(out.Operations) != 1 {
		t.Fatalf("unexpected hello: %+v", out)
	}
}

func TestHelloAckRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := HelloAck{Status: AckStatusAccepted, WorkerID: "worker-a", TimestampMS: 1700000000000}
	var buf bytes.Buffer
	if err := WriteHelloAck(&buf, in); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	out, err := ReadHelloAck(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if !out.Accepted() || out.WorkerID != "worker-a" {
		t.Fatalf("unexpected ack: %+v", out)
	}
}

func TestControlValidation(t *testing.T) {
	testlog.Start(t)
	if err := WriteHello(&bytes.Buffer{}, Hello{Implementation: "calc", ProtocolVersion: 1}); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello got=%v", err)
	}
	if err := WriteHelloAck(&bytes.Buffer{}, HelloAck{Status: "maybe", WorkerID: "w", TimestampMS: 1}); !errors.Is(err, ErrInvalidHelloAck) {
		t.Fatalf("expected ErrInvalidHelloAck got=%v", err)
	}

	var buf bytes.Buffer
	_ = WriteHelloAck(&buf, HelloAck{Status: AckStatusAccepted, WorkerID: "w", TimestampMS: 1})
	if _, err := ReadHello(bufio.NewReader(&buf)); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello for ack envelope got=%v", err)
	}

	huge := strings.Repeat("x", maxControlLine+1) + "\n"
	if _, err := ReadHello(bufio.NewReader(strings.NewReader(huge))); !errors.Is(err, ErrControlMessageTooLarge) {
		t.Fatalf("expected ErrControlMessageTooLarge got=%v", err)
	}
}

func TestClientRejectsVersionMismatch(t *testing.T) {
	testlog.Start(t)
	var workerOut, callerOut bytes.Buffer
	_ = WriteHello(&workerOut, Hello{WorkerID: "w", Implementation: "calc", ProtocolVersion: ProtocolVersion + 1})
	c := NewClient(&workerOut, &callerOut, Config{})
	if _, err := c.Handshake(t.Context()); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch got=%v", err)
	}
	ack, err := ReadHelloAck(bufio.NewReader(&callerOut))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Accepted() || ack.Code == 0 {
		t.Fatalf("expected rejected ack got=%+v", ack)
	}
}
