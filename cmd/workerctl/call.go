package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/spf13/cobra"
)

const exitGrace = 5 * time.Second

var ErrCallNotCompleted = errors.New("workerctl: call did not complete")

type callOptions struct {
	operation string
	args      []string
	token     string
	stop      bool
}

func newCallCmd(root *rootOptions, dial dialer) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Run one operation on a fresh worker session",
		Example: "  workerctl call --impl calc --op Add --arg int:2 --arg int:3\n" +
			"  workerctl call --impl kv --op Put --arg string:k --arg string:v --stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(*opts)
			if err != nil {
				return err
			}
			resp, err := runCall(cmd.Context(), *root, dial, req, opts.stop)
			if err != nil {
				return err
			}
			if err := renderResponse(cmd.OutOrStdout(), req, resp); err != nil {
				return err
			}
			if resp.Kind != worker.Completed {
				return fmt.Errorf("%w: %s", ErrCallNotCompleted, resp.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.operation, "op", "", "operation name")
	cmd.Flags().StringArrayVar(&opts.args, "arg", nil, "positional argument as descriptor:value (repeatable)")
	cmd.Flags().StringVar(&opts.token, "token", "", "correlation token (default random)")
	cmd.Flags().BoolVar(&opts.stop, "stop", false, "send the request as run-then-stop")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func buildRequest(opts callOptions) (worker.Request, error) {
	op := strings.TrimSpace(opts.operation)
	if op == "" {
		return worker.Request{}, fmt.Errorf("operation is required")
	}
	reg, err := clientCodecs()
	if err != nil {
		return worker.Request{}, err
	}
	req := worker.Request{
		Operation:        op,
		ParamTypes:       make([]string, 0, len(opts.args)),
		Args:             make([]any, 0, len(opts.args)),
		CorrelationToken: strings.TrimSpace(opts.token),
	}
	for i, raw := range opts.args {
		desc, v, err := reg.ParseArg(raw)
		if err != nil {
			return worker.Request{}, fmt.Errorf("arg %d: %w", i, err)
		}
		req.ParamTypes = append(req.ParamTypes, desc)
		req.Args = append(req.Args, v)
	}
	return req, nil
}

func runCall(ctx context.Context, opts rootOptions, dial dialer, req worker.Request, thenStop bool) (worker.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, closer, err := dial(ctx, opts)
	if err != nil {
		return worker.Response{}, err
	}
	hello, err := client.Handshake(ctx)
	if err != nil {
		_ = closer()
		return worker.Response{}, err
	}
	if hello.StartupError != "" {
		logs.Warnf("workerctl.call worker=%s startup_error=%q", hello.WorkerID, hello.StartupError)
	}

	var resp worker.Response
	if thenStop {
		resp, err = client.CallThenStop(ctx, req)
	} else {
		resp, err = client.Call(ctx, req)
		if err == nil {
			err = client.Stop()
		}
	}
	if err != nil {
		_ = closer()
		return worker.Response{}, err
	}
	awaitExit(ctx, client)
	if err := closer(); err != nil {
		logs.Warnf("workerctl.call worker=%s exit err=%v", hello.WorkerID, err)
	}
	return resp, nil
}

// awaitExit waits for the worker to close its stream after a stop.
func awaitExit(ctx context.Context, client *session.Client) {
	timer := time.NewTimer(exitGrace)
	defer timer.Stop()
	select {
	case <-client.Done():
	case <-ctx.Done():
	case <-timer.C:
		logs.Warnf("workerctl worker did not close its stream within %s", exitGrace)
	}
}

func newOpsCmd(root *rootOptions, dial dialer) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the operations a worker implementation exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			hello, err := runHello(cmd.Context(), *root, dial)
			if err != nil {
				return err
			}
			return renderHello(cmd.OutOrStdout(), hello)
		},
	}
}

func runHello(ctx context.Context, opts rootOptions, dial dialer) (session.Hello, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, closer, err := dial(ctx, opts)
	if err != nil {
		return session.Hello{}, err
	}
	hello, err := client.Handshake(ctx)
	if err == nil {
		err = client.Stop()
	}
	if err != nil {
		_ = closer()
		return session.Hello{}, err
	}
	awaitExit(ctx, client)
	_ = closer()
	return hello, nil
}
