package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/danmuck/edgeworker/internal/codec"
	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/danmuck/edgeworker/internal/targets"
)

// clientCodecs resolves every descriptor the built-in implementations use.
func clientCodecs() (*codec.Registry, error) {
	reg := codec.NewRegistry()
	if err := targets.RegisterCodecs(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func workerArgs(opts rootOptions) []string {
	var args []string
	if v := strings.TrimSpace(opts.config); v != "" {
		args = append(args, "-config", v)
	}
	if v := strings.TrimSpace(opts.impl); v != "" {
		args = append(args, "-impl", v)
	}
	if v := strings.TrimSpace(opts.workerID); v != "" {
		args = append(args, "-id", v)
	}
	return args
}

// defaultDialer spawns workerd with its stdin and stdout wired to the client.
// The worker's stderr carries its logs and is passed through.
func defaultDialer(ctx context.Context, opts rootOptions) (*session.Client, func() error, error) {
	reg, err := clientCodecs()
	if err != nil {
		return nil, nil, err
	}
	cmd := exec.CommandContext(ctx, opts.workerd, workerArgs(opts)...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("workerd stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("workerd stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start workerd: %w", err)
	}

	client := session.NewClient(stdout, stdin, opts.sessionConfig(), session.WithClientCodecs(reg))
	closer := func() error {
		closeErr := stdin.Close()
		waitErr := cmd.Wait()
		return errors.Join(closeErr, waitErr)
	}
	return client, closer, nil
}
