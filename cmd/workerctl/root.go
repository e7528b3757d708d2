package main

import (
	"context"
	"time"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	workerd          string
	config           string
	impl             string
	workerID         string
	handshakeTimeout time.Duration
	callTimeout      time.Duration
	logLevel         string
}

func (o rootOptions) sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	if o.handshakeTimeout > 0 {
		cfg.HandshakeTimeout = o.handshakeTimeout
	}
	if o.callTimeout > 0 {
		cfg.CallTimeout = o.callTimeout
	}
	return cfg
}

// dialer starts one worker session and returns its client plus a closer that
// reaps the worker.
type dialer func(ctx context.Context, opts rootOptions) (*session.Client, func() error, error)

func newRootCmd(dial dialer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "workerctl",
		Short:         "Drive a workerd process over the worker protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logs.ConfigureRuntime()
			if opts.logLevel != "" && !logs.SetLevel(opts.logLevel) {
				logs.Warnf("workerctl unknown log level=%q", opts.logLevel)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.workerd, "workerd", "workerd", "path to the workerd binary")
	flags.StringVar(&opts.config, "config", "", "workerd config file passed through to the worker")
	flags.StringVar(&opts.impl, "impl", "", "implementation the worker constructs")
	flags.StringVar(&opts.workerID, "id", "", "worker id passed through to the worker")
	flags.DurationVar(&opts.handshakeTimeout, "handshake-timeout", 0, "handshake timeout (default from session config)")
	flags.DurationVar(&opts.callTimeout, "call-timeout", 30*time.Second, "per-call timeout")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level for workerctl")

	root.AddCommand(newCallCmd(opts, dial), newOpsCmd(opts, dial))
	return root
}
