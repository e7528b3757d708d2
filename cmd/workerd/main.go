package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/edgeworker/internal/admin"
	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/observability"
	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/danmuck/edgeworker/internal/targets"
	"github.com/danmuck/edgeworker/internal/targets/fs"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "workerd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run serves one session on stdin/stdout. Nothing but protocol frames may be
// written to stdout.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("workerd", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	configPath := flags.String("config", "", "path to workerd TOML config")
	impl := flags.String("impl", "", "implementation to construct (overrides config)")
	workerID := flags.String("id", "", "worker id (overrides config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logs.ConfigureRuntime()
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr

	cfg := DefaultProcessConfig()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := loadProcessConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(*impl); v != "" {
		cfg.Session.Implementation = v
	}
	if v := strings.TrimSpace(*workerID); v != "" {
		cfg.Session.WorkerID = v
	}
	if cfg.LogLevel != "" && !logs.SetLevel(cfg.LogLevel) {
		logs.Warnf("workerd.run unknown log_level=%q", cfg.LogLevel)
	}

	observability.RegisterMetrics()
	factory, err := targets.NewFactory()
	if err != nil {
		return err
	}
	conn := session.NewConn(stdin, stdout, cfg.Transport)
	ep := worker.NewEndpoint(cfg.Session, factory, conn, worker.WithService(fs.Root(cfg.FSRoot)))

	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.AdminAddr, ep)
		if _, err := srv.Start(); err != nil {
			logs.Errf("workerd.run admin listen addr=%s err=%v", cfg.AdminAddr, err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}

	logs.Infof("workerd.run worker=%s implementation=%s", cfg.Session.WorkerID, cfg.Session.Implementation)
	err = ep.Execute(ctx)
	if errors.Is(err, worker.ErrInterrupted) {
		return fmt.Errorf("session aborted: %w", err)
	}
	return err
}
