package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/casekeeper/internal/buildinfo"
	"github.com/dmitrijs2005/casekeeper/internal/client/cli"
	"github.com/dmitrijs2005/casekeeper/internal/client/config"
	"github.com/dmitrijs2005/casekeeper/internal/client/metrics"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	app, err := cli.NewApp(ctx, cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("app init error: %w", err)
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.Watch(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info(gctx, "metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// The REPL blocks on stdin, so it is not part of the group: a signal
	// must be able to end the program while a read is pending.
	replDone := make(chan error, 1)
	go func() { replDone <- app.Run(gctx) }()

	select {
	case err = <-replDone:
	case <-gctx.Done():
	}
	cancel()

	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}
