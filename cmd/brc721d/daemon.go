package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/brc721/brc721d/internal/api"
	"github.com/brc721/brc721d/internal/scanner"
)

// runDaemon is the no-subcommand entrypoint: it runs the scanner and the
// read-only HTTP API as independent tasks communicating only through the
// Store, per the concurrency design, until SIGINT/SIGTERM or either task
// fails.
func runDaemon(envFile string, reset bool) error {
	a, err := bootstrap(envFile, reset)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scn := scanner.New(a.adapter, a.store, scanner.Config{
		Confirmations: a.cfg.Confirmations,
		BatchSize:     a.cfg.BatchSize,
		PollInterval:  a.cfg.PollInterval,
		MaxReorgDepth: a.cfg.MaxReorgDepth,
		StartHeight:   a.cfg.StartHeight,
	}, a.log, a.metrics)

	srv := &http.Server{
		Addr:    a.cfg.APIListen,
		Handler: api.New(a.store, a.metrics, a.log).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scn.Run(gctx)
	})
	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case <-gctx.Done():
			return srv.Shutdown(context.Background())
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})

	a.log.WithField("api_listen", a.cfg.APIListen).Info("brc721d started")
	return g.Wait()
}
