package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shieldx/shieldx/internal/api"
	"github.com/shieldx/shieldx/internal/logging"
	"github.com/shieldx/shieldx/internal/relay"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Consume bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API over the configured store.

With --consume the relay consumers run in the same process, which is the
only way to use the in-memory broker end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Consume, "consume", false, "also run the relay consumers")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := bootstrap(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log, cfg := e.log, e.cfg

	logging.Follow(e.loader, e.level, log)
	if stopWatch, err := e.loader.Watch(); err != nil {
		log.Warn("config.watch.unavailable", "err", err)
	} else {
		defer stopWatch()
	}

	b, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	svc := newServices(ctx, cfg, b, log)
	defer svc.engine.Shutdown()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.New(svc.graph, svc.ingest, b, svc.engine, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var consumers *relay.Relay
	if opts.Consume {
		broker, err := openBroker(cfg.Broker)
		if err != nil {
			return err
		}
		consumers = relay.New(broker, svc.ingest, relayConfig(cfg), log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server.starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server.stopping")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	if consumers != nil {
		g.Go(func() error { return consumers.Run(gctx) })
	}

	err = g.Wait()
	log.Info("server.stopped")
	return err
}
