package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shieldx/shieldx/internal/relay"
)

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Relay events from the broker into storage",
		Long: `Consume every configured queue and store each received event.

One consumer runs per queue. A lost broker connection is retried until the
process is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd, rootOpts)
		},
	}
}

func runConsume(cmd *cobra.Command, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := bootstrap(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log, cfg := e.log, e.cfg
	if cfg.Broker.Driver == "memory" {
		log.Warn("broker.memory.isolated", "hint", "nothing outside this process can publish; use serve --consume")
	}

	broker, err := openBroker(cfg.Broker)
	if err != nil {
		return err
	}
	b, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	svc := newServices(ctx, cfg, b, log)
	defer svc.engine.Shutdown()

	log.Info("consumer.starting", "queues", cfg.Relay.Queues, "exchange", cfg.Broker.Exchange)
	return relay.New(broker, svc.ingest, relayConfig(cfg), log).Run(ctx)
}
