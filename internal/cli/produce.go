package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/relay"
)

// ProduceOptions holds flags for the produce command.
type ProduceOptions struct {
	*RootOptions
	Count     int
	Queue     string
	EventType string
	Interval  time.Duration
}

// NewProduceCommand creates the produce command.
func NewProduceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProduceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish sample events to a queue",
		Long: `Publish numbered sample events for exercising a running consumer.

Example:
  shieldx produce --count 10 --interval 0 --queue s_security`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProduce(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 100, "number of events to publish")
	cmd.Flags().StringVarP(&opts.Queue, "queue", "q", "", "destination queue (default: first configured queue)")
	cmd.Flags().StringVar(&opts.EventType, "event-type", "EncryptStart", "event type name of the sample events")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "pause between events")
	return cmd
}

func runProduce(cmd *cobra.Command, opts *ProduceOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := bootstrap(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	log, cfg := e.log, e.cfg

	queue := opts.Queue
	if queue == "" {
		queue = cfg.Relay.Queues[0]
	}
	broker, err := openBroker(cfg.Broker)
	if err != nil {
		return err
	}
	pub := relay.NewPublisher(broker, cfg.Broker.Exchange, log)
	defer pub.Close()
	if err := pub.Connect(ctx, cfg.Broker.ReconnectDelay); err != nil {
		return err
	}

	n, err := publishSamples(ctx, pub, queue, opts)
	fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s) to %s\n", n, queue)
	return err
}

// publishSamples sends opts.Count sample events and reports how many went out.
func publishSamples(ctx context.Context, pub *relay.Publisher, queue string, opts *ProduceOptions) (int, error) {
	for i := 0; i < opts.Count; i++ {
		if i > 0 && opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
		ev := &model.Event{
			ServiceID:      fmt.Sprintf("service-%d", i),
			MicroserviceID: fmt.Sprintf("micro-%d", i),
			FunctionID:     fmt.Sprintf("func-%d", i),
			EventType:      opts.EventType,
			Timestamp:      model.Now(),
			Payload:        map[string]any{},
		}
		if err := pub.Publish(ctx, queue, ev); err != nil {
			return i, fmt.Errorf("publish event %d: %w", i, err)
		}
	}
	return opts.Count, nil
}
