package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/metrics"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/retry"
)

// Handler receives decoded events. It is satisfied by the ingestion service.
type Handler interface {
	CreateEvent(ctx context.Context, ev *model.Event) (id.EntityID, error)
}

// Config is shared by every consumer of a Relay.
type Config struct {
	Exchange       string
	Queues         []string
	Prefetch       int
	ReconnectDelay time.Duration
	// DropOnFailure discards a message whose handler failed for a reason
	// other than invalid input. By default such messages are requeued.
	DropOnFailure bool
}

// Message outcomes recorded in metrics and logs.
const (
	outcomeAcked     = "acked"
	outcomeRejected  = "rejected"
	outcomeRequeued  = "requeued"
	outcomeDropped   = "dropped"
	outcomeMalformed = "malformed"
)

// Consumer is the task bound to a single queue. It owns its session so a
// slow queue cannot block another.
type Consumer struct {
	broker  Broker
	handler Handler
	queue   string
	cfg     Config
	log     *slog.Logger
}

// NewConsumer creates the consumer for queue.
func NewConsumer(b Broker, h Handler, queue string, cfg Config, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{broker: b, handler: h, queue: queue, cfg: cfg, log: log.With("queue", queue)}
}

// Run consumes until ctx is cancelled. Connection failures and stream loss
// are retried forever with the configured delay. A message being handled
// when ctx is cancelled is finished and settled before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	for sessions := 0; ; sessions++ {
		sess, err := c.connect(ctx)
		if err != nil {
			return nil // cancelled
		}
		if sessions > 0 {
			metrics.RelayReconnects.WithLabelValues(c.queue).Inc()
		}
		deliveries, err := sess.Consume(ctx, c.queue, c.cfg.Prefetch)
		if err != nil {
			sess.Close()
			c.log.Warn("relay.consume.failed", "err", err)
			if waitErr := wait(ctx, c.cfg.ReconnectDelay); waitErr != nil {
				return nil
			}
			continue
		}
		c.log.Info("relay.consuming")
		c.drain(ctx, deliveries)
		sess.Close()
		if ctx.Err() != nil {
			c.log.Info("relay.consumer.stopped")
			return nil
		}
		c.log.Warn("relay.stream.lost")
	}
}

func (c *Consumer) connect(ctx context.Context) (Session, error) {
	var sess Session
	err := retry.Forever(ctx, c.log, "relay.dial", c.cfg.ReconnectDelay, func(ctx context.Context) error {
		s, err := c.broker.Dial(ctx)
		if err != nil {
			return err
		}
		if err := s.Setup(ctx, c.cfg.Exchange, []string{c.queue}); err != nil {
			s.Close()
			return fmt.Errorf("setup: %w", err)
		}
		sess = s
		return nil
	})
	return sess, err
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if c.handle(context.WithoutCancel(ctx), d) == outcomeRequeued {
				// Pause so a failing store is not hit in a redelivery loop.
				if wait(ctx, c.cfg.ReconnectDelay) != nil {
					return
				}
			}
		}
	}
}

// handle forwards one delivery, settles it and reports the outcome.
// Invalid input is never requeued; any other failure is requeued unless
// DropOnFailure is set.
func (c *Consumer) handle(ctx context.Context, d Delivery) string {
	ev, err := Decode(d.Body)
	if err != nil {
		c.log.Error("relay.message.malformed", "message_id", d.MessageID, "err", err)
		return c.settle(d, outcomeMalformed, d.Nack(false))
	}

	eid, err := c.handler.CreateEvent(ctx, ev)
	switch {
	case err == nil:
		c.log.Debug("relay.message.ingested", "message_id", d.MessageID, "event_id", eid, "redelivered", d.Redelivered)
		return c.settle(d, outcomeAcked, d.Ack())
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound):
		c.log.Warn("relay.message.rejected", "message_id", d.MessageID, "event_type", ev.EventType, "err", err)
		return c.settle(d, outcomeRejected, d.Nack(false))
	case c.cfg.DropOnFailure:
		c.log.Error("relay.message.failed", "message_id", d.MessageID, "requeue", false, "err", err)
		return c.settle(d, outcomeDropped, d.Nack(false))
	default:
		c.log.Error("relay.message.failed", "message_id", d.MessageID, "requeue", true, "err", err)
		return c.settle(d, outcomeRequeued, d.Nack(true))
	}
}

func (c *Consumer) settle(d Delivery, outcome string, err error) string {
	metrics.RelayMessages.WithLabelValues(c.queue, outcome).Inc()
	if err != nil {
		// The broker redelivers anything left unsettled on a dead channel.
		c.log.Warn("relay.settle.failed", "message_id", d.MessageID, "outcome", outcome, "err", err)
	}
	return outcome
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Relay runs one Consumer per configured queue.
type Relay struct {
	consumers []*Consumer
	log       *slog.Logger
}

// New creates a Relay for every queue in cfg.
func New(b Broker, h Handler, cfg Config, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	r := &Relay{log: log}
	for _, q := range cfg.Queues {
		r.consumers = append(r.consumers, NewConsumer(b, h, q, cfg, log))
	}
	return r
}

// Run blocks until ctx is cancelled and every consumer has stopped.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.consumers {
		g.Go(func() error { return c.Run(ctx) })
	}
	r.log.Info("relay.started", "queues", len(r.consumers))
	err := g.Wait()
	r.log.Info("relay.stopped")
	return err
}
