package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/metrics"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/retry"
)

// Publisher sends events to queues over a lazily opened session. A
// transport failure discards the session; the next call dials again.
type Publisher struct {
	broker   Broker
	exchange string
	log      *slog.Logger

	mu       sync.Mutex
	sess     Session
	declared map[string]bool
}

// NewPublisher creates a Publisher for exchange.
func NewPublisher(b Broker, exchange string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{broker: b, exchange: exchange, log: log, declared: make(map[string]bool)}
}

// Connect blocks until a session is open, retrying every delay.
func (p *Publisher) Connect(ctx context.Context, delay time.Duration) error {
	return retry.Forever(ctx, p.log, "relay.publisher.dial", delay, func(ctx context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, err := p.session(ctx)
		return err
	})
}

// Publish sends ev to queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, queue string, ev *model.Event) error {
	body, err := Encode(ev)
	if err != nil {
		return apperr.Validation("encode event: %v", err)
	}
	msg := Message{
		Body:        body,
		ContentType: ContentType,
		MessageID:   uuid.NewString(),
		Persistent:  true,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sess, err := p.session(ctx)
	if err != nil {
		metrics.RelayPublished.WithLabelValues(queue, "error").Inc()
		return err
	}
	if !p.declared[queue] {
		if err := sess.Setup(ctx, p.exchange, []string{queue}); err != nil {
			p.reset()
			metrics.RelayPublished.WithLabelValues(queue, "error").Inc()
			return apperr.Transport("setup "+queue, err)
		}
		p.declared[queue] = true
	}
	if err := sess.Publish(ctx, p.exchange, queue, msg); err != nil {
		p.reset()
		metrics.RelayPublished.WithLabelValues(queue, "error").Inc()
		return apperr.Transport("publish "+queue, err)
	}
	metrics.RelayPublished.WithLabelValues(queue, "ok").Inc()
	p.log.Debug("relay.published", "queue", queue, "message_id", msg.MessageID, "event_type", ev.EventType)
	return nil
}

// Close releases the session.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	return err
}

// session must be called with p.mu held.
func (p *Publisher) session(ctx context.Context) (Session, error) {
	if p.sess != nil {
		return p.sess, nil
	}
	sess, err := p.broker.Dial(ctx)
	if err != nil {
		return nil, apperr.Transport("dial", err)
	}
	p.sess = sess
	p.declared = make(map[string]bool)
	return sess, nil
}

// reset must be called with p.mu held.
func (p *Publisher) reset() {
	if p.sess != nil {
		p.sess.Close()
	}
	p.sess = nil
}
