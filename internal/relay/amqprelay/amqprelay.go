// Package amqprelay is the RabbitMQ transport for the relay. Every channel
// runs in confirm mode: Publish returns only after the broker has taken
// responsibility for the message.
package amqprelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shieldx/shieldx/internal/relay"
)

// Broker dials RabbitMQ.
type Broker struct {
	url  string
	name string
}

// New returns a Broker for url. name is reported as the connection name.
func New(url, name string) *Broker {
	return &Broker{url: url, name: name}
}

func (b *Broker) Dial(ctx context.Context) (relay.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(b.name)
	conn, err := amqp.DialConfig(b.url, amqp.Config{
		Properties: props,
		Heartbeat:  10 * time.Second,
		Dial:       amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	return &Session{conn: conn, ch: ch, done: make(chan struct{})}, nil
}

// Session is one connection with a single channel.
type Session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan struct{}
	once sync.Once
}

func (s *Session) Setup(ctx context.Context, exchange string, queues []string) error {
	if err := s.ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	for _, q := range queues {
		if _, err := s.ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := s.ch.QueueBind(q, q, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

func (s *Session) Publish(ctx context.Context, exchange, routingKey string, msg relay.Message) error {
	mode := amqp.Transient
	if msg.Persistent {
		mode = amqp.Persistent
	}
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: mode,
		MessageId:    msg.MessageID,
		Timestamp:    time.Now(),
		Body:         msg.Body,
	})
	if err != nil {
		return err
	}
	if dc == nil {
		return errors.New("channel is not in confirm mode")
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker did not confirm message %s", msg.MessageID)
	}
	return nil
}

func (s *Session) Consume(ctx context.Context, queue string, prefetch int) (<-chan relay.Delivery, error) {
	if prefetch > 0 {
		if err := s.ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("qos: %w", err)
		}
	}
	tag := "shieldx-" + uuid.NewString()
	in, err := s.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	out := make(chan relay.Delivery)
	go func() {
		defer close(out)
		for d := range in {
			select {
			case out <- relay.Delivery{
				Body:         d.Body,
				MessageID:    d.MessageId,
				Redelivered:  d.Redelivered,
				Acknowledger: acker{d},
			}:
			case <-s.done:
				return
			}
		}
	}()
	return out, nil
}

func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.ch.Close()
		err = s.conn.Close()
	})
	return err
}

type acker struct {
	d amqp.Delivery
}

func (a acker) Ack() error              { return a.d.Ack(false) }
func (a acker) Nack(requeue bool) error { return a.d.Nack(false, requeue) }
