// Package membroker is an in-process relay.Broker. Queues live in the
// broker, not the session, so messages survive reconnects. Messages
// delivered on a session that closes before settling them are put back at
// the head of their queue and marked redelivered.
package membroker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shieldx/shieldx/internal/relay"
)

var (
	ErrClosed      = errors.New("membroker: session closed")
	ErrDialRefused = errors.New("membroker: dial refused")
	ErrUnknownTag  = errors.New("membroker: unknown delivery tag")
	ErrNoExchange  = errors.New("membroker: exchange not declared")
	ErrNoSuchQueue = errors.New("membroker: queue not declared")
)

const defaultPrefetch = 1024

type message struct {
	body        []byte
	id          string
	redelivered bool
}

type queue struct {
	name      string
	ready     []message
	unacked   map[uint64]*pending
	consumers []*consumer
	next      int // round-robin cursor
	dropped   [][]byte
}

type pending struct {
	msg message
	c   *consumer
}

type consumer struct {
	sess     *Session
	q        *queue
	ch       chan relay.Delivery
	prefetch int
	inflight int
	closed   bool
}

// Broker is an in-memory message broker with direct exchanges.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]map[string]string // exchange -> routing key -> queue
	queues    map[string]*queue
	sessions  map[*Session]struct{}
	tag       uint64
	failDials int
	dials     int
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{
		exchanges: make(map[string]map[string]string),
		queues:    make(map[string]*queue),
		sessions:  make(map[*Session]struct{}),
	}
}

// Dial opens a session.
func (b *Broker) Dial(ctx context.Context) (relay.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.failDials > 0 {
		b.failDials--
		return nil, ErrDialRefused
	}
	s := &Session{b: b}
	b.sessions[s] = struct{}{}
	return s, nil
}

// FailNextDials makes the next n dials fail.
func (b *Broker) FailNextDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDials = n
}

// Dials returns how many dials were attempted.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// KillSessions closes every open session as if the connection dropped.
func (b *Broker) KillSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions {
		b.closeLocked(s)
	}
}

// Depth returns the number of ready messages in queue.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.ready)
	}
	return 0
}

// Unacked returns the number of delivered, unsettled messages in queue.
func (b *Broker) Unacked(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.unacked)
	}
	return 0
}

// Dropped returns the bodies rejected without requeue from queue.
func (b *Broker) Dropped(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	out := make([][]byte, len(q.dropped))
	copy(out, q.dropped)
	return out
}

// dispatch hands ready messages to consumers with spare prefetch capacity.
// Channels are sized to the prefetch window so sends never block.
func (b *Broker) dispatch(q *queue) {
	for len(q.ready) > 0 {
		c := q.pick()
		if c == nil {
			return
		}
		m := q.ready[0]
		q.ready = q.ready[1:]
		b.tag++
		tag := b.tag
		q.unacked[tag] = &pending{msg: m, c: c}
		c.inflight++
		c.ch <- relay.Delivery{
			Body:         m.body,
			MessageID:    m.id,
			Redelivered:  m.redelivered,
			Acknowledger: &acker{b: b, q: q, tag: tag},
		}
	}
}

func (q *queue) pick() *consumer {
	n := len(q.consumers)
	for i := 0; i < n; i++ {
		c := q.consumers[(q.next+i)%n]
		if c.inflight < c.prefetch {
			q.next = (q.next + i + 1) % n
			return c
		}
	}
	return nil
}

// closeLocked tears down s and requeues everything it held.
func (b *Broker) closeLocked(s *Session) {
	if s.closed {
		return
	}
	s.closed = true
	delete(b.sessions, s)
	for _, q := range b.queues {
		var returned []message
		for tag, p := range q.unacked {
			if p.c.sess == s {
				m := p.msg
				m.redelivered = true
				returned = append(returned, m)
				delete(q.unacked, tag)
			}
		}
		kept := q.consumers[:0]
		for _, c := range q.consumers {
			if c.sess == s {
				c.closed = true
				drain(c.ch)
				close(c.ch)
				continue
			}
			kept = append(kept, c)
		}
		q.consumers = kept
		q.next = 0
		if len(returned) > 0 {
			q.ready = append(returned, q.ready...)
			b.dispatch(q)
		}
	}
}

// drain discards buffered deliveries; they have already been requeued.
func drain(ch chan relay.Delivery) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Session is one connection to the broker.
type Session struct {
	b      *Broker
	closed bool
}

func (s *Session) Setup(ctx context.Context, exchange string, queues []string) error {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	bindings, ok := b.exchanges[exchange]
	if !ok {
		bindings = make(map[string]string)
		b.exchanges[exchange] = bindings
	}
	for _, name := range queues {
		if _, ok := b.queues[name]; !ok {
			b.queues[name] = &queue{name: name, unacked: make(map[uint64]*pending)}
		}
		bindings[name] = name
	}
	return nil
}

func (s *Session) Publish(ctx context.Context, exchange, routingKey string, msg relay.Message) error {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	bindings, ok := b.exchanges[exchange]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoExchange, exchange)
	}
	name, ok := bindings[routingKey]
	if !ok {
		return nil // unroutable messages are discarded, as on a real direct exchange
	}
	q := b.queues[name]
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	q.ready = append(q.ready, message{body: body, id: msg.MessageID})
	b.dispatch(q)
	return nil
}

func (s *Session) Consume(ctx context.Context, name string, prefetch int) (<-chan relay.Delivery, error) {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	q, ok := b.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchQueue, name)
	}
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	c := &consumer{sess: s, q: q, ch: make(chan relay.Delivery, prefetch), prefetch: prefetch}
	q.consumers = append(q.consumers, c)
	b.dispatch(q)
	return c.ch, nil
}

func (s *Session) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.closeLocked(s)
	return nil
}

type acker struct {
	b   *Broker
	q   *queue
	tag uint64
}

func (a *acker) Ack() error {
	return a.settle(func(p *pending) {})
}

func (a *acker) Nack(requeue bool) error {
	return a.settle(func(p *pending) {
		if requeue {
			m := p.msg
			m.redelivered = true
			a.q.ready = append([]message{m}, a.q.ready...)
			return
		}
		a.q.dropped = append(a.q.dropped, p.msg.body)
	})
}

func (a *acker) settle(fn func(*pending)) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	p, ok := a.q.unacked[a.tag]
	if !ok {
		return ErrUnknownTag
	}
	delete(a.q.unacked, a.tag)
	p.c.inflight--
	fn(p)
	a.b.dispatch(a.q)
	return nil
}
