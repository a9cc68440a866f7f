// Package engine evaluates the trigger cascade of every ingested event in
// the background and records the resulting rule activations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shieldx/shieldx/internal/config"
	"github.com/shieldx/shieldx/internal/graph"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/metrics"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/target"
)

// ErrQueueFull is returned when the activation queue has no room.
var ErrQueueFull = errors.New("activation queue full")

// Planner computes the cascade for an event type name.
type Planner interface {
	PlanForEventType(ctx context.Context, name string) (*graph.Plan, error)
}

// RuleActivation is one rule reached by an event.
type RuleActivation struct {
	TriggerID id.EntityID `json:"trigger_id"`
	RuleID    id.EntityID `json:"rule_id"`
	Target    string      `json:"target"`
	Known     bool        `json:"known"` // target is in the registry
}

// Result is the outcome of evaluating one event.
type Result struct {
	EventID    id.EntityID      `json:"event_id"`
	EventType  string           `json:"event_type"`
	DurationMs int64            `json:"duration_ms"`
	Triggers   []string         `json:"triggers"`
	Rules      []RuleActivation `json:"rules"`
	Cycles     int              `json:"cycles"`
	Error      string           `json:"error,omitempty"`
}

type work struct {
	ev      *model.Event
	resultC chan *Result
}

// Engine runs cascade evaluation on a worker pool.
type Engine struct {
	planner Planner
	targets *target.Registry
	pool    *workerPool[*work]
	conf    config.EngineConf
	log     *slog.Logger
	hooks   []func(*Result)
}

// Option configures an Engine.
type Option func(*Engine)

// OnActivation registers fn to receive every result. fn runs on a worker.
func OnActivation(fn func(*Result)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

// New creates an Engine and starts its workers. Workers stop when ctx is
// cancelled or Shutdown is called.
func New(ctx context.Context, p Planner, targets *target.Registry, conf config.EngineConf, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{planner: p, targets: targets, conf: conf, log: log}
	for _, o := range opts {
		o(e)
	}
	e.pool = newWorkerPool[*work](ctx, conf.Workers, conf.QueueDepth, func(ctx context.Context, w *work) {
		res := e.evaluate(ctx, w.ev)
		if w.resultC != nil {
			w.resultC <- res
		}
	})
	return e
}

// Notify enqueues ev for background evaluation. A full queue drops the
// activation; ingestion is never failed by the engine.
func (e *Engine) Notify(ev *model.Event) {
	if !e.ProcessAsync(ev) {
		e.log.Warn("activation.dropped", "event_id", ev.ID, "event_type", ev.EventType)
	}
}

// ProcessAsync enqueues ev. Returns false if the queue is full.
func (e *Engine) ProcessAsync(ev *model.Event) bool {
	if !e.pool.Submit(&work{ev: ev}) {
		metrics.ActivationsDropped.Inc()
		return false
	}
	metrics.ActivationsEnqueued.Inc()
	e.observeQueue()
	return true
}

// ProcessSync evaluates ev on the pool and waits for the result.
func (e *Engine) ProcessSync(ctx context.Context, ev *model.Event) (*Result, error) {
	resultC := make(chan *Result, 1)
	if !e.pool.Submit(&work{ev: ev, resultC: resultC}) {
		metrics.ActivationsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.ActivationsEnqueued.Inc()

	timeout := time.Duration(e.conf.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("activation timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) observeQueue() {
	metrics.QueueUtilization.Set(e.QueueUtilization())
}

func (e *Engine) evaluate(ctx context.Context, ev *model.Event) *Result {
	start := time.Now()
	res := &Result{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Triggers:  make([]string, 0),
		Rules:     make([]RuleActivation, 0),
	}
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		metrics.ActivationsProcessed.Inc()
		metrics.ActivationDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
		e.observeQueue()
		for _, fn := range e.hooks {
			fn(res)
		}
	}()

	plan, err := e.planner.PlanForEventType(ctx, ev.EventType)
	if err != nil {
		res.Error = err.Error()
		e.log.Error("activation.failed", "event_id", ev.ID, "event_type", ev.EventType, "err", err)
		return res
	}
	for _, t := range plan.Triggers {
		res.Triggers = append(res.Triggers, t.Name)
	}
	for _, a := range plan.Activations {
		_, known := e.targets.Get(a.Rule.Target)
		status := "registered"
		if !known {
			status = "unregistered"
		}
		metrics.RulesActivated.WithLabelValues(a.Rule.Target, status).Inc()
		res.Rules = append(res.Rules, RuleActivation{
			TriggerID: a.TriggerID,
			RuleID:    a.Rule.ID,
			Target:    a.Rule.Target,
			Known:     known,
		})
		e.log.Info("rule.activated",
			"event_id", ev.ID, "trigger_id", a.TriggerID, "rule_id", a.Rule.ID, "target", a.Rule.Target)
	}
	res.Cycles = len(plan.Cycles)
	if res.Cycles > 0 {
		metrics.CyclesDetected.Add(float64(res.Cycles))
	}
	return res
}

// Shutdown drains the pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
