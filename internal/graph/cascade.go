package graph

import (
	"context"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// Activation is a rule fired by a trigger reached during a walk.
type Activation struct {
	TriggerID id.EntityID `json:"trigger_id"`
	Rule      *model.Rule `json:"rule"`
}

// Edge is a parent -> child trigger edge.
type Edge struct {
	ParentID id.EntityID `json:"trigger_parent_id"`
	ChildID  id.EntityID `json:"trigger_child_id"`
}

// Plan is the result of a cascade walk. Triggers are listed in visit order.
// Cycles holds every edge that closed a loop back onto the current path; the
// walk does not follow those edges a second time.
type Plan struct {
	Triggers    []*model.Trigger `json:"triggers"`
	Activations []Activation     `json:"activations"`
	Cycles      []Edge           `json:"cycles"`
}

func newPlan() *Plan {
	return &Plan{
		Triggers:    make([]*model.Trigger, 0),
		Activations: make([]Activation, 0),
		Cycles:      make([]Edge, 0),
	}
}

// Plan walks from an event type to every trigger it activates and every
// rule those triggers fire.
func (e *Engine) Plan(ctx context.Context, eventTypeID id.EntityID) (*Plan, error) {
	et, err := e.store.EventTypes().FindByID(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, apperr.NotFound("event type %s not found", eventTypeID)
	}
	return e.planFrom(ctx, eventTypeID)
}

// PlanForEventType is Plan keyed by event type name. An unknown name yields
// an empty plan.
func (e *Engine) PlanForEventType(ctx context.Context, name string) (*Plan, error) {
	et, err := e.store.EventTypes().FindOne(ctx, store.Filter{"event_type": name})
	if err != nil {
		return nil, err
	}
	if et == nil {
		return newPlan(), nil
	}
	return e.planFrom(ctx, et.ID)
}

// Cascade walks from a single trigger.
func (e *Engine) Cascade(ctx context.Context, triggerID id.EntityID) (*Plan, error) {
	if _, err := e.GetTrigger(ctx, triggerID); err != nil {
		return nil, err
	}
	w := newWalker(e)
	if err := w.visit(ctx, triggerID); err != nil {
		return nil, err
	}
	return w.plan, nil
}

func (e *Engine) planFrom(ctx context.Context, eventTypeID id.EntityID) (*Plan, error) {
	roots, err := e.store.Relations(store.EventTypeTriggers).ListByA(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	w := newWalker(e)
	for _, r := range roots {
		if err := w.visit(ctx, r.B); err != nil {
			return nil, err
		}
	}
	return w.plan, nil
}

type walker struct {
	e       *Engine
	plan    *Plan
	visited map[id.EntityID]bool
	onPath  map[id.EntityID]bool
}

func newWalker(e *Engine) *walker {
	return &walker{
		e:       e,
		plan:    newPlan(),
		visited: make(map[id.EntityID]bool),
		onPath:  make(map[id.EntityID]bool),
	}
}

// visit is a depth-first expansion; each trigger is expanded once.
func (w *walker) visit(ctx context.Context, tid id.EntityID) error {
	if w.visited[tid] {
		return nil
	}
	t, err := w.e.store.Triggers().FindByID(ctx, tid)
	if err != nil {
		return err
	}
	if t == nil {
		w.e.log.Debug("cascade.dangling_trigger", "trigger_id", tid)
		return nil
	}
	w.visited[tid] = true
	w.onPath[tid] = true
	defer delete(w.onPath, tid)
	w.plan.Triggers = append(w.plan.Triggers, t)

	rules, err := w.e.store.Relations(store.TriggerRules).ListByA(ctx, tid)
	if err != nil {
		return err
	}
	for _, p := range rules {
		r, err := w.e.store.Rules().FindByID(ctx, p.B)
		if err != nil {
			return err
		}
		if r == nil {
			continue
		}
		w.plan.Activations = append(w.plan.Activations, Activation{TriggerID: tid, Rule: r})
	}

	children, err := w.e.store.Relations(store.TriggerChildren).ListByA(ctx, tid)
	if err != nil {
		return err
	}
	for _, c := range children {
		if w.onPath[c.B] {
			w.e.log.Warn("cascade.cycle", "parent", tid, "child", c.B)
			w.plan.Cycles = append(w.plan.Cycles, Edge{ParentID: tid, ChildID: c.B})
			continue
		}
		if err := w.visit(ctx, c.B); err != nil {
			return err
		}
	}
	return nil
}
