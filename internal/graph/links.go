package graph

import (
	"context"

	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/store"
)

// logPrefix returns the log event namespace for a relation kind.
func logPrefix(kind store.RelationKind) string {
	switch kind {
	case store.EventTypeTriggers:
		return "event_trigger"
	case store.TriggerRules:
		return "rule_trigger"
	case store.TriggerChildren:
		return "trigger_trigger"
	}
	return string(kind)
}

// Link associates a with b. An existing association is a successful no-op;
// created reports whether a record was written.
func (e *Engine) Link(ctx context.Context, kind store.RelationKind, a, b id.EntityID) (bool, error) {
	created, err := e.store.Relations(kind).Link(ctx, a, b)
	if err != nil {
		return false, err
	}
	if !created {
		e.log.Info(logPrefix(kind)+".link.exists", "a", a, "b", b)
		return false, nil
	}
	e.log.Info(logPrefix(kind)+".linked", "a", a, "b", b)
	if kind == store.TriggerChildren && a == b {
		e.log.Warn("trigger_trigger.self_link", "trigger_id", a)
	}
	return true, nil
}

// Unlink removes the association if present.
func (e *Engine) Unlink(ctx context.Context, kind store.RelationKind, a, b id.EntityID) (bool, error) {
	removed, err := e.store.Relations(kind).Unlink(ctx, a, b)
	if err != nil {
		return false, err
	}
	if removed {
		e.log.Info(logPrefix(kind)+".unlinked", "a", a, "b", b)
	}
	return removed, nil
}

// ListFor returns every association anchored at a.
func (e *Engine) ListFor(ctx context.Context, kind store.RelationKind, a id.EntityID) ([]store.Pair, error) {
	return e.store.Relations(kind).ListByA(ctx, a)
}

// ListTo returns every association pointing at b. For TriggerChildren these
// are the parents of b.
func (e *Engine) ListTo(ctx context.Context, kind store.RelationKind, b id.EntityID) ([]store.Pair, error) {
	return e.store.Relations(kind).ListByB(ctx, b)
}

// ReplaceFor makes bs the complete set of associations anchored at a.
func (e *Engine) ReplaceFor(ctx context.Context, kind store.RelationKind, a id.EntityID, bs []id.EntityID) error {
	if err := e.store.Relations(kind).ReplaceAllForA(ctx, a, bs); err != nil {
		return err
	}
	e.log.Info(logPrefix(kind)+".replaced", "a", a, "count", len(store.Dedup(bs)))
	return nil
}
