// Package store defines the storage contracts used by the services:
// a generic Entity Store over one document kind, and a Relation Store
// holding many-to-many associations between two kinds.
//
// Not-found conditions are modeled as nil results, never errors. Storage
// failures are returned as apperr repository errors.
package store

import (
	"context"

	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
)

// Collection names, shared by every backend.
const (
	CollEvents     = "events"
	CollEventTypes = "event_types"
	CollTriggers   = "triggers"
	CollRules      = "rules"
)

// RelationKind names one association table.
type RelationKind string

const (
	EventTypeTriggers RelationKind = "events_triggers"   // A = event type, B = trigger
	TriggerRules      RelationKind = "rules_trigger"     // A = trigger, B = rule
	TriggerChildren   RelationKind = "triggers_triggers" // A = parent trigger, B = child trigger
)

// Kinds lists every relation kind.
var Kinds = []RelationKind{EventTypeTriggers, TriggerRules, TriggerChildren}

// Fields returns the stored field names of the A and B sides.
func (k RelationKind) Fields() (a, b string) {
	switch k {
	case EventTypeTriggers:
		return "event_type_id", "trigger_id"
	case TriggerRules:
		return "trigger_id", "rule_id"
	case TriggerChildren:
		return "trigger_parent_id", "trigger_child_id"
	}
	return "a_id", "b_id"
}

// Document is implemented by every stored entity.
type Document interface {
	EntityID() id.EntityID
	SetEntityID(id.EntityID)
}

// DocPtr constrains a backend's type parameter to a pointer-to-entity.
type DocPtr[T any] interface {
	*T
	Document
}

// Filter is a conjunction of equality matches on stored field names.
type Filter map[string]any

// Page bounds a listing. A zero Limit means no limit.
type Page struct {
	Limit int
	Skip  int
}

// Entities is CRUD over a single entity kind.
type Entities[T any] interface {
	// Insert stores doc, assigning a fresh id when doc has none, and returns it.
	Insert(ctx context.Context, doc *T) (id.EntityID, error)
	FindByID(ctx context.Context, id id.EntityID) (*T, error)
	FindOne(ctx context.Context, f Filter) (*T, error)
	FindAll(ctx context.Context, f Filter, p Page) ([]*T, error)
	// Update sets fields on the document and returns it, or nil if nothing matched.
	Update(ctx context.Context, id id.EntityID, fields map[string]any) (*T, error)
	Delete(ctx context.Context, id id.EntityID) (bool, error)
}

// Pair is one association record.
type Pair struct {
	A id.EntityID
	B id.EntityID
}

// Relations is a many-to-many association table with unique pairs.
type Relations interface {
	// Link inserts (a, b) and reports whether it was created; an existing pair is left as is.
	Link(ctx context.Context, a, b id.EntityID) (bool, error)
	// Unlink removes (a, b) and reports whether it existed.
	Unlink(ctx context.Context, a, b id.EntityID) (bool, error)
	ListByA(ctx context.Context, a id.EntityID) ([]Pair, error)
	ListByB(ctx context.Context, b id.EntityID) ([]Pair, error)
	// ReplaceAllForA makes bs the complete set of associations anchored at a.
	ReplaceAllForA(ctx context.Context, a id.EntityID, bs []id.EntityID) error
}

// Backend is the process-wide storage handle shared by all services.
type Backend interface {
	Events() Entities[model.Event]
	EventTypes() Entities[model.EventType]
	Triggers() Entities[model.Trigger]
	Rules() Entities[model.Rule]
	Relations(kind RelationKind) Relations
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dedup returns ids with duplicates removed, preserving first occurrence.
func Dedup(ids []id.EntityID) []id.EntityID {
	seen := make(map[id.EntityID]struct{}, len(ids))
	out := make([]id.EntityID, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
