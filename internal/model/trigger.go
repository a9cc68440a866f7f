package model

import "github.com/shieldx/shieldx/internal/id"

// Trigger is a uniquely named activation point.
type Trigger struct {
	ID   id.EntityID `json:"id" bson:"_id,omitempty"`
	Name string      `json:"name" bson:"name"`
}

func (t *Trigger) EntityID() id.EntityID     { return t.ID }
func (t *Trigger) SetEntityID(v id.EntityID) { t.ID = v }

// Parameter describes one declared rule parameter.
type Parameter struct {
	Type        string `json:"type" bson:"type"`
	Description string `json:"description" bson:"description"`
}

// Rule is an executable-action descriptor with a typed parameter schema.
type Rule struct {
	ID         id.EntityID          `json:"id" bson:"_id,omitempty"`
	Target     string               `json:"target" bson:"target"`
	Parameters map[string]Parameter `json:"parameters" bson:"parameters"`
}

func (r *Rule) EntityID() id.EntityID     { return r.ID }
func (r *Rule) SetEntityID(v id.EntityID) { r.ID = v }

// EventTypeTrigger links an event type to a trigger it activates.
type EventTypeTrigger struct {
	EventTypeID id.EntityID `json:"event_type_id"`
	TriggerID   id.EntityID `json:"trigger_id"`
}

// RuleTrigger links a trigger to a rule it fires.
type RuleTrigger struct {
	TriggerID id.EntityID `json:"trigger_id"`
	RuleID    id.EntityID `json:"rule_id"`
}

// TriggerTrigger is a directed parent -> child activation edge.
type TriggerTrigger struct {
	ParentID id.EntityID `json:"trigger_parent_id"`
	ChildID  id.EntityID `json:"trigger_child_id"`
}
