package model

import "github.com/shieldx/shieldx/internal/id"

// Event is a timestamped record of a microservice function execution.
type Event struct {
	ID             id.EntityID `json:"id" bson:"_id,omitempty"`
	ServiceID      string      `json:"service_id" bson:"service_id"`
	MicroserviceID string      `json:"microservice_id" bson:"microservice_id"`
	FunctionID     string      `json:"function_id" bson:"function_id"`
	EventType      string      `json:"event_type" bson:"event_type"` // EventType name, not id
	Timestamp      Timestamp   `json:"timestamp" bson:"timestamp"`
	Payload        any         `json:"payload,omitempty" bson:"payload,omitempty"`
}

func (e *Event) EntityID() id.EntityID     { return e.ID }
func (e *Event) SetEntityID(v id.EntityID) { e.ID = v }

// EventFilter selects events; empty fields are not matched.
type EventFilter struct {
	ServiceID      string
	MicroserviceID string
	FunctionID     string
}

// EventUpdate is a partial update; nil fields are left untouched.
type EventUpdate struct {
	ServiceID      *string    `json:"service_id,omitempty"`
	MicroserviceID *string    `json:"microservice_id,omitempty"`
	FunctionID     *string    `json:"function_id,omitempty"`
	EventType      *string    `json:"event_type,omitempty"`
	Timestamp      *Timestamp `json:"timestamp,omitempty"`
	Payload        any        `json:"payload,omitempty"`
}

// Fields flattens the update into stored field names.
func (u EventUpdate) Fields() map[string]any {
	f := make(map[string]any)
	if u.ServiceID != nil {
		f["service_id"] = *u.ServiceID
	}
	if u.MicroserviceID != nil {
		f["microservice_id"] = *u.MicroserviceID
	}
	if u.FunctionID != nil {
		f["function_id"] = *u.FunctionID
	}
	if u.EventType != nil {
		f["event_type"] = *u.EventType
	}
	if u.Timestamp != nil {
		f["timestamp"] = *u.Timestamp
	}
	if u.Payload != nil {
		f["payload"] = u.Payload
	}
	return f
}

// EventType is a named category that events reference.
type EventType struct {
	ID        id.EntityID `json:"id" bson:"_id,omitempty"`
	EventType string      `json:"event_type" bson:"event_type"`
	Timestamp Timestamp   `json:"timestamp" bson:"timestamp"`
}

func (e *EventType) EntityID() id.EntityID     { return e.ID }
func (e *EventType) SetEntityID(v id.EntityID) { e.ID = v }
