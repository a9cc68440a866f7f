package relay

import (
	"encoding/json"
	"fmt"

	"github.com/shieldx/shieldx/internal/model"
)

// ContentType of every relayed message.
const ContentType = "application/json"

// wireEvent is the queue message body. It carries no id; ingestion assigns one.
type wireEvent struct {
	ServiceID      string          `json:"service_id"`
	MicroserviceID string          `json:"microservice_id"`
	FunctionID     string          `json:"function_id"`
	EventType      string          `json:"event_type"`
	Timestamp      model.Timestamp `json:"timestamp"`
	Payload        any             `json:"payload,omitempty"`
}

// Encode serializes ev for the queue.
func Encode(ev *model.Event) ([]byte, error) {
	return json.Marshal(wireEvent{
		ServiceID:      ev.ServiceID,
		MicroserviceID: ev.MicroserviceID,
		FunctionID:     ev.FunctionID,
		EventType:      ev.EventType,
		Timestamp:      ev.Timestamp,
		Payload:        ev.Payload,
	})
}

// Decode parses a queue message body.
func Decode(body []byte) (*model.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if w.EventType == "" {
		return nil, fmt.Errorf("decode event: event_type is required")
	}
	return &model.Event{
		ServiceID:      w.ServiceID,
		MicroserviceID: w.MicroserviceID,
		FunctionID:     w.FunctionID,
		EventType:      w.EventType,
		Timestamp:      w.Timestamp,
		Payload:        w.Payload,
	}, nil
}
