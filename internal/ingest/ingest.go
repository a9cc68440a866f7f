// Package ingest validates and persists events and manages the event types
// they reference.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/metrics"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// Notifier is told about every event that was persisted.
type Notifier interface {
	Notify(ev *model.Event)
}

// Service is the Event Ingestion API.
type Service struct {
	store    store.Backend
	log      *slog.Logger
	notifier Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers n to receive persisted events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New creates a Service. A nil logger falls back to slog.Default().
func New(b store.Backend, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{store: b, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateEvent persists ev after checking that its event type exists and
// hands it to the notifier. The event is not deduplicated: redelivered
// messages produce separate records.
func (s *Service) CreateEvent(ctx context.Context, ev *model.Event) (id.EntityID, error) {
	eid, err := s.Record(ctx, ev)
	if err != nil {
		return id.EntityID{}, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
	return eid, nil
}

// Record persists ev like CreateEvent without notifying. Callers that
// evaluate activations themselves use it.
func (s *Service) Record(ctx context.Context, ev *model.Event) (id.EntityID, error) {
	if strings.TrimSpace(ev.EventType) == "" {
		return id.EntityID{}, apperr.Validation("event_type is required")
	}
	if err := s.requireEventType(ctx, ev.EventType); err != nil {
		s.log.Warn("event.create.unknown_type", "event_type", ev.EventType, "service_id", ev.ServiceID)
		return id.EntityID{}, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = model.Now()
	}
	ev.ID = id.EntityID{}
	eid, err := s.store.Events().Insert(ctx, ev)
	if err != nil {
		return id.EntityID{}, err
	}
	metrics.EventsIngested.Inc()
	s.log.Info("event.created", "event_id", eid, "event_type", ev.EventType, "service_id", ev.ServiceID)
	return eid, nil
}

// ListEvents returns events matching every non-empty field of f.
func (s *Service) ListEvents(ctx context.Context, f model.EventFilter, p store.Page) ([]*model.Event, error) {
	filter := store.Filter{}
	if f.ServiceID != "" {
		filter["service_id"] = f.ServiceID
	}
	if f.MicroserviceID != "" {
		filter["microservice_id"] = f.MicroserviceID
	}
	if f.FunctionID != "" {
		filter["function_id"] = f.FunctionID
	}
	return s.store.Events().FindAll(ctx, filter, p)
}

func (s *Service) GetEvent(ctx context.Context, eid id.EntityID) (*model.Event, error) {
	ev, err := s.store.Events().FindByID(ctx, eid)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, apperr.NotFound("event %s not found", eid)
	}
	return ev, nil
}

// UpdateEvent applies a partial update. A new event_type must exist.
func (s *Service) UpdateEvent(ctx context.Context, eid id.EntityID, u model.EventUpdate) (*model.Event, error) {
	if u.EventType != nil {
		if strings.TrimSpace(*u.EventType) == "" {
			return nil, apperr.Validation("event_type must not be empty")
		}
		if err := s.requireEventType(ctx, *u.EventType); err != nil {
			return nil, err
		}
	}
	fields := u.Fields()
	if len(fields) == 0 {
		return s.GetEvent(ctx, eid)
	}
	ev, err := s.store.Events().Update(ctx, eid, fields)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, apperr.NotFound("event %s not found", eid)
	}
	s.log.Info("event.updated", "event_id", eid, "fields", len(fields))
	return ev, nil
}

func (s *Service) DeleteEvent(ctx context.Context, eid id.EntityID) error {
	ok, err := s.store.Events().Delete(ctx, eid)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("event %s not found", eid)
	}
	s.log.Info("event.deleted", "event_id", eid)
	return nil
}

func (s *Service) requireEventType(ctx context.Context, name string) error {
	et, err := s.store.EventTypes().FindOne(ctx, store.Filter{"event_type": name})
	if err != nil {
		return err
	}
	if et == nil {
		return apperr.NotFound("event type '%s' not found", name)
	}
	return nil
}
