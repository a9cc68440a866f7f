package ingest

import (
	"context"
	"strings"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// CreateEventType registers a new event type name. Names are unique.
func (s *Service) CreateEventType(ctx context.Context, et *model.EventType) (id.EntityID, error) {
	et.EventType = strings.TrimSpace(et.EventType)
	if et.EventType == "" {
		return id.EntityID{}, apperr.Validation("event_type is required")
	}
	existing, err := s.store.EventTypes().FindOne(ctx, store.Filter{"event_type": et.EventType})
	if err != nil {
		return id.EntityID{}, err
	}
	if existing != nil {
		return id.EntityID{}, apperr.Conflict("event type '%s' already exists", et.EventType)
	}
	if et.Timestamp.IsZero() {
		et.Timestamp = model.Now()
	}
	et.ID = id.EntityID{}
	etID, err := s.store.EventTypes().Insert(ctx, et)
	if err != nil {
		return id.EntityID{}, err
	}
	s.log.Info("event_type.created", "event_type_id", etID, "event_type", et.EventType)
	return etID, nil
}

func (s *Service) ListEventTypes(ctx context.Context, p store.Page) ([]*model.EventType, error) {
	return s.store.EventTypes().FindAll(ctx, nil, p)
}

func (s *Service) GetEventType(ctx context.Context, etID id.EntityID) (*model.EventType, error) {
	et, err := s.store.EventTypes().FindByID(ctx, etID)
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, apperr.NotFound("event type %s not found", etID)
	}
	return et, nil
}

// DeleteEventType removes the type. Stored events keep their type name.
func (s *Service) DeleteEventType(ctx context.Context, etID id.EntityID) error {
	ok, err := s.store.EventTypes().Delete(ctx, etID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("event type %s not found", etID)
	}
	s.log.Info("event_type.deleted", "event_type_id", etID)
	return nil
}
